package action

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/torosent/symphoner/internal/feeder"
)

func TestDataFeedsPlaceholders(t *testing.T) {
	var (
		mu   sync.Mutex
		skus []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		skus = append(skus, strings.TrimPrefix(r.URL.Path, "/items/"))
		mu.Unlock()
	}))
	defer server.Close()

	dir := t.TempDir()
	writeDefinition(t, dir, "skus.csv", "sku\nA1\nB2\n")
	writeDefinition(t, dir, "lookup.yaml", `
kind: http
request:
  url: "{{base_url}}/items/{{sku}}"
data:
  file: skus.csv
`)
	a, err := NewRegistry(dir).Resolve("lookup.yaml")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	settings := map[string]interface{}{"base_url": server.URL, "sku": "unused"}
	for i := 0; i < 3; i++ {
		if err := a.Invoke(context.Background(), Config{Settings: settings}).Wait(context.Background()); err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
	}

	if strings.Join(skus, ",") != "A1,B2,A1" {
		t.Errorf("requested skus = %v", skus)
	}
	if settings["sku"] != "unused" {
		t.Error("records must not leak into the shared settings")
	}
}

func TestDataWithoutLoopExhausts(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "once.json", `[{"n": 1}]`)
	writeDefinition(t, dir, "nap.yaml", `
kind: sleep
sleep:
  duration: 1ms
data:
  file: once.json
  loop: false
`)
	a, err := NewRegistry(dir).Resolve("nap.yaml")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	ctx := context.Background()
	if err := a.Invoke(ctx, Config{}).Wait(ctx); err != nil {
		t.Fatalf("first invoke: %v", err)
	}
	if err := a.Invoke(ctx, Config{}).Wait(ctx); !errors.Is(err, feeder.ErrExhausted) {
		t.Fatalf("second invoke error = %v, want ErrExhausted", err)
	}
}

func TestDataFileErrors(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "nofile.yaml", "kind: sleep\nsleep:\n  duration: 1ms\ndata: {}\n")
	writeDefinition(t, dir, "missing.yaml", "kind: sleep\nsleep:\n  duration: 1ms\ndata:\n  file: nope.csv\n")

	reg := NewRegistry(dir)
	for _, ref := range []string{"nofile.yaml", "missing.yaml"} {
		if _, err := reg.Resolve(ref); !errors.Is(err, ErrLoad) {
			t.Errorf("Resolve(%q) error = %v, want ErrLoad", ref, err)
		}
	}
}

func TestDataPositionSurvivesRepeatedResolve(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "once.csv", "n\n1\n")
	path := writeDefinition(t, dir, "nap.yaml", `
kind: sleep
sleep:
  duration: 1ms
data:
  file: once.csv
  loop: false
`)
	reg := NewRegistry(dir)
	ctx := context.Background()

	first, err := reg.Resolve("nap.yaml")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := first.Invoke(ctx, Config{}).Wait(ctx); err != nil {
		t.Fatalf("first invoke: %v", err)
	}

	_, expires, ok := reg.cache.GetWithExpiration(path + "@" + modTime(t, path))
	if !ok {
		t.Fatal("resolved action was not cached")
	}
	if !expires.IsZero() {
		t.Fatalf("cached action expires at %v; its feeder position would be lost", expires)
	}

	again, err := reg.Resolve("nap.yaml")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if again != first {
		t.Fatal("Resolve() rebuilt the action instead of reusing it")
	}
	if err := again.Invoke(ctx, Config{}).Wait(ctx); !errors.Is(err, feeder.ErrExhausted) {
		t.Fatalf("invoke after resolve error = %v, want ErrExhausted", err)
	}
}
