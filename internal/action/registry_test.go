package action

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestRegistryResolveErrors(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "broken.yaml", "kind: [unterminated")
	writeDefinition(t, dir, "unknown.yaml", "kind: carrier-pigeon\n")
	writeDefinition(t, dir, "incomplete.yaml", "kind: http\n")
	if err := os.Mkdir(filepath.Join(dir, "folder"), 0o755); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(dir)
	tests := []struct {
		ref  string
		want error
	}{
		{ref: "missing.yaml", want: ErrNotFound},
		{ref: "folder", want: ErrNotFile},
		{ref: "broken.yaml", want: ErrLoad},
		{ref: "unknown.yaml", want: ErrNotInvocable},
		{ref: "incomplete.yaml", want: ErrNotInvocable},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			_, err := reg.Resolve(tt.ref)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tt.ref, err, tt.want)
			}
		})
	}
}

func TestRegistryNamedAction(t *testing.T) {
	reg := NewRegistry("")
	a, err := reg.Resolve("noop")
	if err != nil {
		t.Fatalf("Resolve(noop) error = %v", err)
	}
	if err := a.Invoke(context.Background(), Config{}).Wait(context.Background()); err != nil {
		t.Fatalf("noop failed: %v", err)
	}

	called := false
	reg.Register("custom", Func(func(context.Context, Config) error {
		called = true
		return nil
	}))
	a, err = reg.Resolve("custom")
	if err != nil {
		t.Fatalf("Resolve(custom) error = %v", err)
	}
	_ = a.Invoke(context.Background(), Config{}).Wait(context.Background())
	if !called {
		t.Error("custom action was not invoked")
	}
}

func TestRegistryCachesByModTime(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinition(t, dir, "nap.yaml", "kind: sleep\nsleep:\n  duration: 1ms\n")

	reg := NewRegistry("")
	first, err := reg.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := reg.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first == nil || second == nil {
		t.Fatal("nil action")
	}
	if _, ok := reg.cache.Get(path + "@" + modTime(t, path)); !ok {
		t.Error("definition was not cached")
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Resolve(path); err != nil {
		t.Fatalf("Resolve() after touch error = %v", err)
	}
	if reg.cache.ItemCount() != 2 {
		t.Errorf("cache entries = %d, want 2", reg.cache.ItemCount())
	}
}

func modTime(t *testing.T, path string) string {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 10)
}
