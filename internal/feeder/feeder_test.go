package feeder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestOpenFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []Record
	}{
		{
			name:    "csv",
			file:    "users.csv",
			content: "user_id, email\n1, alice@example.com\n2, bob@example.com\n",
			want:    []Record{{"user_id": "1", "email": "alice@example.com"}, {"user_id": "2", "email": "bob@example.com"}},
		},
		{
			name:    "json",
			file:    "products.json",
			content: `[{"sku": "p1", "price": 19.99}, {"sku": "p2", "price": 5}]`,
			want:    []Record{{"sku": "p1", "price": "19.99"}, {"sku": "p2", "price": "5"}},
		},
		{
			name:    "yaml",
			file:    "tenants.yml",
			content: "- tenant: acme\n  region: eu\n- tenant: globex\n  region: us\n",
			want:    []Record{{"tenant": "acme", "region": "eu"}, {"tenant": "globex", "region": "us"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Open(writeFile(t, tt.file, tt.content), false)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer f.Close()

			if f.Len() != len(tt.want) {
				t.Fatalf("Len() = %d, want %d", f.Len(), len(tt.want))
			}
			for i, want := range tt.want {
				got, err := f.Next(context.Background())
				if err != nil {
					t.Fatalf("Next() #%d error = %v", i, err)
				}
				for k, v := range want {
					if got[k] != v {
						t.Errorf("record %d %s = %q, want %q", i, k, got[k], v)
					}
				}
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"unknown extension", "data.txt", "a", "unsupported data file"},
		{"csv header only", "a.csv", "id,name\n", "at least one header row and one data row"},
		{"csv ragged", "b.csv", "id,name\n1\n", "row 2 has 1 fields"},
		{"json not array", "c.json", `{"id": 1}`, "decode JSON"},
		{"json empty", "d.json", `[]`, "no records"},
		{"json empty object", "e.json", `[{}]`, "record 0 is empty"},
		{"yaml empty", "f.yaml", "[]", "no records"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(writeFile(t, tt.file, tt.content), true)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Open() error = %v, want %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.csv"), true); err == nil {
		t.Error("Open() of missing file should fail")
	}
}

func TestLoopAndExhaustion(t *testing.T) {
	path := writeFile(t, "ids.csv", "id\n1\n2\n")
	ctx := context.Background()

	looping, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for i := 0; i < 5; i++ {
		rec, err := looping.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		got = append(got, rec["id"])
	}
	if strings.Join(got, ",") != "1,2,1,2,1" {
		t.Errorf("looping order = %v", got)
	}

	once, err := Open(path, false)
	if err != nil {
		t.Fatal(err)
	}
	once.Next(ctx)
	once.Next(ctx)
	if _, err := once.Next(ctx); !errors.Is(err, ErrExhausted) {
		t.Errorf("Next() after last record error = %v, want ErrExhausted", err)
	}
}

func TestNextHonorsContext(t *testing.T) {
	f, err := Open(writeFile(t, "ids.csv", "id\n1\n"), true)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestConcurrentNextCoversEveryRecord(t *testing.T) {
	f, err := Open(writeFile(t, "ids.csv", "id\n1\n2\n3\n4\n"), false)
	if err != nil {
		t.Fatal(err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := f.Next(context.Background())
			if err != nil {
				return
			}
			mu.Lock()
			seen[rec["id"]]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 4 {
		t.Fatalf("seen = %v, want 4 distinct records", seen)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("record %s handed out %d times", id, n)
		}
	}
}

func TestMerge(t *testing.T) {
	settings := map[string]interface{}{"base_url": "http://api", "sku": "default"}
	merged := Merge(settings, Record{"sku": "p1"})

	if merged["sku"] != "p1" || merged["base_url"] != "http://api" {
		t.Errorf("Merge() = %v", merged)
	}
	if settings["sku"] != "default" {
		t.Error("Merge() must not modify its input")
	}
}
