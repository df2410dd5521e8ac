package vault

import (
	"context"
	"strings"
	"testing"
)

func TestMemoryStore_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	tests := []struct {
		name    string
		content string
		tags    string
	}{
		{name: "first write", content: "hello world", tags: "st_size=11"},
		{name: "same object again", content: "hello world", tags: "st_size=11"},
		{name: "replacement", content: strings.Repeat("x", 10000), tags: "st_size=10000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Put(ctx, "data/a.txt", strings.NewReader(tt.content), tt.tags); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			data, tags, ok := store.Get("data/a.txt")
			if !ok {
				t.Fatal("Get() ok = false after Put")
			}
			if string(data) != tt.content {
				t.Errorf("content length = %d, want %d", len(data), len(tt.content))
			}
			if tags != tt.tags {
				t.Errorf("tags = %q, want %q", tags, tt.tags)
			}
			if store.Len() != 1 {
				t.Errorf("Len() = %d, want 1", store.Len())
			}
		})
	}
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(ctx, "k", strings.NewReader("v"), "")

	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "k"); err != nil {
			t.Fatalf("Delete() #%d error = %v", i+1, err)
		}
	}
	ok, err := store.Exists(ctx, "k")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Error("Exists() = true after Delete")
	}
}

func TestMemoryStore_ListFiltersByPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, k := range []string{"data/b", "data/a", "other/c"} {
		store.Put(ctx, k, strings.NewReader(""), "")
	}

	keys, err := store.List(ctx, "data/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "data/a" || keys[1] != "data/b" {
		t.Errorf("List() = %v, want [data/a data/b]", keys)
	}
}
