package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem store: %v", err)
	}
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := store.Put(ctx, "imports/2026/itrs.csv", strings.NewReader("a,b,c\n1,2,3\n"), PutOptions{
				ContentType: "text/csv",
				Metadata:    map[string]string{"project": "PN-01"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != 12 || info.ContentType != "text/csv" || info.ETag == "" {
				t.Fatalf("unexpected info: %+v", info)
			}

			got, rc, err := store.Get(ctx, "imports/2026/itrs.csv")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(data) != "a,b,c\n1,2,3\n" {
				t.Fatalf("content mismatch: %q", data)
			}
			if got.Metadata["project"] != "PN-01" {
				t.Fatalf("metadata lost: %+v", got.Metadata)
			}
		})
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Put(ctx, "k", strings.NewReader("v1"), PutOptions{}); err != nil {
				t.Fatalf("first put: %v", err)
			}
			_, err := store.Put(ctx, "k", strings.NewReader("v2"), PutOptions{})
			if !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
		})
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Put(ctx, "k", strings.NewReader("v"), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if ok, err := store.Delete(ctx, "k"); err != nil || !ok {
				t.Fatalf("delete existing: ok=%v err=%v", ok, err)
			}
			if ok, err := store.Delete(ctx, "k"); err != nil || ok {
				t.Fatalf("delete missing: ok=%v err=%v", ok, err)
			}
			if _, err := store.Head(ctx, "k"); err == nil {
				t.Fatal("head after delete must fail")
			}
		})
	}
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"imports/b.csv", "imports/a.csv", "exports/x.json"} {
				if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
					t.Fatalf("put %s: %v", key, err)
				}
			}
			infos, err := store.List(ctx, "imports/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 || infos[0].Key != "imports/a.csv" || infos[1].Key != "imports/b.csv" {
				t.Fatalf("unexpected listing: %+v", infos)
			}
		})
	}
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem store: %v", err)
	}
	for _, key := range []string{"", "/abs", "../escape", "a/../../b"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Errorf("key %q accepted", key)
		}
	}
}

func TestPresignUnsupportedLocally(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.PresignURL(context.Background(), "k", SignedURLOptions{}); !errors.Is(err, ErrUnsupported) {
				t.Fatalf("expected ErrUnsupported, got %v", err)
			}
		})
	}
}
