package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalPutOpenDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Put(ctx, "channels/-100.json", strings.NewReader(`{"id":"-100"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := ReadAll(ctx, p, "channels/-100.json")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"id":"-100"}` {
		t.Fatalf("unexpected content: %s", data)
	}

	if err := p.Put(ctx, "channels/-100.json", strings.NewReader(`{}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, _ = ReadAll(ctx, p, "channels/-100.json")
	if string(data) != `{}` {
		t.Fatalf("overwrite lost: %s", data)
	}

	if err := p.Delete(ctx, "channels/-100.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := p.Open(ctx, "channels/-100.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := p.Delete(ctx, "channels/-100.json"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestLocalListSkipsTempAndOtherSuffixes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	p, err := NewLocal(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"channels/b.json", "channels/a.json", "channels/notes.txt"} {
		if err := p.Put(ctx, key, strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "channels", ".c.json.123.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	keys, err := p.List(ctx, "channels", ".json")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "channels/a.json" || keys[1] != "channels/b.json" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	missing, err := p.List(ctx, "nothing", ".json")
	if err != nil || len(missing) != 0 {
		t.Fatalf("expected empty list for missing prefix, got %v %v", missing, err)
	}
}

func TestLocalResolveStaysUnderRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p, err := NewLocal(root)
	if err != nil {
		t.Fatal(err)
	}
	got := p.AccessPath("../../etc/passwd")
	if !strings.HasPrefix(got, root) {
		t.Fatalf("key escaped root: %s", got)
	}
	if p.AccessPath("") != "" {
		t.Fatal("empty key should not resolve")
	}
}
