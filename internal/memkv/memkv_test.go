package memkv

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Set(ctx, "task:1:output", "hello"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, ok, err := s.Get(ctx, "task:1:output")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || value != "hello" {
		t.Fatalf("expected (hello, true), got (%q, %v)", value, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	_, ok, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing key")
	}
}

func TestSetOverwritesExisting(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.Set(ctx, "k", "v1")
	_ = s.Set(ctx, "k", "v2")
	value, _, _ := s.Get(ctx, "k")
	if value != "v2" {
		t.Fatalf("expected v2, got %q", value)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "mem.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.Set(ctx, "k", "v")
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, ok, _ := s.Get(ctx, "k")
	if ok {
		t.Fatal("expected key to be gone after delete")
	}
}
