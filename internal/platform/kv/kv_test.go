package kv

import (
	"context"
	"errors"
	"testing"
)

func TestNamespacedIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	alice := ForUser(store, "user-a")
	bob := ForUser(store, "user-b")

	if err := alice.Set(ctx, "last_conversation", "shop-1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, err := bob.Get(ctx, "last_conversation"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user, got %v", err)
	}

	value, err := alice.Get(ctx, "last_conversation")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "shop-1" {
		t.Fatalf("expected shop-1, got %s", value)
	}
}

func TestNamespacedRequiresIdentity(t *testing.T) {
	ctx := context.Background()
	anon := ForUser(NewMemoryStore(), "")

	if err := anon.Set(ctx, "k", "v"); err == nil {
		t.Fatal("expected error for anonymous set")
	}
	if _, err := anon.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for anonymous get, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
