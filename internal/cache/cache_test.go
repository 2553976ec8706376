package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*BoardCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := New("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create board cache: %v", err)
	}
	return c, s
}

func TestNewBoardCache(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	c, err := New("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestGetListingMiss(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	_, err := c.GetListing(context.Background(), 7)
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestSetAndGetListing(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	payload := []byte(`{"topics":[]}`)
	if err := c.SetListing(ctx, 7, payload); err != nil {
		t.Fatalf("SetListing failed: %v", err)
	}

	got, err := c.GetListing(ctx, 7)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %q, want %q", got, payload)
	}
}

func TestInvalidateBoard(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.SetListing(ctx, 7, []byte("cached")); err != nil {
		t.Fatalf("SetListing failed: %v", err)
	}
	if err := c.InvalidateBoard(ctx, 7); err != nil {
		t.Fatalf("InvalidateBoard failed: %v", err)
	}

	_, err := c.GetListing(ctx, 7)
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after invalidation, got %v", err)
	}
}

func TestListingExpires(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.SetListing(ctx, 7, []byte("cached")); err != nil {
		t.Fatalf("SetListing failed: %v", err)
	}

	s.FastForward(c.ttl * 2)

	_, err := c.GetListing(ctx, 7)
	if !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after TTL, got %v", err)
	}
}
