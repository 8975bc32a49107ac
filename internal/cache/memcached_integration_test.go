//go:build integration
// +build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/docsentry/docsentry/internal/probe"
	"github.com/docsentry/docsentry/internal/testhelpers"
)

// TestMemcachedCache_GetSet_Integration verifies that MemcachedCache stores
// and retrieves probe results against a real memcached server.
func TestMemcachedCache_GetSet_Integration(t *testing.T) {
	c, cleanup := testhelpers.SetupMemcachedCache(t, time.Hour)
	defer cleanup()

	ctx := context.Background()
	val := probe.Result{URL: "https://example.com", OK: true, StatusCode: 200, Category: probe.CategoryOK}
	if err := c.Set(ctx, "https://example.com", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "https://example.com")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.URL != val.URL || got.StatusCode != val.StatusCode {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
	if got.Stale {
		t.Error("fresh entry came back stale")
	}
}

// TestMemcachedCache_Get_Miss_Integration verifies ok=false for an absent URL.
func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	c, cleanup := testhelpers.SetupMemcachedCache(t, time.Hour)
	defer cleanup()

	_, ok, err := c.Get(context.Background(), "https://example.com/absent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestMemcachedCache_Stale_Integration verifies expired envelopes are served
// by GetStale with the Stale flag set.
func TestMemcachedCache_Stale_Integration(t *testing.T) {
	c, cleanup := testhelpers.SetupMemcachedCache(t, time.Hour)
	defer cleanup()

	ctx := context.Background()
	val := probe.Result{URL: "https://example.com/stale", OK: true}
	if err := c.Set(ctx, "https://example.com/stale", val, time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "https://example.com/stale"); ok {
		t.Error("Get() ok = true, want false after TTL")
	}
	got, ok, err := c.GetStale(ctx, "https://example.com/stale")
	if err != nil {
		t.Fatalf("GetStale() error = %v", err)
	}
	if !ok {
		t.Fatal("GetStale() ok = false, want true inside stale window")
	}
	if !got.Stale {
		t.Error("GetStale() returned expired entry without Stale flag")
	}
}
