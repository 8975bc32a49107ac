//go:build integration
// +build integration

// Package testhelpers wires real backing services for integration tests.
// Everything here skips rather than fails when the service is absent, so
// `go test -tags integration ./...` degrades cleanly on a laptop without
// memcached running.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/docsentry/docsentry/internal/cache"
)

// MemcachedAddrs returns the memcached address list for integration tests,
// from MEMCACHED_ADDRS or a local default. Matches the serve command's
// environment override so CI configures both the same way.
func MemcachedAddrs() string {
	if addrs := os.Getenv("MEMCACHED_ADDRS"); addrs != "" {
		return addrs
	}
	return "localhost:11211"
}

// SetupMemcachedCache connects to memcached and skips the test when it is
// unreachable. The cleanup closes the client.
func SetupMemcachedCache(t *testing.T, staleFor time.Duration) (*cache.MemcachedCache, func()) {
	t.Helper()

	addrs := MemcachedAddrs()
	mc, err := cache.NewMemcachedCache(addrs, 500*time.Millisecond, 2, staleFor)
	if err != nil {
		t.Fatalf("NewMemcachedCache(%q) error = %v", addrs, err)
	}
	if err := mc.Ping(); err != nil {
		_ = mc.Close()
		t.Skipf("memcached not reachable at %s: %v", addrs, err)
	}
	return mc, func() { _ = mc.Close() }
}
