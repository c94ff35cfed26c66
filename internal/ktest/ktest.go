// Package ktest has test helpers shared across packages.
package ktest

import (
	"log/slog"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger that writes through t.Log,
// so log output interleaves with test output and only shows on failure.
func NewLogger(t testing.TB) *slog.Logger {
	return slogt.New(t)
}

// ReceiveSoon returns the next value from ch,
// failing the test if nothing arrives within a generous deadline.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting to receive on channel of type %T", ch)
		panic("unreachable")
	}
}

// NotSending asserts that ch stays quiet for a short window.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("expected channel to be quiet, received %v", v)
	case <-time.After(25 * time.Millisecond):
	}
}
