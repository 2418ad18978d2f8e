// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"testing"
	"time"
)

// Retry runs fn up to attempts times until it returns nil, for tests
// that observe process-wide state, such as open file descriptors, and
// can flicker when unrelated tests run concurrently.
func Retry(t *testing.T, attempts int, fn func() error) {
	t.Helper()
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("after %d attempts: %v", attempts, err)
}
