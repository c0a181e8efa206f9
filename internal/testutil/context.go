package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout bounds test contexts that talk to containers or real timers.
const DefaultTimeout = 30 * time.Second

// Context returns a context cancelled when the test ends or after DefaultTimeout.
func Context(t testing.TB) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)

	return ctx
}
