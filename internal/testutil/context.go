package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext returns a context bounded to 5s and cancelled at cleanup.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

// NewCancelableContext is NewTestContext with the cancel func exposed, for
// tests that abandon a caller mid-fetch.
func NewCancelableContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(NewTestContext(t))
	t.Cleanup(cancel)

	return ctx, cancel
}
