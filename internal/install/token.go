package install

import (
	"sync"

	"github.com/google/uuid"
)

// CleanupToken is the handle a host signal handler uses to discard an
// in-progress download before the process exits. Cleanup is idempotent
// and safe to call from a signal goroutine while the download is
// failing on its own.
type CleanupToken struct {
	id   string
	once sync.Once
	fn   func()
}

// NewCleanupToken wraps a cleanup action in an idempotent token.
func NewCleanupToken(fn func()) *CleanupToken {
	return &CleanupToken{id: uuid.NewString(), fn: fn}
}

// ID returns the token's unique identity.
func (t *CleanupToken) ID() string {
	return t.id
}

// Cleanup runs the cleanup action exactly once.
func (t *CleanupToken) Cleanup() {
	t.once.Do(t.fn)
}
