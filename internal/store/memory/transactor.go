// Package memory provides in-memory implementations of the store
// repository interfaces for tests and local development. Stores hand out
// copies so callers cannot mutate shared state.
package memory

import (
	"context"
	"database/sql"
	"sync"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
)

// Transactor serializes event application the way a database transaction
// would. The tx handed to fn is nil; repositories treat it as opaque.
//
// It does not roll back: writes made before fn returns an error stay
// visible, where Postgres would discard them. Tests that drive a handler
// into an error and then replay the same event see that difference, so
// they assert on the pre-error state instead.
type Transactor struct {
	mu sync.Mutex
}

func NewTransactor() *Transactor {
	return &Transactor{}
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(nil)
}

var _ store.Transactor = (*Transactor)(nil)
