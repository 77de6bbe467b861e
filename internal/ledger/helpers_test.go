package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"CareVault/internal/repo"

	"github.com/spf13/afero"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errDiskFull = errors.New("disk full")

// countingStore wraps a document store, counts saves and can be told to fail.
type countingStore struct {
	repo.DocumentStore
	saves atomic.Int32
	fail  atomic.Bool
}

func newCountingStore() *countingStore {
	return &countingStore{DocumentStore: repo.NewFileDocumentStoreFs(afero.NewMemMapFs())}
}

func (s *countingStore) Save(ctx context.Context, name string, data []byte) error {
	if s.fail.Load() {
		return errDiskFull
	}
	s.saves.Add(1)
	return s.DocumentStore.Save(ctx, name, data)
}
