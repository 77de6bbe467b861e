package ledger

import (
	"context"
	"slices"
	"sync"

	"CareVault/internal/repo"
	"CareVault/model"
)

// OwnershipLedger maps a user id to the records they uploaded, in upload order.
type OwnershipLedger struct {
	mu    sync.RWMutex
	store repo.DocumentStore
	opts  options
	files map[string][]model.FileID
}

func NewOwnershipLedger(store repo.DocumentStore, opts ...Option) *OwnershipLedger {
	return &OwnershipLedger{
		store: store,
		opts:  buildOptions(opts),
		files: make(map[string][]model.FileID),
	}
}

// Load replaces the in-memory state with the persisted document.
func (l *OwnershipLedger) Load(ctx context.Context) error {
	files := make(map[string][]model.FileID)
	if err := load(ctx, l.store, repo.DocumentUserFiles, &files); err != nil {
		return err
	}
	l.mu.Lock()
	l.files = files
	l.mu.Unlock()
	return nil
}

// RecordUpload appends file to the user's records. Duplicates are kept.
func (l *OwnershipLedger) RecordUpload(ctx context.Context, userID string, file model.FileID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.files[userID]
	updated := make([]model.FileID, len(current), len(current)+1)
	copy(updated, current)
	updated = append(updated, file)

	return l.commit(ctx, userID, updated)
}

// ListFiles returns a copy of the user's records; never nil.
func (l *OwnershipLedger) ListFiles(userID string) []model.FileID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.FileID, len(l.files[userID]))
	copy(out, l.files[userID])
	return out
}

func (l *OwnershipLedger) IsOwner(userID string, file model.FileID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Contains(l.files[userID], file)
}

// RemoveFile drops every entry of file for the user. Nothing is written when
// the user does not own it.
func (l *OwnershipLedger) RemoveFile(ctx context.Context, userID string, file model.FileID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.files[userID]
	if !slices.Contains(current, file) {
		return false, nil
	}
	updated := make([]model.FileID, 0, len(current))
	for _, f := range current {
		if f != file {
			updated = append(updated, f)
		}
	}
	if err := l.commit(ctx, userID, updated); err != nil {
		return false, err
	}
	return true, nil
}

// commit persists the ledger with userID's list replaced and only then
// swaps it into memory. Callers hold l.mu.
func (l *OwnershipLedger) commit(ctx context.Context, userID string, updated []model.FileID) error {
	next := make(map[string][]model.FileID, len(l.files)+1)
	for uid, files := range l.files {
		next[uid] = files
	}
	if len(updated) == 0 {
		delete(next, userID)
	} else {
		next[userID] = updated
	}
	if err := persist(ctx, l.store, l.opts, repo.DocumentUserFiles, next); err != nil {
		return err
	}
	l.files = next
	return nil
}
