package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CareVault/internal/repo"
	"CareVault/model"
)

var (
	ErrShareNotFound = errors.New("share token not found")
	ErrShareExpired  = errors.New("share token expired")
)

// ShareLedger maps share tokens to the grant they carry.
type ShareLedger struct {
	mu     sync.RWMutex
	store  repo.DocumentStore
	opts   options
	grants map[string]model.ShareGrant
}

func NewShareLedger(store repo.DocumentStore, opts ...Option) *ShareLedger {
	return &ShareLedger{
		store:  store,
		opts:   buildOptions(opts),
		grants: make(map[string]model.ShareGrant),
	}
}

// Load replaces the in-memory state with the persisted document. Expired
// grants are kept; Sweep removes them.
func (l *ShareLedger) Load(ctx context.Context) error {
	grants := make(map[string]model.ShareGrant)
	if err := load(ctx, l.store, repo.DocumentShareTokens, &grants); err != nil {
		return err
	}
	l.mu.Lock()
	l.grants = grants
	l.mu.Unlock()
	return nil
}

func (l *ShareLedger) TTL() time.Duration {
	return l.opts.ttl
}

// CreateToken issues a new token for file. Ownership is the caller's check.
func (l *ShareLedger) CreateToken(ctx context.Context, ownerID string, file model.FileID) (string, model.ShareGrant, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token, err := l.uniqueToken()
	if err != nil {
		return "", model.ShareGrant{}, err
	}
	// Persisted as Unix milliseconds; truncate so a reload sees the same instant.
	grant := model.ShareGrant{
		OwnerID:   ownerID,
		FileID:    file,
		ExpiresAt: l.opts.now().Add(l.opts.ttl).Truncate(time.Millisecond),
	}

	next := l.cloneGrants()
	next[token] = grant
	if err := persist(ctx, l.store, l.opts, repo.DocumentShareTokens, next); err != nil {
		return "", model.ShareGrant{}, err
	}
	l.grants = next
	return token, grant, nil
}

func (l *ShareLedger) uniqueToken() (string, error) {
	for i := 0; i < 3; i++ {
		token, err := l.opts.genToken()
		if err != nil {
			return "", fmt.Errorf("generate share token: %w", err)
		}
		if _, taken := l.grants[token]; !taken {
			return token, nil
		}
	}
	return "", errors.New("generate share token: repeated collision")
}

// ResolveToken returns the grant for an active token.
func (l *ShareLedger) ResolveToken(token string) (model.ShareGrant, error) {
	l.mu.RLock()
	grant, ok := l.grants[token]
	l.mu.RUnlock()
	if !ok {
		return model.ShareGrant{}, ErrShareNotFound
	}
	if !grant.ActiveAt(l.opts.now()) {
		return model.ShareGrant{}, ErrShareExpired
	}
	return grant, nil
}

// RevokeAllForFile removes every token for (ownerID, file) and reports how
// many were removed. Nothing is written when none matched.
func (l *ShareLedger) RevokeAllForFile(ctx context.Context, ownerID string, file model.FileID) (int, error) {
	return l.removeWhere(ctx, func(g model.ShareGrant) bool {
		return g.Matches(ownerID, file)
	})
}

// Sweep removes grants that are no longer active.
func (l *ShareLedger) Sweep(ctx context.Context) (int, error) {
	now := l.opts.now()
	return l.removeWhere(ctx, func(g model.ShareGrant) bool {
		return !g.ActiveAt(now)
	})
}

func (l *ShareLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.grants)
}

func (l *ShareLedger) removeWhere(ctx context.Context, match func(model.ShareGrant) bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make(map[string]model.ShareGrant, len(l.grants))
	removed := 0
	for token, grant := range l.grants {
		if match(grant) {
			removed++
			continue
		}
		next[token] = grant
	}
	if removed == 0 {
		return 0, nil
	}
	if err := persist(ctx, l.store, l.opts, repo.DocumentShareTokens, next); err != nil {
		return 0, err
	}
	l.grants = next
	return removed, nil
}

func (l *ShareLedger) cloneGrants() map[string]model.ShareGrant {
	next := make(map[string]model.ShareGrant, len(l.grants)+1)
	for token, grant := range l.grants {
		next[token] = grant
	}
	return next
}
