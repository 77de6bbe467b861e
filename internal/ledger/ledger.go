// Package ledger holds the two durable maps behind access control: which
// user owns which record, and which share token unlocks which record.
// Both are kept in memory and rewritten as whole documents on every
// mutation; a mutation only becomes visible after its write succeeded.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CareVault/internal/repo"
	"CareVault/utils"
)

const DefaultShareTTL = 24 * time.Hour

type options struct {
	now      func() time.Time
	ttl      time.Duration
	genToken func() (string, error)
	observe  func(document string, took time.Duration)
}

type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithShareTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func WithTokenGenerator(gen func() (string, error)) Option {
	return func(o *options) { o.genToken = gen }
}

// WithPersistObserver is called after every successful document write.
func WithPersistObserver(fn func(document string, took time.Duration)) Option {
	return func(o *options) { o.observe = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		now:      time.Now,
		ttl:      DefaultShareTTL,
		genToken: utils.GenShareToken,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func persist(ctx context.Context, store repo.DocumentStore, o options, document string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", document, err)
	}
	start := time.Now()
	if err := store.Save(ctx, document, data); err != nil {
		return fmt.Errorf("persist %s: %w", document, err)
	}
	if o.observe != nil {
		o.observe(document, time.Since(start))
	}
	return nil
}

// load decodes a document into v; a missing document leaves v untouched.
func load(ctx context.Context, store repo.DocumentStore, document string, v any) error {
	data, err := store.Load(ctx, document)
	if errors.Is(err, repo.ErrDocumentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", document, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", document, err)
	}
	return nil
}
