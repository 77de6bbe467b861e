package repo

import (
	"context"
	"errors"
)

// Document names used by the ledgers.
const (
	DocumentUserFiles   = "userFiles"
	DocumentShareTokens = "shareTokens"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore is a flat key-value store of whole JSON documents. Save
// replaces the previous value in full.
type DocumentStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}
