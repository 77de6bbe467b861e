package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	// ErrObjectNotFound is returned when a named blob does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidObjectName rejects names that could escape the store.
	ErrInvalidObjectName = errors.New("invalid object name")
)

// PutOptions describes upload options for object storage.
type PutOptions struct {
	ContentType string
}

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
}

// Store abstracts blob storage by opaque name.
type Store interface {
	PutObject(ctx context.Context, name string, reader io.Reader, size int64, opts PutOptions) error
	GetObject(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error)
	// RemoveObject is idempotent: removing a missing object succeeds.
	RemoveObject(ctx context.Context, name string) error
	ObjectExists(ctx context.Context, name string) (bool, error)
}

// ValidateObjectName accepts a single flat path element that is not hidden.
func ValidateObjectName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidObjectName
	}
	if strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidObjectName
	}
	return nil
}
