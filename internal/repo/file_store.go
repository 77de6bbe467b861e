package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// FileDocumentStore keeps each document as <name>.json in one directory.
type FileDocumentStore struct {
	fs afero.Fs
}

func NewFileDocumentStore(dir string) (*FileDocumentStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir %s: %w", dir, err)
	}
	return NewFileDocumentStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

func NewFileDocumentStoreFs(fsys afero.Fs) *FileDocumentStore {
	return &FileDocumentStore{fs: fsys}
}

func (s *FileDocumentStore) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, name+".json")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Save writes a sibling temp file and renames it over the document, so a
// crash mid-write keeps the previous version intact.
func (s *FileDocumentStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := afero.TempFile(s.fs, ".", "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := s.fs.Rename(tmpName, name+".json"); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
