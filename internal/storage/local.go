package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/spf13/afero"
)

const metaDir = ".meta"

type localMeta struct {
	ContentType string `json:"content_type"`
}

// LocalStore keeps blobs as flat files in one directory. Content types are
// kept in a hidden sidecar directory that object names cannot reach.
type LocalStore struct {
	fs afero.Fs
}

// NewLocalStore roots a store at dir on the OS filesystem.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir %s: %w", dir, err)
	}
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// NewLocalStoreFs uses an existing filesystem as the store root.
func NewLocalStoreFs(fsys afero.Fs) (*LocalStore, error) {
	if err := fsys.MkdirAll(metaDir, 0o700); err != nil {
		return nil, fmt.Errorf("create meta dir: %w", err)
	}
	return &LocalStore{fs: fsys}, nil
}

// PutObject writes to a temp file and renames it into place so readers never
// observe a partial blob.
func (s *LocalStore) PutObject(ctx context.Context, name string, reader io.Reader, size int64, opts PutOptions) error {
	if err := ValidateObjectName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := afero.TempFile(s.fs, ".", ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	written, copyErr := io.Copy(tmp, reader)
	closeErr := tmp.Close()
	if copyErr == nil && size >= 0 && written != size {
		copyErr = fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if copyErr != nil || closeErr != nil {
		_ = s.fs.Remove(tmpName)
		return errors.Join(copyErr, closeErr)
	}

	meta, err := json.Marshal(localMeta{ContentType: opts.ContentType})
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := afero.WriteFile(s.fs, metaPath(name), meta, 0o600); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		_ = s.fs.Remove(metaPath(name))
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

func (s *LocalStore) GetObject(ctx context.Context, name string) (io.ReadCloser, ObjectInfo, error) {
	if err := ValidateObjectName(name); err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, ObjectInfo{}, mapFsError(err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, mapFsError(err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	info := ObjectInfo{Name: name, Size: st.Size()}
	if raw, err := afero.ReadFile(s.fs, metaPath(name)); err == nil {
		var meta localMeta
		if json.Unmarshal(raw, &meta) == nil {
			info.ContentType = meta.ContentType
		}
	}
	return f, info, nil
}

func (s *LocalStore) RemoveObject(ctx context.Context, name string) error {
	if err := ValidateObjectName(name); err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := s.fs.Remove(metaPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) ObjectExists(ctx context.Context, name string) (bool, error) {
	if err := ValidateObjectName(name); err != nil {
		return false, err
	}
	st, err := s.fs.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !st.IsDir(), nil
}

func metaPath(name string) string {
	return path.Join(metaDir, name+".json")
}

func mapFsError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrObjectNotFound
	}
	return err
}
