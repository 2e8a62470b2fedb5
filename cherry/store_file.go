package cherry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	fileStoreDirMode  = 0o755
	fileStoreFileMode = 0o644
)

// fileStore keeps each document as <dir>/<name>.json. Writes go to a
// temp file in the same directory which is then renamed over the
// target, so a crash mid-write leaves the previous version intact.
type fileStore struct {
	dir string
}

func newFileStore(dir string) *fileStore {
	return &fileStore{dir: dir}
}

func (f *fileStore) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid document name: %q", name)
	}
	return filepath.Join(f.dir, clean+".json"), nil
}

func (f *fileStore) Load(_ context.Context, name string) ([]byte, bool, error) {
	p, err := f.path(name)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (f *fileStore) Save(_ context.Context, name string, data []byte) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err = os.MkdirAll(dir, fileStoreDirMode); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, fileStoreFileMode); err != nil {
		return err
	}
	return os.Rename(tmpName, p)
}

func (f *fileStore) Delete(_ context.Context, name string) error {
	p, err := f.path(name)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
