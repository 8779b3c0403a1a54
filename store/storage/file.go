package storage

import (
	"io"
	"os"
	"path/filepath"

	vfs "github.com/nlowe/bkarchive/file/fs"
	"github.com/nlowe/bkarchive/util"
)

// FileStorage stores blobs locally on disk under some root directory, keyed
// by their content-addressed store key (see store.BlobStore). It reads and
// writes through a vfs.FileSystem rather than the os package directly so a
// caller can sandbox it under a subdirectory with vfs.NewSubdirFS.
type FileStorage struct {
	fs   vfs.FileSystem
	root string
}

// NewFileStorage returns a StorageLayer rooted at root on the real
// filesystem. The directory is created lazily by Create, not by this
// constructor.
func NewFileStorage(root string) *FileStorage {
	return &FileStorage{fs: vfs.OS, root: root}
}

// NewFileStorageFS is NewFileStorage generalized over a vfs.FileSystem, so
// callers can root blob storage inside an already-sandboxed subdirectory.
func NewFileStorageFS(fsys vfs.FileSystem, root string) *FileStorage {
	return &FileStorage{fs: fsys, root: root}
}

func (s *FileStorage) ensureDir(path string) error {
	fi, err := s.fs.Lstat(path)
	if err == nil && fi.IsDir() {
		return nil
	}
	return s.fs.MkdirAll(path, 0755)
}

func (s *FileStorage) Exists() (bool, error) {
	fi, err := s.fs.Lstat(s.root)
	if s.fs.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

func (s *FileStorage) Create() error {
	if err := s.fs.MkdirAll(s.root, 0755); err != nil {
		return err
	}
	ok, err := s.Exists()
	if err == nil && !ok {
		return os.ErrPermission
	}
	return err
}

func (s *FileStorage) Size(key string) (int, error) {
	fi, err := s.fs.Lstat(filepath.Join(s.root, key))
	if err != nil {
		return 0, err
	}
	return int(fi.Size()), nil
}

func (s *FileStorage) GetReader(key string) (io.Reader, error) {
	fh, err := s.fs.OpenRead(filepath.Join(s.root, key))
	if err != nil {
		return nil, err
	}
	return &util.AutoCloseReader{RC: fh}, nil
}

func (s *FileStorage) PutReader(key string, r io.Reader) (length int, err error) {
	path := filepath.Join(s.root, key)
	if err = s.ensureDir(filepath.Dir(path)); err != nil {
		return
	}

	fh, err := s.fs.OpenWrite(path, 0644)
	if err != nil {
		return
	}
	defer fh.Close()

	n, err := io.Copy(fh, r)
	if err != nil {
		return
	}
	return int(n), nil
}

func (s *FileStorage) IsNotExist(err error) bool {
	return s.fs.IsNotExist(err)
}
