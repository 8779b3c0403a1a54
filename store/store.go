// Package store is the durable sink for decoded attachment, avatar and
// sticker bodies. It is adapted from the teacher's encrypted remote-backup
// store: the encryption layer is gone entirely (this program's Non-goals
// forbid re-encrypting backup data), but the gzip compression and the
// pluggable StorageLayer (local filesystem or S3) are kept.
package store

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"log"

	"github.com/pkg/errors"

	fsStorage "github.com/nlowe/bkarchive/file/fs"
	"github.com/nlowe/bkarchive/store/storage"
	"github.com/nlowe/bkarchive/store/zip"
	"github.com/nlowe/bkarchive/util"
)

// ErrBlobNotFound is returned when a requested key has no corresponding
// object in the store.
var ErrBlobNotFound = errors.New("store: blob not found")

// StorageLayer is the interface used by BlobStore for underlying storage.
// Unchanged in shape from the teacher's store: only the semantics of what
// gets written (gzip plaintext, not AES ciphertext) have changed.
type StorageLayer interface {
	// Exists returns true if the container (S3 bucket, folder, etc.) exists and is usable.
	Exists() (bool, error)
	// Create ensures the container exists and is usable.
	Create() error

	// Size returns the on-disk (gzip-compressed) content length of an object.
	Size(key string) (int, error)
	// GetReader returns the contents of an object identified by key.
	GetReader(key string) (io.Reader, error)
	// PutReader reads from r and stores the result as an object.
	PutReader(key string, r io.Reader) (int, error)
	// IsNotExist returns true if the error indicates an object does not exist.
	IsNotExist(err error) bool
}

// BlobStore compresses and writes attachment/avatar/sticker bodies to some
// storage medium, content-addressing them by the SHA-1 of their plaintext so
// a duplicate blob (a common occurrence - repeated stickers, re-uploaded
// avatars) is only ever written once.
type BlobStore struct {
	layer StorageLayer
	dedup bool

	written int
	skipped int
}

// NewFileStore returns a BlobStore rooted at a local directory.
func NewFileStore(root string) (*BlobStore, error) {
	layer := storage.NewFileStorage(root)
	return newStore(layer)
}

// NewFileStoreFS is NewFileStore generalized over a vfs.FileSystem, letting
// the caller sandbox blob storage under an already-resolved subdirectory
// (see file/fs.NewSubdirFS).
func NewFileStoreFS(fsys fsStorage.FileSystem, root string) (*BlobStore, error) {
	layer := storage.NewFileStorageFS(fsys, root)
	return newStore(layer)
}

// NewS3Store returns a BlobStore backed by an S3 bucket.
func NewS3Store(region, bucket, accessKey, secretKey string) (*BlobStore, error) {
	layer, err := storage.NewS3Connection(region, bucket, accessKey, secretKey)
	if err != nil {
		return nil, err
	}
	return newStore(layer)
}

func newStore(layer StorageLayer) (*BlobStore, error) {
	ok, err := layer.Exists()
	if err != nil {
		return nil, errors.Wrap(err, "store: check container")
	}
	if !ok {
		if err := layer.Create(); err != nil {
			return nil, errors.Wrap(err, "store: create container")
		}
	}
	return &BlobStore{layer: layer, dedup: true}, nil
}

// SetDedup enables or disables SHA-1 content addressing. Disabled, blobs are
// keyed by "<kind>/<id>" instead, which is cheaper but stores duplicates.
func (s *BlobStore) SetDedup(enabled bool) { s.dedup = enabled }

// key computes the storage key for a blob of the given kind (attachment,
// avatar, sticker) and id, either content-addressed or id-addressed. id is a
// string so callers can pass a numeric row id or a name (avatars only carry
// a name, not a numeric id) with the same method.
func (s *BlobStore) key(kind, id string, body []byte) string {
	if !s.dedup {
		return fmt.Sprintf("%s/%s", kind, id)
	}
	sum := sha1.Sum(body)
	return fmt.Sprintf("%s/%s", kind, hex.EncodeToString(sum[:]))
}

// Put gzip-compresses body and stores it, returning the key it was stored
// under. When dedup is enabled and an object already exists under the
// computed key, the write is skipped entirely.
func (s *BlobStore) Put(kind, id string, body []byte) (key string, err error) {
	key = s.key(kind, id, body)

	if s.dedup {
		if ok, err := s.layer.Exists(); err == nil && ok {
			if _, err := s.layer.Size(key); err == nil {
				s.skipped++
				return key, nil
			}
		}
	}

	compressed, err := zip.CompressReader(bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrapf(err, "store: compress %s", key)
	}

	n, err := s.layer.PutReader(key, compressed)
	if err != nil {
		return "", errors.Wrapf(err, "store: put %s", key)
	}

	s.written++
	log.Printf("store: wrote %s (%s, %d raw bytes)\n", key, util.ByteCount(n), len(body))
	return key, nil
}

// Get returns the decompressed contents of the blob stored under key.
func (s *BlobStore) Get(key string) ([]byte, error) {
	r, err := s.GetReader(key)
	if err != nil {
		return nil, err
	}
	return ioutil.ReadAll(r)
}

// GetReader returns a reader over the decompressed contents of key.
func (s *BlobStore) GetReader(key string) (io.Reader, error) {
	raw, err := s.layer.GetReader(key)
	if err != nil {
		if s.layer.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, errors.Wrapf(err, "store: get %s", key)
	}
	return zip.DecompressReader(raw)
}

// Stats returns the number of blobs actually written and the number skipped
// due to deduplication, for the end-of-run Report.
func (s *BlobStore) Stats() (written, skipped int) {
	return s.written, s.skipped
}
