package documents

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/ehr/folio/internal/platform/blobstore"
)

// Source is an opaque handle to the bytes of an attached document.
type Source interface {
	Name() string
	ContentType() string
	Size() int64
	Open(ctx context.Context) (io.ReadCloser, error)
	// Release frees any staged copy or preview resource held for the source.
	Release(ctx context.Context) error
}

// BlobSource is a document staged through the HTTP upload path.
type BlobSource struct {
	store blobstore.BlobStore
	meta  blobstore.BlobMetadata
}

func NewBlobSource(store blobstore.BlobStore, meta blobstore.BlobMetadata) *BlobSource {
	return &BlobSource{store: store, meta: meta}
}

func (s *BlobSource) Name() string        { return s.meta.FileName }
func (s *BlobSource) ContentType() string { return s.meta.ContentType }
func (s *BlobSource) Size() int64         { return s.meta.Size }

// BlobID returns the staging id, used for preview URLs.
func (s *BlobSource) BlobID() string { return s.meta.ID }

func (s *BlobSource) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, _, err := s.store.Download(ctx, s.meta.ID)
	if err != nil {
		return nil, fmt.Errorf("open staged %s: %w", s.meta.FileName, err)
	}
	return rc, nil
}

func (s *BlobSource) Release(ctx context.Context) error {
	return s.store.Delete(ctx, s.meta.ID)
}

// FileSource is a document read straight from the local filesystem.
type FileSource struct {
	path string
	size int64
}

// NewFileSource stats path and returns a Source for it.
func NewFileSource(path string) (*FileSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &FileSource{path: path, size: fi.Size()}, nil
}

func (s *FileSource) Name() string { return filepath.Base(s.path) }

func (s *FileSource) ContentType() string {
	return mime.TypeByExtension(filepath.Ext(s.path))
}

func (s *FileSource) Size() int64 { return s.size }

func (s *FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(s.path)
}

// Release is a no-op; local files belong to the caller.
func (s *FileSource) Release(_ context.Context) error { return nil }
