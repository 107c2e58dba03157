// Package blobstore maps opaque asset ids to a content-addressed,
// date-partitioned filesystem layout (spec.md §4.A).
package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/nlfiedler/tanuki/internal/tanukierr"
)

// BlobStore reads and writes blobs under a single root directory.
type BlobStore struct {
	root string
}

// Open returns a BlobStore rooted at dir, creating it if absent.
func Open(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tanukierr.Backend("blobstore.Open", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, tanukierr.Backend("blobstore.Open", err)
	}
	return &BlobStore{root: abs}, nil
}

// Root returns the store's filesystem root.
func (s *BlobStore) Root() string { return s.root }

// Put streams r to a new blob located by importDate and ext, returning the
// asset id and the relative path that serves it statically (spec.md §4.A).
func (s *BlobStore) Put(ctx context.Context, r io.Reader, importDate time.Time, ext string) (id string, relPath string, err error) {
	uid, err := NewULID(importDate)
	if err != nil {
		return "", "", err
	}
	return s.putWithID(ctx, r, importDate, uid, ext)
}

func (s *BlobStore) putWithID(ctx context.Context, r io.Reader, importDate time.Time, uid ulid.ULID, ext string) (string, string, error) {
	relPath := RelPath(importDate, uid, ext)
	absPath := filepath.Join(s.root, filepath.FromSlash(relPath))

	if _, err := os.Stat(absPath); err == nil {
		return "", "", tanukierr.AlreadyExists("blobstore.Put", fmt.Errorf("blob already exists at %s", relPath))
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", tanukierr.Backend("blobstore.Put", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(absPath)+".tmp-"+uuid.NewString())
	if err != nil {
		return "", "", tanukierr.Backend("blobstore.Put", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", "", tanukierr.Backend("blobstore.Put", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", "", tanukierr.Backend("blobstore.Put", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", "", tanukierr.Backend("blobstore.Put", err)
	}

	if err := os.Rename(tmpName, absPath); err != nil {
		os.Remove(tmpName)
		return "", "", tanukierr.Backend("blobstore.Put", err)
	}

	return EncodeID(relPath), relPath, nil
}

// WriteSidecar writes data alongside the blob for id at "<relPath>.jpg",
// the video-frame sidecar path of spec.md §6. It is addressable by the
// serving collaborator with no database lookup, the same static-file
// contract as the blob itself.
func (s *BlobStore) WriteSidecar(id string, data []byte) error {
	relPath, err := DecodeID(id)
	if err != nil {
		return tanukierr.Validation("blobstore.WriteSidecar", err)
	}
	absPath := filepath.Join(s.root, filepath.FromSlash(relPath)) + ".jpg"
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return tanukierr.Backend("blobstore.WriteSidecar", err)
	}
	return nil
}

// Get opens the blob for id for reading. Callers must Close the result.
func (s *BlobStore) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	relPath, err := DecodeID(id)
	if err != nil {
		return nil, tanukierr.Validation("blobstore.Get", err)
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(relPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tanukierr.NotFound("blobstore.Get", err)
		}
		return nil, tanukierr.Backend("blobstore.Get", err)
	}
	return f, nil
}

// Stat returns the blob's size in bytes without reading its contents.
func (s *BlobStore) Stat(id string) (int64, error) {
	relPath, err := DecodeID(id)
	if err != nil {
		return 0, tanukierr.Validation("blobstore.Stat", err)
	}
	fi, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(relPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, tanukierr.NotFound("blobstore.Stat", err)
		}
		return 0, tanukierr.Backend("blobstore.Stat", err)
	}
	return fi.Size(), nil
}

// Replace writes newContent as a new blob and deletes the old one, returning
// the new id (spec.md §3.4, §4.A Replace).
func (s *BlobStore) Replace(ctx context.Context, oldID string, r io.Reader, newImportDate time.Time, ext string) (string, error) {
	newID, _, err := s.Put(ctx, r, newImportDate, ext)
	if err != nil {
		return "", err
	}
	if err := s.Delete(oldID); err != nil && !tanukierr.Is(err, tanukierr.KindNotFound) {
		return newID, err
	}
	return newID, nil
}

// Delete unlinks the blob for id and prunes now-empty parent directories up
// to and including the YYYY directory, per spec.md §4.A.
func (s *BlobStore) Delete(id string) error {
	relPath, err := DecodeID(id)
	if err != nil {
		return tanukierr.Validation("blobstore.Delete", err)
	}
	absPath := filepath.Join(s.root, filepath.FromSlash(relPath))

	if err := os.Remove(absPath); err != nil {
		if os.IsNotExist(err) {
			return tanukierr.NotFound("blobstore.Delete", err)
		}
		return tanukierr.Backend("blobstore.Delete", err)
	}

	s.pruneEmptyParents(filepath.Dir(absPath))
	return nil
}

// pruneEmptyParents removes empty directories walking up from dir, stopping
// at the store root or the first non-empty directory. Failures are ignored:
// an un-prunable empty directory is not a correctness problem.
func (s *BlobStore) pruneEmptyParents(dir string) {
	for {
		if dir == s.root || !isUnderRoot(s.root, dir) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func isUnderRoot(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	return rel != "." && !filepath.IsAbs(rel) && rel[0] != '.'
}
