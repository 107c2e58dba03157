// Package rendercache implements the RenderCache component of spec.md
// §4.G: byte-budgeted thumbnail and preview renditions, single-flighted so
// concurrent misses for the same key decode at most once. It generalizes
// the teacher's blockstore LRU (a fixed 1000-entry object cache) to a
// byte-accounted cache, since golang-lru/v2 costs nothing natively.
package rendercache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/draw"
	"golang.org/x/sync/singleflight"

	"github.com/nlfiedler/tanuki/internal/blobstore"
	"github.com/nlfiedler/tanuki/internal/mediaprobe"
	"github.com/nlfiedler/tanuki/internal/tanukierr"
)

// Rendition names the two sizes spec.md §4.G defines.
type Rendition string

const (
	Thumbnail Rendition = "thumbnail"
	Preview   Rendition = "preview"
)

func (r Rendition) boxSize() int {
	if r == Thumbnail {
		return 240
	}
	return 640
}

// sentinel marks an asset id that has no representable rendition, so a
// repeat miss is O(1) instead of re-attempting decode.
var sentinel = []byte{}

type cacheKey struct {
	rendition Rendition
	assetID   string
}

// Cache bounds total encoded bytes held in memory (default 10 MiB) and
// ensures at most one generation is in flight per (rendition, asset id).
type Cache struct {
	blobs    *blobstore.BlobStore
	maxBytes int64

	mu       sync.Mutex
	entries  *lru.Cache[cacheKey, []byte]
	curBytes int64

	group singleflight.Group
}

// New returns a Cache bounded by maxBytes of encoded rendition data.
func New(blobs *blobstore.BlobStore, maxBytes int64) (*Cache, error) {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	// The underlying LRU is sized generously on entry count; the real
	// budget is enforced by evictBytes below, since golang-lru/v2 has no
	// cost-aware eviction.
	entries, err := lru.New[cacheKey, []byte](4096)
	if err != nil {
		return nil, tanukierr.Backend("rendercache.New", err)
	}
	return &Cache{blobs: blobs, maxBytes: maxBytes, entries: entries}, nil
}

// Get returns the encoded rendition for assetID, generating it on first
// miss. mediaType comes from the stored document so Get never has to
// re-probe.
func (c *Cache) Get(ctx context.Context, rendition Rendition, assetID, mediaType string) ([]byte, bool, error) {
	key := cacheKey{rendition: rendition, assetID: assetID}

	c.mu.Lock()
	if data, ok := c.entries.Get(key); ok {
		c.mu.Unlock()
		if len(data) == 0 {
			return nil, false, nil
		}
		return data, true, nil
	}
	c.mu.Unlock()

	groupKey := fmt.Sprintf("%s/%s", rendition, assetID)
	result, err, _ := c.group.Do(groupKey, func() (any, error) {
		data, ok, err := c.generate(ctx, rendition, assetID, mediaType)
		if err != nil {
			return nil, err
		}
		c.store(key, data, ok)
		return renderResult{data: data, ok: ok}, nil
	})
	if err != nil {
		return nil, false, err
	}
	rr := result.(renderResult)
	return rr.data, rr.ok, nil
}

type renderResult struct {
	data []byte
	ok   bool
}

func (c *Cache) store(key cacheKey, data []byte, ok bool) {
	stored := data
	if !ok {
		stored = sentinel
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, stored)
	c.curBytes += int64(len(stored))
	c.evictBytes()
}

// evictBytes drops least-recently-used entries until curBytes fits the
// budget; it must be called with mu held.
func (c *Cache) evictBytes() {
	for c.curBytes > c.maxBytes {
		_, data, ok := c.entries.RemoveOldest()
		if !ok {
			return
		}
		c.curBytes -= int64(len(data))
	}
}

func (c *Cache) generate(ctx context.Context, rendition Rendition, assetID, mediaType string) ([]byte, bool, error) {
	category := mediaprobe.Category(mediaType)

	r, err := c.blobs.Get(ctx, assetID)
	if err != nil {
		return nil, false, err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, false, tanukierr.Backend("rendercache.generate", err)
	}

	var src image.Image
	switch category {
	case "image":
		src, _, err = image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, false, nil // not representable; cache sentinel
		}
	case "video":
		src, err = extractVideoFrame(raw)
		if err != nil || src == nil {
			return nil, false, nil
		}
		c.writeSidecar(assetID, src)
	default:
		return nil, false, nil
	}

	resized := fitInside(src, rendition.boxSize())

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, false, tanukierr.Backend("rendercache.generate: encode", err)
	}
	return buf.Bytes(), true, nil
}

// writeSidecar persists the full-resolution extracted video frame next to
// the blob at "<relPath>.jpg" (spec.md §6), so the serving collaborator can
// address it with no database lookup. Best-effort: a write failure here
// does not affect the in-memory rendition Get is about to return.
func (c *Cache) writeSidecar(assetID string, frame image.Image) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 90}); err != nil {
		return
	}
	_ = c.blobs.WriteSidecar(assetID, buf.Bytes())
}

// fitInside scales src to fit within box x box without upscaling, per
// spec.md §4.G.
func fitInside(src image.Image, box int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= box && h <= box {
		return src
	}

	scale := float64(box) / float64(w)
	if s := float64(box) / float64(h); s < scale {
		scale = s
	}
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
