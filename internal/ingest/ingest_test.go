package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlfiedler/tanuki/internal/blobstore"
	"github.com/nlfiedler/tanuki/internal/metadatastore"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	blobs, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)
	meta, err := metadatastore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })
	return New(blobs, meta, nil)
}

func tinyJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestIngestOneStoresNewAsset(t *testing.T) {
	e := newTestEngine(t)
	data := tinyJPEG(t)

	out, err := e.IngestOne(context.Background(), bytes.NewReader(data), "photo.jpg", time.Now())
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.NotEmpty(t, out.ID)

	doc, err := e.meta.GetDoc(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", doc.Filename)
	assert.Equal(t, "image/jpeg", doc.MediaType)
}

func TestIngestOneDedupsByChecksum(t *testing.T) {
	e := newTestEngine(t)
	data := tinyJPEG(t)
	ctx := context.Background()

	first, err := e.IngestOne(ctx, bytes.NewReader(data), "a.jpg", time.Now())
	require.NoError(t, err)

	second, err := e.IngestOne(ctx, bytes.NewReader(data), "b.jpg", time.Now())
	require.NoError(t, err)

	assert.True(t, second.Skipped)
	assert.Equal(t, first.ID, second.ID)
}

func TestWalkIngestsTreeAndRemovesSources(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()

	data := tinyJPEG(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.jpg"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.jpg"), data, 0o644))

	other := tinyJPEG(t)
	other[0] ^= 0xFF // perturb so it hashes differently
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.jpg"), other, 0o644))

	result, err := e.Walk(context.Background(), dir, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Ingested)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	_, err = os.Stat(filepath.Join(dir, "one.jpg"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, ".hidden.jpg"))
	assert.NoError(t, err, "hidden files are left untouched")
}
