package rendercache

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlfiedler/tanuki/internal/blobstore"
)

func putTestImage(t *testing.T, blobs *blobstore.BlobStore, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 5, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	id, _, err := blobs.Put(context.Background(), bytes.NewReader(buf.Bytes()), time.Now(), "jpg")
	require.NoError(t, err)
	return id
}

func TestGetGeneratesAndCachesThumbnail(t *testing.T) {
	blobs, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)
	cache, err := New(blobs, 0)
	require.NoError(t, err)

	id := putTestImage(t, blobs, 800, 400)

	data, ok, err := cache.Get(context.Background(), Thumbnail, id, "image/jpeg")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, data)

	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := img.Bounds()
	assert.LessOrEqual(t, b.Dx(), 240)
	assert.LessOrEqual(t, b.Dy(), 240)
}

func TestGetDoesNotUpscale(t *testing.T) {
	blobs, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)
	cache, err := New(blobs, 0)
	require.NoError(t, err)

	id := putTestImage(t, blobs, 50, 30)

	data, ok, err := cache.Get(context.Background(), Preview, id, "image/jpeg")
	require.NoError(t, err)
	require.True(t, ok)

	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, 50, b.Dx())
	assert.Equal(t, 30, b.Dy())
}

func TestGetUnrepresentableMediaCachesSentinel(t *testing.T) {
	blobs, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)
	cache, err := New(blobs, 0)
	require.NoError(t, err)

	id, _, err := blobs.Put(context.Background(), bytes.NewReader([]byte("not an image")), time.Now(), "txt")
	require.NoError(t, err)

	_, ok, err := cache.Get(context.Background(), Thumbnail, id, "text/plain")
	require.NoError(t, err)
	assert.False(t, ok)

	// Second miss should hit the cached sentinel rather than re-decoding.
	_, ok, err = cache.Get(context.Background(), Thumbnail, id, "text/plain")
	require.NoError(t, err)
	assert.False(t, ok)
}
