package repository

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
	"github.com/nlfiedler/tanuki/internal/indexer"
	"github.com/nlfiedler/tanuki/internal/ingest"
	"github.com/nlfiedler/tanuki/internal/metadatastore"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	blobs, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)
	meta, err := metadatastore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	ix := indexer.New(meta)
	eng := ingest.New(blobs, meta, nil)
	return New(blobs, meta, ix, eng, t.TempDir(), nil)
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

func TestUploadThenGetAsset(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	id, err := f.Upload(ctx, tinyJPEG(t), "cat.jpg")
	require.NoError(t, err)

	doc, err := f.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", doc.Filename)
}

func TestUpdateAssetMergesTagsAndCaption(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	id, err := f.Upload(ctx, tinyJPEG(t), "cat.jpg")
	require.NoError(t, err)

	caption := "vacation photo #cat #outdoors"
	updated, err := f.UpdateAsset(ctx, id, Patch{Caption: &caption})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cat", "outdoors"}, updated.Tags)
}

func TestUpdateAssetNihilClearsLocation(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	id, err := f.Upload(ctx, tinyJPEG(t), "cat.jpg")
	require.NoError(t, err)

	loc := "Home; Paris, Ile-de-France"
	_, err = f.UpdateAsset(ctx, id, Patch{LocationText: &loc})
	require.NoError(t, err)

	nihil := "nihil"
	updated, err := f.UpdateAsset(ctx, id, Patch{LocationText: &nihil})
	require.NoError(t, err)
	assert.Nil(t, updated.Location)
}

func TestBulkUpdateAppliesEveryPatch(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	idA, err := f.Upload(ctx, tinyJPEG(t), "a.jpg")
	require.NoError(t, err)
	other := tinyJPEG(t)
	other[0] ^= 0xFF
	idB, err := f.Upload(ctx, other, "b.jpg")
	require.NoError(t, err)

	tagA := []string{"cat"}
	tagB := []string{"dog"}
	n, err := f.BulkUpdate(ctx, map[string]Patch{
		idA: {Tags: tagA, TagsSet: true},
		idB: {Tags: tagB, TagsSet: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	docA, err := f.GetAsset(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, docA.Tags)
}

func TestSearchAdvancedQuery(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	id, err := f.Upload(ctx, tinyJPEG(t), "cat.jpg")
	require.NoError(t, err)
	caption := "#cat"
	_, err = f.UpdateAsset(ctx, id, Patch{Caption: &caption})
	require.NoError(t, err)

	results, total, err := f.Search(ctx, "tag:cat", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

func TestRecentsExcludesTaggedAssets(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	id, err := f.Upload(ctx, tinyJPEG(t), "cat.jpg")
	require.NoError(t, err)

	recents, err := f.Recents(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, recents, 1)
	assert.Equal(t, id, recents[0].ID)

	caption := "#cat"
	_, err = f.UpdateAsset(ctx, id, Patch{Caption: &caption})
	require.NoError(t, err)

	recents, err = f.Recents(ctx, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, recents)
}

func TestCountAndAllTags(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	id, err := f.Upload(ctx, tinyJPEG(t), "cat.jpg")
	require.NoError(t, err)
	caption := "#cat"
	_, err = f.UpdateAsset(ctx, id, Patch{Caption: &caption})
	require.NoError(t, err)

	n, err := f.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tags, err := f.AllTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "cat", tags[0].Label)
	assert.Equal(t, 1, tags[0].N)
}
