package metadatastore

import (
	"context"
	"testing"

	ds "github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlfiedler/tanuki/internal/asset"
	"github.com/nlfiedler/tanuki/internal/tanukierr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutDocThenGetDocRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &asset.Document{ID: "a1", Checksum: "sha256-abc", Filename: "cat.jpg"}

	m, err := s.NewMutation(ctx)
	require.NoError(t, err)
	require.NoError(t, m.PutDoc(ctx, doc))
	require.NoError(t, m.Commit(ctx))

	got, err := s.GetDoc(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "cat.jpg", got.Filename)

	id, err := s.GetIDByChecksum(ctx, "sha256-abc")
	require.NoError(t, err)
	assert.Equal(t, "a1", id)
}

func TestGetDocNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDoc(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, tanukierr.Is(err, tanukierr.KindNotFound))
}

func TestDeleteDocRemovesDocAndChecksum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &asset.Document{ID: "a1", Checksum: "sha256-abc", Filename: "cat.jpg"}
	m, err := s.NewMutation(ctx)
	require.NoError(t, err)
	require.NoError(t, m.PutDoc(ctx, doc))
	require.NoError(t, m.Commit(ctx))

	m2, err := s.NewMutation(ctx)
	require.NoError(t, err)
	require.NoError(t, m2.DeleteDoc(ctx, doc.ID, doc.Checksum))
	require.NoError(t, m2.Commit(ctx))

	_, err = s.GetDoc(ctx, "a1")
	assert.True(t, tanukierr.Is(err, tanukierr.KindNotFound))
	_, err = s.GetIDByChecksum(ctx, "sha256-abc")
	assert.True(t, tanukierr.Is(err, tanukierr.KindNotFound))
}

func TestSchemaAndIndexVersionDefaultToZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	iv, err := s.IndexVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, iv)

	m, err := s.NewMutation(ctx)
	require.NoError(t, err)
	require.NoError(t, m.SetSchemaVersion(ctx, 3))
	require.NoError(t, m.SetIndexVersion(ctx, 2))
	require.NoError(t, m.Commit(ctx))

	v, err = s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	iv, err = s.IndexVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, iv)
}

func TestAllDocsStreamsEveryDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3"} {
		m, err := s.NewMutation(ctx)
		require.NoError(t, err)
		require.NoError(t, m.PutDoc(ctx, &asset.Document{ID: id, Checksum: "sha256-" + id}))
		require.NoError(t, m.Commit(ctx))
	}

	docs, errc := s.AllDocs(ctx)
	var ids []string
	for d := range docs {
		ids = append(ids, d.ID)
	}
	require.NoError(t, <-errc)
	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, ids)
}

func TestPutIndexEntryThenIterIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.NewMutation(ctx)
	require.NoError(t, err)
	require.NoError(t, m.PutIndexEntry(ctx, "by_tag", "cat", "a1", map[string]int{"n": 1}))
	require.NoError(t, m.Commit(ctx))

	entries, errc := s.IterIndex(ctx, IndexKeyPrefix("by_tag", "cat"))
	var keys []string
	for e := range entries {
		keys = append(keys, e.Key)
	}
	require.NoError(t, <-errc)
	assert.Len(t, keys, 1)
}

func TestDropIndexRemovesAllIndexRowsOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.NewMutation(ctx)
	require.NoError(t, err)
	require.NoError(t, m.PutDoc(ctx, &asset.Document{ID: "a1", Checksum: "sha256-a1"}))
	require.NoError(t, m.PutIndexEntry(ctx, "by_tag", "cat", "a1", nil))
	require.NoError(t, m.Commit(ctx))

	require.NoError(t, s.DropIndex(ctx))

	entries, errc := s.IterIndex(ctx, ds.NewKey("idx"))
	var keys []string
	for e := range entries {
		keys = append(keys, e.Key)
	}
	require.NoError(t, <-errc)
	assert.Empty(t, keys)

	_, err = s.GetDoc(ctx, "a1")
	require.NoError(t, err)
}
