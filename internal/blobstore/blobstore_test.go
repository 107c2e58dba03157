package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelPathFloorsMinutesToQuarterHour(t *testing.T) {
	id := ulid.MustParse("01ARZ3NDEKTSV4RRFFQ69G5FAV")
	importDate := time.Date(2020, 5, 24, 18, 7, 3, 0, time.UTC)

	got := RelPath(importDate, id, "bin")
	assert.Equal(t, "2020/05/24/1800/01arz3ndektsv4rrffq69g5fav.bin", got)
}

func TestIDRoundTrip(t *testing.T) {
	relPath := "2020/05/24/1800/01arz3ndektsv4rrffq69g5fav.bin"
	id := EncodeID(relPath)

	decoded, err := DecodeID(id)
	require.NoError(t, err)
	assert.Equal(t, relPath, decoded)
}

func TestDecodeIDRejectsPathEscape(t *testing.T) {
	_, err := DecodeID(EncodeID("../../etc/passwd"))
	assert.Error(t, err)
}

func TestPutGetRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	content := []byte("X")
	importDate := time.Date(2020, 5, 24, 18, 7, 3, 0, time.UTC)

	id, relPath, err := store.Put(context.Background(), bytes.NewReader(content), importDate, "bin")
	require.NoError(t, err)
	assert.Equal(t, "2020/05/24/1800/", relPath[:16])

	rc, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestGetNotFound(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), EncodeID("2020/01/01/0000/missing.bin"))
	assert.Error(t, err)
}

func TestDeletePrunesEmptyParents(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	importDate := time.Date(2020, 5, 24, 18, 7, 3, 0, time.UTC)
	id, relPath, err := store.Put(context.Background(), bytes.NewReader([]byte("X")), importDate, "bin")
	require.NoError(t, err)

	require.NoError(t, store.Delete(id))

	yearDir := filepath.Join(store.Root(), filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(relPath)))))
	_, statErr := os.Stat(yearDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteSidecarWritesNextToBlob(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	importDate := time.Date(2020, 5, 24, 18, 7, 3, 0, time.UTC)
	id, relPath, err := store.Put(context.Background(), bytes.NewReader([]byte("X")), importDate, "mp4")
	require.NoError(t, err)

	require.NoError(t, store.WriteSidecar(id, []byte("jpegbytes")))

	got, err := os.ReadFile(filepath.Join(store.Root(), filepath.FromSlash(relPath)+".jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegbytes"), got)
}

func TestReplaceWritesNewBlobAndDeletesOld(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	importDate := time.Date(2020, 5, 24, 18, 7, 3, 0, time.UTC)
	oldID, _, err := store.Put(context.Background(), bytes.NewReader([]byte("X")), importDate, "bin")
	require.NoError(t, err)

	newID, err := store.Replace(context.Background(), oldID, bytes.NewReader([]byte("Y")), importDate.Add(time.Hour), "bin")
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)

	_, err = store.Get(context.Background(), oldID)
	assert.Error(t, err)

	rc, err := store.Get(context.Background(), newID)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("Y"), got)
}
