// Package repository implements the RepositoryFacade of spec.md §4.H: the
// single entry point the HTTP collaborator calls for every asset
// operation. It composes BlobStore, MetadataStore, Indexer, MediaProbe (via
// IngestEngine), and QueryEngine behind per-asset striped
// locking, generalizing the teacher's single-RWMutex Repository to
// many-assets-at-once concurrency.
package repository

import (
	"bytes"
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nlfiedler/tanuki/internal/asset"
	"github.com/nlfiedler/tanuki/internal/blobstore"
	"github.com/nlfiedler/tanuki/internal/indexer"
	"github.com/nlfiedler/tanuki/internal/ingest"
	"github.com/nlfiedler/tanuki/internal/metadatastore"
	"github.com/nlfiedler/tanuki/internal/query"
	"github.com/nlfiedler/tanuki/internal/tanukierr"
)

// Facade is the RepositoryFacade. Construct one with New once all of its
// collaborators are ready; it is safe for concurrent use.
type Facade struct {
	blobs   *blobstore.BlobStore
	meta    *metadatastore.Store
	indexer *indexer.Indexer
	ingest  *ingest.Engine
	log     *zap.Logger

	locks stripedLock

	uploadsDir string
}

// New returns a Facade. uploadsDir is the staging tree ingest_uploads walks.
func New(blobs *blobstore.BlobStore, meta *metadatastore.Store, ix *indexer.Indexer, eng *ingest.Engine, uploadsDir string, log *zap.Logger) *Facade {
	if log == nil {
		log = zap.NewNop()
	}
	return &Facade{blobs: blobs, meta: meta, indexer: ix, ingest: eng, uploadsDir: uploadsDir, log: log}
}

// GetAsset returns the asset document for id.
func (f *Facade) GetAsset(ctx context.Context, id string) (*asset.Document, error) {
	return f.meta.GetDoc(ctx, id)
}

// LookupByChecksum resolves the asset document for an algorithm-prefixed
// checksum such as "sha256-<hex>".
func (f *Facade) LookupByChecksum(ctx context.Context, checksum string) (*asset.Document, error) {
	id, err := f.meta.GetIDByChecksum(ctx, checksum)
	if err != nil {
		return nil, err
	}
	return f.meta.GetDoc(ctx, id)
}

// Patch carries the fields update_asset may change; a nil field means
// "leave unchanged". ClearLocation, when true, removes the location
// regardless of LocationText (the "nihil" edit-form convention of
// spec.md §4.F.3).
type Patch struct {
	Tags          []string
	TagsSet       bool
	Caption       *string
	LocationText  *string
	ClearLocation bool
	UserDate      *time.Time
}

// UpdateAsset merges patch into the stored document, applying
// caption-derived tags/location (spec.md §4.F.4) after the explicit patch
// fields so a caption never silently overrides an explicit location edit.
func (f *Facade) UpdateAsset(ctx context.Context, id string, patch Patch) (*asset.Document, error) {
	f.locks.Lock(id)
	defer f.locks.Unlock(id)

	old, err := f.meta.GetDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *old

	if patch.TagsSet {
		updated.Tags = asset.NormalizeTags(patch.Tags)
	}
	if patch.Caption != nil {
		updated.Caption = *patch.Caption
	}
	if patch.UserDate != nil {
		updated.UserDate = patch.UserDate
	}

	switch {
	case patch.ClearLocation:
		updated.Location = nil
	case patch.LocationText != nil:
		if *patch.LocationText == "nihil" {
			updated.Location = nil
		} else {
			loc := asset.ParseLocation(*patch.LocationText)
			if !loc.IsZero() {
				updated.Location = &loc
			} else {
				updated.Location = nil
			}
		}
	}

	if patch.Caption != nil {
		asset.ApplyCaption(&updated, *patch.Caption)
	}

	if err := f.commitUpdate(ctx, old, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// BulkUpdate applies one patch per id, locking every id in sorted order up
// front so overlapping bulk calls can never deadlock (spec.md §4.H, §5).
func (f *Facade) BulkUpdate(ctx context.Context, patches map[string]Patch) (int, error) {
	ids := make([]string, 0, len(patches))
	for id := range patches {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	unlock := f.locks.lockSorted(ids)
	defer unlock()

	count := 0
	for _, id := range ids {
		old, err := f.meta.GetDoc(ctx, id)
		if err != nil {
			return count, err
		}
		updated := *old
		patch := patches[id]

		if patch.TagsSet {
			updated.Tags = asset.NormalizeTags(patch.Tags)
		}
		if patch.Caption != nil {
			updated.Caption = *patch.Caption
		}
		if patch.UserDate != nil {
			updated.UserDate = patch.UserDate
		}
		switch {
		case patch.ClearLocation:
			updated.Location = nil
		case patch.LocationText != nil:
			if *patch.LocationText == "nihil" {
				updated.Location = nil
			} else if loc := asset.ParseLocation(*patch.LocationText); !loc.IsZero() {
				updated.Location = &loc
			}
		}
		if patch.Caption != nil {
			asset.ApplyCaption(&updated, *patch.Caption)
		}

		if err := f.commitUpdate(ctx, old, &updated); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (f *Facade) commitUpdate(ctx context.Context, old, updated *asset.Document) error {
	m, err := f.meta.NewMutation(ctx)
	if err != nil {
		return err
	}
	if err := indexer.Apply(ctx, m, old, updated); err != nil {
		return err
	}
	if err := m.PutDoc(ctx, updated); err != nil {
		return err
	}
	return m.Commit(ctx)
}

// ReplaceAsset swaps in new bytes for an existing asset, keeping the
// document's id history via PreviousIDs since a new blob path means a new
// opaque id.
func (f *Facade) ReplaceAsset(ctx context.Context, id string, data []byte, filename string) (string, error) {
	f.locks.Lock(id)
	defer f.locks.Unlock(id)

	old, err := f.meta.GetDoc(ctx, id)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	newID, err := f.blobs.Replace(ctx, id, bytes.NewReader(data), now, extOf(filename))
	if err != nil {
		return "", err
	}

	updated := *old
	updated.ID = newID
	updated.Filename = filename
	updated.Filesize = uint64(len(data))
	updated.PreviousIDs = append(append([]string(nil), old.PreviousIDs...), old.ID)

	m, err := f.meta.NewMutation(ctx)
	if err != nil {
		return "", err
	}
	if err := m.DeleteDoc(ctx, old.ID, old.Checksum); err != nil {
		return "", err
	}
	if err := indexer.Remove(ctx, m, old); err != nil {
		return "", err
	}
	if err := indexer.Apply(ctx, m, nil, &updated); err != nil {
		return "", err
	}
	if err := m.PutDoc(ctx, &updated); err != nil {
		return "", err
	}
	if err := m.Commit(ctx); err != nil {
		return "", err
	}
	return newID, nil
}

// Upload ingests a single uploaded stream, returning its asset id (or the
// existing id, on a checksum dedup hit).
func (f *Facade) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	out, err := f.ingest.IngestOne(ctx, bytes.NewReader(data), filename, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// IngestUploads walks the uploads staging tree, ingesting every candidate
// file found there, and returns the count successfully ingested (including
// dedup skips, per spec.md's supplemented duplicate-skip reporting).
func (f *Facade) IngestUploads(ctx context.Context, workers int) (int, error) {
	result, err := f.ingest.Walk(ctx, f.uploadsDir, workers)
	if err != nil {
		return 0, err
	}
	return result.Ingested + result.Skipped, nil
}

// Search runs an advanced-query string against every document and returns
// the matching page, sorted by best-date descending (spec.md §4.F).
func (f *Facade) Search(ctx context.Context, queryString string, count, offset int) ([]*asset.Document, int, error) {
	node, err := query.Parse(queryString)
	if err != nil {
		return nil, 0, err
	}

	var matches []*asset.Document
	docs, errs := f.meta.AllDocs(ctx)
	for doc := range docs {
		if query.Matches(node, doc) {
			matches = append(matches, doc)
		}
	}
	if err := <-errs; err != nil {
		return nil, 0, err
	}

	sortByBestDateDesc(matches)
	total := len(matches)
	return paginate(matches, count, offset), total, nil
}

// SearchSelection resolves an attribute-selection (the "browse" UI) and
// returns the matching page.
func (f *Facade) SearchSelection(ctx context.Context, sel query.Selection, count, offset int) ([]*asset.Document, int, error) {
	ids, err := query.Resolve(ctx, f.indexer, sel)
	if err != nil {
		return nil, 0, err
	}

	docs := make([]*asset.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := f.meta.GetDoc(ctx, id)
		if err != nil {
			if tanukierr.Is(err, tanukierr.KindNotFound) {
				continue
			}
			return nil, 0, err
		}
		docs = append(docs, doc)
	}

	sortByBestDateDesc(docs)
	total := len(docs)
	return paginate(docs, count, offset), total, nil
}

// Recents returns newborn assets (no tags, caption, or location label yet)
// imported since the given instant, most recent first. A non-positive
// limit returns every match.
func (f *Facade) Recents(ctx context.Context, since time.Time, limit int) ([]*asset.Document, error) {
	keys, err := f.indexer.AllKeysInView(ctx, indexer.ViewNewborn)
	if err != nil {
		return nil, err
	}

	rows := make([]string, 0, len(keys))
	for k := range keys {
		rows = append(rows, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(rows)))

	var out []*asset.Document
	for _, key := range rows {
		entries, err := f.indexer.EntriesForKey(ctx, indexer.ViewNewborn, key)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			doc, err := f.meta.GetDoc(ctx, e.ID)
			if err != nil {
				continue
			}
			if doc.ImportDate.Before(since) {
				continue
			}
			out = append(out, doc)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Count returns the total number of documents in the library.
func (f *Facade) Count(ctx context.Context) (int, error) {
	n := 0
	docs, errs := f.meta.AllDocs(ctx)
	for range docs {
		n++
	}
	if err := <-errs; err != nil {
		return 0, err
	}
	return n, nil
}

// AllTags returns every tag and its usage count.
func (f *Facade) AllTags(ctx context.Context) ([]Count, error) {
	return f.countsForView(ctx, indexer.ViewTag)
}

// AllLocations returns every location label and its usage count.
func (f *Facade) AllLocations(ctx context.Context) ([]Count, error) {
	return f.countsForView(ctx, indexer.ViewLocationLbl)
}

// AllYears returns every year and its document count.
func (f *Facade) AllYears(ctx context.Context) ([]Count, error) {
	return f.countsForView(ctx, indexer.ViewYear)
}

// Count pairs a label with its occurrence count.
type Count struct {
	Label string
	N     int
}

func (f *Facade) countsForView(ctx context.Context, view string) ([]Count, error) {
	keys, err := f.indexer.AllKeysInView(ctx, view)
	if err != nil {
		return nil, err
	}
	out := make([]Count, 0, len(keys))
	for k, n := range keys {
		out = append(out, Count{Label: k, N: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func sortByBestDateDesc(docs []*asset.Document) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].BestDate().After(docs[j].BestDate())
	})
}

func paginate(docs []*asset.Document, count, offset int) []*asset.Document {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return nil
	}
	end := len(docs)
	if count > 0 && offset+count < end {
		end = offset + count
	}
	return docs[offset:end]
}

func extOf(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[i+1:]
		}
	}
	return ""
}
