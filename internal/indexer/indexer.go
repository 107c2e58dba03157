// Package indexer emits and maintains the secondary-index views described in
// spec.md §4.C: by_checksum, by_tag, by_location.*, by_year, by_media_type,
// and by_newborn. It generalizes the teacher's "emit a key per document, diff
// on update" discipline (mstindex.Index) from a Merkle-tree root onto flat
// MetadataStore rows.
package indexer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/nlfiedler/tanuki/internal/asset"
	"github.com/nlfiedler/tanuki/internal/metadatastore"
	"github.com/nlfiedler/tanuki/internal/tanukierr"
)

// View names, per spec.md §4.C.
const (
	ViewChecksum     = "by_checksum"
	ViewTag          = "by_tag"
	ViewLocationLbl  = "by_location.label"
	ViewLocationCity = "by_location.city"
	ViewLocationRgn  = "by_location.region"
	ViewYear         = "by_year"
	ViewMediaType    = "by_media_type"
	ViewNewborn      = "by_newborn"
)

// Payload is the small summary tuple carried by every index entry so common
// search-result rendering needs no follow-up document read (spec.md §4.C).
type Payload struct {
	BestDate        int64  `cbor:"best_date"` // unix millis, UTC
	Filename        string `cbor:"filename"`
	LocationLabel   string `cbor:"location_label,omitempty"`
	MediaType       string `cbor:"media_type"`
}

// entryKey is one emitted (view, key) pair for a document; multiple rows can
// share a view (e.g. several tags).
type entryKey struct {
	view string
	key  string
}

// Indexer maintains secondary-index rows in a MetadataStore.
type Indexer struct {
	store *metadatastore.Store
}

// New returns an Indexer backed by store.
func New(store *metadatastore.Store) *Indexer {
	return &Indexer{store: store}
}

// emittedKeys computes every (view, key) pair a document should appear under.
func emittedKeys(doc *asset.Document) []entryKey {
	var keys []entryKey

	if doc.Checksum != "" {
		keys = append(keys, entryKey{ViewChecksum, doc.Checksum})
	}
	for _, tag := range doc.Tags {
		keys = append(keys, entryKey{ViewTag, strings.ToLower(tag)})
	}
	if doc.Location != nil {
		if doc.Location.Label != "" {
			keys = append(keys, entryKey{ViewLocationLbl, strings.ToLower(doc.Location.Label)})
		}
		if doc.Location.City != "" {
			keys = append(keys, entryKey{ViewLocationCity, strings.ToLower(doc.Location.City)})
		}
		if doc.Location.Region != "" {
			keys = append(keys, entryKey{ViewLocationRgn, strings.ToLower(doc.Location.Region)})
		}
	}
	year := doc.BestDate().UTC().Year()
	keys = append(keys, entryKey{ViewYear, strconv.Itoa(year)})

	if doc.MediaType != "" {
		keys = append(keys, entryKey{ViewMediaType, strings.ToLower(doc.MediaType)})
	}
	if doc.Newborn() {
		keys = append(keys, entryKey{ViewNewborn, newbornKey(doc)})
	}
	return keys
}

// newbornKey orders by_newborn entries by (import_date, id) per spec.md §4.C.
func newbornKey(doc *asset.Document) string {
	return fmt.Sprintf("%020d/%s", doc.ImportDate.UTC().UnixMilli(), doc.ID)
}

func payloadFor(doc *asset.Document) Payload {
	p := Payload{
		BestDate:  doc.BestDate().UTC().UnixMilli(),
		Filename:  doc.Filename,
		MediaType: doc.MediaType,
	}
	if doc.Location != nil {
		p.LocationLabel = doc.Location.Label
	}
	return p
}

// Apply stages the index delta for a document write into an open mutation.
// old is nil for a freshly created document. This is the symmetric-diff
// update path of spec.md §4.C: keys present in old but absent from new are
// deleted, and every key of the new document is written, so rows present in
// both are rewritten with the payload of the new document.
func Apply(ctx context.Context, m *metadatastore.Mutation, old, updated *asset.Document) error {
	var oldKeys []entryKey
	if old != nil {
		oldKeys = emittedKeys(old)
	}
	newKeys := emittedKeys(updated)

	oldSet := make(map[entryKey]struct{}, len(oldKeys))
	for _, k := range oldKeys {
		oldSet[k] = struct{}{}
	}
	newSet := make(map[entryKey]struct{}, len(newKeys))
	for _, k := range newKeys {
		newSet[k] = struct{}{}
	}

	for _, k := range oldKeys {
		if _, keep := newSet[k]; !keep {
			if err := m.DeleteIndexEntry(ctx, k.view, k.key, updated.ID); err != nil {
				return err
			}
		}
	}

	payload := payloadFor(updated)
	for _, k := range newKeys {
		if err := m.PutIndexEntry(ctx, k.view, k.key, updated.ID, payload); err != nil {
			return err
		}
	}
	return nil
}

// Remove stages deletion of every index row the document currently occupies.
func Remove(ctx context.Context, m *metadatastore.Mutation, doc *asset.Document) error {
	for _, k := range emittedKeys(doc) {
		if err := m.DeleteIndexEntry(ctx, k.view, k.key, doc.ID); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild drops every index row and re-emits it from a full document scan.
// Its output is the canonical definition of correctness (spec.md §4.C);
// property P3 and invariant I5 are checked against this path.
func (ix *Indexer) Rebuild(ctx context.Context) error {
	if err := ix.store.DropIndex(ctx); err != nil {
		return err
	}

	docs, errc := ix.store.AllDocs(ctx)
	m, err := ix.store.NewMutation(ctx)
	if err != nil {
		return err
	}
	for doc := range docs {
		if err := Apply(ctx, m, nil, doc); err != nil {
			return err
		}
	}
	if err := <-errc; err != nil {
		return err
	}
	return m.Commit(ctx)
}

// IDsForKey returns every asset id currently emitted under view/key.
func (ix *Indexer) IDsForKey(ctx context.Context, view, key string) ([]string, error) {
	prefix := metadatastore.IndexKeyPrefix(view, strings.ToLower(key))
	entries, errc := ix.store.IterIndex(ctx, prefix)

	var ids []string
	for e := range entries {
		ids = append(ids, lastSegment(e.Key))
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return ids, nil
}

// Entry pairs an asset id with its index payload, for callers that plan over
// an index view directly (e.g. QueryEngine's attribute-selection path).
type Entry struct {
	ID      string
	Payload Payload
}

// EntriesForKey is IDsForKey plus the decoded payload for each row.
func (ix *Indexer) EntriesForKey(ctx context.Context, view, key string) ([]Entry, error) {
	prefix := metadatastore.IndexKeyPrefix(view, strings.ToLower(key))
	entries, errc := ix.store.IterIndex(ctx, prefix)

	var out []Entry
	for e := range entries {
		var p Payload
		if err := decodePayload(e.Value, &p); err != nil {
			return nil, tanukierr.Integrity("indexer.EntriesForKey", err)
		}
		out = append(out, Entry{ID: lastSegment(e.Key), Payload: p})
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return out, nil
}

func lastSegment(key string) string {
	idx := strings.LastIndex(key, "/")
	if idx < 0 {
		return key
	}
	return key[idx+1:]
}

// AllKeysInView lists the distinct keys currently populated in a view, e.g.
// for "all tags" / "all years" / "all locations" enumeration endpoints.
func (ix *Indexer) AllKeysInView(ctx context.Context, view string) (map[string]int, error) {
	entries, errc := ix.store.IterIndex(ctx, metadatastore.IndexViewPrefix(view))

	counts := make(map[string]int)
	for e := range entries {
		rel := strings.TrimPrefix(e.Key, metadatastore.IndexViewPrefix(view).String()+"/")
		parts := strings.SplitN(rel, "/", 2)
		if len(parts) != 2 {
			continue
		}
		counts[parts[0]]++
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return counts, nil
}

func decodePayload(data []byte, p *Payload) error {
	return cbor.Unmarshal(data, p)
}
