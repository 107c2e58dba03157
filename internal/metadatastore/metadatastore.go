// Package metadatastore wraps an embedded ordered key-value store (Badger v4
// via go-datastore) into the namespaced document/index/meta schema of
// spec.md §4.B.
package metadatastore

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	badger4 "github.com/ipfs/go-ds-badger4"

	"github.com/nlfiedler/tanuki/internal/asset"
	"github.com/nlfiedler/tanuki/internal/tanukierr"
)

// Key namespace prefixes, per spec.md §4.B.
const (
	nsDoc          = "doc"
	nsChecksum     = "ck"
	nsIndex        = "idx"
	nsMetaVersion  = "meta/schema_version"
	nsMetaIndexVer = "meta/index_version"
)

// Store is the embedded metadata database.
type Store struct {
	ds ds.Datastore
}

// Open opens (creating if absent) the Badger-backed store at dir.
func Open(dir string) (*Store, error) {
	opts := badger4.DefaultOptions
	bds, err := badger4.NewDatastore(dir, &opts)
	if err != nil {
		return nil, tanukierr.Backend("metadatastore.Open", err)
	}
	return &Store{ds: bds}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.ds.Close()
}

func docKey(id string) ds.Key      { return ds.NewKey(nsDoc).ChildString(id) }
func checksumKey(ck string) ds.Key { return ds.NewKey(nsChecksum).ChildString(ck) }

// IndexKey builds idx/<view>/<key>/<id>, the canonical secondary-index row
// address used by the Indexer (spec.md §4.B, §4.C).
func IndexKey(view, key, id string) ds.Key {
	return ds.NewKey(nsIndex).ChildString(view).ChildString(key).ChildString(id)
}

// IndexViewPrefix returns the key prefix covering every entry of one view.
func IndexViewPrefix(view string) ds.Key {
	return ds.NewKey(nsIndex).ChildString(view)
}

// IndexKeyPrefix returns the key prefix covering every entry of one view+key.
func IndexKeyPrefix(view, key string) ds.Key {
	return ds.NewKey(nsIndex).ChildString(view).ChildString(key)
}

// Mutation is a batched set of document and index writes applied atomically.
type Mutation struct {
	batch ds.Batch
}

// NewMutation opens a batch against the store.
func (s *Store) NewMutation(ctx context.Context) (*Mutation, error) {
	batching, ok := s.ds.(ds.Batching)
	if !ok {
		return nil, tanukierr.Backend("metadatastore.NewMutation", fmt.Errorf("datastore does not support batching"))
	}
	batch, err := batching.Batch(ctx)
	if err != nil {
		return nil, tanukierr.Backend("metadatastore.NewMutation", err)
	}
	return &Mutation{batch: batch}, nil
}

// PutDoc stages a CBOR-encoded document write plus its checksum pointer.
func (m *Mutation) PutDoc(ctx context.Context, doc *asset.Document) error {
	data, err := cbor.Marshal(doc)
	if err != nil {
		return tanukierr.Backend("metadatastore.PutDoc", err)
	}
	if err := m.batch.Put(ctx, docKey(doc.ID), data); err != nil {
		return tanukierr.Backend("metadatastore.PutDoc", err)
	}
	if err := m.batch.Put(ctx, checksumKey(doc.Checksum), []byte(doc.ID)); err != nil {
		return tanukierr.Backend("metadatastore.PutDoc", err)
	}
	return nil
}

// DeleteDoc stages removal of a document and its checksum pointer. The
// caller is responsible for also staging the document's index rows via
// PutIndexEntry/DeleteIndexEntry.
func (m *Mutation) DeleteDoc(ctx context.Context, id, checksum string) error {
	if err := m.batch.Delete(ctx, docKey(id)); err != nil {
		return tanukierr.Backend("metadatastore.DeleteDoc", err)
	}
	if checksum != "" {
		if err := m.batch.Delete(ctx, checksumKey(checksum)); err != nil {
			return tanukierr.Backend("metadatastore.DeleteDoc", err)
		}
	}
	return nil
}

// PutIndexEntry stages one idx/<view>/<key>/<id> row with a CBOR payload.
func (m *Mutation) PutIndexEntry(ctx context.Context, view, key, id string, payload any) error {
	data, err := cbor.Marshal(payload)
	if err != nil {
		return tanukierr.Backend("metadatastore.PutIndexEntry", err)
	}
	if err := m.batch.Put(ctx, IndexKey(view, key, id), data); err != nil {
		return tanukierr.Backend("metadatastore.PutIndexEntry", err)
	}
	return nil
}

// DeleteIndexEntry stages removal of one idx/<view>/<key>/<id> row.
func (m *Mutation) DeleteIndexEntry(ctx context.Context, view, key, id string) error {
	if err := m.batch.Delete(ctx, IndexKey(view, key, id)); err != nil {
		return tanukierr.Backend("metadatastore.DeleteIndexEntry", err)
	}
	return nil
}

// SetSchemaVersion stages the schema-version marker (invariant I6: callers
// must only ever increase it).
func (m *Mutation) SetSchemaVersion(ctx context.Context, version int) error {
	return m.putInt(ctx, nsMetaVersion, version)
}

// SetIndexVersion stages the index-version marker.
func (m *Mutation) SetIndexVersion(ctx context.Context, version int) error {
	return m.putInt(ctx, nsMetaIndexVer, version)
}

func (m *Mutation) putInt(ctx context.Context, key string, v int) error {
	if err := m.batch.Put(ctx, ds.NewKey(key), []byte(fmt.Sprintf("%d", v))); err != nil {
		return tanukierr.Backend("metadatastore: put "+key, err)
	}
	return nil
}

// Commit applies every staged write atomically.
func (m *Mutation) Commit(ctx context.Context) error {
	if err := m.batch.Commit(ctx); err != nil {
		return tanukierr.Backend("metadatastore.Commit", err)
	}
	return nil
}

// GetDoc reads and decodes a document by id.
func (s *Store) GetDoc(ctx context.Context, id string) (*asset.Document, error) {
	data, err := s.ds.Get(ctx, docKey(id))
	if err != nil {
		if err == ds.ErrNotFound {
			return nil, tanukierr.NotFound("metadatastore.GetDoc", err)
		}
		return nil, tanukierr.Backend("metadatastore.GetDoc", err)
	}
	var doc asset.Document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, tanukierr.Integrity("metadatastore.GetDoc", err)
	}
	return &doc, nil
}

// GetIDByChecksum resolves the asset id for an algorithm-prefixed checksum.
func (s *Store) GetIDByChecksum(ctx context.Context, checksum string) (string, error) {
	data, err := s.ds.Get(ctx, checksumKey(checksum))
	if err != nil {
		if err == ds.ErrNotFound {
			return "", tanukierr.NotFound("metadatastore.GetIDByChecksum", err)
		}
		return "", tanukierr.Backend("metadatastore.GetIDByChecksum", err)
	}
	return string(data), nil
}

// SchemaVersion reads the current schema version, defaulting to 0.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return s.getInt(ctx, nsMetaVersion)
}

// IndexVersion reads the current index version, defaulting to 0.
func (s *Store) IndexVersion(ctx context.Context) (int, error) {
	return s.getInt(ctx, nsMetaIndexVer)
}

func (s *Store) getInt(ctx context.Context, key string) (int, error) {
	data, err := s.ds.Get(ctx, ds.NewKey(key))
	if err != nil {
		if err == ds.ErrNotFound {
			return 0, nil
		}
		return 0, tanukierr.Backend("metadatastore: get "+key, err)
	}
	var v int
	if _, err := fmt.Sscanf(string(data), "%d", &v); err != nil {
		return 0, tanukierr.Integrity("metadatastore: parse "+key, err)
	}
	return v, nil
}

// Entry is one raw key/value pair read back from the index namespace.
type Entry struct {
	Key   string
	Value []byte
}

// AllDocs streams every document in the store, used for full index rebuilds
// and migrations.
func (s *Store) AllDocs(ctx context.Context) (<-chan *asset.Document, <-chan error) {
	out := make(chan *asset.Document)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		q := query.Query{Prefix: ds.NewKey(nsDoc).String()}
		results, err := s.ds.Query(ctx, q)
		if err != nil {
			errc <- tanukierr.Backend("metadatastore.AllDocs", err)
			return
		}
		defer results.Close()

		for {
			select {
			case <-ctx.Done():
				errc <- tanukierr.Cancelled("metadatastore.AllDocs", ctx.Err())
				return
			case res, ok := <-results.Next():
				if !ok {
					return
				}
				if res.Error != nil {
					errc <- tanukierr.Backend("metadatastore.AllDocs", res.Error)
					return
				}
				var doc asset.Document
				if err := cbor.Unmarshal(res.Value, &doc); err != nil {
					errc <- tanukierr.Integrity("metadatastore.AllDocs", err)
					return
				}
				out <- &doc
			}
		}
	}()

	return out, errc
}

// IterIndex streams every key/value pair under a view (or view+key) prefix.
func (s *Store) IterIndex(ctx context.Context, prefix ds.Key) (<-chan Entry, <-chan error) {
	out := make(chan Entry)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		q := query.Query{Prefix: prefix.String()}
		results, err := s.ds.Query(ctx, q)
		if err != nil {
			errc <- tanukierr.Backend("metadatastore.IterIndex", err)
			return
		}
		defer results.Close()

		for {
			select {
			case <-ctx.Done():
				errc <- tanukierr.Cancelled("metadatastore.IterIndex", ctx.Err())
				return
			case res, ok := <-results.Next():
				if !ok {
					return
				}
				if res.Error != nil {
					errc <- tanukierr.Backend("metadatastore.IterIndex", res.Error)
					return
				}
				out <- Entry{Key: res.Key, Value: res.Value}
			}
		}
	}()

	return out, errc
}

// DropIndex deletes every key under the idx/ namespace, used by Indexer's
// full-rebuild path (spec.md §4.C).
func (s *Store) DropIndex(ctx context.Context) error {
	batching, ok := s.ds.(ds.Batching)
	if !ok {
		return tanukierr.Backend("metadatastore.DropIndex", fmt.Errorf("datastore does not support batching"))
	}
	batch, err := batching.Batch(ctx)
	if err != nil {
		return tanukierr.Backend("metadatastore.DropIndex", err)
	}

	entries, errc := s.IterIndex(ctx, ds.NewKey(nsIndex))
	for e := range entries {
		if err := batch.Delete(ctx, ds.NewKey(e.Key)); err != nil {
			return tanukierr.Backend("metadatastore.DropIndex", err)
		}
	}
	if err := <-errc; err != nil {
		return err
	}
	if err := batch.Commit(ctx); err != nil {
		return tanukierr.Backend("metadatastore.DropIndex", err)
	}
	return nil
}
