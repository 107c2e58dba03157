// Package migration implements the MigrationRunner of spec.md §4.I: an
// ordered list of idempotent migrators keyed by schema version, run on
// startup, with a trailing full Indexer rebuild when the index format has
// moved on. It generalizes the teacher's versioned, ordered lexicon
// migration idea down to Tanuki's much smaller document-schema needs —
// no backup/rollback/dry-run machinery, since every migrator here must
// already be safe to re-run (spec.md §7: migration failure is fatal, the
// service simply refuses to start rather than attempting a rollback).
package migration

import (
	"context"

	"go.uber.org/zap"

	"github.com/nlfiedler/tanuki/internal/blobstore"
	"github.com/nlfiedler/tanuki/internal/indexer"
	"github.com/nlfiedler/tanuki/internal/metadatastore"
)

// CurrentSchemaVersion is the compiled-in document schema version.
const CurrentSchemaVersion = 1

// CurrentIndexVersion is the compiled-in secondary-index format version.
const CurrentIndexVersion = 1

// Migrator is one idempotent step that brings the store from Version-1 to
// Version. Apply may rewrite documents and, for layout changes, move blobs
// via BlobStore and prune the directories it leaves empty.
type Migrator struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, meta *metadatastore.Store, blobs *blobstore.BlobStore) error
}

// registry is the ordered list of migrators, by ascending Version. Real
// migrators get appended here as the schema evolves; today's only entry
// establishes version 1 with no document rewrite required, since this is
// the schema every document is already written in.
var registry = []Migrator{
	{
		Version: 1,
		Name:    "initial schema",
		Apply:   func(ctx context.Context, meta *metadatastore.Store, blobs *blobstore.BlobStore) error { return nil },
	},
}

// Runner applies pending migrators and, if needed, rebuilds the index.
type Runner struct {
	meta  *metadatastore.Store
	blobs *blobstore.BlobStore
	ix    *indexer.Indexer
	log   *zap.Logger
}

// New returns a Runner over the given stores.
func New(meta *metadatastore.Store, blobs *blobstore.BlobStore, ix *indexer.Indexer, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{meta: meta, blobs: blobs, ix: ix, log: log}
}

// Run reads the on-disk schema version, applies every migrator newer than
// it in order, and rebuilds the index if its version is stale. Any
// migrator error aborts the run immediately — callers should treat this as
// fatal (spec.md §7).
func (r *Runner) Run(ctx context.Context) error {
	current, err := r.meta.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range registry {
		if m.Version <= current {
			continue
		}
		r.log.Info("migration: applying", zap.Int("version", m.Version), zap.String("name", m.Name))
		if err := m.Apply(ctx, r.meta, r.blobs); err != nil {
			return err
		}
		if err := r.setSchemaVersion(ctx, m.Version); err != nil {
			return err
		}
	}

	indexVersion, err := r.meta.IndexVersion(ctx)
	if err != nil {
		return err
	}
	if indexVersion < CurrentIndexVersion {
		r.log.Info("migration: rebuilding index",
			zap.Int("from", indexVersion), zap.Int("to", CurrentIndexVersion))
		if err := r.ix.Rebuild(ctx); err != nil {
			return err
		}
		if err := r.setIndexVersion(ctx, CurrentIndexVersion); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) setSchemaVersion(ctx context.Context, version int) error {
	m, err := r.meta.NewMutation(ctx)
	if err != nil {
		return err
	}
	if err := m.SetSchemaVersion(ctx, version); err != nil {
		return err
	}
	return m.Commit(ctx)
}

func (r *Runner) setIndexVersion(ctx context.Context, version int) error {
	m, err := r.meta.NewMutation(ctx)
	if err != nil {
		return err
	}
	if err := m.SetIndexVersion(ctx, version); err != nil {
		return err
	}
	return m.Commit(ctx)
}
