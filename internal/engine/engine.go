// Package engine implements the StartupOrchestrator of spec.md §4.J: it
// opens every long-lived resource in dependency order and hands callers a
// single value that owns all of it, mirroring the teacher's single
// *Repository/*blockstore ownership shape (spec.md §9 design note).
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nlfiedler/tanuki/internal/blobstore"
	"github.com/nlfiedler/tanuki/internal/config"
	"github.com/nlfiedler/tanuki/internal/indexer"
	"github.com/nlfiedler/tanuki/internal/ingest"
	"github.com/nlfiedler/tanuki/internal/metadatastore"
	"github.com/nlfiedler/tanuki/internal/migration"
	"github.com/nlfiedler/tanuki/internal/rendercache"
	"github.com/nlfiedler/tanuki/internal/repository"
)

// ExitCode classifies a startup failure per spec.md §6, so cmd/tanukid can
// map it directly to os.Exit without inspecting error text.
type ExitCode int

const (
	// ExitOK means the engine started normally.
	ExitOK ExitCode = 0
	// ExitConfigInvalid means config.Load/Validate rejected the environment.
	ExitConfigInvalid ExitCode = 2
	// ExitDatabaseOpenFailed means MetadataStore or BlobStore could not be
	// opened, or RenderCache could not be constructed.
	ExitDatabaseOpenFailed ExitCode = 3
	// ExitMigrationFailed means migration.Runner.Run returned an error.
	ExitMigrationFailed ExitCode = 4
)

// StartupError wraps a startup failure with the exit code the caller should
// use to terminate the process.
type StartupError struct {
	Code ExitCode
	Err  error
}

func (e *StartupError) Error() string { return e.Err.Error() }
func (e *StartupError) Unwrap() error { return e.Err }

// Engine owns every long-lived resource the repository facade depends on.
// Callers construct one at startup via Open and Close it at shutdown.
type Engine struct {
	Config      config.Config
	Meta        *metadatastore.Store
	Blobs       *blobstore.BlobStore
	Indexer     *indexer.Indexer
	RenderCache *rendercache.Cache
	Ingest      *ingest.Engine
	Repo        *repository.Facade

	log *zap.Logger
}

// Open runs the full startup sequence: open MetadataStore and BlobStore,
// construct the Indexer, run pending migrations (and an index rebuild if
// stale), then construct RenderCache, IngestEngine, and RepositoryFacade in
// that order. Any failure is wrapped in a *StartupError carrying the exit
// code the caller should use (spec.md §6).
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}

	meta, err := metadatastore.Open(cfg.DatabasePath)
	if err != nil {
		return nil, &StartupError{Code: ExitDatabaseOpenFailed, Err: fmt.Errorf("engine: open metadata store: %w", err)}
	}

	blobs, err := blobstore.Open(cfg.BlobstorePath)
	if err != nil {
		meta.Close()
		return nil, &StartupError{Code: ExitDatabaseOpenFailed, Err: fmt.Errorf("engine: open blob store: %w", err)}
	}

	ix := indexer.New(meta)

	runner := migration.New(meta, blobs, ix, log.Named("migration"))
	if err := runner.Run(ctx); err != nil {
		meta.Close()
		return nil, &StartupError{Code: ExitMigrationFailed, Err: fmt.Errorf("engine: run migrations: %w", err)}
	}

	cache, err := rendercache.New(blobs, cfg.RenderCacheBytes)
	if err != nil {
		meta.Close()
		return nil, &StartupError{Code: ExitDatabaseOpenFailed, Err: fmt.Errorf("engine: construct render cache: %w", err)}
	}

	ingestEngine := ingest.New(blobs, meta, log.Named("ingest"))
	repo := repository.New(blobs, meta, ix, ingestEngine, cfg.UploadsPath, log.Named("repository"))

	log.Info("engine: started",
		zap.String("blobstore_path", cfg.BlobstorePath),
		zap.String("database_path", cfg.DatabasePath),
		zap.String("uploads_path", cfg.UploadsPath))

	return &Engine{
		Config:      cfg,
		Meta:        meta,
		Blobs:       blobs,
		Indexer:     ix,
		RenderCache: cache,
		Ingest:      ingestEngine,
		Repo:        repo,
		log:         log,
	}, nil
}

// Close releases the MetadataStore handle. BlobStore and RenderCache hold no
// independent handles beyond the filesystem, so there is nothing else to
// release.
func (e *Engine) Close() error {
	return e.Meta.Close()
}
