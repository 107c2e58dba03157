package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nlfiedler/tanuki/internal/tanukierr"
)

// WalkResult tallies a tree ingest run.
type WalkResult struct {
	Ingested int
	Skipped  int
	Failed   int
}

// Walk reads every regular, non-hidden file under root, hashing and probing
// it concurrently (bounded by workers goroutines), while serializing the
// MetadataStore commit through a single path so index updates never race
// (spec.md §4.E, §5). Successfully ingested or deduped files are removed
// from the tree; files that fail are left in place for a retry.
func (e *Engine) Walk(ctx context.Context, root string, workers int) (WalkResult, error) {
	if workers < 1 {
		workers = 1
	}

	paths, err := collectFiles(root)
	if err != nil {
		return WalkResult{}, tanukierr.Backend("ingest.Walk", err)
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var result WalkResult

	for _, path := range paths {
		path := path
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			return e.ingestTreeEntry(gctx, path, &mu, &result)
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) ingestTreeEntry(ctx context.Context, path string, mu *sync.Mutex, result *WalkResult) error {
	f, err := os.Open(path)
	if err != nil {
		e.log.Error("ingest: open candidate failed", zap.String("path", path), zap.Error(err))
		mu.Lock()
		result.Failed++
		mu.Unlock()
		return nil
	}
	defer f.Close()

	outcome, err := e.IngestOne(ctx, f, filepath.Base(path), time.Now().UTC())
	f.Close()
	if err != nil {
		e.log.Error("ingest: ingest failed", zap.String("path", path), zap.Error(err))
		mu.Lock()
		result.Failed++
		mu.Unlock()
		return nil
	}

	if rmErr := os.Remove(path); rmErr != nil {
		e.log.Error("ingest: remove source failed", zap.String("path", path), zap.Error(rmErr))
	}

	mu.Lock()
	if outcome.Skipped {
		result.Skipped++
	} else {
		result.Ingested++
	}
	mu.Unlock()
	return nil
}

// collectFiles walks root, skipping hidden entries and directories
// (spec.md §4.E step 1).
func collectFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if isHidden(d.Name()) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}
