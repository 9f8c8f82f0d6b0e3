package indexer

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gallery/internal/database"
	"gallery/internal/logging"
	"gallery/internal/mediatypes"
	"gallery/internal/metrics"
	"gallery/internal/workers"
)

// WalkerConfig configures the directory walk.
type WalkerConfig struct {
	// NumWorkers is the number of goroutines reading file metadata.
	NumWorkers int
	// ChannelBuffer is the size of the job and result channels.
	ChannelBuffer int
}

// maxDefaultWorkers keeps the walk gentle on NFS mounts.
const maxDefaultWorkers = 3

// DefaultWalkerConfig returns the walker defaults. INDEX_WORKERS overrides
// the worker count.
func DefaultWalkerConfig() WalkerConfig {
	return WalkerConfig{
		NumWorkers:    workers.ForIO("INDEX_WORKERS", maxDefaultWorkers),
		ChannelBuffer: 1000,
	}
}

type walkJob struct {
	path  string
	entry fs.DirEntry
}

// walker stats the media files under root in parallel and hands the
// resulting records to the caller's goroutine.
type walker struct {
	root   string
	config WalkerConfig

	jobs    chan walkJob
	results chan database.MediaFile

	folders atomic.Int64
	errors  atomic.Int64
}

func newWalker(root string, config WalkerConfig) *walker {
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	return &walker{
		root:    root,
		config:  config,
		jobs:    make(chan walkJob, config.ChannelBuffer),
		results: make(chan database.MediaFile, config.ChannelBuffer),
	}
}

// run walks the tree and calls emit for every media file. emit runs on the
// calling goroutine. A non-nil error from emit stops the walk.
func (w *walker) run(ctx context.Context, emit func(database.MediaFile) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.IndexerParallelWorkers.Set(float64(w.config.NumWorkers))

	var wg sync.WaitGroup
	for i := 0; i < w.config.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.work(ctx)
		}()
	}

	walkErr := make(chan error, 1)
	go func() {
		walkErr <- w.enqueue(ctx)
		close(w.jobs)
		wg.Wait()
		close(w.results)
	}()

	var emitErr error
	for file := range w.results {
		if emitErr != nil {
			continue
		}
		if emitErr = emit(file); emitErr != nil {
			cancel()
		}
	}

	if err := <-walkErr; err != nil && emitErr == nil {
		return err
	}
	return emitErr
}

func (w *walker) enqueue(ctx context.Context) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == w.root {
				return err
			}
			logging.Warn("Error accessing path %s: %v", path, err)
			w.errors.Add(1)
			return nil
		}
		if d.IsDir() {
			if path != w.root {
				w.folders.Add(1)
			}
			return nil
		}
		if mediatypes.KindForPath(path) == mediatypes.KindUnknown {
			return nil
		}

		select {
		case w.jobs <- walkJob{path: path, entry: d}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (w *walker) work(ctx context.Context) {
	for job := range w.jobs {
		info, err := job.entry.Info()
		if err != nil {
			// Removed since the listing.
			logging.Debug("Error getting info for %s: %v", job.path, err)
			w.errors.Add(1)
			continue
		}

		select {
		case w.results <- newMediaFile(w.root, job.path, info):
		case <-ctx.Done():
			return
		}
	}
}

// newMediaFile builds the library record for a media file under root.
func newMediaFile(root, path string, info fs.FileInfo) database.MediaFile {
	hidden := false
	if rel, err := filepath.Rel(root, path); err == nil {
		hidden = mediatypes.IsHidden(rel)
	}
	return database.MediaFile{
		Name:       info.Name(),
		Path:       path,
		ParentPath: filepath.Dir(path),
		Kind:       mediatypes.KindForPath(path),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		Hidden:     hidden,
	}
}
