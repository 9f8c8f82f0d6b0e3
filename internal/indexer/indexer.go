package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gallery/internal/database"
	"gallery/internal/logging"
	"gallery/internal/medialist"
	"gallery/internal/mediatypes"
	"gallery/internal/metrics"
)

// Number of files to upsert before committing a batch
const batchSize = 500

// Indexer manages the indexing of media files in the media directory.
type Indexer struct {
	db       *database.Database
	mediaDir string
	walker   WalkerConfig

	indexMu       sync.Mutex
	isIndexing    bool
	lastIndexTime time.Time
	lastResult    Result

	filesIndexed  atomic.Int64
	indexProgress atomic.Value
}

// IndexProgress tracks the current indexing progress
type IndexProgress struct {
	FilesIndexed int64     `json:"filesIndexed"`
	IsIndexing   bool      `json:"isIndexing"`
	StartedAt    time.Time `json:"startedAt,omitzero"`
}

// Result summarizes a completed index run.
type Result struct {
	Files    int64         `json:"files"`
	Folders  int64         `json:"folders"`
	Removed  int64         `json:"removed"`
	Errors   int64         `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready         bool           `json:"ready"`
	Indexing      bool           `json:"indexing"`
	LastIndexed   time.Time      `json:"lastIndexed,omitzero"`
	LastResult    Result         `json:"lastResult"`
	IndexProgress *IndexProgress `json:"indexProgress,omitempty"`
}

// ErrIndexing is returned by Index while another run is in progress.
var ErrIndexing = errors.New("index already in progress")

// New creates a new Indexer instance.
func New(db *database.Database, mediaDir string) *Indexer {
	idx := &Indexer{
		db:       db,
		mediaDir: filepath.Clean(mediaDir),
		walker:   DefaultWalkerConfig(),
	}
	idx.indexProgress.Store(IndexProgress{})
	return idx
}

// SetWalkerConfig sets the directory walker configuration.
func (idx *Indexer) SetWalkerConfig(config WalkerConfig) {
	idx.walker = config
}

// Index performs a full index of the media directory.
func (idx *Indexer) Index(ctx context.Context) (Result, error) {
	if !idx.tryStartIndexing() {
		logging.Info("Index already in progress, skipping...")
		return Result{}, ErrIndexing
	}
	defer idx.finishIndexing()

	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.Inc()

	startTime := time.Now()
	logging.Info("Starting file indexing of %s...", idx.mediaDir)
	idx.filesIndexed.Store(0)
	idx.updateProgress(startTime)

	result, err := idx.walkAndIndex(ctx, startTime)
	if err != nil {
		metrics.IndexerErrors.Inc()
		return result, err
	}

	// Records not touched since startTime are gone from disk.
	removed, err := idx.cleanupMissingFiles(ctx, "", startTime)
	if err != nil {
		logging.Error("Error cleaning up missing files: %v", err)
		metrics.IndexerErrors.Inc()
	}
	result.Removed = removed
	result.Duration = time.Since(startTime)

	idx.indexMu.Lock()
	idx.lastIndexTime = time.Now()
	idx.lastResult = result
	idx.indexMu.Unlock()

	metrics.IndexerLastRunDuration.Set(result.Duration.Seconds())
	metrics.IndexerFilesProcessed.Add(float64(result.Files))
	idx.db.UpdateDBMetrics()

	logging.Info("Index complete: %d files, %d folders, %d removed in %v",
		result.Files, result.Folders, result.Removed, result.Duration)
	return result, nil
}

func (idx *Indexer) walkAndIndex(ctx context.Context, startTime time.Time) (Result, error) {
	w := newWalker(idx.mediaDir, idx.walker)
	batch := make([]database.MediaFile, 0, batchSize)
	var result Result

	err := w.run(ctx, func(file database.MediaFile) error {
		batch = append(batch, file)
		result.Files++
		idx.filesIndexed.Add(1)
		if len(batch) < batchSize {
			return nil
		}
		err := idx.processBatch(ctx, batch)
		batch = batch[:0]
		idx.updateProgress(startTime)
		return err
	})
	if err == nil {
		err = idx.processBatch(ctx, batch)
	}

	result.Folders = w.folders.Load()
	result.Errors = w.errors.Load()
	if err != nil {
		return result, fmt.Errorf("walk error: %w", err)
	}
	return result, nil
}

// processBatch upserts files in a single transaction.
func (idx *Indexer) processBatch(ctx context.Context, files []database.MediaFile) error {
	if len(files) == 0 {
		return nil
	}

	b, err := idx.db.BeginBatch(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}

	for i := range files {
		if err := idx.db.UpsertFile(ctx, b, &files[i]); err != nil {
			return idx.db.EndBatch(b, fmt.Errorf("upsert %s: %w", files[i].Path, err))
		}
	}

	if err := idx.db.EndBatch(b, nil); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// cleanupMissingFiles removes records under root that no batch has seen
// since cutoff.
func (idx *Indexer) cleanupMissingFiles(ctx context.Context, root string, cutoff time.Time) (int64, error) {
	b, err := idx.db.BeginBatch(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}

	deleted, err := idx.db.DeleteMissingFiles(ctx, b, root, cutoff)
	if err := idx.db.EndBatch(b, err); err != nil {
		return 0, fmt.Errorf("failed to clean up missing files: %w", err)
	}

	if deleted > 0 {
		logging.Info("Removed %d missing files from index", deleted)
	}
	return deleted, nil
}

// Run indexes once and then every interval until ctx is cancelled. An
// interval of zero indexes once.
func (idx *Indexer) Run(ctx context.Context, interval time.Duration) {
	logging.Info("Starting initial index in background...")
	if _, err := idx.Index(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("Initial index error: %v", err)
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic re-index triggered")
			if _, err := idx.Index(ctx); err != nil && !errors.Is(err, ErrIndexing) {
				logging.Error("periodic re-index failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Changed indexes a single created or modified file.
func (idx *Indexer) Changed(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() || mediatypes.KindForPath(path) == mediatypes.KindUnknown {
		return nil
	}
	file := newMediaFile(idx.mediaDir, path, info)
	return idx.db.SaveFile(ctx, &file)
}

// Removed drops the record for path, or every record under it when path
// was a directory.
func (idx *Indexer) Removed(ctx context.Context, path string) error {
	err := idx.db.DeleteFile(ctx, path)
	if !errors.Is(err, medialist.ErrItemNotFound) {
		return err
	}
	_, err = idx.cleanupMissingFiles(ctx, path, time.Now())
	return err
}

func (idx *Indexer) tryStartIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

func (idx *Indexer) finishIndexing() {
	idx.indexMu.Lock()
	idx.isIndexing = false
	idx.indexMu.Unlock()

	idx.indexProgress.Store(IndexProgress{FilesIndexed: idx.filesIndexed.Load()})
}

// updateProgress updates the indexing progress.
func (idx *Indexer) updateProgress(startTime time.Time) {
	idx.indexProgress.Store(IndexProgress{
		FilesIndexed: idx.filesIndexed.Load(),
		IsIndexing:   true,
		StartedAt:    startTime,
	})
}

// IsIndexing returns whether an index operation is currently in progress.
func (idx *Indexer) IsIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.isIndexing
}

// LastIndexTime returns the time of the last completed index operation.
func (idx *Indexer) LastIndexTime() time.Time {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.lastIndexTime
}

// GetProgress returns the current indexing progress.
func (idx *Indexer) GetProgress() IndexProgress {
	if progress, ok := idx.indexProgress.Load().(IndexProgress); ok {
		return progress
	}
	return IndexProgress{}
}

// GetHealthStatus returns detailed health information. The library is
// ready once the first index has completed.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	status := HealthStatus{
		Ready:       !idx.lastIndexTime.IsZero(),
		Indexing:    idx.isIndexing,
		LastIndexed: idx.lastIndexTime,
		LastResult:  idx.lastResult,
	}
	if idx.isIndexing {
		progress := idx.GetProgress()
		status.IndexProgress = &progress
	}
	return status
}
