package metrics

import (
	"context"
	"time"

	"gallery/internal/logging"
)

// StatsProvider reports library totals.
type StatsProvider interface {
	LibraryStats() Stats
}

// Stats holds the current library statistics
type Stats struct {
	TotalImages    int
	TotalVideos    int
	TotalUnknown   int
	TotalFavorites int
	TotalTags      int
}

// minRefreshGap limits how often Refresh can trigger a collection.
const minRefreshGap = time.Second

// Collector keeps the library gauges current. It collects on an interval
// and, at most once per second, when Refresh is called.
type Collector struct {
	provider StatsProvider
	interval time.Duration
	refresh  chan struct{}
}

// NewCollector creates a collector. Call Run to start it.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider: provider,
		interval: interval,
		refresh:  make(chan struct{}, 1),
	}
}

// Refresh asks for a collection soon. It never blocks and repeated calls
// before the next collection are merged.
func (c *Collector) Refresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Run collects immediately and then until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	c.Collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-c.refresh:
			if wait := minRefreshGap - time.Since(last); wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
		}
		c.Collect()
		last = time.Now()
	}
}

// Collect updates the library gauges once.
func (c *Collector) Collect() {
	if c.provider == nil {
		return
	}
	s := c.provider.LibraryStats()

	LibraryFilesTotal.WithLabelValues("image").Set(float64(s.TotalImages))
	LibraryFilesTotal.WithLabelValues("video").Set(float64(s.TotalVideos))
	LibraryFilesTotal.WithLabelValues("unknown").Set(float64(s.TotalUnknown))
	LibraryFavoritesTotal.Set(float64(s.TotalFavorites))
	LibraryTagsTotal.Set(float64(s.TotalTags))

	logging.Debug("Library gauges: images=%d videos=%d favorites=%d tags=%d",
		s.TotalImages, s.TotalVideos, s.TotalFavorites, s.TotalTags)
}
