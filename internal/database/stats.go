package database

import (
	"context"
	"time"

	"gallery/internal/logging"
	"gallery/internal/mediatypes"
	"gallery/internal/metrics"
)

// LibraryStats counts files by kind, favorites and tags. It implements
// metrics.StatsProvider; failures are logged and yield zero counts.
func (d *Database) LibraryStats() metrics.Stats {
	start := time.Now()
	var err error
	defer func() { recordQuery("calculate_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var stats metrics.Stats
	rows, err := d.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM files GROUP BY kind`)
	if err != nil {
		logging.Warn("Failed to calculate library stats: %v", err)
		return stats
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int
		if err = rows.Scan(&kind, &n); err != nil {
			logging.Warn("Failed to scan library stats: %v", err)
			return stats
		}
		switch k, _ := mediatypes.ParseKind(kind); k {
		case mediatypes.KindImage:
			stats.TotalImages += n
		case mediatypes.KindVideo:
			stats.TotalVideos += n
		default:
			stats.TotalUnknown += n
		}
	}

	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM favorites`).Scan(&stats.TotalFavorites); err != nil {
		logging.Warn("Failed to count favorites: %v", err)
	}
	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&stats.TotalTags); err != nil {
		logging.Warn("Failed to count tags: %v", err)
	}
	return stats
}
