package database

import (
	"context"
	"time"

	"gallery/internal/changes"
)

// AddFavorite adds a path to favorites. The file joins the favorites
// collection, so an insert is published.
func (d *Database) AddFavorite(ctx context.Context, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_favorite", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO favorites (path, created_at)
		VALUES (?, ?)
		ON CONFLICT(path) DO NOTHING
	`, path, time.Now().Unix())
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n > 0 {
		d.publish(changes.Change{ID: d.fileID(ctx, path), Kind: changes.Insert, Path: path})
	}
	return nil
}

// RemoveFavorite removes a path from favorites and publishes a delete for
// the favorites collection.
func (d *Database) RemoveFavorite(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, "DELETE FROM favorites WHERE path = ?", path)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n > 0 {
		d.publish(changes.Change{ID: d.fileID(ctx, path), Kind: changes.Delete, Path: path})
	}
	return nil
}

// IsFavorite checks if a path is a favorite
func (d *Database) IsFavorite(ctx context.Context, path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM favorites WHERE path = ?", path).Scan(&count); err != nil {
		return false
	}
	return count > 0
}
