package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gallery/internal/changes"
)

// TagFile adds a tag to a file, creating the tag if needed.
func (d *Database) TagFile(ctx context.Context, path, tagName string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("tag_file", start, err) }()

	tagName = strings.TrimSpace(tagName)
	if tagName == "" {
		err = errors.New("tag name cannot be empty")
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err = d.db.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, tagName); err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}

	result, err := d.db.ExecContext(ctx, `
		INSERT INTO file_tags (file_path, tag_id)
		SELECT ?, id FROM tags WHERE name = ? COLLATE NOCASE
		ON CONFLICT(file_path, tag_id) DO NOTHING
	`, path, tagName)
	if err != nil {
		return fmt.Errorf("failed to tag file: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		d.publish(changes.Change{ID: d.fileID(ctx, path), Kind: changes.Insert, Path: path})
	}
	return nil
}

// UntagFile removes a tag from a file.
func (d *Database) UntagFile(ctx context.Context, path, tagName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		DELETE FROM file_tags
		WHERE file_path = ? AND tag_id IN (SELECT id FROM tags WHERE name = ? COLLATE NOCASE)
	`, path, strings.TrimSpace(tagName))
	if err != nil {
		return fmt.Errorf("failed to untag file: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		d.publish(changes.Change{ID: d.fileID(ctx, path), Kind: changes.Delete, Path: path})
	}
	return nil
}

// ListTags returns all tags with their usage counts, by name.
func (d *Database) ListTags(ctx context.Context) ([]Tag, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.created_at, COUNT(ft.id)
		FROM tags t
		LEFT JOIN file_tags ft ON ft.tag_id = t.id
		GROUP BY t.id
		ORDER BY t.name COLLATE NOCASE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var tag Tag
		var createdAt int64
		if err := rows.Scan(&tag.ID, &tag.Name, &createdAt, &tag.ItemCount); err != nil {
			return nil, err
		}
		tag.CreatedAt = time.Unix(createdAt, 0)
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
