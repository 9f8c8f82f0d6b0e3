package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gallery/internal/changes"
	"gallery/internal/logging"
	"gallery/internal/medialist"
	"gallery/internal/mediatypes"
)

const fileColumns = `id, name, path, parent_path, kind, size, mod_time, taken_at, place, hidden, thumbnail_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (MediaFile, error) {
	var f MediaFile
	var kind string
	var modTime, takenAt int64
	var hidden int

	if err := row.Scan(&f.ID, &f.Name, &f.Path, &f.ParentPath, &kind, &f.Size,
		&modTime, &takenAt, &f.Place, &hidden, &f.ThumbnailPath); err != nil {
		return MediaFile{}, err
	}

	f.Kind, _ = mediatypes.ParseKind(kind)
	f.ModTime = time.Unix(modTime, 0)
	if takenAt > 0 {
		f.TakenAt = time.Unix(takenAt, 0)
	}
	f.Hidden = hidden != 0
	return f, nil
}

// Entry converts a file record to a list entry.
func (f MediaFile) Entry() medialist.Entry {
	return medialist.Entry{
		ID:            f.ID,
		Path:          f.Path,
		ThumbnailPath: f.ThumbnailPath,
		Kind:          f.Kind,
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Batch is a write transaction. Its changes are published when it commits.
type Batch struct {
	tx      *sql.Tx
	start   time.Time
	pending []changes.Change
}

// BeginBatch starts a transaction for batch operations.
// The caller is responsible for calling EndBatch when done.
func (d *Database) BeginBatch(ctx context.Context) (*Batch, error) {
	d.mu.Lock()
	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &Batch{tx: tx, start: start}, nil
}

// EndBatch commits the batch, or rolls it back when err is non-nil.
func (d *Database) EndBatch(b *Batch, err error) error {
	if err != nil {
		recordQuery("batch", b.start, err)
		if rbErr := b.tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	err = b.tx.Commit()
	recordQuery("batch", b.start, err)
	if err != nil {
		return err
	}
	d.publish(b.pending...)
	return nil
}

// UpsertFile inserts a file record or refreshes an existing one. Every
// call marks the record as seen for DeleteMissingFiles; only new records
// and records whose content changed produce change notifications.
func (d *Database) UpsertFile(ctx context.Context, b *Batch, file *MediaFile) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_file", start, err) }()

	if file.Name == "" {
		file.Name = filepath.Base(file.Path)
	}
	if file.ParentPath == "" {
		file.ParentPath = filepath.Dir(file.Path)
	}

	var (
		id, size, modTime, takenAt int64
		kind, place, thumbnail     string
		hidden                     int
	)
	err = b.tx.QueryRowContext(ctx,
		`SELECT id, kind, size, mod_time, taken_at, place, hidden, thumbnail_path FROM files WHERE path = ?`,
		file.Path,
	).Scan(&id, &kind, &size, &modTime, &takenAt, &place, &hidden, &thumbnail)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		var result sql.Result
		result, err = b.tx.ExecContext(ctx, `
			INSERT INTO files (name, path, parent_path, kind, size, mod_time, taken_at, place, hidden, thumbnail_path, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			file.Name, file.Path, file.ParentPath, file.Kind.String(), file.Size,
			file.ModTime.Unix(), unixOrZero(file.TakenAt), file.Place, boolInt(file.Hidden), file.ThumbnailPath,
			b.start.UnixNano(),
		)
		if err != nil {
			return err
		}
		file.ID, err = result.LastInsertId()
		if err != nil {
			return err
		}
		b.pending = append(b.pending, changes.Change{ID: file.ID, Kind: changes.Insert, Path: file.Path})
		return nil

	case err != nil:
		return err
	}

	file.ID = id
	changed := kind != file.Kind.String() ||
		size != file.Size ||
		modTime != file.ModTime.Unix() ||
		takenAt != unixOrZero(file.TakenAt) ||
		place != file.Place ||
		hidden != boolInt(file.Hidden) ||
		thumbnail != file.ThumbnailPath

	if !changed {
		_, err = b.tx.ExecContext(ctx, `UPDATE files SET updated_at = ? WHERE id = ?`, b.start.UnixNano(), id)
		return err
	}

	_, err = b.tx.ExecContext(ctx, `
		UPDATE files SET kind = ?, size = ?, mod_time = ?, taken_at = ?, place = ?, hidden = ?,
			thumbnail_path = ?, updated_at = ?
		WHERE id = ?`,
		file.Kind.String(), file.Size, file.ModTime.Unix(), unixOrZero(file.TakenAt), file.Place,
		boolInt(file.Hidden), file.ThumbnailPath, b.start.UnixNano(), id,
	)
	if err != nil {
		return err
	}
	b.pending = append(b.pending, changes.Change{ID: id, Kind: changes.Update, Path: file.Path})
	return nil
}

// DeleteMissingFiles removes files under root that were not seen by a
// batch begun at or after cutoff. An empty root matches every file.
func (d *Database) DeleteMissingFiles(ctx context.Context, b *Batch, root string, cutoff time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_file", start, err) }()

	query := `SELECT id, path FROM files WHERE updated_at < ?`
	args := []any{cutoff.UnixNano()}
	if root != "" {
		query += ` AND (parent_path = ? OR parent_path LIKE ? ESCAPE '\')`
		root = filepath.Clean(root)
		args = append(args, root, escapeLike(root+string(filepath.Separator))+"%")
	}

	rows, err := b.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	var missing []changes.Change
	for rows.Next() {
		var c changes.Change
		if err = rows.Scan(&c.ID, &c.Path); err != nil {
			rows.Close()
			return 0, err
		}
		c.Kind = changes.Delete
		missing = append(missing, c)
	}
	if err = rows.Close(); err != nil {
		return 0, err
	}
	if err = rows.Err(); err != nil {
		return 0, err
	}

	for _, c := range missing {
		if err = deleteFileTx(ctx, b.tx, c.ID, c.Path); err != nil {
			return 0, err
		}
	}
	b.pending = append(b.pending, missing...)
	return int64(len(missing)), nil
}

func deleteFileTx(ctx context.Context, tx *sql.Tx, id int64, path string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM favorites WHERE path = ?`, path); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM file_tags WHERE file_path = ?`, path)
	return err
}

// GetFileByPath retrieves a single file by path.
func (d *Database) GetFileByPath(ctx context.Context, path string) (*MediaFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	file, err := scanFile(d.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", medialist.ErrItemNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// SaveFile upserts a single file in its own transaction.
func (d *Database) SaveFile(ctx context.Context, file *MediaFile) error {
	b, err := d.BeginBatch(ctx)
	if err != nil {
		return err
	}
	return d.EndBatch(b, d.UpsertFile(ctx, b, file))
}

// DeleteFile removes the record for path along with its favorite and tag
// rows, and publishes a delete.
func (d *Database) DeleteFile(ctx context.Context, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_file", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id int64
	if err = d.db.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: %s", medialist.ErrItemNotFound, path)
		}
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err = deleteFileTx(ctx, tx, id, path); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	d.publish(changes.Change{ID: id, Kind: changes.Delete, Path: path})
	return nil
}

// Delete removes the media file behind e from disk and then from the
// library. A file already gone from disk is not an error.
func (d *Database) Delete(ctx context.Context, e medialist.Entry) error {
	if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", e.Path, err)
	}
	logging.Info("Deleted media file %s", e.Path)
	return d.DeleteFile(ctx, e.Path)
}

// RenameFile moves the record at oldPath to newPath, carrying favorites
// and tags along, and publishes an update.
func (d *Database) RenameFile(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("rename_file", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id int64
	if err = d.db.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, oldPath).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = fmt.Errorf("%w: %s", medialist.ErrItemNotFound, oldPath)
		}
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmts := []struct {
		query string
		args  []any
	}{
		{`UPDATE files SET path = ?, name = ?, parent_path = ?, kind = ?, updated_at = ? WHERE id = ?`,
			[]any{newPath, filepath.Base(newPath), filepath.Dir(newPath), mediatypes.KindForPath(newPath).String(), time.Now().UnixNano(), id}},
		{`UPDATE favorites SET path = ? WHERE path = ?`, []any{newPath, oldPath}},
		{`UPDATE file_tags SET file_path = ? WHERE file_path = ?`, []any{newPath, oldPath}},
	}
	for _, s := range stmts {
		if _, err = tx.ExecContext(ctx, s.query, s.args...); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	d.publish(changes.Change{ID: id, Kind: changes.Update, Path: newPath, OldPath: oldPath})
	return nil
}

// fileID returns the ID of the record at path, or 0 when none exists.
func (d *Database) fileID(ctx context.Context, path string) int64 {
	var id int64
	if err := d.db.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&id); err != nil {
		return 0
	}
	return id
}

// FileIDs returns the library IDs of the indexed paths among paths.
func (d *Database) FileIDs(ctx context.Context, paths []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(paths))
	if len(paths) == 0 {
		return ids, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// Stay well under SQLite's host parameter limit.
	const chunk = 500
	for start := 0; start < len(paths); start += chunk {
		batch := paths[start:min(start+chunk, len(paths))]
		args := make([]any, len(batch))
		for i, p := range batch {
			args[i] = p
		}

		rows, err := d.db.QueryContext(ctx, `SELECT id, path FROM files WHERE path IN (`+placeholders(len(batch))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("id lookup failed: %w", err)
		}
		for rows.Next() {
			var id int64
			var path string
			if err := rows.Scan(&id, &path); err != nil {
				rows.Close()
				return nil, err
			}
			ids[path] = id
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
