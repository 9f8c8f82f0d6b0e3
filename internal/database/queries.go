package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gallery/internal/medialist"
	"gallery/internal/mediatypes"
	"gallery/internal/metrics"
)

// Database is a medialist.ItemSource with ranking and deletion.
var (
	_ medialist.ItemSource = (*Database)(nil)
	_ medialist.Locator    = (*Database)(nil)
	_ medialist.Deleter    = (*Database)(nil)
)

// captureTime is the capture timestamp with the modification time as a
// fallback for files without one.
const captureTime = "COALESCE(NULLIF(taken_at, 0), mod_time)"

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// whereClause translates a filter scope into SQL conditions.
func whereClause(f medialist.Filter) (string, []any, error) {
	var conds []string
	var args []any

	switch f.Scope {
	case medialist.ScopeAll:
		conds = append(conds, "hidden = 0")
	case medialist.ScopeFavorites:
		conds = append(conds, "path IN (SELECT path FROM favorites)")
	case medialist.ScopeTag:
		conds = append(conds, `path IN (
			SELECT ft.file_path FROM file_tags ft JOIN tags t ON t.id = ft.tag_id
			WHERE t.name = ? COLLATE NOCASE)`)
		args = append(args, f.Tag)
	case medialist.ScopeFolder:
		conds = append(conds, "parent_path = ?", "hidden = 0")
		args = append(args, filepath.Clean(f.Folder))
	case medialist.ScopeHiddenFolder, medialist.ScopeDirectory:
		conds = append(conds, "parent_path = ?")
		args = append(args, filepath.Clean(f.Folder))
	case medialist.ScopePlace:
		conds = append(conds, "place = ?")
		args = append(args, f.Place)
	case medialist.ScopeTimeline:
		if !f.From.IsZero() {
			conds = append(conds, captureTime+" >= ?")
			args = append(args, f.From.Unix())
		}
		if !f.To.IsZero() {
			conds = append(conds, captureTime+" <= ?")
			args = append(args, f.To.Unix())
		}
	case medialist.ScopeFile:
		conds = append(conds, "path IN ("+placeholders(len(f.Paths))+")")
		for _, p := range f.Paths {
			args = append(args, p)
		}
	case medialist.ScopeSelectedList:
		conds = append(conds, "id IN ("+placeholders(len(f.SelectedIDs))+")")
		for _, id := range f.SelectedIDs {
			args = append(args, id)
		}
	default:
		return "", nil, fmt.Errorf("%w: unsupported scope %s", medialist.ErrInvalidFilter, f.Scope)
	}

	if kind, ok := f.MediaType.Kind(); ok {
		conds = append(conds, "kind = ?")
		args = append(args, kind.String())
	}

	if len(conds) == 0 {
		return "1 = 1", args, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

// orderClause is the rank order of a filter. Explicit lists keep the
// order they were given in.
func orderClause(f medialist.Filter) (string, []any) {
	var args []any
	var b strings.Builder

	switch f.Scope {
	case medialist.ScopeSelectedList:
		b.WriteString("CASE id")
		for i, id := range f.SelectedIDs {
			b.WriteString(" WHEN ? THEN ?")
			args = append(args, id, i)
		}
		b.WriteString(" END")
		return b.String(), args
	case medialist.ScopeFile:
		b.WriteString("CASE path")
		for i, p := range f.Paths {
			b.WriteString(" WHEN ? THEN ?")
			args = append(args, p, i)
		}
		b.WriteString(" END")
		return b.String(), args
	}

	column := "name COLLATE NOCASE"
	switch f.Sort.Field {
	case mediatypes.SortByDate:
		column = "mod_time"
	case mediatypes.SortByTaken:
		column = captureTime
	case mediatypes.SortBySize:
		column = "size"
	}
	dir := "ASC"
	if f.Sort.Order == mediatypes.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s, id %s", column, dir, dir), args
}

// Count returns the number of files matching f.
func (d *Database) Count(ctx context.Context, f medialist.Filter) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count", start, err) }()

	where, args, err := whereClause(f)
	if err != nil {
		return 0, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return n, nil
}

// Query returns the files ranked start..end inclusive.
func (d *Database) Query(ctx context.Context, f medialist.Filter, start, end int) ([]medialist.Entry, error) {
	timer := time.Now()
	var err error
	defer func() { recordQuery("query", timer, err) }()

	if start < 0 || end < start {
		return nil, nil
	}

	where, args, err := whereClause(f)
	if err != nil {
		return nil, err
	}
	order, orderArgs := orderClause(f)
	args = append(args, orderArgs...)
	args = append(args, end-start+1, start)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT ` + fileColumns + ` FROM files WHERE ` + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]medialist.Entry, 0, end-start+1)
	for rows.Next() {
		var file MediaFile
		file, err = scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		entry := file.Entry()
		entry.Index = start + len(entries)
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	metrics.DBRowsReturned.WithLabelValues("query").Observe(float64(len(entries)))
	return entries, nil
}

// QueryByPath returns the file at path regardless of the filter's scope.
func (d *Database) QueryByPath(ctx context.Context, _ medialist.Filter, path string) (medialist.Entry, error) {
	start := time.Now()
	file, err := d.GetFileByPath(ctx, path)
	recordQuery("query_by_path", start, err)
	if err != nil {
		return medialist.Entry{}, err
	}
	return file.Entry(), nil
}

// IndexOf returns the rank of the file with the given ID under f.
func (d *Database) IndexOf(ctx context.Context, f medialist.Filter, id int64) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("index_of", start, err) }()

	where, whereArgs, err := whereClause(f)
	if err != nil {
		return 0, err
	}
	order, args := orderClause(f)
	args = append(args, whereArgs...)
	args = append(args, id)

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT rn FROM (
		SELECT id, ROW_NUMBER() OVER (ORDER BY ` + order + `) - 1 AS rn
		FROM files WHERE ` + where + `
	) WHERE id = ?`

	var rank int
	err = d.db.QueryRowContext(ctx, query, args...).Scan(&rank)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: id %d under %s", medialist.ErrItemNotFound, id, f.Scope)
	}
	if err != nil {
		return 0, fmt.Errorf("rank query failed: %w", err)
	}
	return rank, nil
}
