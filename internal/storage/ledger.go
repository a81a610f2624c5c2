/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Asset kinds.
const (
	KindPanelImage = "panel_image"
)

// Asset is a file the generator wrote into the static image directory.
type Asset struct {
	ID int64
	// Path is relative to the image directory, e.g. "panel_1_1700000000.png".
	Path      string
	Kind      string
	Panel     int
	Session   string
	CreatedAt time.Time
}

// Export is one artifact handed out for download.
type Export struct {
	ID        int64
	Format    string
	Filename  string
	Size      int64
	Session   string
	Token     string
	CreatedAt time.Time
}

// RecordAsset inserts or refreshes the row for a.Path.
func (lg *Ledger) RecordAsset(ctx context.Context, a Asset) error {
	if strings.TrimSpace(a.Path) == "" {
		return errors.New("asset path is required")
	}
	if a.Kind == "" {
		a.Kind = KindPanelImage
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := lg.exec(ctx, `INSERT INTO assets (path, kind, panel, session, created_at) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET kind=excluded.kind, panel=excluded.panel, session=excluded.session, created_at=excluded.created_at`,
		a.Path, a.Kind, a.Panel, a.Session, a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record asset: %w", err)
	}
	return nil
}

// ListAssets returns assets whose path starts with prefix, oldest first.
func (lg *Ledger) ListAssets(ctx context.Context, prefix string) ([]Asset, error) {
	rows, err := lg.db.QueryContext(ctx, lg.dialect.rebind(`SELECT id, path, kind, panel, COALESCE(session, ''), created_at
		FROM assets WHERE path LIKE ? ESCAPE '\' ORDER BY created_at, id`), likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		var (
			a  Asset
			ts string
		)
		if err := rows.Scan(&a.ID, &a.Path, &a.Kind, &a.Panel, &a.Session, &ts); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		a.CreatedAt = parseTime(ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAssets removes rows whose path starts with prefix, except the paths in keep.
// It returns the number of rows removed.
func (lg *Ledger) DeleteAssets(ctx context.Context, prefix string, keep ...string) (int64, error) {
	q := `DELETE FROM assets WHERE path LIKE ? ESCAPE '\'`
	args := []any{likePrefix(prefix)}
	for _, k := range keep {
		q += ` AND path <> ?`
		args = append(args, k)
	}
	res, err := lg.exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete assets: %w", err)
	}
	return res.RowsAffected()
}

// RecordExport appends an export row and returns its id.
func (lg *Ledger) RecordExport(ctx context.Context, e Export) (int64, error) {
	if strings.TrimSpace(e.Format) == "" || strings.TrimSpace(e.Filename) == "" {
		return 0, errors.New("export format and filename are required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var id int64
	err := lg.db.QueryRowContext(ctx, lg.dialect.rebind(`INSERT INTO exports (format, filename, size, session, token, created_at)
		VALUES(?, ?, ?, ?, ?, ?) RETURNING id`),
		e.Format, e.Filename, e.Size, e.Session, e.Token, e.CreatedAt.UTC().Format(time.RFC3339Nano)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record export: %w", err)
	}
	return id, nil
}

// ListExports returns the most recent exports first. limit <= 0 means no limit.
func (lg *Ledger) ListExports(ctx context.Context, limit int) ([]Export, error) {
	q := `SELECT id, format, filename, size, COALESCE(session, ''), COALESCE(token, ''), created_at
		FROM exports ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := lg.db.QueryContext(ctx, lg.dialect.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()
	var out []Export
	for rows.Next() {
		var (
			e  Export
			ts string
		)
		if err := rows.Scan(&e.ID, &e.Format, &e.Filename, &e.Size, &e.Session, &e.Token, &ts); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		e.CreatedAt = parseTime(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
