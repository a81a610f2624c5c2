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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lg, err := Open(ctx, Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = lg.Close() })
	return lg
}

func TestOpenCreatesWALAndSchema(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	lg, err := Open(ctx, Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer lg.Close()
	if _, err := os.Stat(filepath.Join(dir, LedgerFileName)); err != nil {
		t.Fatalf("ledger file missing: %v", err)
	}
	var mode string
	if err := lg.DB().QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" && mode != "WAL" {
		t.Fatalf("expected WAL mode, got %s", mode)
	}
	var cnt int
	if err := lg.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('meta','version','assets','exports')").Scan(&cnt); err != nil {
		t.Fatalf("sqlite_master: %v", err)
	}
	if cnt != 4 {
		t.Fatalf("expected 4 tables, got %d", cnt)
	}
	v, err := lg.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != schemaVersion {
		t.Fatalf("schema version = %d, want %d", v, schemaVersion)
	}
	if lg.Driver() != DriverSQLite {
		t.Fatalf("driver = %q", lg.Driver())
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		lg, err := Open(ctx, Options{Dir: dir})
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if err := lg.RecordAsset(ctx, Asset{Path: "panel_1_1.png", Panel: 1}); err != nil {
			t.Fatalf("RecordAsset #%d: %v", i, err)
		}
		_ = lg.Close()
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), Options{Driver: DriverPostgres}); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}
	if _, err := Open(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for sqlite without dir or dsn")
	}
}

func TestAssetsRecordListDelete(t *testing.T) {
	lg := openTestLedger(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	paths := []string{"panel_1_100.png", "panel_2_100.png", "panel_cont_1_200.png", "placeholder.png"}
	for i, p := range paths {
		if err := lg.RecordAsset(ctx, Asset{Path: p, Panel: i + 1, Session: "s1", CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("RecordAsset %s: %v", p, err)
		}
	}
	got, err := lg.ListAssets(ctx, "panel_")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 panel assets, got %d", len(got))
	}
	if got[0].Path != "panel_1_100.png" || got[0].Kind != KindPanelImage || !got[0].CreatedAt.Equal(base) {
		t.Fatalf("unexpected first asset: %+v", got[0])
	}

	n, err := lg.DeleteAssets(ctx, "panel_", "panel_2_100.png")
	if err != nil {
		t.Fatalf("DeleteAssets: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d rows, want 2", n)
	}
	all, err := lg.ListAssets(ctx, "")
	if err != nil {
		t.Fatalf("ListAssets all: %v", err)
	}
	if len(all) != 2 || all[0].Path != "panel_2_100.png" || all[1].Path != "placeholder.png" {
		t.Fatalf("unexpected remaining assets: %+v", all)
	}
}

func TestAssetPrefixEscapesWildcards(t *testing.T) {
	lg := openTestLedger(t)
	ctx := context.Background()
	for _, p := range []string{"a_b.png", "axb.png"} {
		if err := lg.RecordAsset(ctx, Asset{Path: p}); err != nil {
			t.Fatalf("RecordAsset: %v", err)
		}
	}
	got, err := lg.ListAssets(ctx, "a_")
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(got) != 1 || got[0].Path != "a_b.png" {
		t.Fatalf("underscore must match literally, got %+v", got)
	}
}

func TestRecordAssetUpserts(t *testing.T) {
	lg := openTestLedger(t)
	ctx := context.Background()
	if err := lg.RecordAsset(ctx, Asset{Path: "panel_1_1.png", Panel: 1, Session: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := lg.RecordAsset(ctx, Asset{Path: "panel_1_1.png", Panel: 1, Session: "b"}); err != nil {
		t.Fatal(err)
	}
	got, err := lg.ListAssets(ctx, "panel_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Session != "b" {
		t.Fatalf("expected single refreshed row, got %+v", got)
	}
	if err := lg.RecordAsset(ctx, Asset{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestExportsNewestFirst(t *testing.T) {
	lg := openTestLedger(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, f := range []string{"png", "pdf", "cbz"} {
		id, err := lg.RecordExport(ctx, Export{Format: f, Filename: "my-comic-strip." + f, Size: int64(100 * (i + 1)), Session: "s", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("RecordExport %s: %v", f, err)
		}
		if id <= 0 {
			t.Fatalf("expected positive id, got %d", id)
		}
	}
	got, err := lg.ListExports(ctx, 2)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(got) != 2 || got[0].Format != "cbz" || got[1].Format != "pdf" {
		t.Fatalf("unexpected exports: %+v", got)
	}
	if got[0].Size != 300 || got[0].Filename != "my-comic-strip.cbz" {
		t.Fatalf("unexpected export row: %+v", got[0])
	}
	if _, err := lg.RecordExport(ctx, Export{Format: "png"}); err == nil {
		t.Fatal("expected error for missing filename")
	}
}

func TestRebindPostgres(t *testing.T) {
	got := postgresDialect.rebind(`SELECT a FROM t WHERE x=? AND y=?`)
	if got != `SELECT a FROM t WHERE x=$1 AND y=$2` {
		t.Fatalf("rebind = %q", got)
	}
	if sqliteDialect.rebind(`x=?`) != `x=?` {
		t.Fatal("sqlite must keep ? placeholders")
	}
}

// TestPostgresLedger runs against a live server when CS_TEST_PG_URL is set.
func TestPostgresLedger(t *testing.T) {
	dsn := os.Getenv("CS_TEST_PG_URL")
	if dsn == "" {
		t.Skip("CS_TEST_PG_URL not set")
	}
	ctx := context.Background()
	lg, err := Open(ctx, Options{Driver: DriverPostgres, DSN: dsn})
	if err != nil {
		t.Fatalf("Open pgx: %v", err)
	}
	defer lg.Close()
	path := "panel_pg_" + time.Now().Format("150405.000000") + ".png"
	if err := lg.RecordAsset(ctx, Asset{Path: path, Panel: 1}); err != nil {
		t.Fatalf("RecordAsset: %v", err)
	}
	if n, err := lg.DeleteAssets(ctx, path); err != nil || n != 1 {
		t.Fatalf("DeleteAssets = %d, %v", n, err)
	}
}
