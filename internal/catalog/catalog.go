// Package catalog keeps the tabular entity catalogs (header plus rows) that
// link the crawl phases together.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Spec names a catalog file, its columns and the columns forming its key.
type Spec struct {
	File    string
	Columns []string
	Key     []string
}

// Catalog files under <root>/parsed.
var (
	Styles = Spec{
		File:    "styles.csv",
		Columns: []string{"style_id", "style_name"},
		Key:     []string{"style_id"},
	}
	Places = Spec{
		File:    "places.csv",
		Columns: []string{"country_id", "region_id", "place_name"},
		Key:     []string{"country_id", "region_id"},
	}
	Breweries = Spec{
		File:    "breweries.csv",
		Columns: []string{"brewery_id", "brewery_name", "location", "nbr_beers"},
		Key:     []string{"brewery_id"},
	}
	Beers = Spec{
		File: "beers.csv",
		Columns: []string{
			"brewery_id", "beer_id", "beer_name", "brewery_name", "style",
			"nbr_ratings", "nbr_reviews", "avg", "ba_score", "bros_score", "abv",
		},
		Key: []string{"brewery_id", "beer_id"},
	}
	Users = Spec{
		File:    "users.csv",
		Columns: []string{"user_name", "user_id", "nbr_ratings", "nbr_reviews"},
		Key:     []string{"user_name"},
	}
)

// Row maps column names to values.
type Row map[string]string

// Table is an in-memory catalog. It is safe for concurrent use; rows keep
// their first-insertion order.
type Table struct {
	spec Spec
	path string

	mu    sync.RWMutex
	rows  []Row
	index map[string]int
}

// Open loads the catalog for spec from dir. A missing file yields an empty
// table that Save will create.
func Open(dir string, spec Spec) (*Table, error) {
	t := &Table{
		spec:  spec,
		path:  filepath.Join(dir, spec.File),
		index: make(map[string]int),
	}
	// #nosec G304 -- catalog path is derived from the configured data root.
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return t, nil
		}
		return nil, fmt.Errorf("open catalog %s: %w", t.path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", t.path, err)
	}
	if len(records) == 0 {
		return t, nil
	}
	header := records[0]
	for _, rec := range records[1:] {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		t.upsertLocked(row)
	}
	return t, nil
}

// Path returns the file backing the table.
func (t *Table) Path() string {
	return t.path
}

// Spec returns the table's layout.
func (t *Table) Spec() Spec {
	return t.spec
}

func (t *Table) keyOf(row Row) string {
	parts := make([]string, len(t.spec.Key))
	for i, col := range t.spec.Key {
		parts[i] = row[col]
	}
	return strings.Join(parts, "\x00")
}

// Upsert inserts row or merges its non-empty values into the existing row
// with the same key. It reports whether a new row was added.
func (t *Table) Upsert(row Row) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.upsertLocked(row)
}

func (t *Table) upsertLocked(row Row) bool {
	k := t.keyOf(row)
	if i, ok := t.index[k]; ok {
		for col, v := range row {
			if v != "" {
				t.rows[i][col] = v
			}
		}
		return false
	}
	cp := make(Row, len(row))
	for col, v := range row {
		cp[col] = v
	}
	t.index[k] = len(t.rows)
	t.rows = append(t.rows, cp)
	return true
}

// Set overwrites columns of the row identified by key values. It reports
// whether the row exists.
func (t *Table) Set(key []string, values Row) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[strings.Join(key, "\x00")]
	if !ok {
		return false
	}
	for col, v := range values {
		t.rows[i][col] = v
	}
	return true
}

// Get returns a copy of the row identified by key values.
func (t *Table) Get(key ...string) (Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.index[strings.Join(key, "\x00")]
	if !ok {
		return nil, false
	}
	return copyRow(t.rows[i]), true
}

// Rows returns copies of all rows in insertion order.
func (t *Table) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = copyRow(r)
	}
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Save writes the table atomically. Columns outside the table definition are dropped.
func (t *Table) Save() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*")
	if err != nil {
		return fmt.Errorf("create catalog temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(t.spec.Columns); err != nil {
		cleanup()
		return fmt.Errorf("write catalog header: %w", err)
	}
	rec := make([]string, len(t.spec.Columns))
	for _, row := range t.rows {
		for i, col := range t.spec.Columns {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			cleanup()
			return fmt.Errorf("write catalog row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		cleanup()
		return fmt.Errorf("flush catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close catalog: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace catalog %s: %w", t.path, err)
	}
	return nil
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
