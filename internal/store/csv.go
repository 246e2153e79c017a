// Package store persists the job's datasets as CSV files with a header row and
// RFC3339 timestamps. Every Save rewrites the whole file through a temporary
// file and a rename, so readers never observe a partial write.
package store

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

const timestampColumn = "date"

// table is a parsed CSV file with its header indexed by column name.
type table struct {
	path   string
	header []string
	index  map[string]int
	rows   [][]string
}

// readTable loads path. A missing file returns fs.ErrNotExist unwrapped so
// callers can decide whether absence is an error.
func readTable(path string, required ...string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", path, domain.ErrSchema, err)
	}
	if len(records) == 0 {
		return &table{path: path, index: map[string]int{}}, nil
	}

	t := &table{path: path, header: records[0], index: make(map[string]int, len(records[0])), rows: records[1:]}
	for i, name := range t.header {
		t.index[name] = i
	}
	for _, name := range required {
		if _, ok := t.index[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %q: %w", path, name, domain.ErrSchema)
		}
	}
	return t, nil
}

func (t *table) get(row []string, column string) string {
	i, ok := t.index[column]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (t *table) float(row []string, column string, line int) (sql.NullFloat64, error) {
	s := t.get(row, column)
	if s == "" {
		return sql.NullFloat64{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}, fmt.Errorf("%s line %d: column %s: %w", t.path, line, column, domain.ErrSchema)
	}
	return domain.Float(v), nil
}

func (t *table) bool(row []string, column string, line int) (bool, error) {
	s := t.get(row, column)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s line %d: column %s: %w", t.path, line, column, domain.ErrSchema)
	}
	return v, nil
}

func (t *table) timestamp(row []string, line int, naive *time.Location) (time.Time, error) {
	ts, err := domain.ParseTimestamp(t.get(row, timestampColumn), naive)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s line %d: %w", t.path, line, err)
	}
	return ts, nil
}

// writeAtomic writes header and rows to path via a temporary file in the same
// directory followed by a rename.
func writeAtomic(path string, header []string, rows [][]string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// missing wraps a not-exist error as ErrMissingUpstreamFile naming path.
func missing(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrMissingUpstreamFile, path)
	}
	return err
}

func formatFloat(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

// countCells renders counts for the given modes, empty where a mode is absent.
func countCells(counts map[string]float64, modes []string) []string {
	cells := make([]string, len(modes))
	for i, m := range modes {
		if v, ok := counts[m]; ok {
			cells[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return cells
}

// modeColumns returns the header columns that are not in known, in file order.
func modeColumns(header []string, known map[string]bool) []string {
	var modes []string
	for _, h := range header {
		if !known[h] {
			modes = append(modes, h)
		}
	}
	return modes
}

func (t *table) counts(row []string, modes []string, line int) (map[string]float64, error) {
	counts := make(map[string]float64, len(modes))
	for _, m := range modes {
		v, err := t.float(row, m, line)
		if err != nil {
			return nil, err
		}
		if v.Valid {
			counts[m] = v.Float64
		}
	}
	return counts, nil
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
