package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Compile-time interface check.
var _ Provider = (*ParquetProvider)(nil)

// BarRecord is the on-disk Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// ParquetProvider serves close series from Parquet bar files on disk,
// partitioned by symbol and year:
//
//	<DataDir>/daily/<SYMBOL>/<YYYY>.parquet
//
// It exists for replaying recorded market data; nothing enables it by
// default.
type ParquetProvider struct {
	DataDir string
}

// NewParquetProvider creates a provider rooted at the given data directory.
func NewParquetProvider(dataDir string) *ParquetProvider {
	return &ParquetProvider{DataDir: dataDir}
}

// Series returns the most recent length closes for symbol, oldest first.
// It errors if fewer than length bars are on disk.
func (p *ParquetProvider) Series(_ context.Context, symbol string, length int) ([]float64, error) {
	if length <= 0 {
		return nil, fmt.Errorf("series length must be positive, got %d", length)
	}

	records, err := p.readAll(symbol)
	if err != nil {
		return nil, err
	}
	if len(records) < length {
		return nil, fmt.Errorf("%s: have %d bars, need %d", symbol, len(records), length)
	}

	out := make([]float64, length)
	for i, r := range records[len(records)-length:] {
		out[i] = r.Close
	}
	return out, nil
}

// WriteBars merges bar records into the on-disk store, deduplicating by
// (symbol, timestamp) with incoming records winning.
func (p *ParquetProvider) WriteBars(records []BarRecord) error {
	if len(records) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, r := range records {
		k := key{symbol: r.Symbol, year: time.UnixMilli(r.Timestamp).UTC().Year()}
		groups[k] = append(groups[k], r)
	}

	for k, incoming := range groups {
		path := p.barPath(k.symbol, k.year)

		existing, _ := parquet.ReadFile[BarRecord](path)
		merged := mergeBarRecords(existing, incoming)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := parquet.WriteFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// readAll loads every year file for a symbol, sorted by timestamp.
func (p *ParquetProvider) readAll(symbol string) ([]BarRecord, error) {
	dir := filepath.Join(p.DataDir, "daily", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: no bar data on disk", symbol)
		}
		return nil, err
	}

	var records []BarRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		rows, err := parquet.ReadFile[BarRecord](filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		records = append(records, rows...)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records, nil
}

// barPath returns the filesystem path for a bar Parquet file.
func (p *ParquetProvider) barPath(symbol string, year int) string {
	return filepath.Join(p.DataDir, "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// mergeBarRecords deduplicates by (symbol, timestamp), preferring incoming
// records over existing ones. Results are sorted by timestamp.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
