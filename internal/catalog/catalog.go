// Package catalog loads the broker's instrument dump once at startup and
// answers symbol lookups and searches locally.
package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"stratagem/internal/domain"
	"stratagem/internal/util"
)

// DefaultInstrumentsURL is the Kite Connect bulk instrument dump (CSV).
const DefaultInstrumentsURL = "https://api.kite.trade/instruments"

// defaultSearchLimit caps search results.
const defaultSearchLimit = 20

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Catalog holds the instrument reference data, immutable after load.
type Catalog struct {
	instruments []domain.Instrument
	bySymbol    map[string]domain.Instrument
}

// New builds a catalog from an instrument slice. On duplicate symbols the
// first entry wins.
func New(instruments []domain.Instrument) *Catalog {
	c := &Catalog{
		instruments: instruments,
		bySymbol:    make(map[string]domain.Instrument, len(instruments)),
	}
	for _, in := range instruments {
		if _, ok := c.bySymbol[in.Symbol]; !ok {
			c.bySymbol[in.Symbol] = in
		}
	}
	return c
}

// Fetch downloads and parses the instrument dump, retrying transient
// failures. This is the one-shot startup fetch; all later lookups are
// local.
func Fetch(ctx context.Context, instrumentsURL string) (*Catalog, error) {
	if instrumentsURL == "" {
		instrumentsURL = DefaultInstrumentsURL
	}

	var c *Catalog
	err := util.Retry(ctx, 3, 2*time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, instrumentsURL, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("instrument dump returned %s", resp.Status)
		}
		c, err = Parse(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching instrument catalog: %w", err)
	}
	return c, nil
}

// LoadFile parses an instrument dump from a local CSV file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the CSV instrument dump. Columns are located by header name
// so column order changes don't break parsing.
func Parse(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading instrument CSV header: %w", err)
	}

	col := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}
	symbolIdx := col("tradingsymbol")
	nameIdx := col("name")
	exchangeIdx := col("exchange")
	typeIdx := col("instrument_type")
	if symbolIdx < 0 {
		return nil, fmt.Errorf("instrument CSV has no tradingsymbol column")
	}

	field := func(record []string, idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var instruments []domain.Instrument
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading instrument CSV: %w", err)
		}
		symbol := field(record, symbolIdx)
		if symbol == "" {
			continue
		}
		instruments = append(instruments, domain.Instrument{
			Symbol:         symbol,
			Name:           field(record, nameIdx),
			Exchange:       field(record, exchangeIdx),
			InstrumentType: field(record, typeIdx),
		})
	}
	return New(instruments), nil
}

// Lookup returns the instrument for a symbol.
func (c *Catalog) Lookup(symbol string) (domain.Instrument, bool) {
	in, ok := c.bySymbol[symbol]
	return in, ok
}

// Has reports whether the symbol exists in the catalog.
func (c *Catalog) Has(symbol string) bool {
	_, ok := c.bySymbol[symbol]
	return ok
}

// Len returns the number of instruments loaded.
func (c *Catalog) Len() int {
	return len(c.instruments)
}

// Search returns instruments whose symbol or name contains the query
// (case-insensitive), in catalog order, capped at limit (20 if limit <= 0).
func (c *Catalog) Search(query string, limit int) []domain.Instrument {
	query = strings.ToUpper(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var matches []domain.Instrument
	for _, in := range c.instruments {
		if strings.Contains(strings.ToUpper(in.Symbol), query) ||
			strings.Contains(strings.ToUpper(in.Name), query) {
			matches = append(matches, in)
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches
}
