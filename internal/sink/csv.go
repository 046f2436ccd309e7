package sink

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/listing-harvester/internal/domain"
)

// Column names in output order. The furnished column is only present for
// filtered runs.
var (
	leadingColumns  = []string{"bedrooms", "bathrooms", "area", "prices", "locations", "property_types", "property_keywords"}
	furnishedColumn = "furnished"
	trailingColumns = []string{"description", "amenities"}
)

// Header returns the column set for a run with the given filter.
func Header(filter domain.Filter) []string {
	h := append([]string{}, leadingColumns...)
	if filter.Furnished() != nil {
		h = append(h, furnishedColumn)
	}
	return append(h, trailingColumns...)
}

// Row renders one record. Furnished is written only when the header has
// that column.
func Row(r domain.ListingRecord, filter domain.Filter) []string {
	row := make([]string, 0, len(leadingColumns)+1+len(trailingColumns))
	for _, name := range domain.ScalarFields {
		row = append(row, r.Scalar(name).Cell())
	}
	if filter.Furnished() != nil {
		cell := domain.SentinelCell
		if r.Furnished != nil {
			cell = "0"
			if *r.Furnished {
				cell = "1"
			}
		}
		row = append(row, cell)
	}
	return append(row, r.Description.Cell(), amenitiesCell(r.Amenities))
}

func amenitiesCell(a domain.Amenities) string {
	if !a.Valid {
		return domain.SentinelCell
	}
	items := a.Items
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return domain.SentinelCell
	}
	return string(b)
}

// FileName is the output name for one region run started at t. Nanoseconds
// keep runs of the same region and filter started in the same second apart.
func FileName(region domain.Region, filter domain.Filter, t time.Time) string {
	return fmt.Sprintf("properties_%s_furnished=%s_%s.csv", region, filter, t.Format("2006-01-02_15-04-05.000000000"))
}

// CSVSink appends page blocks to a CSV file, syncing after every page so
// the file is always a valid prefix of the final output.
type CSVSink struct {
	mu     sync.Mutex
	path   string
	filter domain.Filter
}

func NewCSVSink(path string, filter domain.Filter) *CSVSink {
	return &CSVSink{path: path, filter: filter}
}

// Prepare writes the header if the file is missing or empty.
func (s *CSVSink) Prepare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if st, err := os.Stat(s.path); err == nil && st.Size() > 0 {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header(s.filter)); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func (s *CSVSink) Append(ctx context.Context, page int, rows []domain.ListingRecord) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 256*1024)
	w := csv.NewWriter(bw)
	for _, r := range rows {
		if err := w.Write(Row(r, s.filter)); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("page %d: %w", page, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("page %d: %w", page, err)
	}
	return f.Sync()
}

func (s *CSVSink) Close() error { return nil }
