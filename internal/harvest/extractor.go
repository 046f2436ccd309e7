package harvest

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/listing-harvester/internal/domain"
	"github.com/user/listing-harvester/pkg/utils"
)

// Extractor turns catalog documents into records using a SelectorTable.
type Extractor struct {
	table *SelectorTable
	base  *url.URL
}

// NewExtractor binds a selector table to the site root used to resolve relative links.
func NewExtractor(table *SelectorTable, baseURL string) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &ConfigurationError{Field: "base URL", Value: baseURL}
	}
	return &Extractor{table: table, base: base}, nil
}

func parseDocument(body []byte, what string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{What: what, Err: err}
	}
	return doc, nil
}

// Extract returns one record and one detail URL per listing container, in
// document order. A URL is empty when the link is absent or unusable, and
// every URL is empty in fast mode. Field misses never fail the page.
func (e *Extractor) Extract(body []byte, filter domain.Filter, fast bool) ([]domain.ListingRecord, []string, error) {
	doc, err := parseDocument(body, "listing page")
	if err != nil {
		return nil, nil, err
	}

	containers := doc.Find(e.table.Container)
	records := make([]domain.ListingRecord, containers.Length())
	links := make([]string, containers.Length())

	containers.Each(func(i int, card *goquery.Selection) {
		rec := domain.ListingRecord{Furnished: filter.Furnished(), Detail: domain.MissingDetail()}
		for _, name := range domain.ScalarFields {
			rec.SetScalar(name, e.table.Fields[name].field(card))
		}
		records[i] = rec

		if fast {
			return
		}
		if href, ok := e.table.DetailLink.apply(card); ok {
			if abs, err := utils.ToAbsoluteURL(e.base, href); err == nil {
				links[i] = abs
			}
		}
	})
	return records, links, nil
}

// TotalCount reads the catalog's total listing count from the first page.
func (e *Extractor) TotalCount(body []byte) (int, error) {
	doc, err := parseDocument(body, "listing count")
	if err != nil {
		return 0, err
	}
	raw, ok := e.table.TotalCount.apply(doc.Selection)
	if !ok {
		return 0, &ParseError{What: "listing count"}
	}
	n, err := utils.ParseGroupedInt(raw)
	if err != nil {
		return 0, &ParseError{What: "listing count", Err: fmt.Errorf("%q: %w", raw, err)}
	}
	return n, nil
}

// ParseDetail reads description and amenities from a listing's own page.
// Each falls back to the sentinel independently.
func (e *Extractor) ParseDetail(body []byte) (domain.Detail, error) {
	doc, err := parseDocument(body, "detail page")
	if err != nil {
		return domain.MissingDetail(), err
	}
	d := domain.Detail{Description: e.table.Description.field(doc.Selection)}
	if items, ok := e.table.Amenities.items(doc.Selection); ok {
		d.Amenities = domain.Amenities{Items: items, Valid: true}
	}
	return d, nil
}
