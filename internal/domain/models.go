package domain

import (
	"strings"
	"time"
)

// SentinelCell is the marker written in place of any field whose extraction failed.
const SentinelCell = "-1"

// CellEscape is prepended to a scraped value that would otherwise read as
// SentinelCell (or as an already escaped one). Readers strip one leading
// CellEscape from any cell matching `^\\+-1$`.
const CellEscape = `\`

// Field holds one scraped value, or nothing when extraction failed for that field alone.
type Field struct {
	Value string `json:"value,omitempty"`
	Valid bool   `json:"valid"`
}

func Text(v string) Field { return Field{Value: v, Valid: true} }

func Missing() Field { return Field{} }

// Cell renders the field for tabular output. A real "-1" is written as
// `\-1` so it never reads as a failed field.
func (f Field) Cell() string {
	if !f.Valid {
		return SentinelCell
	}
	if strings.TrimLeft(f.Value, CellEscape) == SentinelCell {
		return CellEscape + f.Value
	}
	return f.Value
}

// Amenities is a list-valued field. A valid, empty list means the listing
// declares no amenities and is distinct from a failed extraction.
type Amenities struct {
	Items []string `json:"items,omitempty"`
	Valid bool     `json:"valid"`
}

// Detail carries the fields only available on a listing's own page.
type Detail struct {
	Description Field     `json:"description"`
	Amenities   Amenities `json:"amenities"`
}

func MissingDetail() Detail { return Detail{} }

// Scalar field names in output column order.
const (
	FieldBedrooms     = "bedrooms"
	FieldBathrooms    = "bathrooms"
	FieldArea         = "area"
	FieldPrice        = "price"
	FieldLocation     = "location"
	FieldPropertyType = "property_type"
	FieldTitle        = "title"
)

var ScalarFields = []string{
	FieldBedrooms,
	FieldBathrooms,
	FieldArea,
	FieldPrice,
	FieldLocation,
	FieldPropertyType,
	FieldTitle,
}

// ListingRecord is one property advertisement taken from a catalog page.
type ListingRecord struct {
	Bedrooms     Field
	Bathrooms    Field
	Area         Field
	Price        Field
	Location     Field
	PropertyType Field
	Title        Field
	// Furnished is nil when the run does not filter on furnishing.
	Furnished *bool
	Detail
}

// Scalar returns the named scalar field.
func (r *ListingRecord) Scalar(name string) Field {
	if p := r.scalarRef(name); p != nil {
		return *p
	}
	return Missing()
}

// SetScalar assigns the named scalar field and reports whether the name is known.
func (r *ListingRecord) SetScalar(name string, f Field) bool {
	p := r.scalarRef(name)
	if p == nil {
		return false
	}
	*p = f
	return true
}

func (r *ListingRecord) scalarRef(name string) *Field {
	switch name {
	case FieldBedrooms:
		return &r.Bedrooms
	case FieldBathrooms:
		return &r.Bathrooms
	case FieldArea:
		return &r.Area
	case FieldPrice:
		return &r.Price
	case FieldLocation:
		return &r.Location
	case FieldPropertyType:
		return &r.PropertyType
	case FieldTitle:
		return &r.Title
	}
	return nil
}

// Region is an administrative partition of the catalog.
type Region string

var Regions = []Region{
	"abu-dhabi",
	"dubai",
	"sharjah",
	"ajman",
	"umm-al-quwain",
	"ras-al-khaimah",
	"fujairah",
}

// ParseRegion normalises s ("Abu Dhabi" -> "abu-dhabi") and checks it against Regions.
func ParseRegion(s string) (Region, bool) {
	norm := Region(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-"))
	for _, r := range Regions {
		if r == norm {
			return r, true
		}
	}
	return "", false
}

// Filter selects listings by furnishing status.
type Filter string

const (
	FilterAll         Filter = "all"
	FilterFurnished   Filter = "furnished"
	FilterUnfurnished Filter = "unfurnished"
)

func ParseFilter(s string) (Filter, bool) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterAll, FilterFurnished, FilterUnfurnished:
		return f, true
	case "":
		return FilterAll, true
	}
	return "", false
}

// Furnished returns the flag stamped on every record of a run, or nil for FilterAll.
func (f Filter) Furnished() *bool {
	switch f {
	case FilterFurnished:
		v := true
		return &v
	case FilterUnfurnished:
		v := false
		return &v
	}
	return nil
}

// PageResult is the output of one successful page task.
type PageResult struct {
	Page    int
	Records []ListingRecord
}

// ScrapeJob holds the immutable parameters of one region run.
type ScrapeJob struct {
	Region       Region
	Filter       Filter
	FastMode     bool
	MaxWorkers   int
	MaxRetries   int
	BackoffBase  time.Duration
	RequestDelay time.Duration
	PageSize     int
}

// RunState is the outcome of one region run.
type RunState struct {
	Region          Region
	TotalPages      int
	SuccessfulPages int
	Rows            int
}

// Run statuses reported by the API.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunStatus tracks a harvest submitted through the API.
type RunStatus struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Regions    []Region       `json:"regions"`
	Filter     Filter         `json:"furnished"`
	FastMode   bool           `json:"fast_mode"`
	Pages      map[Region]int `json:"successful_pages,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}
