package insights

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/user/listing-harvester/internal/domain"
)

// Summary describes the rows of one run. Sentinel fields are counted in
// Missing and never enter the price aggregates.
type Summary struct {
	Rows       int            `json:"rows"`
	Missing    map[string]int `json:"missing"`
	PriceCount int            `json:"price_count"`
	PriceMin   float64        `json:"price_min"`
	PriceMax   float64        `json:"price_max"`
	PriceMean  float64        `json:"price_mean"`
}

// Collector accumulates a Summary from concurrently finishing pages.
type Collector struct {
	mu       sync.Mutex
	rows     int
	missing  map[string]int
	priceN   int
	priceSum float64
	priceMin float64
	priceMax float64
}

func NewCollector() *Collector {
	return &Collector{missing: make(map[string]int)}
}

func (c *Collector) Add(records []domain.ListingRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range records {
		r := &records[i]
		c.rows++
		for _, name := range domain.ScalarFields {
			if !r.Scalar(name).Valid {
				c.missing[name]++
			}
		}
		if !r.Description.Valid {
			c.missing["description"]++
		}
		if !r.Amenities.Valid {
			c.missing["amenities"]++
		}

		price, ok := ParsePrice(r.Price)
		if !ok {
			continue
		}
		if c.priceN == 0 || price < c.priceMin {
			c.priceMin = price
		}
		if c.priceN == 0 || price > c.priceMax {
			c.priceMax = price
		}
		c.priceN++
		c.priceSum += price
	}
}

func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		Rows:       c.rows,
		Missing:    make(map[string]int, len(c.missing)),
		PriceCount: c.priceN,
		PriceMin:   c.priceMin,
		PriceMax:   c.priceMax,
	}
	for k, v := range c.missing {
		s.Missing[k] = v
	}
	if c.priceN > 0 {
		s.PriceMean = c.priceSum / float64(c.priceN)
	}
	return s
}

var priceNumber = regexp.MustCompile(`[0-9][0-9,]*(\.[0-9]+)?`)

// ParsePrice reads the first number of a price cell such as "AED 85,000 yearly".
// Sentinel and non-positive prices are rejected.
func ParsePrice(f domain.Field) (float64, bool) {
	if !f.Valid {
		return 0, false
	}
	m := priceNumber.FindString(f.Value)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
