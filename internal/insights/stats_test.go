package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/listing-harvester/internal/domain"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   domain.Field
		want float64
		ok   bool
	}{
		{domain.Text("85,000"), 85000, true},
		{domain.Text("AED 120,500.50 yearly"), 120500.5, true},
		{domain.Text("Ask for price"), 0, false},
		{domain.Text("0"), 0, false},
		{domain.Missing(), 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in.Value)
		assert.InDelta(t, tt.want, got, 0.001, tt.in.Value)
	}
}

func TestCollectorSkipsSentinels(t *testing.T) {
	c := NewCollector()
	c.Add([]domain.ListingRecord{
		{Price: domain.Text("100,000"), Title: domain.Text("a")},
		{Price: domain.Missing(), Title: domain.Text("b")},
		{Price: domain.Text("50,000"), Title: domain.Missing()},
	})
	c.Add([]domain.ListingRecord{{Price: domain.Text("30,000")}})

	s := c.Summary()
	assert.Equal(t, 4, s.Rows)
	assert.Equal(t, 3, s.PriceCount)
	assert.Equal(t, 30000.0, s.PriceMin)
	assert.Equal(t, 100000.0, s.PriceMax)
	assert.InDelta(t, 60000.0, s.PriceMean, 0.001)
	assert.Equal(t, 1, s.Missing[domain.FieldPrice])
	assert.Equal(t, 2, s.Missing[domain.FieldTitle])
	assert.Equal(t, 4, s.Missing["description"])
}

func TestEmptySummary(t *testing.T) {
	s := NewCollector().Summary()
	assert.Zero(t, s.Rows)
	assert.Zero(t, s.PriceMean)
	assert.Empty(t, s.Missing)
}
