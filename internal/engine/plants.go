// Package engine layers plant growth, risk, economics and recommendations on
// top of the enriched weather forecast and merges them into one report.
package engine

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Plant is a catalog entry. Costs and prices are per plant and per pound.
type Plant struct {
	Name          string          `json:"name"`
	BaseTemp      float64         `json:"baseTemp"`
	GDDToMaturity float64         `json:"gddToMaturity"`
	FrostTender   bool            `json:"frostTender"`
	CostPerPlant  decimal.Decimal `json:"costPerPlant"`
	YieldLbs      float64         `json:"yieldLbs"`
	PricePerLb    decimal.Decimal `json:"pricePerLb"`
}

var catalog = map[string]Plant{
	"tomato":  {Name: "tomato", BaseTemp: 50, GDDToMaturity: 1200, FrostTender: true, CostPerPlant: decimal.RequireFromString("0.45"), YieldLbs: 10, PricePerLb: decimal.RequireFromString("2.50")},
	"pepper":  {Name: "pepper", BaseTemp: 50, GDDToMaturity: 1300, FrostTender: true, CostPerPlant: decimal.RequireFromString("0.50"), YieldLbs: 5, PricePerLb: decimal.RequireFromString("3.00")},
	"lettuce": {Name: "lettuce", BaseTemp: 40, GDDToMaturity: 500, CostPerPlant: decimal.RequireFromString("0.10"), YieldLbs: 0.75, PricePerLb: decimal.RequireFromString("2.00")},
	"bean":    {Name: "bean", BaseTemp: 50, GDDToMaturity: 1100, FrostTender: true, CostPerPlant: decimal.RequireFromString("0.15"), YieldLbs: 1, PricePerLb: decimal.RequireFromString("2.50")},
	"squash":  {Name: "squash", BaseTemp: 50, GDDToMaturity: 1000, FrostTender: true, CostPerPlant: decimal.RequireFromString("0.40"), YieldLbs: 8, PricePerLb: decimal.RequireFromString("1.50")},
}

// LookupPlant finds a catalog plant by case-insensitive name.
func LookupPlant(name string) (Plant, bool) {
	p, ok := catalog[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Catalog returns every plant sorted by name.
func Catalog() []Plant {
	out := make([]Plant, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Planting is one crop in the garden: how many plants and how much heat they
// have already banked.
type Planting struct {
	Plant          string  `json:"plant" validate:"required"`
	Count          int     `json:"count" validate:"gte=0"`
	AccumulatedGDD float64 `json:"accumulatedGdd" validate:"gte=0"`
}

// defaultPlantings is one of each catalog plant, freshly planted.
func defaultPlantings() []Planting {
	plants := Catalog()
	out := make([]Planting, 0, len(plants))
	for _, p := range plants {
		out = append(out, Planting{Plant: p.Name, Count: 1})
	}
	return out
}

func (p Planting) count() int {
	if p.Count <= 0 {
		return 1
	}
	return p.Count
}
