package engine

import (
	"github.com/shopspring/decimal"

	"github.com/i474232898/agroweather/internal/weather"
)

type CostTrend string

const (
	TrendRising  CostTrend = "rising"
	TrendStable  CostTrend = "stable"
	TrendFalling CostTrend = "falling"
)

type CostPoint struct {
	Month int             `json:"month"`
	Cost  decimal.Decimal `json:"cost"`
}

type EconomicForecast struct {
	Projection      []CostPoint     `json:"projection"`
	InitialCost     decimal.Decimal `json:"initialCost"`
	ExpectedRevenue decimal.Decimal `json:"expectedRevenue"`
	NetReturn       decimal.Decimal `json:"netReturn"`
	YieldFactor     float64         `json:"yieldFactor"`
	Trend           CostTrend       `json:"trend"`
}

var trendEpsilon = decimal.RequireFromString("0.001")

// ProjectEconomics compounds the planting cost monthly and prices the
// expected yield. Growth potential scales yield between 50% and 100%.
func ProjectEconomics(ef *weather.EnrichedForecast, plantings []Planting, months int, monthlyInflation decimal.Decimal) EconomicForecast {
	if months <= 0 {
		months = 1
	}

	cost := decimal.Zero
	revenue := decimal.Zero
	for _, pl := range plantings {
		plant, ok := LookupPlant(pl.Plant)
		if !ok {
			continue
		}
		n := decimal.NewFromInt(int64(pl.count()))
		cost = cost.Add(plant.CostPerPlant.Mul(n))
		revenue = revenue.Add(plant.PricePerLb.Mul(decimal.NewFromFloat(plant.YieldLbs)).Mul(n))
	}

	factor := 0.75
	if ef != nil {
		factor = 0.5 + ef.SimulationFactors.GrowthPotential/200
	}
	revenue = revenue.Mul(decimal.NewFromFloat(factor)).Round(2)

	growth := decimal.NewFromInt(1).Add(monthlyInflation)
	points := make([]CostPoint, months)
	current := cost
	for i := range points {
		points[i] = CostPoint{Month: i + 1, Cost: current.Round(2)}
		current = current.Mul(growth)
	}

	trend := TrendStable
	switch {
	case monthlyInflation.GreaterThan(trendEpsilon):
		trend = TrendRising
	case monthlyInflation.LessThan(trendEpsilon.Neg()):
		trend = TrendFalling
	}

	initial := cost.Round(2)
	return EconomicForecast{
		Projection:      points,
		InitialCost:     initial,
		ExpectedRevenue: revenue,
		NetReturn:       revenue.Sub(initial),
		YieldFactor:     round2(factor),
		Trend:           trend,
	}
}
