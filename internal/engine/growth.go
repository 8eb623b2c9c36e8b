package engine

import (
	"math"
	"sort"
	"time"

	"github.com/i474232898/agroweather/internal/agro"
	"github.com/i474232898/agroweather/internal/weather"
)

type GrowthProjection struct {
	Plant           string    `json:"plant"`
	BaseTemp        float64   `json:"baseTemp"`
	HorizonGDD      float64   `json:"horizonGdd"`
	AccumulatedGDD  float64   `json:"accumulatedGdd"`
	GDDToMaturity   float64   `json:"gddToMaturity"`
	PercentComplete float64   `json:"percentComplete"`
	MaturityDate    time.Time `json:"maturityDate,omitempty"`
	// Extrapolated is set when maturity falls beyond the forecast horizon.
	Extrapolated bool `json:"extrapolated"`
	FrostExposed bool `json:"frostExposed"`
}

type HarvestEntry struct {
	Plant        string    `json:"plant"`
	Date         time.Time `json:"date"`
	Extrapolated bool      `json:"extrapolated"`
}

type GrowthForecast struct {
	Projections     []GrowthProjection `json:"projections"`
	HarvestCalendar []HarvestEntry     `json:"harvestCalendar"`
}

// ProjectGrowth accumulates GDD at each plant's base temperature and locates
// the maturity date. Past the horizon the date is extrapolated from the mean
// daily GDD; with no heat at all there is no date.
func ProjectGrowth(days []weather.EnrichedDailyForecast, plantings []Planting) GrowthForecast {
	gf := GrowthForecast{
		Projections:     make([]GrowthProjection, 0, len(plantings)),
		HarvestCalendar: make([]HarvestEntry, 0, len(plantings)),
	}

	for _, pl := range plantings {
		plant, ok := LookupPlant(pl.Plant)
		if !ok {
			continue
		}

		proj := GrowthProjection{
			Plant:         plant.Name,
			BaseTemp:      plant.BaseTemp,
			GDDToMaturity: plant.GDDToMaturity,
		}

		cumulative := pl.AccumulatedGDD
		if cumulative >= plant.GDDToMaturity && len(days) > 0 {
			proj.MaturityDate = days[0].Date
		}
		for _, d := range days {
			gdd := agro.GrowingDegreeDays(d.TempLow, d.TempHigh, plant.BaseTemp, agro.DefaultCapTemp)
			proj.HorizonGDD += gdd
			cumulative += gdd
			if proj.MaturityDate.IsZero() && cumulative >= plant.GDDToMaturity {
				proj.MaturityDate = d.Date
			}
			if plant.FrostTender && d.IsFrostDay() {
				proj.FrostExposed = true
			}
		}
		proj.AccumulatedGDD = round1(cumulative)
		proj.HorizonGDD = round1(proj.HorizonGDD)
		proj.PercentComplete = round1(math.Min(100, cumulative/plant.GDDToMaturity*100))

		if proj.MaturityDate.IsZero() && len(days) > 0 && proj.HorizonGDD > 0 {
			meanDaily := proj.HorizonGDD / float64(len(days))
			remaining := plant.GDDToMaturity - cumulative
			extra := int(math.Ceil(remaining / meanDaily))
			proj.MaturityDate = days[len(days)-1].Date.AddDate(0, 0, extra)
			proj.Extrapolated = true
		}

		gf.Projections = append(gf.Projections, proj)
		if !proj.MaturityDate.IsZero() {
			gf.HarvestCalendar = append(gf.HarvestCalendar, HarvestEntry{
				Plant:        plant.Name,
				Date:         proj.MaturityDate,
				Extrapolated: proj.Extrapolated,
			})
		}
	}

	sort.SliceStable(gf.HarvestCalendar, func(i, j int) bool {
		return gf.HarvestCalendar[i].Date.Before(gf.HarvestCalendar[j].Date)
	})
	return gf
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
