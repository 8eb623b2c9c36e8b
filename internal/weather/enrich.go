package weather

import (
	"github.com/i474232898/agroweather/internal/agro"
)

// EnrichDay applies the metrics calculator to one day.
func EnrichDay(d DailyForecast) EnrichedDailyForecast {
	heatIndex := agro.HeatIndex(d.TempHigh, d.Humidity)
	soil := agro.SoilTemperatureEstimate(d.TempLow, d.TempHigh)
	frost := agro.FrostRiskFor(d.TempLow)

	return EnrichedDailyForecast{
		DailyForecast:    d,
		GDDBase50:        round2(agro.GrowingDegreeDays(d.TempLow, d.TempHigh, agro.DefaultBaseTemp, agro.DefaultCapTemp)),
		GDDBase32:        round2(agro.GrowingDegreeDays(d.TempLow, d.TempHigh, agro.ColdBaseTemp, agro.DefaultCapTemp)),
		SoilTempEstimate: soil,
		HeatIndex:        heatIndex,
		FeelsLike:        agro.ApparentTemperature(d.TempAvg, d.Humidity, d.Wind()),
		FrostRisk:        frost,
		HeatStressRisk:   agro.HeatStressFor(heatIndex),
		DroughtStress:    agro.DroughtStressFor(d.PrecipitationAmount, d.TempHigh),
		PlantingConditions: agro.PlantingSuitability(agro.PlantingInput{
			Precipitation: d.PrecipitationAmount,
			TempHigh:      d.TempHigh,
			TempLow:       d.TempLow,
			SoilTemp:      soil,
			Frost:         frost,
		}),
	}
}

// EnrichDays maps EnrichDay over days.
func EnrichDays(days []DailyForecast) []EnrichedDailyForecast {
	out := make([]EnrichedDailyForecast, 0, len(days))
	for _, d := range days {
		out = append(out, EnrichDay(d))
	}
	return out
}

// Enrich builds the full consumer payload from an orchestrator result. The
// same path runs whether the days came from a live provider or the fallback.
func Enrich(coords Coordinates, res Result) EnrichedForecast {
	days := EnrichDays(res.Days)

	return EnrichedForecast{
		Coordinates:       coords,
		HorizonDays:       len(days),
		Source:            res.Source,
		Confidence:        meanConfidence(res.Days),
		Fallback:          res.Fallback,
		Cached:            res.Cached,
		GeneratedAt:       res.GeneratedAt,
		Days:              days,
		Summary:           Summarize(days),
		Weekly:            WeeklySummaries(days),
		Monthly:           SummarizePeriod(days),
		Alerts:            GenerateAlerts(days),
		SimulationFactors: ComputeSimulationFactors(days),
		Attempts:          res.Attempts,
	}
}

func meanConfidence(days []DailyForecast) float64 {
	if len(days) == 0 {
		return 0
	}
	var sum float64
	for _, d := range days {
		sum += d.Confidence
	}
	return round2(sum / float64(len(days)))
}
