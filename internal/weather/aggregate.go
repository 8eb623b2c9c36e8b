package weather

import (
	"math"

	"github.com/i474232898/agroweather/internal/agro"
)

// Summarize rolls the enriched horizon into one summary block.
func Summarize(days []EnrichedDailyForecast) Summary {
	if len(days) == 0 {
		return Summary{}
	}

	sum := Summary{
		MinTemp: math.Inf(1),
		MaxTemp: math.Inf(-1),
	}
	var sumAvg float64
	for _, d := range days {
		sumAvg += d.TempAvg
		sum.MinTemp = math.Min(sum.MinTemp, d.TempLow)
		sum.MaxTemp = math.Max(sum.MaxTemp, d.TempHigh)
		sum.TotalPrecipitation += d.PrecipitationAmount
		sum.TotalGrowingDegreeDays += d.GDDBase50
		if d.IsFrostDay() {
			sum.FrostDays++
		}
		if d.IsHeatStressDay() {
			sum.HeatStressDays++
		}
		if d.IsRainDay() {
			sum.RainDays++
		}
	}

	sum.AvgTemp = round1(sumAvg / float64(len(days)))
	sum.TotalPrecipitation = round2(sum.TotalPrecipitation)
	sum.TotalGrowingDegreeDays = round1(sum.TotalGrowingDegreeDays)
	return sum
}

// SummarizePeriod aggregates a run of consecutive days.
func SummarizePeriod(days []EnrichedDailyForecast) PeriodSummary {
	if len(days) == 0 {
		return PeriodSummary{}
	}

	ps := PeriodSummary{
		Start: days[0].Date,
		End:   days[len(days)-1].Date,
		Days:  len(days),
	}
	var highs, lows float64
	for _, d := range days {
		highs += d.TempHigh
		lows += d.TempLow
		ps.TotalPrecipitation += d.PrecipitationAmount
		ps.TotalGDD += d.GDDBase50
		if d.IsRiskDay() {
			ps.RiskDays++
		}
	}
	n := float64(len(days))
	ps.MeanHigh = round1(highs / n)
	ps.MeanLow = round1(lows / n)
	ps.TotalPrecipitation = round2(ps.TotalPrecipitation)
	ps.TotalGDD = round1(ps.TotalGDD)
	return ps
}

// WeeklySummaries splits days into consecutive 7-day windows. A trailing
// partial week is summarized on its own.
func WeeklySummaries(days []EnrichedDailyForecast) []PeriodSummary {
	out := make([]PeriodSummary, 0, (len(days)+6)/7)
	for start := 0; start < len(days); start += 7 {
		end := start + 7
		if end > len(days) {
			end = len(days)
		}
		out = append(out, SummarizePeriod(days[start:end]))
	}
	return out
}

// ComputeSimulationFactors derives the 0-100 indices used downstream.
//
// Stability drops 5 points per °F of standard deviation in daily mean
// temperature. Moisture scores 1in/week as 50. Growth potential scores 25
// GDD/day as 100.
func ComputeSimulationFactors(days []EnrichedDailyForecast) SimulationFactors {
	if len(days) == 0 {
		return SimulationFactors{}
	}

	n := float64(len(days))
	var sumAvg, sumPrecip, sumGDD float64
	droughtDays, frostDays, heatDays := 0, 0, 0
	for _, d := range days {
		sumAvg += d.TempAvg
		sumPrecip += d.PrecipitationAmount
		sumGDD += d.GDDBase50
		if d.DroughtStress == agro.DroughtModerate || d.DroughtStress == agro.DroughtHigh {
			droughtDays++
		}
		if d.IsFrostDay() {
			frostDays++
		}
		if d.IsHeatStressDay() {
			heatDays++
		}
	}

	mean := sumAvg / n
	var variance float64
	for _, d := range days {
		variance += (d.TempAvg - mean) * (d.TempAvg - mean)
	}
	stddev := math.Sqrt(variance / n)

	weeklyRain := sumPrecip / n * 7

	return SimulationFactors{
		TemperatureStability: round1(clampFloat(100-stddev*5, 0, 100)),
		MoistureIndex:        round1(clampFloat(weeklyRain*50, 0, 100)),
		GrowthPotential:      round1(clampFloat(sumGDD/n/25*100, 0, 100)),
		RiskFactors: RiskFactors{
			Frost:          frostDays > 0,
			Heat:           heatDays > 0,
			Drought:        float64(droughtDays) > n/2,
			ExcessMoisture: weeklyRain > 2,
		},
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
