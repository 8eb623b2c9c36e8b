package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/i474232898/agroweather/internal/agro"
	"github.com/i474232898/agroweather/internal/weather"
)

type RiskCategory string

const (
	RiskWeather  RiskCategory = "weather"
	RiskPlant    RiskCategory = "plant"
	RiskEconomic RiskCategory = "economic"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Risk is one identified hazard. Probability is 0-1, Severity 1-5.
type Risk struct {
	Category    RiskCategory `json:"category"`
	Name        string       `json:"name"`
	Probability float64      `json:"probability"`
	Severity    float64      `json:"severity"`
	Description string       `json:"description"`
	Mitigation  string       `json:"mitigation,omitempty"`
}

func (r Risk) score() float64 { return r.Probability * r.Severity }

type RiskAssessment struct {
	Risks []Risk    `json:"risks"`
	Score float64   `json:"score"`
	Level RiskLevel `json:"level"`
}

// LevelFor buckets an aggregate probability x severity score.
func LevelFor(score float64) RiskLevel {
	switch {
	case score < 1.5:
		return RiskLow
	case score < 2.5:
		return RiskModerate
	case score < 3.5:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// Aggregate scores risks as mean(probability x severity). No risks is low.
func Aggregate(risks []Risk) RiskAssessment {
	ra := RiskAssessment{Risks: risks, Level: RiskLow}
	if len(risks) == 0 {
		ra.Risks = []Risk{}
		return ra
	}
	var sum float64
	for _, r := range risks {
		sum += r.score()
	}
	ra.Score = math.Round(sum/float64(len(risks))*100) / 100
	ra.Level = LevelFor(ra.Score)
	sort.SliceStable(ra.Risks, func(i, j int) bool { return ra.Risks[i].score() > ra.Risks[j].score() })
	return ra
}

// Warm humid days favour fungal disease.
const (
	diseaseMinTemp     = 65.0
	diseaseMinHumidity = 80.0
)

// lateMaturityDays is how far out a harvest may land before it is a risk.
const lateMaturityDays = 120

// AssessRisk evaluates weather, plant and economic hazards for the horizon.
func AssessRisk(ef *weather.EnrichedForecast, plantings []Planting, monthlyInflation decimal.Decimal) RiskAssessment {
	var risks []Risk
	if ef != nil && len(ef.Days) > 0 {
		risks = append(risks, weatherRisks(ef)...)
		risks = append(risks, plantRisks(ef.Days, plantings)...)
	}
	if r, ok := inputCostRisk(monthlyInflation); ok {
		risks = append(risks, r)
	}
	return Aggregate(risks)
}

func weatherRisks(ef *weather.EnrichedForecast) []Risk {
	n := float64(len(ef.Days))
	var frost, severeFrost, heat, drought int
	for _, d := range ef.Days {
		if d.IsFrostDay() {
			frost++
		}
		if d.FrostRisk == agro.FrostSevere {
			severeFrost++
		}
		if d.IsHeatStressDay() {
			heat++
		}
		if d.DroughtStress == agro.DroughtModerate || d.DroughtStress == agro.DroughtHigh {
			drought++
		}
	}

	var risks []Risk
	if frost > 0 {
		sev := 4.0
		if severeFrost > 0 {
			sev = 5
		}
		risks = append(risks, Risk{
			Category:    RiskWeather,
			Name:        "frost",
			Probability: round2(float64(frost) / n),
			Severity:    sev,
			Description: fmt.Sprintf("%d frost day(s) in the next %d", frost, len(ef.Days)),
			Mitigation:  "Cover tender plants overnight",
		})
	}
	if heat > 0 {
		risks = append(risks, Risk{
			Category:    RiskWeather,
			Name:        "heat_stress",
			Probability: round2(float64(heat) / n),
			Severity:    3,
			Description: fmt.Sprintf("%d heat-stress day(s)", heat),
			Mitigation:  "Water early and shade sensitive crops",
		})
	}
	if drought > 0 {
		risks = append(risks, Risk{
			Category:    RiskWeather,
			Name:        "drought",
			Probability: round2(float64(drought) / n),
			Severity:    3,
			Description: fmt.Sprintf("Rainfall below evapotranspiration on %d day(s)", drought),
			Mitigation:  "Irrigate and mulch",
		})
	}
	if ef.SimulationFactors.RiskFactors.ExcessMoisture {
		risks = append(risks, Risk{
			Category:    RiskWeather,
			Name:        "excess_moisture",
			Probability: 0.7,
			Severity:    2,
			Description: "Weekly rainfall above two inches",
			Mitigation:  "Improve drainage and avoid working wet soil",
		})
	}
	return risks
}

func plantRisks(days []weather.EnrichedDailyForecast, plantings []Planting) []Risk {
	var risks []Risk

	humid := 0
	for _, d := range days {
		if d.TempAvg >= diseaseMinTemp && d.Humidity >= diseaseMinHumidity {
			humid++
		}
	}
	if humid > 0 {
		risks = append(risks, Risk{
			Category:    RiskPlant,
			Name:        "disease_pressure",
			Probability: round2(float64(humid) / float64(len(days))),
			Severity:    3,
			Description: fmt.Sprintf("%d warm, humid day(s) favour fungal disease", humid),
			Mitigation:  "Space plants for airflow and water at the base",
		})
	}

	for _, p := range ProjectGrowth(days, plantings).Projections {
		if p.MaturityDate.IsZero() || p.MaturityDate.Sub(days[0].Date) > lateMaturityDays*24*time.Hour {
			risks = append(risks, Risk{
				Category:    RiskPlant,
				Name:        "late_maturity_" + p.Plant,
				Probability: 0.5,
				Severity:    2,
				Description: fmt.Sprintf("%s may not mature within %d days", p.Plant, lateMaturityDays),
				Mitigation:  "Choose a faster variety or start under cover",
			})
		}
		if p.FrostExposed {
			risks = append(risks, Risk{
				Category:    RiskPlant,
				Name:        "frost_damage_" + p.Plant,
				Probability: 0.6,
				Severity:    4,
				Description: fmt.Sprintf("Frost-tender %s exposed to frost", p.Plant),
				Mitigation:  "Delay transplanting or use row covers",
			})
		}
	}
	return risks
}

func inputCostRisk(monthlyInflation decimal.Decimal) (Risk, bool) {
	if !monthlyInflation.IsPositive() {
		return Risk{}, false
	}
	rate := monthlyInflation.InexactFloat64()
	return Risk{
		Category:    RiskEconomic,
		Name:        "rising_input_cost",
		Probability: round2(math.Min(1, rate*10)),
		Severity:    2,
		Description: fmt.Sprintf("Input costs rising %s%% per month", monthlyInflation.Mul(decimal.NewFromInt(100)).StringFixed(1)),
		Mitigation:  "Buy seed and amendments early",
	}, true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
