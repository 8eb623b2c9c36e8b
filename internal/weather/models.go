package weather

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/i474232898/agroweather/internal/agro"
)

// Coordinates are decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects NaN, infinities and out-of-range values.
func (c Coordinates) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) || c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidInput, c.Latitude)
	}
	if math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidInput, c.Longitude)
	}
	return nil
}

// Rounded returns the coordinates rounded to two decimals (about 1km), the
// precision used for cache keys.
func (c Coordinates) Rounded() Coordinates {
	return Coordinates{
		Latitude:  math.Round(c.Latitude*100) / 100,
		Longitude: math.Round(c.Longitude*100) / 100,
	}
}

func (c Coordinates) String() string {
	r := c.Rounded()
	return fmt.Sprintf("%.2f,%.2f", r.Latitude, r.Longitude)
}

// Location is a named place tracked by the refresh job.
type Location struct {
	Name        string      `json:"name" yaml:"name"`
	Coordinates Coordinates `json:"coordinates" yaml:"coordinates"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	if l.Name != "" {
		return strings.ToLower(strings.TrimSpace(l.Name))
	}
	return l.Coordinates.String()
}

// ForecastRequest is the orchestrator input.
type ForecastRequest struct {
	Coordinates       *Coordinates
	HorizonDays       int
	PreferredProvider string
	// Credentials maps provider name to API key. They are merged over the
	// service defaults.
	Credentials map[string]string
}

const (
	MinHorizonDays = 1
	MaxHorizonDays = 14
)

// Validate checks the request before any network call.
func (r ForecastRequest) Validate() error {
	if r.Coordinates == nil {
		return fmt.Errorf("%w: coordinates are required", ErrInvalidInput)
	}
	if err := r.Coordinates.Validate(); err != nil {
		return err
	}
	if r.HorizonDays < MinHorizonDays || r.HorizonDays > MaxHorizonDays {
		return fmt.Errorf("%w: horizon must be between %d and %d days, got %d",
			ErrInvalidInput, MinHorizonDays, MaxHorizonDays, r.HorizonDays)
	}
	return nil
}

// DailyForecast is the canonical, provider-agnostic day. Temperatures are °F,
// precipitation inches, probabilities and humidity percent.
type DailyForecast struct {
	Date                     time.Time `json:"date"` // midnight UTC of the calendar day
	TempHigh                 float64   `json:"tempHigh"`
	TempLow                  float64   `json:"tempLow"`
	TempAvg                  float64   `json:"tempAvg"`
	Humidity                 float64   `json:"humidity"`
	PrecipitationAmount      float64   `json:"precipitationAmount"`
	PrecipitationProbability float64   `json:"precipitationProbability"`
	WindSpeedMph             *float64  `json:"windSpeedMph,omitempty"`
	WindSpeedText            string    `json:"windSpeedText,omitempty"`
	ShortDescription         string    `json:"shortDescription"`
	DetailedDescription      string    `json:"detailedDescription,omitempty"`
	Confidence               float64   `json:"confidence"`
	Source                   string    `json:"source"`
}

// Wind returns the day's wind in the form the metrics calculator expects.
func (d DailyForecast) Wind() agro.Wind {
	return agro.Wind{Mph: d.WindSpeedMph, Text: d.WindSpeedText}
}

// Label is the human-readable day used in alerts.
func (d DailyForecast) Label() string {
	return d.Date.Format("Mon Jan 2")
}

// CalendarDay strips the time component from t, keeping t's own calendar date.
func CalendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NormalizeDays sorts days by date, drops duplicate dates (first wins) and
// enforces the value invariants every provider must satisfy.
func NormalizeDays(days []DailyForecast) []DailyForecast {
	out := make([]DailyForecast, 0, len(days))
	for _, d := range days {
		d.Date = CalendarDay(d.Date)
		if d.TempLow > d.TempHigh {
			d.TempLow, d.TempHigh = d.TempHigh, d.TempLow
		}
		d.TempAvg = clampFloat(d.TempAvg, d.TempLow, d.TempHigh)
		d.Humidity = clampFloat(d.Humidity, 0, 100)
		d.PrecipitationProbability = clampFloat(d.PrecipitationProbability, 0, 100)
		d.PrecipitationAmount = math.Max(0, d.PrecipitationAmount)
		d.Confidence = clampFloat(d.Confidence, 0, 1)
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	deduped := out[:0]
	for i, d := range out {
		if i > 0 && d.Date.Equal(deduped[len(deduped)-1].Date) {
			continue
		}
		deduped = append(deduped, d)
	}
	return deduped
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EnrichedDailyForecast is a day plus the derived agricultural metrics.
type EnrichedDailyForecast struct {
	DailyForecast

	GDDBase50          float64                 `json:"gddBase50"`
	GDDBase32          float64                 `json:"gddBase32"`
	SoilTempEstimate   float64                 `json:"soilTempEstimate"`
	HeatIndex          float64                 `json:"heatIndex"`
	FeelsLike          float64                 `json:"feelsLike"`
	FrostRisk          agro.FrostRisk          `json:"frostRisk"`
	HeatStressRisk     agro.HeatStress         `json:"heatStressRisk"`
	DroughtStress      agro.DroughtStress      `json:"droughtStress"`
	PlantingConditions agro.PlantingConditions `json:"plantingConditions"`
}

// IsFrostDay reports any frost risk at all.
func (d EnrichedDailyForecast) IsFrostDay() bool {
	return d.FrostRisk != agro.FrostNone
}

// IsHeatStressDay reports high or extreme heat stress.
func (d EnrichedDailyForecast) IsHeatStressDay() bool {
	return d.HeatStressRisk == agro.HeatHigh || d.HeatStressRisk == agro.HeatExtreme
}

// IsRainDay reports a likely or measurable rain day.
func (d EnrichedDailyForecast) IsRainDay() bool {
	return d.PrecipitationProbability >= 50 || d.PrecipitationAmount >= 0.1
}

// IsRiskDay reports frost, heat stress or high drought stress.
func (d EnrichedDailyForecast) IsRiskDay() bool {
	return d.IsFrostDay() || d.IsHeatStressDay() || d.DroughtStress == agro.DroughtHigh
}

type AlertType string

const (
	AlertFrost AlertType = "frost"
	AlertHeat  AlertType = "heat"
	AlertRain  AlertType = "rain"
)

type AlertSeverity string

const (
	SeverityLow    AlertSeverity = "low"
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

// GardenAlert is derived from an enriched forecast and never stored on its own.
type GardenAlert struct {
	Type         AlertType     `json:"type"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	AffectedDays []string      `json:"affectedDays"`
}

// Summary rolls up the whole horizon.
type Summary struct {
	AvgTemp                float64 `json:"avgTemp"`
	MinTemp                float64 `json:"minTemp"`
	MaxTemp                float64 `json:"maxTemp"`
	TotalPrecipitation     float64 `json:"totalPrecipitation"`
	TotalGrowingDegreeDays float64 `json:"totalGrowingDegreeDays"`
	FrostDays              int     `json:"frostDays"`
	HeatStressDays         int     `json:"heatStressDays"`
	RainDays               int     `json:"rainDays"`
}

// PeriodSummary covers a run of consecutive days (a week, or the horizon).
type PeriodSummary struct {
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	Days               int       `json:"days"`
	MeanHigh           float64   `json:"meanHigh"`
	MeanLow            float64   `json:"meanLow"`
	TotalPrecipitation float64   `json:"totalPrecipitation"`
	TotalGDD           float64   `json:"totalGdd"`
	RiskDays           int       `json:"riskDays"`
}

type RiskFactors struct {
	Frost          bool `json:"frost"`
	Heat           bool `json:"heat"`
	Drought        bool `json:"drought"`
	ExcessMoisture bool `json:"excessMoisture"`
}

// SimulationFactors is the block handed to the portfolio simulation.
type SimulationFactors struct {
	TemperatureStability float64     `json:"temperatureStability"`
	MoistureIndex        float64     `json:"moistureIndex"`
	GrowthPotential      float64     `json:"growthPotential"`
	RiskFactors          RiskFactors `json:"riskFactors"`
}

// Attempt records what happened when the orchestrator tried one provider.
type Attempt struct {
	Provider string `json:"provider"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

const (
	OutcomeOK            = "ok"
	OutcomeCacheHit      = "cache_hit"
	OutcomeQuotaExceeded = "quota_exceeded"
	OutcomeError         = "error"
	OutcomeSkipped       = "skipped"
)

// Result is the normalized orchestrator output before enrichment.
type Result struct {
	Days        []DailyForecast `json:"days"`
	Source      string          `json:"source"`
	Fallback    bool            `json:"fallback"`
	Cached      bool            `json:"cached"`
	Attempts    []Attempt       `json:"attempts"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// EnrichedForecast is the primary consumer payload.
type EnrichedForecast struct {
	Coordinates       Coordinates             `json:"coordinates"`
	HorizonDays       int                     `json:"horizonDays"`
	Source            string                  `json:"source"`
	Confidence        float64                 `json:"confidence"`
	Fallback          bool                    `json:"fallback"`
	Cached            bool                    `json:"cached"`
	GeneratedAt       time.Time               `json:"generatedAt"`
	Days              []EnrichedDailyForecast `json:"days"`
	Summary           Summary                 `json:"summary"`
	Weekly            []PeriodSummary         `json:"weekly"`
	Monthly           PeriodSummary           `json:"monthly"`
	Alerts            []GardenAlert           `json:"alerts"`
	SimulationFactors SimulationFactors       `json:"simulationFactors"`
	Attempts          []Attempt               `json:"attempts,omitempty"`
}
