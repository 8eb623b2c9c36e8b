package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/i474232898/agroweather/internal/agro"
	"github.com/i474232898/agroweather/internal/weather"
)

type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
)

type Recommendation struct {
	Title       string    `json:"title"`
	Detail      string    `json:"detail"`
	Category    string    `json:"category"`
	Priority    Priority  `json:"priority"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
}

// Recommend turns alerts, planting windows, drought and upcoming harvests into
// actions, highest priority first and earliest window first within a priority.
func Recommend(ef *weather.EnrichedForecast, plantings []Planting) []Recommendation {
	recs := make([]Recommendation, 0, 8)
	if ef == nil || len(ef.Days) == 0 {
		return recs
	}
	days := ef.Days
	byLabel := make(map[string]time.Time, len(days))
	for _, d := range days {
		byLabel[d.Label()] = d.Date
	}

	for _, a := range ef.Alerts {
		start, end := alertWindow(a, byLabel)
		r := Recommendation{WindowStart: start, WindowEnd: end, Category: "weather"}
		switch a.Type {
		case weather.AlertFrost:
			r.Title = "Protect tender plants from frost"
			r.Detail = "Cover transplants with frost cloth or bring containers indoors"
			r.Priority = PriorityHigh
		case weather.AlertHeat:
			r.Title = "Water deeply ahead of the heat"
			r.Detail = "Water in the early morning and shade leafy crops in the afternoon"
			r.Priority = PriorityMedium
		case weather.AlertRain:
			r.Title = "Skip irrigation before heavy rain"
			r.Detail = "Hold off on watering and keep off saturated beds"
			r.Priority = PriorityLow
		default:
			continue
		}
		recs = append(recs, r)
	}

	if start, end, ok := plantingWindow(days); ok {
		recs = append(recs, Recommendation{
			Title:       "Good planting window",
			Detail:      "Soil is workable and warm enough for seeding and transplanting",
			Category:    "planting",
			Priority:    PriorityMedium,
			WindowStart: start,
			WindowEnd:   end,
		})
	}

	var dry []time.Time
	for _, d := range days {
		if d.DroughtStress == agro.DroughtHigh {
			dry = append(dry, d.Date)
		}
	}
	if len(dry) > 0 {
		recs = append(recs, Recommendation{
			Title:       "Irrigate during dry spell",
			Detail:      fmt.Sprintf("Rainfall falls short of crop water use on %d day(s)", len(dry)),
			Category:    "irrigation",
			Priority:    PriorityMedium,
			WindowStart: dry[0],
			WindowEnd:   dry[len(dry)-1],
		})
	}

	horizonEnd := days[len(days)-1].Date
	for _, h := range ProjectGrowth(days, plantings).HarvestCalendar {
		if h.Extrapolated || h.Date.After(horizonEnd) {
			continue
		}
		recs = append(recs, Recommendation{
			Title:       fmt.Sprintf("Harvest %s", h.Plant),
			Detail:      fmt.Sprintf("%s reaches maturity within the forecast window", h.Plant),
			Category:    "harvest",
			Priority:    PriorityMedium,
			WindowStart: h.Date,
			WindowEnd:   h.Date.AddDate(0, 0, 7),
		})
	}

	SortRecommendations(recs)
	return recs
}

// SortRecommendations orders by priority descending, then window start ascending.
func SortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority > recs[j].Priority
		}
		return recs[i].WindowStart.Before(recs[j].WindowStart)
	})
}

func alertWindow(a weather.GardenAlert, byLabel map[string]time.Time) (time.Time, time.Time) {
	var start, end time.Time
	for _, label := range a.AffectedDays {
		d, ok := byLabel[label]
		if !ok {
			continue
		}
		if start.IsZero() || d.Before(start) {
			start = d
		}
		if d.After(end) {
			end = d
		}
	}
	return start, end
}

// plantingWindow finds the first run of good or excellent planting days.
func plantingWindow(days []weather.EnrichedDailyForecast) (time.Time, time.Time, bool) {
	var start, end time.Time
	for _, d := range days {
		s := d.PlantingConditions.OverallSuitability
		good := s == agro.SuitabilityGood || s == agro.SuitabilityExcellent
		switch {
		case good && start.IsZero():
			start, end = d.Date, d.Date
		case good:
			end = d.Date
		case !start.IsZero():
			return start, end, true
		}
	}
	return start, end, !start.IsZero()
}
