package weather

import "fmt"

const (
	frostLookaheadDays = 3
	heatDayThreshold   = 3
	heavyRainPoP       = 80
)

// GenerateAlerts scans the enriched horizon for garden-relevant events.
func GenerateAlerts(days []EnrichedDailyForecast) []GardenAlert {
	alerts := make([]GardenAlert, 0, 3)

	var frostDays []string
	for i, d := range days {
		if i >= frostLookaheadDays {
			break
		}
		if d.IsFrostDay() {
			frostDays = append(frostDays, d.Label())
		}
	}
	if len(frostDays) > 0 {
		alerts = append(alerts, GardenAlert{
			Type:         AlertFrost,
			Severity:     SeverityHigh,
			Message:      fmt.Sprintf("Frost possible on %d of the next %d days; cover or bring in tender plants", len(frostDays), frostLookaheadDays),
			AffectedDays: frostDays,
		})
	}

	var heatDays []string
	for _, d := range days {
		if d.IsHeatStressDay() {
			heatDays = append(heatDays, d.Label())
		}
	}
	if len(heatDays) > heatDayThreshold {
		alerts = append(alerts, GardenAlert{
			Type:         AlertHeat,
			Severity:     SeverityMedium,
			Message:      fmt.Sprintf("%d heat-stress days ahead; water early and provide shade", len(heatDays)),
			AffectedDays: heatDays,
		})
	}

	var rainDays []string
	for _, d := range days {
		if d.PrecipitationProbability > heavyRainPoP {
			rainDays = append(rainDays, d.Label())
		}
	}
	if len(rainDays) > 0 {
		alerts = append(alerts, GardenAlert{
			Type:         AlertRain,
			Severity:     SeverityLow,
			Message:      "Heavy rain likely; hold off on watering and avoid working wet soil",
			AffectedDays: rainDays,
		})
	}

	return alerts
}
