package agro

import (
	"math"
	"regexp"
	"strconv"
)

// HeatIndex returns the NWS heat index. Below 80°F or 40% humidity the air
// temperature is returned unchanged.
func HeatIndex(tempF, humidityPct float64) float64 {
	if tempF < 80 || humidityPct < 40 {
		return tempF
	}

	simple := 0.5 * (tempF + 61.0 + (tempF-68.0)*1.2 + humidityPct*0.094)
	if simple < 80 {
		return simple
	}

	t, rh := tempF, humidityPct
	hi := -42.379 +
		2.04901523*t +
		10.14333127*rh -
		0.22475541*t*rh -
		0.00683783*t*t -
		0.05481717*rh*rh +
		0.00122874*t*t*rh +
		0.00085282*t*rh*rh -
		0.00000199*t*t*rh*rh

	return math.Round(hi)
}

// WindChillMph applies the NWS wind chill formula to a numeric wind speed.
func WindChillMph(tempF, windMph float64) float64 {
	if tempF > 50 || windMph <= 3 {
		return tempF
	}
	v := math.Pow(windMph, 0.16)
	return math.Round(35.74 + 0.6215*tempF - 35.75*v + 0.4275*tempF*v)
}

// WindChill parses free-text wind ("10 mph", "5 to 10 mph") and applies
// WindChillMph. Unparseable text leaves the temperature unchanged.
func WindChill(tempF float64, windSpeedText string) float64 {
	if tempF > 50 {
		return tempF
	}
	mph, ok := ParseWindSpeed(windSpeedText)
	if !ok {
		return tempF
	}
	return WindChillMph(tempF, mph)
}

var (
	windRangeRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:to|-)\s*(\d+(?:\.\d+)?)`)
	windSingleRe = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)
)

// ParseWindSpeed extracts a speed from provider text. A range "A to B" yields
// the midpoint.
func ParseWindSpeed(text string) (float64, bool) {
	if m := windRangeRe.FindStringSubmatch(text); m != nil {
		a, errA := strconv.ParseFloat(m[1], 64)
		b, errB := strconv.ParseFloat(m[2], 64)
		if errA == nil && errB == nil {
			return (a + b) / 2, true
		}
	}
	if m := windSingleRe.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

// Wind carries either a structured speed or provider text. The numeric value
// wins when both are present.
type Wind struct {
	Mph  *float64
	Text string
}

func (w Wind) speed() (float64, bool) {
	if w.Mph != nil {
		return *w.Mph, true
	}
	if w.Text == "" {
		return 0, false
	}
	return ParseWindSpeed(w.Text)
}

// ApparentTemperature is the "feels like" temperature for a day.
func ApparentTemperature(tempAvg, humidity float64, wind Wind) float64 {
	if tempAvg >= 80 && humidity >= 40 {
		return HeatIndex(tempAvg, humidity)
	}
	if tempAvg <= 50 {
		if mph, ok := wind.speed(); ok {
			return WindChillMph(tempAvg, mph)
		}
	}
	return tempAvg
}
