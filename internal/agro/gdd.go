// Package agro holds the agricultural metrics calculator. Everything here is a
// pure function of its inputs; temperatures are °F, precipitation inches and
// wind speed mph.
package agro

import "math"

const (
	// DefaultBaseTemp is the warm-season crop development threshold.
	DefaultBaseTemp = 50.0
	// ColdBaseTemp is used for cool-season crops (GDD base 32).
	ColdBaseTemp = 32.0
	// DefaultCapTemp is the upper development cutoff.
	DefaultCapTemp = 86.0
)

// GrowingDegreeDays computes heat units for one day with the single-sine method.
//
// When the day never reaches base the result is 0. When the whole day stays
// above base the clamped average is used. Otherwise the portion of the sine
// curve above base is integrated in closed form.
func GrowingDegreeDays(tempMin, tempMax, base, cap float64) float64 {
	if tempMin > tempMax {
		tempMin, tempMax = tempMax, tempMin
	}
	if tempMax <= base {
		return 0
	}

	hi := math.Min(tempMax, cap)

	if tempMin >= base {
		lo := math.Min(math.Max(tempMin, base), cap)
		return clamp((lo+hi)/2-base, 0, cap-base)
	}

	mid := (tempMin + hi) / 2
	amp := (hi - tempMin) / 2
	if mid <= base || amp <= 0 {
		return 0
	}

	theta := math.Asin((base - mid) / amp)
	gdd := ((mid-base)*(math.Pi/2-theta) + amp*math.Cos(theta)) / math.Pi
	return clamp(gdd, 0, cap-base)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SoilTemperatureEstimate approximates shallow soil temperature from the air
// temperature range. Soil lags and damps the daily swing.
func SoilTemperatureEstimate(tempLow, tempHigh float64) float64 {
	avg := (tempLow + tempHigh) / 2
	return round1(avg*0.9 + 3)
}
