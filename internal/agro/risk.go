package agro

import "math"

type FrostRisk string

const (
	FrostNone     FrostRisk = "none"
	FrostLight    FrostRisk = "light"
	FrostModerate FrostRisk = "moderate"
	FrostSevere   FrostRisk = "severe"
)

type HeatStress string

const (
	HeatLow      HeatStress = "low"
	HeatModerate HeatStress = "moderate"
	HeatHigh     HeatStress = "high"
	HeatExtreme  HeatStress = "extreme"
)

type DroughtStress string

const (
	DroughtNone     DroughtStress = "none"
	DroughtLow      DroughtStress = "low"
	DroughtModerate DroughtStress = "moderate"
	DroughtHigh     DroughtStress = "high"
)

type Suitability string

const (
	SuitabilityPoor      Suitability = "poor"
	SuitabilityFair      Suitability = "fair"
	SuitabilityGood      Suitability = "good"
	SuitabilityExcellent Suitability = "excellent"
)

// FrostRiskFor classifies the overnight low.
func FrostRiskFor(tempLow float64) FrostRisk {
	switch {
	case tempLow <= 28:
		return FrostSevere
	case tempLow <= 32:
		return FrostModerate
	case tempLow <= 36:
		return FrostLight
	default:
		return FrostNone
	}
}

// HeatStressFor classifies a heat index value.
func HeatStressFor(heatIndex float64) HeatStress {
	switch {
	case heatIndex >= 105:
		return HeatExtreme
	case heatIndex >= 95:
		return HeatHigh
	case heatIndex >= 85:
		return HeatModerate
	default:
		return HeatLow
	}
}

// Evapotranspiration is a crude daily ET estimate in inches.
func Evapotranspiration(tempHigh float64) float64 {
	return math.Max(0, (tempHigh-32)*0.008)
}

// DroughtStressFor compares rainfall with estimated ET.
func DroughtStressFor(precipitationIn, tempHigh float64) DroughtStress {
	balance := precipitationIn - Evapotranspiration(tempHigh)
	switch {
	case balance < -0.3:
		return DroughtHigh
	case balance < -0.1:
		return DroughtModerate
	case balance < 0:
		return DroughtLow
	default:
		return DroughtNone
	}
}

// PlantingInput is the subset of a day the planting gates look at.
type PlantingInput struct {
	Precipitation float64
	TempHigh      float64
	TempLow       float64
	SoilTemp      float64
	Frost         FrostRisk
}

type PlantingConditions struct {
	SoilWorkable       bool        `json:"soilWorkable"`
	SeedGermination    bool        `json:"seedGermination"`
	TransplantSafe     bool        `json:"transplantSafe"`
	OverallSuitability Suitability `json:"overallSuitability"`
}

// PlantingSuitability evaluates the three field-work gates and scores the day
// by how many pass.
func PlantingSuitability(in PlantingInput) PlantingConditions {
	pc := PlantingConditions{
		SoilWorkable:    in.Precipitation < 0.5 && in.TempHigh > 40,
		SeedGermination: in.SoilTemp > 45 && in.SoilTemp < 85,
		TransplantSafe:  in.Frost == FrostNone && in.TempLow > 40,
	}

	passed := 0
	for _, ok := range []bool{pc.SoilWorkable, pc.SeedGermination, pc.TransplantSafe} {
		if ok {
			passed++
		}
	}

	switch passed {
	case 3:
		pc.OverallSuitability = SuitabilityExcellent
	case 2:
		pc.OverallSuitability = SuitabilityGood
	case 1:
		pc.OverallSuitability = SuitabilityFair
	default:
		pc.OverallSuitability = SuitabilityPoor
	}
	return pc
}
