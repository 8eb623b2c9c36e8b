package agro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrostRiskFor(t *testing.T) {
	assert.Equal(t, FrostSevere, FrostRiskFor(27))
	assert.Equal(t, FrostSevere, FrostRiskFor(28))
	assert.Equal(t, FrostModerate, FrostRiskFor(30))
	assert.Equal(t, FrostLight, FrostRiskFor(34))
	assert.Equal(t, FrostLight, FrostRiskFor(36))
	assert.Equal(t, FrostNone, FrostRiskFor(40))
}

func TestHeatStressFor(t *testing.T) {
	assert.Equal(t, HeatLow, HeatStressFor(84))
	assert.Equal(t, HeatModerate, HeatStressFor(85))
	assert.Equal(t, HeatHigh, HeatStressFor(100))
	assert.Equal(t, HeatExtreme, HeatStressFor(105))
}

func TestDroughtStressFor(t *testing.T) {
	// ET at 82°F is 0.4in
	assert.Equal(t, DroughtHigh, DroughtStressFor(0, 82))
	assert.Equal(t, DroughtModerate, DroughtStressFor(0.2, 82))
	assert.Equal(t, DroughtLow, DroughtStressFor(0.35, 82))
	assert.Equal(t, DroughtNone, DroughtStressFor(0.5, 82))
	assert.Equal(t, DroughtNone, DroughtStressFor(0, 20))
}

func TestPlantingSuitability(t *testing.T) {
	all := PlantingSuitability(PlantingInput{Precipitation: 0.1, TempHigh: 75, TempLow: 55, SoilTemp: 62, Frost: FrostNone})
	assert.True(t, all.SoilWorkable)
	assert.True(t, all.SeedGermination)
	assert.True(t, all.TransplantSafe)
	assert.Equal(t, SuitabilityExcellent, all.OverallSuitability)

	two := PlantingSuitability(PlantingInput{Precipitation: 0.8, TempHigh: 75, TempLow: 55, SoilTemp: 62, Frost: FrostNone})
	assert.Equal(t, SuitabilityGood, two.OverallSuitability)

	one := PlantingSuitability(PlantingInput{Precipitation: 0.1, TempHigh: 45, TempLow: 30, SoilTemp: 38, Frost: FrostModerate})
	assert.Equal(t, SuitabilityFair, one.OverallSuitability)

	none := PlantingSuitability(PlantingInput{Precipitation: 1.2, TempHigh: 38, TempLow: 25, SoilTemp: 30, Frost: FrostSevere})
	assert.Equal(t, SuitabilityPoor, none.OverallSuitability)
}
