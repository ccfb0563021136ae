package classifier

import (
	"math"

	"plantcare/internal/domain"
)

const unknownLabel = "Unknown"

// ConfidencePercent maps an upstream confidence to an integer percentage.
// Values up to 1 are read as fractions, larger values as percentages. The
// classifier does not declare its scale, so the magnitude decides.
func ConfidencePercent(c float64) int {
	if math.IsNaN(c) {
		return 0
	}
	if c <= 1 {
		c *= 100
	}
	pct := math.Round(c)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

func Normalize(raw *domain.RawClassification) domain.DiseaseResult {
	res := domain.DiseaseResult{Label: unknownLabel}
	if raw == nil {
		return res
	}
	if raw.Prediction != nil && *raw.Prediction != "" {
		res.Label = *raw.Prediction
	}
	if raw.Confidence != nil {
		res.Confidence = ConfidencePercent(*raw.Confidence)
	}
	if raw.HeatmapURL != nil {
		res.HeatmapURL = *raw.HeatmapURL
	}
	return res
}
