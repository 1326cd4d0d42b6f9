package services

// Tier is one of the five ordered maturity labels.
type Tier string

const (
	TierInitial    Tier = "Initial"
	TierDeveloping Tier = "Developing"
	TierDefined    Tier = "Defined"
	TierAdvanced   Tier = "Advanced"
	TierOptimized  Tier = "Optimized"
)

// tierBands lists the inclusive lower bound of each tier, highest first.
// The bands partition [0,5]: every boundary value belongs to the higher
// tier, and 5.0 itself is Optimized. Both session scoring and organization
// aggregation classify through this one table.
var tierBands = []struct {
	min  float64
	tier Tier
}{
	{4.3, TierOptimized},
	{3.5, TierAdvanced},
	{2.7, TierDefined},
	{1.9, TierDeveloping},
	{0.0, TierInitial},
}

// Classify maps a raw score in [0,5] to its maturity tier. Out-of-range
// inputs are clamped to the domain.
func Classify(score float64) Tier {
	if score < 0 {
		score = 0
	}
	if score > 5 {
		score = 5
	}
	for _, b := range tierBands {
		if score >= b.min {
			return b.tier
		}
	}
	return TierInitial
}
