package scoring

import (
	"math"

	"github.com/inferloop/contentscore/pkg/models"
)

// OverallBenchmark is the key used for the overall score in benchmark tables.
const OverallBenchmark = "overall"

// Benchmarks holds reference scores keyed by category name and OverallBenchmark.
type Benchmarks struct {
	IndustryAverage map[string]float64 `json:"industry_average" yaml:"industry_average" mapstructure:"industry_average"`
	TopPerformers   map[string]float64 `json:"top_performers" yaml:"top_performers" mapstructure:"top_performers"`
}

// DefaultBenchmarks returns the built-in industry references.
func DefaultBenchmarks() Benchmarks {
	return Benchmarks{
		IndustryAverage: map[string]float64{
			OverallBenchmark:           65,
			CategoryContentQuality:     70,
			CategoryTechnicalSEO:       75,
			CategorySocialOptimization: 60,
			CategoryUserExperience:     65,
		},
		TopPerformers: map[string]float64{
			OverallBenchmark:           85,
			CategoryContentQuality:     90,
			CategoryTechnicalSEO:       95,
			CategorySocialOptimization: 80,
			CategoryUserExperience:     85,
		},
	}
}

// Compare positions a report against the benchmarks. It returns nil when no
// overall references are configured.
func (b Benchmarks) Compare(report *models.ScoreReport) *models.CompetitiveAnalysis {
	industry, okIndustry := b.IndustryAverage[OverallBenchmark]
	top, okTop := b.TopPerformers[OverallBenchmark]
	if report == nil || !okIndustry || !okTop {
		return nil
	}

	analysis := &models.CompetitiveAnalysis{
		VsIndustryAverage: models.BenchmarkComparison{
			Benchmark:  industry,
			Difference: round2(report.Overall - industry),
			Level:      BenchmarkLevel(report.Overall, industry, top),
		},
		VsTopPerformers: models.BenchmarkComparison{
			Benchmark:  top,
			Difference: round2(report.Overall - top),
			Level:      BenchmarkLevel(report.Overall, industry, top),
		},
		CategoryGaps:     make(map[string]models.BenchmarkComparison),
		RankingPotential: RankingPotential(report.Overall),
	}

	potential := 0.0
	for _, cat := range report.Categories {
		catTop, hasTop := b.TopPerformers[cat.Name]
		if hasTop {
			potential += math.Max(0, catTop-cat.Score) * cat.Weight / 100
		}
		catIndustry, hasIndustry := b.IndustryAverage[cat.Name]
		if !hasIndustry {
			continue
		}
		if !hasTop {
			catTop = catIndustry
		}
		analysis.CategoryGaps[cat.Name] = models.BenchmarkComparison{
			Benchmark:  catIndustry,
			Difference: round2(cat.Score - catIndustry),
			Level:      BenchmarkLevel(cat.Score, catIndustry, catTop),
		}
	}
	analysis.ImprovementPotential = round2(potential)
	return analysis
}

// BenchmarkLevel labels a score relative to industry and top-performer references.
func BenchmarkLevel(score, industry, top float64) string {
	switch {
	case score >= top:
		return "leading"
	case score >= industry:
		return "above_average"
	case score >= industry-10:
		return "average"
	default:
		return "below_average"
	}
}

// RankingPotential estimates how likely the content is to rank well.
func RankingPotential(overall float64) string {
	switch {
	case overall >= 80:
		return "high"
	case overall >= 60:
		return "medium"
	default:
		return "low"
	}
}

// stableBand is the score change treated as no movement between reports.
const stableBand = 2.0

// CompareHistory relates current to the previous report for the same content.
// It returns nil when there is no usable previous report.
func CompareHistory(current, previous *models.ScoreReport) *models.HistoricalComparison {
	if current == nil || previous == nil || !previous.Valid || previous.ID == current.ID {
		return nil
	}

	change := round2(current.Overall - previous.Overall)
	trend := "stable"
	switch {
	case change > stableBand:
		trend = "improving"
	case change < -stableBand:
		trend = "declining"
	}
	return &models.HistoricalComparison{
		PreviousScore: previous.Overall,
		PreviousAt:    previous.GeneratedAt,
		Change:        change,
		Trend:         trend,
	}
}
