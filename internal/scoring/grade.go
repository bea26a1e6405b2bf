package scoring

import (
	"math"

	"github.com/inferloop/contentscore/pkg/models"
)

// Score thresholds shared by tiers, priorities and recommendations.
const (
	StrengthThreshold       = 90.0
	CriticalThreshold       = 30.0
	OpportunityThreshold    = 70.0
	MediumPriorityThreshold = 50.0
)

type gradeBand struct {
	min   float64
	grade string
}

// Inclusive lower bounds, highest first.
var gradeBands = []gradeBand{
	{90, "A+"},
	{80, "A"},
	{70, "B"},
	{60, "C"},
	{50, "D"},
}

// Grade maps a 0-100 score to a letter grade.
func Grade(score float64) string {
	for _, b := range gradeBands {
		if score >= b.min {
			return b.grade
		}
	}
	return "F"
}

// CategoryStatus labels a category score.
func CategoryStatus(score float64) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "needs_improvement"
	default:
		return "poor"
	}
}

// TierFor classifies a criterion score.
func TierFor(score float64) models.Tier {
	switch {
	case score >= StrengthThreshold:
		return models.TierStrength
	case score < CriticalThreshold:
		return models.TierCritical
	case score < OpportunityThreshold:
		return models.TierOpportunity
	default:
		return models.TierNone
	}
}

// PriorityFor maps a criterion score to a recommendation priority.
func PriorityFor(score float64) models.Priority {
	switch {
	case score < CriticalThreshold:
		return models.PriorityHigh
	case score < MediumPriorityThreshold:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// ExpectedImprovement estimates the score gain from acting on a recommendation.
func ExpectedImprovement(score float64) float64 {
	return math.Min(30, math.Max(5, 100-score))
}

// EstimatedImpact estimates the overall impact of fixing a criterion.
func EstimatedImpact(score float64) float64 {
	return math.Max(10, 100-score)
}

var effortLevels = map[string]string{
	"title_optimization":  "low",
	"meta_description":    "low",
	"canonical_urls":      "low",
	"open_graph_tags":     "low",
	"twitter_cards":       "low",
	"image_optimization":  "low",
	"page_speed":          "high",
	"mobile_optimization": "high",
	"content_length":      "high",
	"engagement_metrics":  "high",
}

// EffortFor returns the estimated effort to improve a criterion.
func EffortFor(criterion string) string {
	if e, ok := effortLevels[criterion]; ok {
		return e
	}
	return "medium"
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
