package models

import "time"

// Tier classifies a criterion score.
type Tier string

const (
	TierStrength    Tier = "strength"
	TierCritical    Tier = "critical"
	TierOpportunity Tier = "opportunity"
	TierNone        Tier = "none"
)

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// CriterionResult is the outcome of one evaluator.
type CriterionResult struct {
	Criterion      string                 `json:"criterion"`
	Category       string                 `json:"category"`
	Score          float64                `json:"score"`
	Weight         float64                `json:"weight"`
	Message        string                 `json:"message"`
	Recommendation string                 `json:"recommendation,omitempty"`
	Tier           Tier                   `json:"tier"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// CategoryResult aggregates the criteria of one category.
type CategoryResult struct {
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Grade        string  `json:"grade"`
	Status       string  `json:"status"`
}

// Recommendation is a prioritized action derived from a score, trend or anomaly.
type Recommendation struct {
	Source              string   `json:"source"`
	Category            string   `json:"category,omitempty"`
	Text                string   `json:"text"`
	Priority            Priority `json:"priority"`
	Effort              string   `json:"effort"`
	Impact              float64  `json:"impact"`
	ExpectedImprovement float64  `json:"expected_improvement"`
}

// Finding is a strength, critical issue or improvement opportunity.
type Finding struct {
	Criterion      string   `json:"criterion"`
	Category       string   `json:"category"`
	Score          float64  `json:"score"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation,omitempty"`
	Priority       Priority `json:"priority,omitempty"`
	Impact         float64  `json:"impact,omitempty"`
}

// BenchmarkComparison compares a score against a reference level.
type BenchmarkComparison struct {
	Benchmark  float64 `json:"benchmark"`
	Difference float64 `json:"difference"`
	Level      string  `json:"level"`
}

// CompetitiveAnalysis positions a report against industry references.
type CompetitiveAnalysis struct {
	VsIndustryAverage    BenchmarkComparison            `json:"vs_industry_average"`
	VsTopPerformers      BenchmarkComparison            `json:"vs_top_performers"`
	CategoryGaps         map[string]BenchmarkComparison `json:"category_gaps"`
	RankingPotential     string                         `json:"ranking_potential"`
	ImprovementPotential float64                        `json:"improvement_potential"`
}

// HistoricalComparison relates a report to the previous one for the same item.
type HistoricalComparison struct {
	PreviousScore float64   `json:"previous_score"`
	PreviousAt    time.Time `json:"previous_at"`
	Change        float64   `json:"change"`
	Trend         string    `json:"trend"`
}

// ScoreReport is the immutable result of scoring one content item.
type ScoreReport struct {
	ID              string                `json:"id"`
	ContentID       string                `json:"content_id"`
	Title           string                `json:"title,omitempty"`
	Valid           bool                  `json:"valid"`
	Overall         float64               `json:"overall"`
	Grade           string                `json:"grade"`
	Categories      []CategoryResult      `json:"categories"`
	Criteria        []CriterionResult     `json:"criteria"`
	Recommendations []Recommendation      `json:"recommendations"`
	Strengths       []Finding             `json:"strengths"`
	CriticalIssues  []Finding             `json:"critical_issues"`
	Opportunities   []Finding             `json:"opportunities"`
	Competitive     *CompetitiveAnalysis  `json:"competitive,omitempty"`
	Historical      *HistoricalComparison `json:"historical,omitempty"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

// Category returns the named category result.
func (r *ScoreReport) Category(name string) (CategoryResult, bool) {
	for _, c := range r.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return CategoryResult{}, false
}
