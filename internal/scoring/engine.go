package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/pkg/models"
)

// Engine computes weighted quality scores for content items.
type Engine struct {
	registry *Registry
	config   *EngineConfig
	logger   *logrus.Logger
	clock    func() time.Time
	observer Observer
}

// EngineConfig contains configuration for the scoring engine
type EngineConfig struct {
	MaxRecommendations      int        `json:"max_recommendations" yaml:"max_recommendations" mapstructure:"max_recommendations"`
	RecommendationThreshold float64    `json:"recommendation_threshold" yaml:"recommendation_threshold" mapstructure:"recommendation_threshold"`
	Benchmarks              Benchmarks `json:"benchmarks" yaml:"benchmarks" mapstructure:"benchmarks"`
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxRecommendations:      10,
		RecommendationThreshold: OpportunityThreshold,
		Benchmarks:              DefaultBenchmarks(),
	}
}

// Observer receives telemetry for every scoring run.
type Observer interface {
	ObserveScore(report *models.ScoreReport, duration time.Duration)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the time source used for report timestamps and IDs.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithObserver attaches a telemetry observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates a scoring engine. A nil registry uses the built-in evaluators.
func NewEngine(registry *Registry, config *EngineConfig, logger *logrus.Logger, opts ...Option) *Engine {
	if registry == nil {
		registry = NewDefaultRegistry()
	}
	if config == nil {
		config = DefaultEngineConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	e := &Engine{
		registry: registry,
		config:   config,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the evaluator registry used by the engine.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Score evaluates item against cfg. Missing or unpublished content produces a
// default report rather than an error; an invalid cfg is rejected.
//
// Scores, findings and recommendations depend only on item and cfg. The report
// ID and GeneratedAt come from the engine clock, so byte-identical reports for
// the same input need a fixed clock (see WithClock).
func (e *Engine) Score(item *models.ContentItem, cfg *Config) (*models.ScoreReport, error) {
	start := time.Now()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(nil); err != nil {
		return nil, err
	}

	generatedAt := e.clock().UTC()
	fingerprint := Fingerprint(item, cfg)
	id := reportID(fingerprint, generatedAt)

	if !item.IsPublished() {
		report := invalidReport(id, item, generatedAt)
		e.logger.WithFields(logrus.Fields{
			"report_id":  id,
			"content_id": report.ContentID,
		}).Warn("Content is missing or not published, returning default report")
		e.observe(report, time.Since(start))
		return report, nil
	}

	doc, err := NewDocument(item)
	if err != nil {
		return nil, err
	}

	report := &models.ScoreReport{
		ID:          id,
		ContentID:   item.ID,
		Title:       item.Title,
		Valid:       true,
		GeneratedAt: generatedAt,
	}

	var weighted, totalWeight float64
	for _, cat := range cfg.Categories {
		var catWeighted, catWeight float64
		for _, crit := range cat.Criteria {
			res := e.registry.evaluate(doc, cat.Name, crit)
			report.Criteria = append(report.Criteria, res)
			catWeighted += res.Score * crit.Weight
			catWeight += crit.Weight
		}

		score := 0.0
		if catWeight > 0 {
			score = round2(catWeighted / catWeight)
		}
		report.Categories = append(report.Categories, models.CategoryResult{
			Name:         cat.Name,
			Score:        score,
			Weight:       cat.Weight,
			Contribution: round2(score * cat.Weight / 100),
			Grade:        Grade(score),
			Status:       CategoryStatus(score),
		})
		weighted += score * cat.Weight
		totalWeight += cat.Weight
	}

	if totalWeight > 0 {
		report.Overall = round2(clampScore(weighted / totalWeight))
	}
	report.Grade = Grade(report.Overall)
	report.Recommendations = e.recommendations(report.Criteria)
	report.Strengths, report.CriticalIssues, report.Opportunities = findings(report.Criteria)
	report.Competitive = e.config.Benchmarks.Compare(report)

	e.logger.WithFields(logrus.Fields{
		"report_id":  id,
		"content_id": item.ID,
		"overall":    report.Overall,
		"grade":      report.Grade,
		"criteria":   len(report.Criteria),
	}).Debug("Scored content item")

	e.observe(report, time.Since(start))
	return report, nil
}

func (e *Engine) observe(report *models.ScoreReport, d time.Duration) {
	if e.observer != nil {
		e.observer.ObserveScore(report, d)
	}
}

// recommendations builds the ranked recommendation list from criteria below
// the recommendation threshold.
func (e *Engine) recommendations(criteria []models.CriterionResult) []models.Recommendation {
	threshold := e.config.RecommendationThreshold
	if threshold <= 0 {
		threshold = OpportunityThreshold
	}

	recs := make([]models.Recommendation, 0)
	for _, c := range criteria {
		if c.Score >= threshold {
			continue
		}
		text := c.Recommendation
		if text == "" {
			text = c.Message
		}
		recs = append(recs, models.Recommendation{
			Source:              c.Criterion,
			Category:            c.Category,
			Text:                text,
			Priority:            PriorityFor(c.Score),
			Effort:              EffortFor(c.Criterion),
			Impact:              EstimatedImpact(c.Score),
			ExpectedImprovement: ExpectedImprovement(c.Score),
		})
	}

	RankRecommendations(recs)
	if max := e.config.MaxRecommendations; max > 0 && len(recs) > max {
		recs = recs[:max]
	}
	return recs
}

// RankRecommendations sorts by priority, then impact, then source.
func RankRecommendations(recs []models.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		pi, pj := recs[i].Priority.Rank(), recs[j].Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		if recs[i].Impact != recs[j].Impact {
			return recs[i].Impact > recs[j].Impact
		}
		return recs[i].Source < recs[j].Source
	})
}

func findings(criteria []models.CriterionResult) (strengths, critical, opportunities []models.Finding) {
	strengths = make([]models.Finding, 0)
	critical = make([]models.Finding, 0)
	opportunities = make([]models.Finding, 0)

	for _, c := range criteria {
		f := models.Finding{
			Criterion:      c.Criterion,
			Category:       c.Category,
			Score:          c.Score,
			Message:        c.Message,
			Recommendation: c.Recommendation,
		}
		switch c.Tier {
		case models.TierStrength:
			strengths = append(strengths, f)
		case models.TierCritical:
			f.Priority = models.PriorityHigh
			f.Impact = EstimatedImpact(c.Score)
			critical = append(critical, f)
		case models.TierOpportunity:
			f.Priority = PriorityFor(c.Score)
			f.Impact = EstimatedImpact(c.Score)
			opportunities = append(opportunities, f)
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].Impact > opportunities[j].Impact
	})
	return strengths, critical, opportunities
}

func invalidReport(id string, item *models.ContentItem, generatedAt time.Time) *models.ScoreReport {
	report := &models.ScoreReport{
		ID:              id,
		Valid:           false,
		Overall:         0,
		Grade:           Grade(0),
		Categories:      make([]models.CategoryResult, 0),
		Criteria:        make([]models.CriterionResult, 0),
		Recommendations: make([]models.Recommendation, 0),
		Strengths:       make([]models.Finding, 0),
		Opportunities:   make([]models.Finding, 0),
		CriticalIssues: []models.Finding{{
			Criterion: "content",
			Message:   "invalid content",
			Priority:  models.PriorityHigh,
			Impact:    100,
		}},
		GeneratedAt: generatedAt,
	}
	if item != nil {
		report.ContentID = item.ID
		report.Title = item.Title
	}
	return report
}

// Fingerprint hashes the scoring inputs. Identical items scored with identical
// configurations share a fingerprint.
func Fingerprint(item *models.ContentItem, cfg *Config) string {
	payload, err := json.Marshal(struct {
		Item   *models.ContentItem `json:"item"`
		Config *Config             `json:"config"`
	}{item, cfg})
	if err != nil {
		// NaN parameters cannot be encoded as JSON
		payload = []byte(fmt.Sprintf("%+v|%+v", item, cfg))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func reportID(fingerprint string, at time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fingerprint+"|"+at.Format(time.RFC3339Nano))).String()
}
