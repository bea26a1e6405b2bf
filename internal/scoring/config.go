package scoring

import (
	"fmt"
	"math"

	"github.com/spf13/viper"

	"github.com/inferloop/contentscore/pkg/errors"
)

const weightTolerance = 1e-6

// Criterion is a single weighted aspect inside a category.
type Criterion struct {
	Name   string             `json:"name" yaml:"name" mapstructure:"name"`
	Weight float64            `json:"weight" yaml:"weight" mapstructure:"weight"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
}

// Param returns a tuning parameter or def when it is not set.
func (c Criterion) Param(name string, def float64) float64 {
	if v, ok := c.Params[name]; ok {
		return v
	}
	return def
}

// Category is a top-level scoring dimension.
type Category struct {
	Name     string      `json:"name" yaml:"name" mapstructure:"name"`
	Weight   float64     `json:"weight" yaml:"weight" mapstructure:"weight"`
	Criteria []Criterion `json:"criteria" yaml:"criteria" mapstructure:"criteria"`
}

// Config is the ordered set of categories a content item is scored against.
// It is treated as read-only once validated.
type Config struct {
	Categories []Category `json:"categories" yaml:"categories" mapstructure:"categories"`
}

// Validate checks weight sums and naming. When registry is non-nil every
// criterion must also have a registered evaluator.
func (c *Config) Validate(registry *Registry) error {
	ve := errors.NewValidationErrors()
	ve.Message = "invalid scoring configuration"

	if c == nil || len(c.Categories) == 0 {
		ve.Add("categories", errors.CodeMissingField, "at least one category is required", nil)
		return configError(ve)
	}

	seenCategories := make(map[string]bool, len(c.Categories))
	total := 0.0
	for i, cat := range c.Categories {
		field := fmt.Sprintf("categories[%d]", i)
		if cat.Name == "" {
			ve.Add(field+".name", errors.CodeMissingField, "category name is required", nil)
		} else if seenCategories[cat.Name] {
			ve.Add(field+".name", errors.CodeDuplicateName, fmt.Sprintf("duplicate category %q", cat.Name), cat.Name)
		}
		seenCategories[cat.Name] = true

		if cat.Weight < 0 || cat.Weight > 100 {
			ve.Add(field+".weight", errors.CodeOutOfRange, "weight must be between 0 and 100", cat.Weight)
		}
		total += cat.Weight

		if len(cat.Criteria) == 0 {
			ve.Add(field+".criteria", errors.CodeMissingField, fmt.Sprintf("category %q has no criteria", cat.Name), nil)
			continue
		}

		seenCriteria := make(map[string]bool, len(cat.Criteria))
		subtotal := 0.0
		for j, crit := range cat.Criteria {
			cfield := fmt.Sprintf("%s.criteria[%d]", field, j)
			if crit.Name == "" {
				ve.Add(cfield+".name", errors.CodeMissingField, "criterion name is required", nil)
			} else if seenCriteria[crit.Name] {
				ve.Add(cfield+".name", errors.CodeDuplicateName, fmt.Sprintf("duplicate criterion %q", crit.Name), crit.Name)
			}
			seenCriteria[crit.Name] = true

			if crit.Weight < 0 || crit.Weight > 100 {
				ve.Add(cfield+".weight", errors.CodeOutOfRange, "weight must be between 0 and 100", crit.Weight)
			}
			subtotal += crit.Weight

			if registry != nil && crit.Name != "" && !registry.Has(crit.Name) {
				ve.Add(cfield+".name", errors.CodeUnregisteredCriteria,
					fmt.Sprintf("criterion %q has no registered evaluator", crit.Name), crit.Name)
			}
		}
		if math.Abs(subtotal-100) > weightTolerance {
			ve.Add(field+".criteria", errors.CodeWeightSum,
				fmt.Sprintf("criterion weights in %q sum to %g, expected 100", cat.Name, subtotal), subtotal)
		}
	}

	if math.Abs(total-100) > weightTolerance {
		ve.Add("categories", errors.CodeWeightSum,
			fmt.Sprintf("category weights sum to %g, expected 100", total), total)
	}

	if ve.HasErrors() {
		return configError(ve)
	}
	return nil
}

// Criterion looks up a criterion by category and name.
func (c *Config) Criterion(category, name string) (Criterion, bool) {
	for _, cat := range c.Categories {
		if cat.Name != category {
			continue
		}
		for _, crit := range cat.Criteria {
			if crit.Name == name {
				return crit, true
			}
		}
	}
	return Criterion{}, false
}

func configError(ve *errors.ValidationErrors) error {
	return errors.NewConfigurationError(errors.CodeInvalidConfig, ve.Message).
		WithDetails(ve.Error()).
		WithCause(ve)
}

// LoadConfig reads a scoring configuration from a YAML or JSON file and
// validates it against registry.
func LoadConfig(path string, registry *Registry) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeConfigLoadFailed,
			"failed to read scoring config").WithDetails(path)
	}

	return decodeConfig(v, registry)
}

func decodeConfig(v *viper.Viper, registry *Registry) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeConfigLoadFailed,
			"failed to decode scoring config")
	}
	if err := cfg.Validate(registry); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns the built-in four-category configuration.
func DefaultConfig() *Config {
	return &Config{
		Categories: []Category{
			{
				Name:   CategoryContentQuality,
				Weight: 40,
				Criteria: []Criterion{
					{Name: "title_optimization", Weight: 20, Params: map[string]float64{"min_length": 30, "max_length": 60}},
					{Name: "meta_description", Weight: 15, Params: map[string]float64{"min_length": 150, "max_length": 160}},
					{Name: "content_length", Weight: 15, Params: map[string]float64{"min_words": 300, "optimal_words": 1500}},
					{Name: "keyword_optimization", Weight: 20, Params: map[string]float64{"min_density": 0.5, "max_density": 2.5}},
					{Name: "readability", Weight: 15, Params: map[string]float64{"flesch_target": 60, "max_sentence_length": 20, "max_paragraph_length": 150}},
					{Name: "internal_linking", Weight: 10, Params: map[string]float64{"min_links": 2, "optimal_links": 5}},
					{Name: "image_optimization", Weight: 5},
				},
			},
			{
				Name:   CategoryTechnicalSEO,
				Weight: 30,
				Criteria: []Criterion{
					{Name: "page_speed", Weight: 25, Params: map[string]float64{"good_lcp_ms": 2500, "poor_lcp_ms": 4000}},
					{Name: "mobile_optimization", Weight: 20},
					{Name: "crawlability", Weight: 15},
					{Name: "security", Weight: 15},
					{Name: "schema_markup", Weight: 15},
					{Name: "canonical_urls", Weight: 10},
				},
			},
			{
				Name:   CategorySocialOptimization,
				Weight: 15,
				Criteria: []Criterion{
					{Name: "open_graph_tags", Weight: 40},
					{Name: "twitter_cards", Weight: 30},
					{Name: "social_sharing", Weight: 20},
					{Name: "content_shareability", Weight: 10},
				},
			},
			{
				Name:   CategoryUserExperience,
				Weight: 15,
				Criteria: []Criterion{
					{Name: "page_layout", Weight: 25},
					{Name: "content_accessibility", Weight: 25},
					{Name: "engagement_metrics", Weight: 25},
					{Name: "conversion_optimization", Weight: 25},
				},
			},
		},
	}
}

// Category names used by the built-in configuration.
const (
	CategoryContentQuality     = "content_quality"
	CategoryTechnicalSEO       = "technical_seo"
	CategorySocialOptimization = "social_optimization"
	CategoryUserExperience     = "user_experience"
)
