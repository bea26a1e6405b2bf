package scoring

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate(NewDefaultRegistry()))

	assert.Len(t, cfg.Categories, 4)
	total := 0
	for _, c := range cfg.Categories {
		total += len(c.Criteria)
	}
	assert.Equal(t, 21, total)

	crit, ok := cfg.Criterion(CategoryContentQuality, "title_optimization")
	require.True(t, ok)
	assert.Equal(t, 30.0, crit.Param("min_length", 0))
	assert.Equal(t, 7.0, crit.Param("missing", 7))
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := &Config{Categories: []Category{
		{Name: "a", Weight: 60, Criteria: []Criterion{{Name: "x", Weight: 50}, {Name: "x", Weight: 40}}},
		{Name: "a", Weight: 30, Criteria: []Criterion{{Name: "y", Weight: 120}}},
	}}

	err := cfg.Validate(nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	var ve *errors.ValidationErrors
	require.True(t, stderrors.As(err, &ve))

	codes := map[string]int{}
	for _, e := range ve.Errors {
		codes[e.Code]++
	}
	assert.Equal(t, 2, codes[errors.CodeDuplicateName])
	assert.Equal(t, 1, codes[errors.CodeOutOfRange])
	// category a (90), category a#2 (120) and the category total (90)
	assert.Equal(t, 3, codes[errors.CodeWeightSum])
}

func TestValidateEmptyConfig(t *testing.T) {
	assert.Error(t, (&Config{}).Validate(nil))

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate(nil))
}

func TestValidateUnregisteredCriteria(t *testing.T) {
	cfg := &Config{Categories: []Category{{
		Name: "only", Weight: 100,
		Criteria: []Criterion{{Name: "title_optimization", Weight: 50}, {Name: "made_up", Weight: 50}},
	}}}

	require.NoError(t, cfg.Validate(nil))

	err := cfg.Validate(NewDefaultRegistry())
	require.Error(t, err)

	var ve *errors.ValidationErrors
	require.True(t, stderrors.As(err, &ve))
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, errors.CodeUnregisteredCriteria, ve.Errors[0].Code)
	assert.Equal(t, "made_up", ve.Errors[0].Value)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scoring.yaml")
	content := `categories:
  - name: content_quality
    weight: 100
    criteria:
      - name: title_optimization
        weight: 60
        params:
          min_length: 20
          max_length: 70
      - name: readability
        weight: 40
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path, NewDefaultRegistry())
	require.NoError(t, err)
	require.Len(t, cfg.Categories, 1)

	crit, ok := cfg.Criterion("content_quality", "title_optimization")
	require.True(t, ok)
	assert.Equal(t, 60.0, crit.Weight)
	assert.Equal(t, 70.0, crit.Param("max_length", 0))
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories:\n  - name: only\n    weight: 50\n    criteria:\n      - name: readability\n        weight: 100\n"), 0o644))
	_, err = LoadConfig(path, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}
