package analytics

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/contentscore/pkg/errors"
)

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, 7, config.MinDataPoints)
	assert.Equal(t, MethodLinearRegression, config.Forecast.Method)
	assert.True(t, config.isInverse("bounce_rate"))
	assert.False(t, config.isInverse("organic_traffic"))

	total := 0.0
	for _, w := range config.Insights.HealthWeights {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestConfigValidateCollectsErrors(t *testing.T) {
	config := DefaultConfig()
	config.MinDataPoints = 1
	config.Anomaly.Sensitivity = "extreme"
	config.Forecast.Confidence = 0.8
	config.Forecast.Alpha = 1.5

	err := config.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	var ve *errors.ValidationErrors
	require.True(t, stderrors.As(err, &ve))
	assert.Len(t, ve.Errors, 4)

	fields := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "min_data_points")
	assert.Contains(t, fields, "anomaly.sensitivity")
	assert.Contains(t, fields, "forecast.confidence")
	assert.Contains(t, fields, "forecast.alpha")
}

func TestConfigValidateWindow(t *testing.T) {
	config := DefaultConfig()
	config.Anomaly.MinWindowPoints = 9

	assert.Error(t, config.Validate())
}
