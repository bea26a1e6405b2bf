package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormatting(t *testing.T) {
	err := NewConfigurationError(CodeWeightSum, "category weights must sum to 100")
	assert.Equal(t, "WEIGHT_SUM: category weights must sum to 100", err.Error())

	err.WithDetails("got 90")
	assert.Equal(t, "WEIGHT_SUM: category weights must sum to 100 - got 90", err.Error())
	assert.Equal(t, 400, err.HTTPStatus)
}

func TestWrapErrorUnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("dial: %w", ErrConnectionFailed)
	err := WrapError(cause, ErrorTypeStorage, CodeConnectionFailed, "Failed to connect to Redis")

	require.ErrorIs(t, err, ErrConnectionFailed)
	assert.True(t, err.Retryable)
	assert.True(t, IsType(err, ErrorTypeStorage))
	assert.False(t, IsType(err, ErrorTypeAnalysis))
}

func TestAppErrorIsMatchesTypeAndCode(t *testing.T) {
	a := NewAnalysisError(CodeInsufficientData, "need 7 points")
	b := NewAnalysisError(CodeInsufficientData, "different message")
	c := NewAnalysisError(CodeInvalidHorizon, "need 7 points")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestValidationErrorsCollect(t *testing.T) {
	ve := NewValidationErrors()
	assert.False(t, ve.HasErrors())

	ve.Add("categories", CodeWeightSum, "weights sum to 90", 90.0)
	ve.Add("categories[0].criteria", CodeWeightSum, "weights sum to 110", 110.0)

	require.True(t, ve.HasErrors())
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, ve.Error(), "categories: weights sum to 90")
	assert.Contains(t, ve.Error(), "categories[0].criteria: weights sum to 110")
}

func TestHTTPStatusOf(t *testing.T) {
	assert.Equal(t, 422, HTTPStatusOf(NewAnalysisError(CodeAnalysisFailed, "x")))
	assert.Equal(t, 400, HTTPStatusOf(fmt.Errorf("wrapped: %w", NewValidationErrors())))
	assert.Equal(t, 500, HTTPStatusOf(errors.New("plain")))
}
