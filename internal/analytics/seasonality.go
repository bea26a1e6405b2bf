package analytics

import (
	"math"

	mathutil "github.com/inferloop/contentscore/internal/utils/math"
	"github.com/inferloop/contentscore/pkg/models"
)

// minSeasonalStrength is the smallest autocorrelation accepted as a pattern
// regardless of sample size.
const minSeasonalStrength = 0.3

// DetectSeasonality searches lags 2..maxPeriod for the strongest positive,
// significant autocorrelation. A period is only accepted when the series
// covers at least two full cycles.
func DetectSeasonality(values []float64, maxPeriod int) models.SeasonalityInfo {
	n := len(values)
	info := models.SeasonalityInfo{}
	if n < 4 || mathutil.Variance(values) == 0 {
		return info
	}

	if maxPeriod <= 0 || maxPeriod > n/2 {
		maxPeriod = n / 2
	}
	// approximate 95% significance bound for white noise
	bound := math.Max(minSeasonalStrength, 1.96/math.Sqrt(float64(n)))

	best, bestACF := 0, 0.0
	for lag := 2; lag <= maxPeriod; lag++ {
		acf := mathutil.AutoCorrelation(values, lag)
		if acf > bestACF {
			best, bestACF = lag, acf
		}
	}

	info.Autocorrelation = round4(bestACF)
	if best == 0 || bestACF <= bound || n < 2*best {
		return info
	}

	info.Detected = true
	info.Period = best
	info.Strength = round4(bestACF)
	return info
}

// seasonalProfile returns, for each point, the mean of the other points in the
// same phase of period. Points without a same-phase peer get NaN.
func seasonalProfile(values []float64, period int) []float64 {
	expected := make([]float64, len(values))
	for i := range values {
		sum, count := 0.0, 0
		for j := i % period; j < len(values); j += period {
			if j == i {
				continue
			}
			sum += values[j]
			count++
		}
		if count == 0 {
			expected[i] = math.NaN()
			continue
		}
		expected[i] = sum / float64(count)
	}
	return expected
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
