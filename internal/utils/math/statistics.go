package math

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Median calculates the median of a slice of float64 values
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := sortedCopy(values)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Mode returns the most frequent value. Ties resolve to the smallest value so
// the result does not depend on map iteration order.
func Mode(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	frequency := make(map[float64]int, len(values))
	for _, v := range values {
		frequency[v]++
	}

	mode, maxFreq := 0.0, 0
	for val, freq := range frequency {
		if freq > maxFreq || (freq == maxFreq && val < mode) {
			maxFreq = freq
			mode = val
		}
	}
	return mode
}

// Min returns the smallest value, 0 for an empty slice
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Min(values)
}

// Max returns the largest value, 0 for an empty slice
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values)
}

// Variance calculates the sample variance. Returns 0 for fewer than two values.
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.Variance(values, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// CoefficientOfVariation returns stddev/|mean|, 0 when the mean is 0
func CoefficientOfVariation(values []float64) float64 {
	mean := Mean(values)
	if mean == 0 {
		return 0
	}
	return StandardDeviation(values) / math.Abs(mean)
}

// ZScore returns (value-mean)/stddev, 0 when stddev is 0
func ZScore(value, mean, stddev float64) float64 {
	if stddev == 0 || math.IsNaN(stddev) {
		return 0
	}
	return (value - mean) / stddev
}

// Normalize z-normalizes values. A zero-variance input maps to all zeros.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	mean := Mean(values)
	sd := StandardDeviation(values)
	for i, v := range values {
		out[i] = ZScore(v, mean, sd)
	}
	return out
}

// MovingAverage returns the mean of the last window values. When fewer than
// window values are available it degrades to the mean of all of them.
func MovingAverage(values []float64, window int) float64 {
	if len(values) == 0 {
		return 0
	}
	if window <= 0 || len(values) < window {
		return Mean(values)
	}
	return Mean(values[len(values)-window:])
}

// RollingMean returns the trailing moving average at every index
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		out[i] = Mean(values[start : i+1])
	}
	return out
}

// ExponentialMovingAverage returns the final EMA with smoothing factor
// alpha = 2/(window+1), seeded with the first value.
func ExponentialMovingAverage(values []float64, window int) float64 {
	if len(values) == 0 {
		return 0
	}
	if window < 1 {
		window = 1
	}
	alpha := 2.0 / float64(window+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// Regression is the result of an ordinary least squares fit of y on x.
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	PValue    float64 `json:"p_value"`
	StdErr    float64 `json:"std_err"`
	N         int     `json:"n"`
}

// Predict evaluates the fitted line at x
func (r Regression) Predict(x float64) float64 {
	return r.Intercept + r.Slope*x
}

// LinearRegression fits values against their indexes 0..n-1
func LinearRegression(values []float64) Regression {
	x := make([]float64, len(values))
	for i := range x {
		x[i] = float64(i)
	}
	return LinearRegressionXY(x, values)
}

// LinearRegressionXY fits y = intercept + slope*x. Slope and R² are 0 when
// n<2 or every x is identical.
func LinearRegressionXY(x, y []float64) Regression {
	n := len(y)
	if n != len(x) || n < 2 {
		return Regression{Intercept: Mean(y), PValue: 1, N: n}
	}
	if Variance(x) == 0 {
		return Regression{Intercept: Mean(y), PValue: 1, N: n}
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)

	reg := Regression{Slope: beta, Intercept: alpha, PValue: 1, N: n}

	ssTot := 0.0
	meanY := Mean(y)
	for _, v := range y {
		ssTot += (v - meanY) * (v - meanY)
	}
	if ssTot > 0 {
		reg.RSquared = clamp(stat.RSquared(x, y, nil, alpha, beta), 0, 1)
	}

	if n < 3 {
		return reg
	}

	ssRes := 0.0
	for i := range y {
		r := y[i] - reg.Predict(x[i])
		ssRes += r * r
	}
	meanX := Mean(x)
	sxx := 0.0
	for _, v := range x {
		sxx += (v - meanX) * (v - meanX)
	}

	reg.StdErr = math.Sqrt(ssRes/float64(n-2)) / math.Sqrt(sxx)
	switch {
	case reg.StdErr == 0 && beta != 0:
		reg.PValue = 0
	case reg.StdErr == 0:
		reg.PValue = 1
	default:
		reg.PValue = studentTwoTailed(beta/reg.StdErr, float64(n-2))
	}
	return reg
}

// Residuals returns y minus the fitted values
func (r Regression) Residuals(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = v - r.Predict(float64(i))
	}
	return out
}

// PearsonCorrelation returns the correlation coefficient of paired samples.
// Returns 0 for mismatched lengths, fewer than two pairs or zero variance.
func PearsonCorrelation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	if Variance(a) == 0 || Variance(b) == 0 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0
	}
	return clamp(r, -1, 1)
}

// CorrelationPValue returns the two-tailed p-value of a Pearson coefficient
// computed from n pairs.
func CorrelationPValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	t := r * math.Sqrt(float64(n-2)/(1-r*r))
	return studentTwoTailed(t, float64(n-2))
}

// AutoCorrelation returns the sample autocorrelation at lag, normalized by
// the lag-0 autocovariance.
func AutoCorrelation(values []float64, lag int) float64 {
	n := len(values)
	if lag <= 0 || lag >= n {
		return 0
	}

	mean := Mean(values)
	c0 := 0.0
	for _, v := range values {
		c0 += (v - mean) * (v - mean)
	}
	if c0 == 0 {
		return 0
	}

	ck := 0.0
	for t := 0; t < n-lag; t++ {
		ck += (values[t] - mean) * (values[t+lag] - mean)
	}
	return ck / c0
}

// Quartiles returns the first and third quartiles using linear interpolation
func Quartiles(values []float64) (q1, q3 float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sorted := sortedCopy(values)
	return stat.Quantile(0.25, stat.LinInterp, sorted, nil), stat.Quantile(0.75, stat.LinInterp, sorted, nil)
}

// OutlierIndexes returns indexes outside [Q1-k·IQR, Q3+k·IQR]
func OutlierIndexes(values []float64, k float64) []int {
	outliers := make([]int, 0)
	if len(values) < 4 {
		return outliers
	}
	q1, q3 := Quartiles(values)
	iqr := q3 - q1
	lower, upper := q1-k*iqr, q3+k*iqr
	for i, v := range values {
		if v < lower || v > upper {
			outliers = append(outliers, i)
		}
	}
	return outliers
}

// PercentChange returns (to-from)/|from|*100, 0 when from is 0
func PercentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / math.Abs(from) * 100
}

func studentTwoTailed(t, df float64) float64 {
	if df <= 0 || math.IsNaN(t) {
		return 1
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * (1 - dist.CDF(math.Abs(t)))
	return clamp(p, 0, 1)
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return clamp(v, lo, hi)
}
