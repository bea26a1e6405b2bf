package analytics

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	mathutil "github.com/inferloop/contentscore/internal/utils/math"
	"github.com/inferloop/contentscore/pkg/models"
)

// CorrelationAnalyzer relates metrics to each other
type CorrelationAnalyzer struct {
	config *Config
	logger *logrus.Logger
}

// NewCorrelationAnalyzer creates a correlation analyzer
func NewCorrelationAnalyzer(config *Config, logger *logrus.Logger) *CorrelationAnalyzer {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CorrelationAnalyzer{config: config, logger: logger}
}

// Analyze computes the symmetric Pearson matrix over every metric pair. Each
// pair is inner-joined on timestamp and z-normalized before correlating.
// Pairs with fewer than the minimum paired samples get coefficient 0.
func (a *CorrelationAnalyzer) Analyze(series map[string]*models.MetricSeries) *models.CorrelationReport {
	metrics := make([]string, 0, len(series))
	for name, s := range series {
		if s != nil {
			metrics = append(metrics, name)
		}
	}
	sort.Strings(metrics)

	report := &models.CorrelationReport{
		Metrics:     metrics,
		Matrix:      make([][]float64, len(metrics)),
		Entries:     make([]models.CorrelationEntry, 0),
		Significant: make([]models.CorrelationEntry, 0),
		Lagged:      make([]models.CorrelationEntry, 0),
	}
	for i := range metrics {
		report.Matrix[i] = make([]float64, len(metrics))
		report.Matrix[i][i] = 1
	}

	for i := 0; i < len(metrics); i++ {
		for j := i + 1; j < len(metrics); j++ {
			xs, ys := innerJoin(series[metrics[i]], series[metrics[j]])

			entry := a.correlate(metrics[i], metrics[j], xs, ys, 0)
			report.Matrix[i][j] = entry.Coefficient
			report.Matrix[j][i] = entry.Coefficient
			report.Entries = append(report.Entries, entry)
			if entry.Significant {
				report.Significant = append(report.Significant, entry)
			}

			if lagged, ok := a.bestLag(metrics[i], metrics[j], xs, ys); ok {
				report.Lagged = append(report.Lagged, lagged)
			}
		}
	}

	sort.SliceStable(report.Significant, func(i, j int) bool {
		return math.Abs(report.Significant[i].Coefficient) > math.Abs(report.Significant[j].Coefficient)
	})

	a.logger.WithFields(logrus.Fields{
		"metrics":     len(metrics),
		"significant": len(report.Significant),
		"lagged":      len(report.Lagged),
	}).Debug("Computed correlation matrix")
	return report
}

// correlate builds the entry for paired samples. A positive lag means metric a
// leads metric b by lag periods.
func (a *CorrelationAnalyzer) correlate(metricA, metricB string, xs, ys []float64, lag int) models.CorrelationEntry {
	n := len(xs)
	entry := models.CorrelationEntry{
		MetricA:    metricA,
		MetricB:    metricB,
		SampleSize: n,
		PValue:     1,
		Lag:        lag,
		Strength:   CorrelationStrength(0),
	}
	if n < a.config.Correlation.MinSamples || n < 2 {
		return entry
	}

	r := mathutil.PearsonCorrelation(mathutil.Normalize(xs), mathutil.Normalize(ys))
	entry.Coefficient = round4(r)
	entry.PValue = mathutil.CorrelationPValue(r, n)
	entry.Significant = math.Abs(r) >= a.config.Correlation.Threshold
	entry.Strength = CorrelationStrength(r)
	return entry
}

// bestLag searches shifts in [-MaxLag, MaxLag] excluding zero and returns the
// strongest significant one.
func (a *CorrelationAnalyzer) bestLag(metricA, metricB string, xs, ys []float64) (models.CorrelationEntry, bool) {
	var best models.CorrelationEntry
	found := false
	for lag := -a.config.Correlation.MaxLag; lag <= a.config.Correlation.MaxLag; lag++ {
		if lag == 0 {
			continue
		}
		lx, ly := shift(xs, ys, lag)
		entry := a.correlate(metricA, metricB, lx, ly, lag)
		if !entry.Significant {
			continue
		}
		if !found || math.Abs(entry.Coefficient) > math.Abs(best.Coefficient) {
			best = entry
			found = true
		}
	}
	return best, found
}

// shift pairs xs[t] with ys[t+lag].
func shift(xs, ys []float64, lag int) ([]float64, []float64) {
	n := len(xs)
	if lag >= n || -lag >= n {
		return nil, nil
	}
	if lag >= 0 {
		return xs[:n-lag], ys[lag:]
	}
	return xs[-lag:], ys[:n+lag]
}

// innerJoin pairs the values of a and b that share a timestamp, in time order.
func innerJoin(a, b *models.MetricSeries) ([]float64, []float64) {
	na, nb := a.Normalized(), b.Normalized()
	byTime := make(map[int64]float64, nb.Len())
	for _, p := range nb.Points {
		byTime[p.Timestamp.UnixNano()] = p.Value
	}

	xs := make([]float64, 0, na.Len())
	ys := make([]float64, 0, na.Len())
	for _, p := range na.Points {
		if v, ok := byTime[p.Timestamp.UnixNano()]; ok {
			xs = append(xs, p.Value)
			ys = append(ys, v)
		}
	}
	return xs, ys
}

// CorrelationStrength labels the magnitude of a coefficient.
func CorrelationStrength(r float64) string {
	switch r = math.Abs(r); {
	case r >= 0.7:
		return "strong"
	case r >= 0.4:
		return "moderate"
	case r >= 0.2:
		return "weak"
	default:
		return "negligible"
	}
}
