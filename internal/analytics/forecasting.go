package analytics

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	mathutil "github.com/inferloop/contentscore/internal/utils/math"
	"github.com/inferloop/contentscore/pkg/errors"
	"github.com/inferloop/contentscore/pkg/models"
)

// Registered forecasting methods.
const (
	MethodLinearRegression     = "linear_regression"
	MethodExponentialSmoothing = "exponential_smoothing"
)

// zScores maps supported confidence levels to normal quantiles
var zScores = map[float64]float64{
	0.90: 1.645,
	0.95: 1.96,
	0.99: 2.576,
}

// Forecaster is a forecasting model. A Forecaster instance is fitted once and
// is not safe for concurrent use; the engine creates one per forecast.
type Forecaster interface {
	// Name returns the method identifier
	Name() string

	// Fit estimates the model from chronological values
	Fit(values []float64) error

	// Predict returns the next steps values after the fitted data
	Predict(steps int) ([]float64, error)

	// Residuals returns in-sample one-step errors of the fitted model
	Residuals() []float64
}

// ForecasterFactory creates an unfitted forecaster
type ForecasterFactory func(config ForecastConfig) Forecaster

// ForecasterRegistry manages forecasting algorithms
type ForecasterRegistry struct {
	mu        sync.RWMutex
	factories map[string]ForecasterFactory
}

// NewForecasterRegistry creates a registry holding the built-in methods
func NewForecasterRegistry() *ForecasterRegistry {
	registry := &ForecasterRegistry{
		factories: make(map[string]ForecasterFactory),
	}

	registry.Register(MethodLinearRegression, func(ForecastConfig) Forecaster {
		return &LinearRegressionForecaster{}
	})
	registry.Register(MethodExponentialSmoothing, func(cfg ForecastConfig) Forecaster {
		return &ExponentialSmoothingForecaster{Alpha: cfg.Alpha, Beta: cfg.Beta}
	})

	return registry
}

// Register registers a forecaster factory under name
func (fr *ForecasterRegistry) Register(name string, factory ForecasterFactory) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.factories[name] = factory
}

// Get returns the factory registered under name
func (fr *ForecasterRegistry) Get(name string) (ForecasterFactory, bool) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	f, ok := fr.factories[name]
	return f, ok
}

// Names returns the registered method names
func (fr *ForecasterRegistry) Names() []string {
	fr.mu.RLock()
	defer fr.mu.RUnlock()
	names := make([]string, 0, len(fr.factories))
	for name := range fr.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LinearRegressionForecaster extrapolates an OLS fit over the observation index
type LinearRegressionForecaster struct {
	reg    mathutil.Regression
	values []float64
}

func (f *LinearRegressionForecaster) Name() string { return MethodLinearRegression }

func (f *LinearRegressionForecaster) Fit(values []float64) error {
	if len(values) < 2 {
		return errors.ErrInsufficientData
	}
	f.values = values
	f.reg = mathutil.LinearRegression(values)
	return nil
}

func (f *LinearRegressionForecaster) Predict(steps int) ([]float64, error) {
	if f.values == nil {
		return nil, fmt.Errorf("%s: model is not fitted", f.Name())
	}
	out := make([]float64, steps)
	n := len(f.values)
	for k := 1; k <= steps; k++ {
		out[k-1] = f.reg.Predict(float64(n - 1 + k))
	}
	return out, nil
}

func (f *LinearRegressionForecaster) Residuals() []float64 {
	return f.reg.Residuals(f.values)
}

// ExponentialSmoothingForecaster implements Holt's linear trend method
type ExponentialSmoothingForecaster struct {
	Alpha float64
	Beta  float64

	level     float64
	trend     float64
	residuals []float64
	fitted    bool
}

func (f *ExponentialSmoothingForecaster) Name() string { return MethodExponentialSmoothing }

func (f *ExponentialSmoothingForecaster) Fit(values []float64) error {
	if len(values) < 2 {
		return errors.ErrInsufficientData
	}
	alpha, beta := f.Alpha, f.Beta
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.5
	}
	if beta <= 0 || beta >= 1 {
		beta = 0.3
	}

	f.level = values[0]
	f.trend = values[1] - values[0]
	f.residuals = make([]float64, 0, len(values)-1)
	for _, v := range values[1:] {
		forecast := f.level + f.trend
		f.residuals = append(f.residuals, v-forecast)

		prev := f.level
		f.level = alpha*v + (1-alpha)*(f.level+f.trend)
		f.trend = beta*(f.level-prev) + (1-beta)*f.trend
	}
	f.fitted = true
	return nil
}

func (f *ExponentialSmoothingForecaster) Predict(steps int) ([]float64, error) {
	if !f.fitted {
		return nil, fmt.Errorf("%s: model is not fitted", f.Name())
	}
	out := make([]float64, steps)
	for k := 1; k <= steps; k++ {
		out[k-1] = f.level + float64(k)*f.trend
	}
	return out, nil
}

func (f *ExponentialSmoothingForecaster) Residuals() []float64 {
	return f.residuals
}

// ForecastEngine produces point forecasts with confidence bounds using any
// registered method
type ForecastEngine struct {
	config   *Config
	registry *ForecasterRegistry
	logger   *logrus.Logger
}

// NewForecastEngine creates a forecast engine. A nil registry uses the
// built-in methods.
func NewForecastEngine(config *Config, registry *ForecasterRegistry, logger *logrus.Logger) *ForecastEngine {
	if config == nil {
		config = DefaultConfig()
	}
	if registry == nil {
		registry = NewForecasterRegistry()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ForecastEngine{config: config, registry: registry, logger: logger}
}

// Registry returns the forecaster registry
func (e *ForecastEngine) Registry() *ForecasterRegistry {
	return e.registry
}

// Forecast predicts horizon steps with the configured default method
func (e *ForecastEngine) Forecast(series *models.MetricSeries, horizon int) (*models.ForecastResult, error) {
	return e.ForecastWith(series, horizon, e.config.Forecast.Method)
}

// ForecastWith predicts horizon steps with the named method. Horizons above
// the configured maximum are capped.
func (e *ForecastEngine) ForecastWith(series *models.MetricSeries, horizon int, method string) (*models.ForecastResult, error) {
	if horizon < 1 {
		return nil, errors.NewAnalysisError(errors.CodeInvalidHorizon,
			fmt.Sprintf("horizon must be positive, got %d", horizon)).WithCause(errors.ErrInvalidHorizon)
	}
	if max := e.config.Forecast.MaxHorizon; max > 0 && horizon > max {
		horizon = max
	}
	if method == "" {
		method = MethodLinearRegression
	}
	factory, ok := e.registry.Get(method)
	if !ok {
		return nil, errors.NewAnalysisError(errors.CodeForecasterNotFound,
			fmt.Sprintf("unknown forecasting method %q", method)).WithCause(errors.ErrForecasterNotFound)
	}
	if series.Len() > 0 {
		series = series.Normalized()
	}
	if series.Len() < e.config.MinDataPoints {
		return nil, errors.NewAnalysisError(errors.CodeInsufficientData,
			fmt.Sprintf("forecast needs at least %d points, got %d", e.config.MinDataPoints, series.Len())).
			WithCause(errors.ErrInsufficientData)
	}
	values := series.Values()

	model := factory(e.config.Forecast)
	if err := model.Fit(values); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeAnalysis, errors.CodeAnalysisFailed, "failed to fit forecaster")
	}
	predictions, err := model.Predict(horizon)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeAnalysis, errors.CodeAnalysisFailed, "failed to predict")
	}

	residualSD := mathutil.StandardDeviation(model.Residuals())
	z := zScores[e.config.Forecast.Confidence]
	if z == 0 {
		z = zScores[0.95]
	}
	margin := z * residualSD

	step := series.MedianSpacing()
	if step <= 0 {
		step = 24 * time.Hour
	}
	last := series.Points[len(series.Points)-1].Timestamp

	result := &models.ForecastResult{
		Metric:         series.Metric,
		Horizon:        horizon,
		Method:         method,
		Points:         make([]models.ForecastPoint, horizon),
		Accuracy:       e.backtest(factory, values),
		ResidualStdDev: residualSD,
		Confidence:     e.config.Forecast.Confidence,
	}
	for k, v := range predictions {
		result.Points[k] = models.ForecastPoint{
			Step:      k + 1,
			Timestamp: last.Add(time.Duration(k+1) * step),
			Value:     v,
			Lower:     v - margin,
			Upper:     v + margin,
		}
	}

	e.logger.WithFields(logrus.Fields{
		"metric":   series.Metric,
		"method":   method,
		"horizon":  horizon,
		"accuracy": result.Accuracy,
	}).Debug("Generated forecast")
	return result, nil
}

// backtest holds out the last k = max(1, min(7, n/5)) values, refits on the
// rest and scores the predictions as 1 - min(1, MAPE).
func (e *ForecastEngine) backtest(factory ForecasterFactory, values []float64) float64 {
	n := len(values)
	k := n / 5
	if k > 7 {
		k = 7
	}
	if k < 1 {
		k = 1
	}
	train, test := values[:n-k], values[n-k:]

	model := factory(e.config.Forecast)
	if err := model.Fit(train); err != nil {
		return 0
	}
	predicted, err := model.Predict(k)
	if err != nil {
		return 0
	}

	return round4(1 - math.Min(1, MAPE(test, predicted)))
}

// MAPE returns the mean absolute percentage error as a fraction. Zero actuals
// are skipped; when every actual is zero the error is 0 for exact predictions
// and 1 otherwise.
func MAPE(actual, predicted []float64) float64 {
	sum, count := 0.0, 0
	exact := true
	for i := range actual {
		if i >= len(predicted) {
			break
		}
		if actual[i] == 0 {
			if predicted[i] != 0 {
				exact = false
			}
			continue
		}
		sum += math.Abs((actual[i] - predicted[i]) / actual[i])
		count++
	}
	if count == 0 {
		if exact {
			return 0
		}
		return 1
	}
	return sum / float64(count)
}
