package scoring

import (
	"fmt"
	"sort"
	"sync"

	"github.com/inferloop/contentscore/pkg/models"
)

// Evaluator scores one aspect of a content item. Implementations must only
// read from the document they are given.
type Evaluator interface {
	Name() string
	Evaluate(doc *Document, criterion Criterion) Result
}

// Result is what an evaluator reports before the engine attaches weights and tiers.
type Result struct {
	Score          float64
	Message        string
	Recommendation string
	Details        map[string]interface{}
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc struct {
	name string
	fn   func(doc *Document, criterion Criterion) Result
}

// NewEvaluatorFunc wraps fn as a named evaluator.
func NewEvaluatorFunc(name string, fn func(doc *Document, criterion Criterion) Result) *EvaluatorFunc {
	return &EvaluatorFunc{name: name, fn: fn}
}

func (e *EvaluatorFunc) Name() string { return e.name }

func (e *EvaluatorFunc) Evaluate(doc *Document, criterion Criterion) Result {
	return e.fn(doc, criterion)
}

// Registry maps criterion names to evaluators.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

// NewDefaultRegistry creates a registry holding every built-in evaluator.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, e := range builtinEvaluators() {
		r.Register(e)
	}
	return r
}

// Register adds or replaces an evaluator under its name.
func (r *Registry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[e.Name()] = e
}

// Get returns the evaluator registered for name.
func (r *Registry) Get(name string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[name]
	return e, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered criterion names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.evaluators))
	for name := range r.evaluators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// evaluate runs the registered evaluator for criterion. Unregistered criteria
// fail closed with a neutral score.
func (r *Registry) evaluate(doc *Document, category string, criterion Criterion) models.CriterionResult {
	result := models.CriterionResult{
		Criterion: criterion.Name,
		Category:  category,
		Weight:    criterion.Weight,
	}

	e, ok := r.Get(criterion.Name)
	if !ok {
		result.Score = UnregisteredScore
		result.Message = fmt.Sprintf("Analysis not implemented for %s", criterion.Name)
		result.Recommendation = fmt.Sprintf("Register an evaluator for %s", criterion.Name)
		result.Tier = TierFor(result.Score)
		return result
	}

	out := e.Evaluate(doc, criterion)
	result.Score = round2(clampScore(out.Score))
	result.Message = out.Message
	result.Recommendation = out.Recommendation
	result.Details = out.Details
	result.Tier = TierFor(result.Score)
	return result
}

// UnregisteredScore is assigned to criteria without an evaluator.
const UnregisteredScore = 50.0
