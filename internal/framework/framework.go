// Package framework composes stage agents under named multi-model
// strategies (single, parallel aggregate, ensemble, consensus debate,
// ensemble voting) and reconciles disagreeing model outputs
// deterministically. Factories fail fast on unknown strategy names.
package framework

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

// Vision analyzes one photo through the configured strategy.
type Vision interface {
	Analyze(ctx context.Context, req agents.VisionRequest) (*core.VisionEvidence, error)
}

// Estimate parses the estimate document through the configured strategy.
// Never errors: exhausted attempts degrade to a fallback result.
type Estimate interface {
	Analyze(ctx context.Context, req agents.EstimateRequest) (*core.EstimateInterpretation, error)
}

// Gap runs gap analysis through the configured strategy. Never errors.
type Gap interface {
	Analyze(ctx context.Context, req agents.GapRequest) (*core.GapAnalysis, error)
}

// Strategist runs supplement strategy through the configured strategy.
// Never errors.
type Strategist interface {
	Analyze(ctx context.Context, req agents.StrategyRequest) (*core.SupplementStrategy, error)
}

// branchResult is the outcome of one branch of a two-model fan-out. Failure
// is a value here, not a propagated error, so merge logic can pattern-match
// on which sides survived.
type branchResult[T any] struct {
	value *T
	err   error
}

func (r branchResult[T]) ok() bool { return r.err == nil && r.value != nil }

// fanOut runs both branches concurrently and waits for both to finish,
// collecting successes and failures alike.
func fanOut[T any](ctx context.Context, primary, secondary func(context.Context) (*T, error)) (branchResult[T], branchResult[T]) {
	var a, b branchResult[T]
	var g errgroup.Group
	g.Go(func() error {
		a.value, a.err = primary(ctx)
		return nil
	})
	g.Go(func() error {
		b.value, b.err = secondary(ctx)
		return nil
	})
	_ = g.Wait()
	return a, b
}

// fanOutAll runs every branch concurrently and returns all outcomes in
// submission order.
func fanOutAll[T any](ctx context.Context, branches []func(context.Context) (*T, error)) []branchResult[T] {
	results := make([]branchResult[T], len(branches))
	var g errgroup.Group
	for i, branch := range branches {
		g.Go(func() error {
			results[i].value, results[i].err = branch(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
