package framework

import (
	"context"
	"fmt"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

// Estimate framework names.
const (
	EstimateSingle   = "single"
	EstimateEnsemble = "ensemble"
)

// NewEstimate constructs an estimate framework by name. A nil secondary
// transport degrades ensemble to single.
func NewEstimate(name string, primary, secondary core.ModelTransport, retry agents.RetryPolicy, log *logging.Logger) (Estimate, error) {
	switch name {
	case EstimateSingle:
		return &estimateSingle{
			agent: agents.NewEstimateAgent(primary, log),
			retry: retry,
			log:   log.With("framework", "estimate.single"),
		}, nil
	case EstimateEnsemble:
		if secondary == nil {
			return &estimateSingle{
				agent: agents.NewEstimateAgent(primary, log),
				retry: retry,
				log:   log.With("framework", "estimate.single"),
			}, nil
		}
		return &estimateEnsemble{
			primary:   agents.NewEstimateAgent(primary, log),
			secondary: agents.NewEstimateAgent(secondary, log),
			retry:     retry,
			log:       log.With("framework", "estimate.ensemble"),
		}, nil
	default:
		return nil, core.ErrConfig(core.CodeUnknownFramework, "unknown estimate framework: "+name)
	}
}

type estimateSingle struct {
	agent *agents.EstimateAgent
	retry agents.RetryPolicy
	log   *logging.Logger
}

func (f *estimateSingle) Analyze(ctx context.Context, req agents.EstimateRequest) (*core.EstimateInterpretation, error) {
	result, err := agents.Retry(ctx, f.log, f.retry, "estimate", func(ctx context.Context) (*core.EstimateInterpretation, error) {
		return f.agent.Run(ctx, req)
	})
	if err != nil {
		f.log.Error("estimate parsing failed, using fallback", "error", err)
		return FallbackEstimate(req), nil
	}
	return result, nil
}

type estimateEnsemble struct {
	primary   *agents.EstimateAgent
	secondary *agents.EstimateAgent
	retry     agents.RetryPolicy
	log       *logging.Logger
}

func (f *estimateEnsemble) Analyze(ctx context.Context, req agents.EstimateRequest) (*core.EstimateInterpretation, error) {
	a, b := fanOut(ctx,
		func(ctx context.Context) (*core.EstimateInterpretation, error) {
			return agents.Retry(ctx, f.log, f.retry, "estimate.primary", func(ctx context.Context) (*core.EstimateInterpretation, error) {
				return f.primary.Run(ctx, req)
			})
		},
		func(ctx context.Context) (*core.EstimateInterpretation, error) {
			return agents.Retry(ctx, f.log, f.retry, "estimate.secondary", func(ctx context.Context) (*core.EstimateInterpretation, error) {
				return f.secondary.Run(ctx, req)
			})
		},
	)

	switch {
	case a.ok() && b.ok():
		return mergeEstimates(a.value, b.value), nil
	case a.ok():
		f.log.Warn("secondary estimate model failed, using primary only", "error", b.err)
		return a.value, nil
	case b.ok():
		f.log.Warn("primary estimate model failed, using secondary only", "error", a.err)
		return b.value, nil
	default:
		f.log.Error("both estimate models failed, using fallback", "error", a.err)
		return FallbackEstimate(req), nil
	}
}

// mergeEstimates combines two parses of the same document. Line items are
// matched on a normalized description prefix; matched items average their
// numeric fields, unmatched items from both sides are kept.
func mergeEstimates(a, b *core.EstimateInterpretation) *core.EstimateInterpretation {
	merged := make([]core.LineItem, 0, len(a.LineItems)+len(b.LineItems))
	bByKey := make(map[string]core.LineItem, len(b.LineItems))
	usedB := make(map[string]bool)
	for _, item := range b.LineItems {
		key := lineItemKey(item)
		if _, ok := bByKey[key]; !ok {
			bByKey[key] = item
		}
	}

	for _, itemA := range a.LineItems {
		key := lineItemKey(itemA)
		if itemB, ok := bByKey[key]; ok && !usedB[key] {
			usedB[key] = true
			merged = append(merged, mergeLineItemPair(itemA, itemB))
		} else {
			merged = append(merged, itemA)
		}
	}
	for _, item := range b.LineItems {
		if !usedB[lineItemKey(item)] {
			merged = append(merged, item)
		}
	}

	out := &core.EstimateInterpretation{
		EstimateSummary: core.EstimateSummary{
			Carrier:                   a.EstimateSummary.Carrier,
			ClaimNumber:               a.EstimateSummary.ClaimNumber,
			TotalEstimateAmount:       (a.EstimateSummary.TotalEstimateAmount + b.EstimateSummary.TotalEstimateAmount) / 2,
			RoofRelatedTotal:          (a.EstimateSummary.RoofRelatedTotal + b.EstimateSummary.RoofRelatedTotal) / 2,
			OverheadAndProfitIncluded: a.EstimateSummary.OverheadAndProfitIncluded || b.EstimateSummary.OverheadAndProfitIncluded,
			DepreciationAmount:        (a.EstimateSummary.DepreciationAmount + b.EstimateSummary.DepreciationAmount) / 2,
		},
		LineItems: merged,
		Financials: core.Financials{
			OriginalEstimateTotal: (a.Financials.OriginalEstimateTotal + b.Financials.OriginalEstimateTotal) / 2,
			ActualCosts:           a.Financials.ActualCosts,
			CurrentMargin:         (a.Financials.CurrentMargin + b.Financials.CurrentMargin) / 2,
			TargetMargin:          a.Financials.TargetMargin,
			MarginGap:             (a.Financials.MarginGap + b.Financials.MarginGap) / 2,
		},
		ParsingNotes:      unionStrings(a.ParsingNotes, b.ParsingNotes),
		ParsingConfidence: capConfidence((a.ParsingConfidence + b.ParsingConfidence) / 2 * 1.1),
	}
	out.ParsingNotes = append(out.ParsingNotes,
		fmt.Sprintf("Ensemble: merged %d + %d -> %d items", len(a.LineItems), len(b.LineItems), len(merged)))
	return out
}

func mergeLineItemPair(a, b core.LineItem) core.LineItem {
	description := a.Description
	if len(b.Description) > len(a.Description) {
		description = b.Description
	}
	raw := a.RawLineText
	if raw == "" {
		raw = b.RawLineText
	}
	return core.LineItem{
		LineID:          a.LineID,
		Description:     description,
		ScopeCategory:   a.ScopeCategory,
		Quantity:        (a.Quantity + b.Quantity) / 2,
		Unit:            a.Unit,
		UnitPrice:       (a.UnitPrice + b.UnitPrice) / 2,
		Total:           (a.Total + b.Total) / 2,
		IsRoofingCore:   a.IsRoofingCore || b.IsRoofingCore,
		IsCodeItem:      a.IsCodeItem || b.IsCodeItem,
		IsOversightRisk: a.IsOversightRisk || b.IsOversightRisk,
		RawLineText:     raw,
	}
}
