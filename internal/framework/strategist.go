package framework

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

// Strategist framework names.
const (
	StrategistSingle    = "single"
	StrategistConsensus = "consensus"
)

// NewStrategist constructs a strategist framework by name. A nil secondary
// transport degrades consensus to single.
func NewStrategist(name string, primary, secondary core.ModelTransport, codes core.CodeLookup, examples core.ExampleRetriever, rounds int, retry agents.RetryPolicy, log *logging.Logger) (Strategist, error) {
	switch name {
	case StrategistSingle:
		return &strategistSingle{
			agent: agents.NewStrategistAgent(primary, codes, examples, log),
			retry: retry,
			log:   log.With("framework", "strategist.single"),
		}, nil
	case StrategistConsensus:
		if secondary == nil {
			return &strategistSingle{
				agent: agents.NewStrategistAgent(primary, codes, examples, log),
				retry: retry,
				log:   log.With("framework", "strategist.single"),
			}, nil
		}
		if rounds < 1 {
			rounds = 3
		}
		return &strategistConsensus{
			primaryAgent:   agents.NewStrategistAgent(primary, codes, examples, log),
			secondaryAgent: agents.NewStrategistAgent(secondary, codes, examples, log),
			primary:        primary,
			secondary:      secondary,
			rounds:         rounds,
			retry:          retry,
			log:            log.With("framework", "strategist.consensus"),
		}, nil
	default:
		return nil, core.ErrConfig(core.CodeUnknownFramework, "unknown strategist framework: "+name)
	}
}

type strategistSingle struct {
	agent *agents.StrategistAgent
	retry agents.RetryPolicy
	log   *logging.Logger
}

func (f *strategistSingle) Analyze(ctx context.Context, req agents.StrategyRequest) (*core.SupplementStrategy, error) {
	result, err := agents.Retry(ctx, f.log, f.retry, "strategist", func(ctx context.Context) (*core.SupplementStrategy, error) {
		return f.agent.Run(ctx, req)
	})
	if err != nil {
		f.log.Error("strategy generation failed, using fallback", "error", err)
		return FallbackStrategy(req), nil
	}
	return result, nil
}

// strategistConsensus runs two models, debates supplement lists including
// price disagreements, then merges with a confidence floor and a recomputed
// margin analysis.
type strategistConsensus struct {
	primaryAgent   *agents.StrategistAgent
	secondaryAgent *agents.StrategistAgent
	primary        core.ModelTransport
	secondary      core.ModelTransport
	rounds         int
	retry          agents.RetryPolicy
	log            *logging.Logger
}

func (f *strategistConsensus) Analyze(ctx context.Context, req agents.StrategyRequest) (*core.SupplementStrategy, error) {
	a, b := fanOut(ctx,
		func(ctx context.Context) (*core.SupplementStrategy, error) {
			return agents.Retry(ctx, f.log, f.retry, "strategist.primary", func(ctx context.Context) (*core.SupplementStrategy, error) {
				return f.primaryAgent.Run(ctx, req)
			})
		},
		func(ctx context.Context) (*core.SupplementStrategy, error) {
			return agents.Retry(ctx, f.log, f.retry, "strategist.secondary", func(ctx context.Context) (*core.SupplementStrategy, error) {
				return f.secondaryAgent.Run(ctx, req)
			})
		},
	)

	switch {
	case !a.ok() && !b.ok():
		f.log.Error("both strategist models failed, using fallback", "error", a.err)
		return FallbackStrategy(req), nil
	case !a.ok():
		return b.value, nil
	case !b.ok():
		return a.value, nil
	}

	primary, secondary := a.value, b.value
	for round := 0; round < f.rounds-1; round++ {
		disagreements := strategyDisagreements(primary, secondary)
		if len(disagreements) == 0 {
			f.log.Info("strategy consensus reached", "round", round+1)
			break
		}
		f.log.Info("strategy debate round", "round", round+2, "of", f.rounds, "disagreements", len(disagreements))
		primary, secondary = f.debateRound(ctx, primary, secondary, disagreements)
	}

	return mergeStrategies(primary, secondary), nil
}

func strategyDisagreements(a, b *core.SupplementStrategy) []disagreement {
	var out []disagreement

	aKeys := make(map[string]core.SupplementProposal)
	for _, s := range a.Supplements {
		aKeys[supplementKey(s)] = s
	}
	bKeys := make(map[string]core.SupplementProposal)
	for _, s := range b.Supplements {
		bKeys[supplementKey(s)] = s
	}

	for key, supA := range aKeys {
		supB, ok := bKeys[key]
		if !ok {
			out = append(out, disagreement{"type": "missing_in_b", "key": key, "description": supA.Description})
			continue
		}
		avg := (supA.EstimatedValue + supB.EstimatedValue) / 2
		if avg > 0 {
			delta := supA.EstimatedValue - supB.EstimatedValue
			if delta < 0 {
				delta = -delta
			}
			if delta/avg > priceTolerance {
				out = append(out, disagreement{
					"type":    "price_disagreement",
					"key":     key,
					"a_value": supA.EstimatedValue,
					"b_value": supB.EstimatedValue,
				})
			}
		}
	}
	for key, supB := range bKeys {
		if _, ok := aKeys[key]; !ok {
			out = append(out, disagreement{"type": "missing_in_a", "key": key, "description": supB.Description})
		}
	}
	return out
}

const strategyDebateSystem = "You are reviewing another strategist's supplement proposals alongside your own. Decide which items to keep, drop, add, or reprice."

func (f *strategistConsensus) debateRound(ctx context.Context, primary, secondary *core.SupplementStrategy, disagreements []disagreement) (*core.SupplementStrategy, *core.SupplementStrategy) {
	promptA := formatStrategyDebatePrompt(primary, secondary, disagreements)
	promptB := formatStrategyDebatePrompt(secondary, primary, disagreements)

	if resp, err := f.primary.Complete(ctx, strategyDebateSystem, promptA); err != nil {
		f.log.Warn("primary strategy debate failed", "error", err)
	} else if adjusted, err := applyStrategyPatch(primary, secondary, resp); err != nil {
		f.log.Warn("primary strategy debate returned invalid patch", "error", err)
	} else {
		primary = adjusted
	}

	if resp, err := f.secondary.Complete(ctx, strategyDebateSystem, promptB); err != nil {
		f.log.Warn("secondary strategy debate failed", "error", err)
	} else if adjusted, err := applyStrategyPatch(secondary, primary, resp); err != nil {
		f.log.Warn("secondary strategy debate returned invalid patch", "error", err)
	} else {
		secondary = adjusted
	}

	return primary, secondary
}

func formatStrategyDebatePrompt(mine, theirs *core.SupplementStrategy, disagreements []disagreement) string {
	mineJSON, _ := json.MarshalIndent(mine.Supplements, "", "  ")
	theirsJSON, _ := json.MarshalIndent(theirs.Supplements, "", "  ")
	disagreementJSON, _ := json.MarshalIndent(disagreements, "", "  ")

	return fmt.Sprintf(`Your supplement proposals:
%s

The other strategist's proposals:
%s

Disagreements:
%s

Return JSON describing how to revise YOUR proposals:
{"add_items": [{"description": "...", "value": 0.0, "justification": "..."}],
 "remove_items": ["type:description-prefix", ...],
 "price_changes": {"type:description-prefix": new_value}}

add_items should name proposals from the other strategist you now agree with.
remove_items and price_changes reference your own proposals by their key.`,
		mineJSON, theirsJSON, disagreementJSON)
}

// applyStrategyPatch applies one debate response to mine. Additions are
// resolved against the other side's proposals by matching the first 30
// characters of the description, so only items the counterpart actually
// proposed can be adopted. Price changes rewrite value and unit price, and
// the margin analysis is recomputed from the new supplement total.
func applyStrategyPatch(mine, theirs *core.SupplementStrategy, response string) (*core.SupplementStrategy, error) {
	var patch struct {
		AddItems []struct {
			Description   string  `json:"description"`
			Value         float64 `json:"value"`
			Justification string  `json:"justification"`
		} `json:"add_items"`
		RemoveItems  []string           `json:"remove_items"`
		PriceChanges map[string]float64 `json:"price_changes"`
	}
	if err := json.Unmarshal([]byte(response), &patch); err != nil {
		return nil, err
	}

	remove := make(map[string]bool, len(patch.RemoveItems))
	for _, key := range patch.RemoveItems {
		remove[key] = true
	}

	supplements := make([]core.SupplementProposal, 0, len(mine.Supplements)+len(patch.AddItems))
	for _, s := range mine.Supplements {
		key := supplementKey(s)
		if remove[key] {
			continue
		}
		if value, ok := patch.PriceChanges[key]; ok && value > 0 {
			s.EstimatedValue = value
			if s.Quantity > 0 {
				s.EstimatedUnitPrice = value / s.Quantity
			}
			s.Justification = strings.TrimSpace(s.Justification + " Adjusted via consensus debate.")
		}
		supplements = append(supplements, s)
	}

	for _, add := range patch.AddItems {
		needle := strings.ToLower(add.Description)
		if len(needle) > 30 {
			needle = needle[:30]
		}
		for _, s := range theirs.Supplements {
			if strings.Contains(strings.ToLower(s.Description), needle) {
				supplements = append(supplements, s)
				break
			}
		}
	}

	total := core.SupplementTotal(supplements)
	m := mine.MarginAnalysis
	return &core.SupplementStrategy{
		Supplements: supplements,
		MarginAnalysis: core.ComputeMarginAnalysis(
			m.OriginalEstimate, m.TotalCosts, m.CurrentMargin, m.TargetMargin, total),
		StrategyNotes: mine.StrategyNotes,
	}, nil
}

// mergeStrategies merges debated supplement lists: agreed proposals combine
// with averaged pricing and a confidence boost, single-model proposals
// survive only above a confidence floor. The result is sorted by value
// descending and carries a recomputed margin analysis.
func mergeStrategies(a, b *core.SupplementStrategy) *core.SupplementStrategy {
	const singletonFloor = 0.6

	groups := make(map[string][]core.SupplementProposal)
	var order []string
	for _, s := range append(append([]core.SupplementProposal{}, a.Supplements...), b.Supplements...) {
		key := supplementKey(s)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}

	merged := make([]core.SupplementProposal, 0, len(order))
	for _, key := range order {
		proposals := groups[key]
		if len(proposals) == 1 {
			if proposals[0].Confidence >= singletonFloor {
				merged = append(merged, proposals[0])
			}
			continue
		}
		best := proposals[0]
		var valueSum, confidenceSum float64
		var gapLists, photoLists [][]string
		for _, s := range proposals {
			valueSum += s.EstimatedValue
			confidenceSum += s.Confidence
			gapLists = append(gapLists, s.LinkedGaps)
			photoLists = append(photoLists, s.LinkedPhotos)
			if s.Confidence > best.Confidence {
				best = s
			}
		}
		n := float64(len(proposals))
		best.EstimatedValue = valueSum / n
		if best.Quantity > 0 {
			best.EstimatedUnitPrice = best.EstimatedValue / best.Quantity
		} else {
			best.EstimatedUnitPrice = best.EstimatedValue
		}
		best.LinkedGaps = unionStrings(gapLists...)
		best.LinkedPhotos = unionStrings(photoLists...)
		best.Confidence = capConfidence(confidenceSum / n * 1.15)
		merged = append(merged, best)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].EstimatedValue > merged[j].EstimatedValue
	})

	total := core.SupplementTotal(merged)
	ma, mb := a.MarginAnalysis, b.MarginAnalysis
	margin := core.ComputeMarginAnalysis(
		(ma.OriginalEstimate+mb.OriginalEstimate)/2,
		(ma.TotalCosts+mb.TotalCosts)/2,
		ma.CurrentMargin,
		ma.TargetMargin,
		total,
	)

	return &core.SupplementStrategy{
		Supplements:    merged,
		MarginAnalysis: margin,
		StrategyNotes: []string{
			fmt.Sprintf("Consensus analysis from %d + %d proposals", len(a.Supplements), len(b.Supplements)),
			fmt.Sprintf("Final: %d supplements, $%.2f total", len(merged), total),
		},
	}
}
