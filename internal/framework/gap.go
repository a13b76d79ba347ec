package framework

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

// Gap framework names.
const (
	GapSingle    = "single"
	GapConsensus = "consensus"
)

// NewGap constructs a gap framework by name. A nil secondary transport
// degrades consensus to single.
func NewGap(name string, primary, secondary core.ModelTransport, rounds int, retry agents.RetryPolicy, log *logging.Logger) (Gap, error) {
	switch name {
	case GapSingle:
		return &gapSingle{
			agent: agents.NewGapAgent(primary, log),
			retry: retry,
			log:   log.With("framework", "gap.single"),
		}, nil
	case GapConsensus:
		if secondary == nil {
			return &gapSingle{
				agent: agents.NewGapAgent(primary, log),
				retry: retry,
				log:   log.With("framework", "gap.single"),
			}, nil
		}
		if rounds < 1 {
			rounds = 3
		}
		return &gapConsensus{
			primaryAgent:   agents.NewGapAgent(primary, log),
			secondaryAgent: agents.NewGapAgent(secondary, log),
			primary:        primary,
			secondary:      secondary,
			rounds:         rounds,
			retry:          retry,
			log:            log.With("framework", "gap.consensus"),
		}, nil
	default:
		return nil, core.ErrConfig(core.CodeUnknownFramework, "unknown gap framework: "+name)
	}
}

type gapSingle struct {
	agent *agents.GapAgent
	retry agents.RetryPolicy
	log   *logging.Logger
}

func (f *gapSingle) Analyze(ctx context.Context, req agents.GapRequest) (*core.GapAnalysis, error) {
	result, err := agents.Retry(ctx, f.log, f.retry, "gap", func(ctx context.Context) (*core.GapAnalysis, error) {
		return f.agent.Run(ctx, req)
	})
	if err != nil {
		f.log.Error("gap analysis failed, using fallback", "error", err)
		return FallbackGapAnalysis(), nil
	}
	return result, nil
}

// gapConsensus runs two models, debates their disagreements over gap lists,
// then merges with a confidence floor on single-model findings.
type gapConsensus struct {
	primaryAgent   *agents.GapAgent
	secondaryAgent *agents.GapAgent
	primary        core.ModelTransport
	secondary      core.ModelTransport
	rounds         int
	retry          agents.RetryPolicy
	log            *logging.Logger
}

func (f *gapConsensus) Analyze(ctx context.Context, req agents.GapRequest) (*core.GapAnalysis, error) {
	a, b := fanOut(ctx,
		func(ctx context.Context) (*core.GapAnalysis, error) {
			return agents.Retry(ctx, f.log, f.retry, "gap.primary", func(ctx context.Context) (*core.GapAnalysis, error) {
				return f.primaryAgent.Run(ctx, req)
			})
		},
		func(ctx context.Context) (*core.GapAnalysis, error) {
			return agents.Retry(ctx, f.log, f.retry, "gap.secondary", func(ctx context.Context) (*core.GapAnalysis, error) {
				return f.secondaryAgent.Run(ctx, req)
			})
		},
	)

	switch {
	case !a.ok() && !b.ok():
		f.log.Error("both gap models failed, using fallback", "error", a.err)
		return FallbackGapAnalysis(), nil
	case !a.ok():
		return b.value, nil
	case !b.ok():
		return a.value, nil
	}

	primary, secondary := a.value, b.value
	for round := 0; round < f.rounds-1; round++ {
		disagreements := gapDisagreements(primary, secondary)
		if len(disagreements) == 0 {
			f.log.Info("gap consensus reached", "round", round+1)
			break
		}
		f.log.Info("gap debate round", "round", round+2, "of", f.rounds, "disagreements", len(disagreements))
		primary, secondary = f.debateRound(ctx, primary, secondary, disagreements)
	}

	return mergeGapAnalyses(primary, secondary), nil
}

func gapDisagreements(a, b *core.GapAnalysis) []disagreement {
	var out []disagreement

	aKeys := make(map[string]core.ScopeGap)
	for _, g := range a.ScopeGaps {
		aKeys[gapKey(g)] = g
	}
	bKeys := make(map[string]core.ScopeGap)
	for _, g := range b.ScopeGaps {
		bKeys[gapKey(g)] = g
	}

	for key, g := range aKeys {
		if matched, ok := bKeys[key]; !ok {
			out = append(out, disagreement{"type": "missing_in_b", "gap_id": g.GapID, "description": g.Description})
		} else if g.Severity != matched.Severity {
			out = append(out, disagreement{
				"type":       "severity_mismatch",
				"gap_id":     g.GapID,
				"a_severity": string(g.Severity),
				"b_severity": string(matched.Severity),
			})
		}
	}
	for key, g := range bKeys {
		if _, ok := aKeys[key]; !ok {
			out = append(out, disagreement{"type": "missing_in_a", "gap_id": g.GapID, "description": g.Description})
		}
	}
	return out
}

const gapDebateSystem = "You are reviewing another analyst's gap findings alongside your own. Decide which findings to keep, drop, or regrade."

func (f *gapConsensus) debateRound(ctx context.Context, primary, secondary *core.GapAnalysis, disagreements []disagreement) (*core.GapAnalysis, *core.GapAnalysis) {
	promptA := formatGapDebatePrompt(primary, secondary, disagreements)
	promptB := formatGapDebatePrompt(secondary, primary, disagreements)

	if resp, err := f.primary.Complete(ctx, gapDebateSystem, promptA); err != nil {
		f.log.Warn("primary gap debate failed", "error", err)
	} else if adjusted, err := applyGapPatch(primary, secondary, resp); err != nil {
		f.log.Warn("primary gap debate returned invalid patch", "error", err)
	} else {
		primary = adjusted
	}

	if resp, err := f.secondary.Complete(ctx, gapDebateSystem, promptB); err != nil {
		f.log.Warn("secondary gap debate failed", "error", err)
	} else if adjusted, err := applyGapPatch(secondary, primary, resp); err != nil {
		f.log.Warn("secondary gap debate returned invalid patch", "error", err)
	} else {
		secondary = adjusted
	}

	return primary, secondary
}

func formatGapDebatePrompt(mine, theirs *core.GapAnalysis, disagreements []disagreement) string {
	mineJSON, _ := json.MarshalIndent(mine.ScopeGaps, "", "  ")
	theirsJSON, _ := json.MarshalIndent(theirs.ScopeGaps, "", "  ")
	disagreementJSON, _ := json.MarshalIndent(disagreements, "", "  ")

	return fmt.Sprintf(`Your gap findings:
%s

The other analyst's gap findings:
%s

Disagreements:
%s

Return JSON describing how to revise YOUR findings:
{"add_gaps": ["gap_id", ...], "remove_gaps": ["gap_id", ...], "severity_changes": {"gap_id": "critical|major|minor"}}

add_gaps lists gap_ids from the other analyst's findings you now agree with.
remove_gaps lists your own gap_ids you no longer stand behind.`,
		mineJSON, theirsJSON, disagreementJSON)
}

// applyGapPatch applies one debate response to mine: removals by gap_id,
// additions pulled from the other side's findings by gap_id, severity
// changes only to valid levels. The summary counts are recomputed.
func applyGapPatch(mine, theirs *core.GapAnalysis, response string) (*core.GapAnalysis, error) {
	var patch struct {
		AddGaps         []string          `json:"add_gaps"`
		RemoveGaps      []string          `json:"remove_gaps"`
		SeverityChanges map[string]string `json:"severity_changes"`
	}
	if err := json.Unmarshal([]byte(response), &patch); err != nil {
		return nil, err
	}

	remove := make(map[string]bool, len(patch.RemoveGaps))
	for _, id := range patch.RemoveGaps {
		remove[id] = true
	}

	gaps := make([]core.ScopeGap, 0, len(mine.ScopeGaps)+len(patch.AddGaps))
	for _, g := range mine.ScopeGaps {
		if remove[g.GapID] {
			continue
		}
		if sev, ok := patch.SeverityChanges[g.GapID]; ok && core.ValidSeverity(core.Severity(sev)) {
			g.Severity = core.Severity(sev)
		}
		gaps = append(gaps, g)
	}
	for _, id := range patch.AddGaps {
		for _, g := range theirs.ScopeGaps {
			if g.GapID == id {
				gaps = append(gaps, g)
				break
			}
		}
	}

	return &core.GapAnalysis{
		ScopeGaps:       gaps,
		CoverageSummary: core.SummarizeGaps(gaps, mine.CoverageSummary.Narrative),
	}, nil
}

// mergeGapAnalyses merges debated gap lists: agreed findings combine with a
// confidence boost, single-model findings survive only above a confidence
// floor.
func mergeGapAnalyses(a, b *core.GapAnalysis) *core.GapAnalysis {
	const singletonFloor = 0.7

	groups := make(map[string][]core.ScopeGap)
	var order []string
	for _, g := range append(append([]core.ScopeGap{}, a.ScopeGaps...), b.ScopeGaps...) {
		key := gapKey(g)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], g)
	}

	merged := make([]core.ScopeGap, 0, len(order))
	for _, key := range order {
		gaps := groups[key]
		if len(gaps) == 1 {
			if gaps[0].Confidence >= singletonFloor {
				merged = append(merged, gaps[0])
			}
			continue
		}
		best := gaps[0]
		var confidenceSum float64
		unpaid := false
		var photoLists, lineLists [][]string
		for _, g := range gaps {
			confidenceSum += g.Confidence
			unpaid = unpaid || g.UnpaidWorkRisk
			photoLists = append(photoLists, g.LinkedPhotos)
			lineLists = append(lineLists, g.LinkedEstimateLines)
			if g.Confidence > best.Confidence {
				best = g
			}
		}
		best.LinkedPhotos = unionStrings(photoLists...)
		best.LinkedEstimateLines = unionStrings(lineLists...)
		best.Confidence = capConfidence(confidenceSum / float64(len(gaps)) * 1.1)
		best.UnpaidWorkRisk = unpaid
		merged = append(merged, best)
	}

	summary := core.SummarizeGaps(merged, "")
	summary.Narrative = fmt.Sprintf("Consensus analysis identified %d gaps (%d critical, %d major, %d minor)",
		len(merged), summary.CriticalGaps, summary.MajorGaps, summary.MinorGaps)

	return &core.GapAnalysis{ScopeGaps: merged, CoverageSummary: summary}
}
