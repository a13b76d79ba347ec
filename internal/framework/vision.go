package framework

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

// Vision framework names.
const (
	VisionSingleModel       = "single_model"
	VisionParallelAggregate = "parallel_aggregate"
	VisionConsensusDebate   = "consensus_debate"
	VisionEnsembleVoting    = "ensemble_voting"
)

// NewVision constructs a vision framework by name. A nil secondary transport
// degrades every strategy to single-model. Unknown names fail fast.
func NewVision(name string, primary, secondary core.ModelTransport, extras []core.ModelTransport, rounds int, log *logging.Logger) (Vision, error) {
	if name == VisionSingleModel || secondary == nil {
		if name != VisionSingleModel && name != VisionParallelAggregate &&
			name != VisionConsensusDebate && name != VisionEnsembleVoting {
			return nil, core.ErrConfig(core.CodeUnknownFramework, "unknown vision framework: "+name)
		}
		return &visionSingle{agent: agents.NewVisionAgent(primary, log)}, nil
	}

	switch name {
	case VisionParallelAggregate:
		return &visionParallel{
			primary:   agents.NewVisionAgent(primary, log),
			secondary: agents.NewVisionAgent(secondary, log),
			log:       log.With("framework", "vision.parallel"),
		}, nil
	case VisionConsensusDebate:
		if rounds < 1 {
			rounds = 3
		}
		return &visionConsensus{
			primaryAgent:   agents.NewVisionAgent(primary, log),
			secondaryAgent: agents.NewVisionAgent(secondary, log),
			primary:        primary,
			secondary:      secondary,
			rounds:         rounds,
			log:            log.With("framework", "vision.consensus"),
		}, nil
	case VisionEnsembleVoting:
		transports := append([]core.ModelTransport{primary, secondary}, extras...)
		members := make([]*agents.VisionAgent, len(transports))
		for i, tr := range transports {
			members[i] = agents.NewVisionAgent(tr, log)
		}
		return &visionVoting{agents: members, log: log.With("framework", "vision.ensemble")}, nil
	default:
		return nil, core.ErrConfig(core.CodeUnknownFramework, "unknown vision framework: "+name)
	}
}

// visionSingle delegates to one agent. Errors propagate: per-photo failure
// handling (retry, drop) lives in the orchestrator, not here.
type visionSingle struct {
	agent *agents.VisionAgent
}

func (f *visionSingle) Analyze(ctx context.Context, req agents.VisionRequest) (*core.VisionEvidence, error) {
	return f.agent.Run(ctx, req)
}

// visionParallel runs two model backends concurrently and merges their
// component sets pairwise.
type visionParallel struct {
	primary   *agents.VisionAgent
	secondary *agents.VisionAgent
	log       *logging.Logger
}

func (f *visionParallel) Analyze(ctx context.Context, req agents.VisionRequest) (*core.VisionEvidence, error) {
	a, b := fanOut(ctx,
		func(ctx context.Context) (*core.VisionEvidence, error) { return f.primary.Run(ctx, req) },
		func(ctx context.Context) (*core.VisionEvidence, error) { return f.secondary.Run(ctx, req) },
	)

	switch {
	case a.ok() && b.ok():
		return mergeVisionPair(req.PhotoID, a.value, b.value), nil
	case a.ok():
		f.log.Warn("secondary vision model failed, using primary only", "photo_id", req.PhotoID, "error", b.err)
		return a.value, nil
	case b.ok():
		f.log.Warn("primary vision model failed, using secondary only", "photo_id", req.PhotoID, "error", a.err)
		return b.value, nil
	default:
		return nil, core.ErrExecution(core.CodeAllAgentsFailed, "both vision models failed").WithCause(a.err)
	}
}

// mergeVisionPair merges two evidence sets for the same photo: matched
// components are combined field-wise, unmatched ones are carried over from
// both sides, and observations are deduplicated by type.
func mergeVisionPair(photoID string, a, b *core.VisionEvidence) *core.VisionEvidence {
	merged := make([]core.Component, 0, len(a.Components)+len(b.Components))
	usedB := make(map[int]bool)

	for _, compA := range a.Components {
		matched := -1
		for i, compB := range b.Components {
			if usedB[i] {
				continue
			}
			if compA.Type == compB.Type && locationsSimilar(compA.LocationHint, compB.LocationHint) {
				matched = i
				break
			}
		}
		if matched >= 0 {
			usedB[matched] = true
			merged = append(merged, mergeComponentPair(compA, b.Components[matched]))
		} else {
			merged = append(merged, compA)
		}
	}
	for i, compB := range b.Components {
		if !usedB[i] {
			merged = append(merged, compB)
		}
	}

	return &core.VisionEvidence{
		PhotoID:            photoID,
		Components:         merged,
		GlobalObservations: dedupeObservations(a.GlobalObservations, b.GlobalObservations),
	}
}

func mergeComponentPair(a, b core.Component) core.Component {
	condition := a.Condition
	if b.SeverityScore > a.SeverityScore {
		condition = b.Condition
	}
	description := a.Description
	if len(b.Description) > len(a.Description) {
		description = b.Description
	}
	location := a.LocationHint
	if len(b.LocationHint) > len(a.LocationHint) {
		location = b.LocationHint
	}
	area := a.EstimatedArea
	if area == nil {
		area = b.EstimatedArea
	}
	bbox := a.BBox
	if bbox == nil {
		bbox = b.BBox
	}
	return core.Component{
		Type:                a.Type,
		LocationHint:        location,
		Condition:           condition,
		Description:         description,
		EstimatedArea:       area,
		SeverityScore:       (a.SeverityScore + b.SeverityScore) / 2,
		DetectionConfidence: capConfidence((a.DetectionConfidence + b.DetectionConfidence) / 2 * 1.1),
		BBox:                bbox,
	}
}

func dedupeObservations(lists ...[]core.GlobalObservation) []core.GlobalObservation {
	seen := make(map[string]bool)
	out := make([]core.GlobalObservation, 0)
	for _, list := range lists {
		for _, obs := range list {
			if !seen[obs.Type] {
				seen[obs.Type] = true
				out = append(out, obs)
			}
		}
	}
	return out
}

// visionConsensus runs two models independently, then up to rounds-1 debate
// rounds over their disagreements before a final merge.
type visionConsensus struct {
	primaryAgent   *agents.VisionAgent
	secondaryAgent *agents.VisionAgent
	primary        core.ModelTransport
	secondary      core.ModelTransport
	rounds         int
	log            *logging.Logger
}

func (f *visionConsensus) Analyze(ctx context.Context, req agents.VisionRequest) (*core.VisionEvidence, error) {
	a, b := fanOut(ctx,
		func(ctx context.Context) (*core.VisionEvidence, error) { return f.primaryAgent.Run(ctx, req) },
		func(ctx context.Context) (*core.VisionEvidence, error) { return f.secondaryAgent.Run(ctx, req) },
	)

	switch {
	case !a.ok() && !b.ok():
		return nil, core.ErrExecution(core.CodeAllAgentsFailed, "both vision models failed initial analysis").WithCause(a.err)
	case !a.ok():
		return b.value, nil
	case !b.ok():
		return a.value, nil
	}

	primary, secondary := a.value, b.value
	for round := 0; round < f.rounds-1; round++ {
		disagreements := visionDisagreements(primary, secondary)
		if len(disagreements) == 0 {
			f.log.Info("vision consensus reached", "photo_id", req.PhotoID, "round", round+1)
			break
		}
		f.log.Info("vision debate round", "photo_id", req.PhotoID,
			"round", round+2, "of", f.rounds, "disagreements", len(disagreements))
		primary, secondary = f.debateRound(ctx, primary, secondary, disagreements)
	}

	return mergeVisionFinal(req.PhotoID, primary, secondary), nil
}

func visionDisagreements(a, b *core.VisionEvidence) []disagreement {
	var out []disagreement

	aTypes := make(map[core.ComponentType]bool)
	for _, c := range a.Components {
		aTypes[c.Type] = true
	}
	bTypes := make(map[core.ComponentType]bool)
	for _, c := range b.Components {
		bTypes[c.Type] = true
	}

	for t := range aTypes {
		if !bTypes[t] {
			out = append(out, disagreement{"type": "missing_in_b", "component": string(t)})
		}
	}
	for t := range bTypes {
		if !aTypes[t] {
			out = append(out, disagreement{"type": "missing_in_a", "component": string(t)})
		}
	}

	for _, compA := range a.Components {
		for _, compB := range b.Components {
			if compA.Type != compB.Type {
				continue
			}
			delta := compA.SeverityScore - compB.SeverityScore
			if delta < 0 {
				delta = -delta
			}
			if delta > severityScoreTolerance {
				out = append(out, disagreement{
					"type":       "severity_mismatch",
					"component":  string(compA.Type),
					"a_severity": compA.SeverityScore,
					"b_severity": compB.SeverityScore,
				})
			}
		}
	}
	return out
}

const visionDebateSystem = "You are reviewing another vision agent's findings. Reconsider your analysis given their perspective."

func (f *visionConsensus) debateRound(ctx context.Context, primary, secondary *core.VisionEvidence, disagreements []disagreement) (*core.VisionEvidence, *core.VisionEvidence) {
	prompt := formatVisionDebatePrompt(primary, secondary, disagreements)

	// A failed debate call leaves that side's result untouched for the round.
	if resp, err := f.primary.Complete(ctx, visionDebateSystem, prompt); err != nil {
		f.log.Warn("primary vision debate failed", "error", err)
	} else if adjusted, err := applySeverityAdjustments(primary, resp); err != nil {
		f.log.Warn("primary vision debate returned invalid adjustments", "error", err)
	} else {
		primary = adjusted
	}

	if resp, err := f.secondary.Complete(ctx, visionDebateSystem, prompt); err != nil {
		f.log.Warn("secondary vision debate failed", "error", err)
	} else if adjusted, err := applySeverityAdjustments(secondary, resp); err != nil {
		f.log.Warn("secondary vision debate returned invalid adjustments", "error", err)
	} else {
		secondary = adjusted
	}

	return primary, secondary
}

func formatVisionDebatePrompt(primary, secondary *core.VisionEvidence, disagreements []disagreement) string {
	summarize := func(ev *core.VisionEvidence) []string {
		out := make([]string, 0, len(ev.Components))
		for _, c := range ev.Components {
			out = append(out, string(c.Type)+":"+c.Condition)
		}
		return out
	}
	disagreementJSON, _ := json.MarshalIndent(disagreements, "", "  ")

	return fmt.Sprintf(`Review these findings from two vision analyses and identify any needed corrections.

Agent A found: %s
Agent B found: %s

Disagreements identified:
%s

Return JSON with any severity_adjustments you'd make to your findings:
{"severity_adjustments": {"component_type": new_score}}`,
		strings.Join(summarize(primary), ", "),
		strings.Join(summarize(secondary), ", "),
		disagreementJSON)
}

func applySeverityAdjustments(evidence *core.VisionEvidence, response string) (*core.VisionEvidence, error) {
	var patch struct {
		SeverityAdjustments map[string]float64 `json:"severity_adjustments"`
	}
	if err := json.Unmarshal([]byte(response), &patch); err != nil {
		return nil, err
	}
	if len(patch.SeverityAdjustments) == 0 {
		return evidence, nil
	}

	out := &core.VisionEvidence{
		PhotoID:            evidence.PhotoID,
		Components:         make([]core.Component, len(evidence.Components)),
		GlobalObservations: evidence.GlobalObservations,
	}
	copy(out.Components, evidence.Components)
	for i, comp := range out.Components {
		if score, ok := patch.SeverityAdjustments[string(comp.Type)]; ok && score >= 0 && score <= 1 {
			out.Components[i].SeverityScore = score
		}
	}
	return out, nil
}

// mergeVisionFinal groups components from both sides by type: agreed groups
// merge with averaged severity and a small confidence boost, singletons are
// carried as-is.
func mergeVisionFinal(photoID string, a, b *core.VisionEvidence) *core.VisionEvidence {
	groups := make(map[core.ComponentType][]core.Component)
	var order []core.ComponentType
	for _, comp := range append(append([]core.Component{}, a.Components...), b.Components...) {
		if _, ok := groups[comp.Type]; !ok {
			order = append(order, comp.Type)
		}
		groups[comp.Type] = append(groups[comp.Type], comp)
	}

	merged := make([]core.Component, 0, len(order))
	for _, t := range order {
		comps := groups[t]
		if len(comps) == 1 {
			merged = append(merged, comps[0])
			continue
		}
		var severitySum, maxConfidence float64
		best := comps[0]
		for _, c := range comps {
			severitySum += c.SeverityScore
			if c.DetectionConfidence > maxConfidence {
				maxConfidence = c.DetectionConfidence
			}
			if len(c.Description) > len(best.Description) {
				best = c
			}
		}
		merged = append(merged, core.Component{
			Type:                t,
			LocationHint:        best.LocationHint,
			Condition:           best.Condition,
			Description:         best.Description,
			EstimatedArea:       best.EstimatedArea,
			SeverityScore:       severitySum / float64(len(comps)),
			DetectionConfidence: capConfidence(maxConfidence * 1.05),
			BBox:                best.BBox,
		})
	}

	return &core.VisionEvidence{
		PhotoID:            photoID,
		Components:         merged,
		GlobalObservations: dedupeObservations(a.GlobalObservations, b.GlobalObservations),
	}
}

// visionVoting runs N models and keeps only findings a majority agrees on.
type visionVoting struct {
	agents []*agents.VisionAgent
	log    *logging.Logger
}

func (f *visionVoting) Analyze(ctx context.Context, req agents.VisionRequest) (*core.VisionEvidence, error) {
	branches := make([]func(context.Context) (*core.VisionEvidence, error), len(f.agents))
	for i, agent := range f.agents {
		branches[i] = func(ctx context.Context) (*core.VisionEvidence, error) { return agent.Run(ctx, req) }
	}
	results := fanOutAll(ctx, branches)

	var valid []*core.VisionEvidence
	for _, r := range results {
		if r.ok() {
			valid = append(valid, r.value)
		}
	}
	if len(valid) == 0 {
		return nil, core.ErrExecution(core.CodeAllAgentsFailed, "all ensemble vision models failed")
	}
	if len(valid) == 1 {
		return valid[0], nil
	}
	return voteMergeVision(req.PhotoID, valid), nil
}

func voteMergeVision(photoID string, results []*core.VisionEvidence) *core.VisionEvidence {
	minVotes := len(results)/2 + 1

	componentVotes := make(map[core.ComponentType][]core.Component)
	var componentOrder []core.ComponentType
	for _, result := range results {
		for _, comp := range result.Components {
			if _, ok := componentVotes[comp.Type]; !ok {
				componentOrder = append(componentOrder, comp.Type)
			}
			componentVotes[comp.Type] = append(componentVotes[comp.Type], comp)
		}
	}

	merged := make([]core.Component, 0, len(componentOrder))
	for _, t := range componentOrder {
		votes := componentVotes[t]
		if len(votes) < minVotes {
			continue
		}
		var severitySum, confidenceSum float64
		best := votes[0]
		for _, c := range votes {
			severitySum += c.SeverityScore
			confidenceSum += c.DetectionConfidence
			if c.DetectionConfidence > best.DetectionConfidence {
				best = c
			}
		}
		n := float64(len(votes))
		merged = append(merged, core.Component{
			Type:                t,
			LocationHint:        best.LocationHint,
			Condition:           best.Condition,
			Description:         best.Description,
			EstimatedArea:       best.EstimatedArea,
			SeverityScore:       severitySum / n,
			DetectionConfidence: capConfidence(confidenceSum / n * (1 + 0.1*n)),
			BBox:                best.BBox,
		})
	}

	obsVotes := make(map[string][]core.GlobalObservation)
	var obsOrder []string
	for _, result := range results {
		for _, obs := range result.GlobalObservations {
			if _, ok := obsVotes[obs.Type]; !ok {
				obsOrder = append(obsOrder, obs.Type)
			}
			obsVotes[obs.Type] = append(obsVotes[obs.Type], obs)
		}
	}
	mergedObs := make([]core.GlobalObservation, 0, len(obsOrder))
	for _, t := range obsOrder {
		votes := obsVotes[t]
		if len(votes) < minVotes {
			continue
		}
		best := votes[0]
		for _, o := range votes {
			if o.Confidence > best.Confidence {
				best = o
			}
		}
		mergedObs = append(mergedObs, best)
	}

	return &core.VisionEvidence{
		PhotoID:            photoID,
		Components:         merged,
		GlobalObservations: mergedObs,
	}
}
