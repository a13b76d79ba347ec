package framework

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/agents"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

func visionReq(photoID string) agents.VisionRequest {
	return agents.VisionRequest{PhotoID: photoID, Image: []byte{0x89, 0x50}}
}

func TestNewVisionUnknownName(t *testing.T) {
	_, err := NewVision("majority_jury", &fakeTransport{}, &fakeTransport{}, nil, 3, logging.NewNop())
	require.Error(t, err)
	var domErr *core.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, core.CodeUnknownFramework, domErr.Code)
}

func TestNewVisionNilSecondaryDegradesToSingle(t *testing.T) {
	f, err := NewVision(VisionConsensusDebate, &fakeTransport{}, nil, nil, 3, logging.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &visionSingle{}, f)
}

func TestParallelAggregateMergesMatchedComponents(t *testing.T) {
	primary := visionTransport(visionJSON("photo-1",
		componentJSON("shingle", "north slope", 0.8, 0.8),
		componentJSON("gutter", "", 0.4, 0.9),
	))
	secondary := visionTransport(visionJSON("photo-1",
		componentJSON("shingle", "north face near ridge", 0.6, 0.6),
		componentJSON("vent", "", 0.5, 0.7),
	))

	f, err := NewVision(VisionParallelAggregate, primary, secondary, nil, 3, logging.NewNop())
	require.NoError(t, err)
	evidence, err := f.Analyze(context.Background(), visionReq("photo-1"))
	require.NoError(t, err)

	require.Len(t, evidence.Components, 3)
	var shingle *core.Component
	for i := range evidence.Components {
		if evidence.Components[i].Type == core.ComponentShingle {
			shingle = &evidence.Components[i]
		}
	}
	require.NotNil(t, shingle)
	assert.InDelta(t, 0.7, shingle.SeverityScore, 1e-9)
	assert.InDelta(t, 0.77, shingle.DetectionConfidence, 1e-9)
}

func TestParallelAggregateSurvivesOneModelFailure(t *testing.T) {
	primary := visionTransport(visionJSON("photo-1", componentJSON("shingle", "", 0.8, 0.8)))

	f, err := NewVision(VisionParallelAggregate, primary, failingTransport(), nil, 3, logging.NewNop())
	require.NoError(t, err)
	evidence, err := f.Analyze(context.Background(), visionReq("photo-1"))
	require.NoError(t, err)
	assert.Len(t, evidence.Components, 1)
}

func TestParallelAggregateBothModelsFail(t *testing.T) {
	f, err := NewVision(VisionParallelAggregate, failingTransport(), failingTransport(), nil, 3, logging.NewNop())
	require.NoError(t, err)
	_, err = f.Analyze(context.Background(), visionReq("photo-1"))
	require.Error(t, err)
	var domErr *core.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, core.CodeAllAgentsFailed, domErr.Code)
}

func TestConsensusDebateExitsEarlyOnAgreement(t *testing.T) {
	payload := visionJSON("photo-1", componentJSON("shingle", "north slope", 0.8, 0.8))
	debateCalls := 0
	mk := func() *fakeTransport {
		tr := visionTransport(payload)
		tr.completeFn = func(context.Context, string, string) (string, error) {
			debateCalls++
			return "{}", nil
		}
		return tr
	}

	f, err := NewVision(VisionConsensusDebate, mk(), mk(), nil, 3, logging.NewNop())
	require.NoError(t, err)
	evidence, err := f.Analyze(context.Background(), visionReq("photo-1"))
	require.NoError(t, err)

	assert.Zero(t, debateCalls, "identical findings should not trigger a debate round")
	require.Len(t, evidence.Components, 1)
	// Two agreeing components merge with the consensus boost.
	assert.InDelta(t, 0.84, evidence.Components[0].DetectionConfidence, 1e-9)
}

func TestVisionDisagreementsDetected(t *testing.T) {
	a := &core.VisionEvidence{Components: []core.Component{
		{Type: core.ComponentShingle, SeverityScore: 0.9},
		{Type: core.ComponentGutter, SeverityScore: 0.4},
	}}
	b := &core.VisionEvidence{Components: []core.Component{
		{Type: core.ComponentShingle, SeverityScore: 0.5},
		{Type: core.ComponentVent, SeverityScore: 0.3},
	}}

	got := visionDisagreements(a, b)
	types := make(map[string]int)
	for _, d := range got {
		types[d["type"].(string)]++
	}
	assert.Equal(t, 1, types["missing_in_b"])
	assert.Equal(t, 1, types["missing_in_a"])
	assert.Equal(t, 1, types["severity_mismatch"])
}

func TestApplySeverityAdjustments(t *testing.T) {
	evidence := &core.VisionEvidence{Components: []core.Component{
		{Type: core.ComponentShingle, SeverityScore: 0.9},
	}}

	adjusted, err := applySeverityAdjustments(evidence, `{"severity_adjustments": {"shingle": 0.6, "gutter": 0.2}}`)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, adjusted.Components[0].SeverityScore, 1e-9)
	// Original untouched.
	assert.InDelta(t, 0.9, evidence.Components[0].SeverityScore, 1e-9)

	_, err = applySeverityAdjustments(evidence, "not json")
	require.Error(t, err)

	// Out-of-range scores are ignored.
	same, err := applySeverityAdjustments(evidence, `{"severity_adjustments": {"shingle": 1.7}}`)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, same.Components[0].SeverityScore, 1e-9)
}

func TestEnsembleVotingDropsMinorityFindings(t *testing.T) {
	t1 := visionTransport(visionJSON("photo-1",
		componentJSON("shingle", "", 0.9, 0.9),
		componentJSON("gutter", "", 0.4, 0.8),
	))
	t2 := visionTransport(visionJSON("photo-1", componentJSON("shingle", "", 0.7, 0.7)))
	t3 := visionTransport(visionJSON("photo-1", componentJSON("shingle", "", 0.5, 0.8)))

	f, err := NewVision(VisionEnsembleVoting, t1, t2, []core.ModelTransport{t3}, 3, logging.NewNop())
	require.NoError(t, err)
	evidence, err := f.Analyze(context.Background(), visionReq("photo-1"))
	require.NoError(t, err)

	require.Len(t, evidence.Components, 1, "gutter seen by one of three models should be dropped")
	shingle := evidence.Components[0]
	assert.Equal(t, core.ComponentShingle, shingle.Type)
	assert.InDelta(t, 0.7, shingle.SeverityScore, 1e-9)
	// avg confidence 0.8 boosted by 1 + 0.1*3.
	assert.InDelta(t, 1.0, shingle.DetectionConfidence, 1e-9)
}

func TestEnsembleVotingSingleSurvivor(t *testing.T) {
	ok := visionTransport(visionJSON("photo-1", componentJSON("gutter", "", 0.4, 0.8)))

	f, err := NewVision(VisionEnsembleVoting, failingTransport(), ok, []core.ModelTransport{failingTransport()}, 3, logging.NewNop())
	require.NoError(t, err)
	evidence, err := f.Analyze(context.Background(), visionReq("photo-1"))
	require.NoError(t, err)
	assert.Len(t, evidence.Components, 1)
}

func TestEnsembleVotingAllFail(t *testing.T) {
	f, err := NewVision(VisionEnsembleVoting, failingTransport(), failingTransport(), nil, 3, logging.NewNop())
	require.NoError(t, err)
	_, err = f.Analyze(context.Background(), visionReq("photo-1"))
	require.Error(t, err)
}

func TestMergeVisionFinalCommutative(t *testing.T) {
	a := &core.VisionEvidence{PhotoID: "photo-1", Components: []core.Component{
		{Type: core.ComponentShingle, Description: "granule loss on north slope", SeverityScore: 0.8, DetectionConfidence: 0.8},
		{Type: core.ComponentVent, Description: "dented box vent", SeverityScore: 0.5, DetectionConfidence: 0.7},
	}}
	b := &core.VisionEvidence{PhotoID: "photo-1", Components: []core.Component{
		{Type: core.ComponentShingle, Description: "scattered granule loss", SeverityScore: 0.6, DetectionConfidence: 0.9},
		{Type: core.ComponentFlashing, Description: "lifted step flashing", SeverityScore: 0.4, DetectionConfidence: 0.6},
	}}

	ab := mergeVisionFinal("photo-1", a, b)
	ba := mergeVisionFinal("photo-1", b, a)

	byType := func(e *core.VisionEvidence) map[core.ComponentType]core.Component {
		out := make(map[core.ComponentType]core.Component, len(e.Components))
		for _, c := range e.Components {
			out[c.Type] = c
		}
		return out
	}
	abComps, baComps := byType(ab), byType(ba)

	require.Len(t, baComps, len(abComps), "surviving type set must not depend on argument order")
	for typ, c := range abComps {
		got, ok := baComps[typ]
		require.True(t, ok, "type %q missing from swapped merge", typ)
		assert.InDelta(t, c.SeverityScore, got.SeverityScore, 1e-9)
		assert.InDelta(t, c.DetectionConfidence, got.DetectionConfidence, 1e-9)
	}
	assert.ElementsMatch(t, ab.GlobalObservations, ba.GlobalObservations)
}
