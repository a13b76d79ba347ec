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

func TestNewGapUnknownName(t *testing.T) {
	_, err := NewGap("debate_club", &fakeTransport{}, nil, 3, fastRetry(), logging.NewNop())
	require.Error(t, err)
	var domErr *core.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, core.CodeUnknownFramework, domErr.Code)
}

func TestNewGapConsensusDegradesToSingle(t *testing.T) {
	f, err := NewGap(GapConsensus, &fakeTransport{}, nil, 3, fastRetry(), logging.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &gapSingle{}, f)
}

func TestGapSingleFallsBackAfterExhaustedRetries(t *testing.T) {
	f, err := NewGap(GapSingle, failingTransport(), nil, 3, fastRetry(), logging.NewNop())
	require.NoError(t, err)

	result, err := f.Analyze(context.Background(), agents.GapRequest{})
	require.NoError(t, err)
	assert.Empty(t, result.ScopeGaps)
	assert.Contains(t, result.CoverageSummary.Narrative, "Fallback gap analysis")
}

func TestGapDisagreementsDetected(t *testing.T) {
	a := &core.GapAnalysis{ScopeGaps: []core.ScopeGap{
		{GapID: "G1", Category: core.GapMissingLineItem, Severity: core.SeverityCritical, Description: "drip edge absent"},
		{GapID: "G2", Category: core.GapUnderquantified, Severity: core.SeverityMajor, Description: "ridge cap short by 20 lf"},
	}}
	b := &core.GapAnalysis{ScopeGaps: []core.ScopeGap{
		{GapID: "H1", Category: core.GapMissingLineItem, Severity: core.SeverityMajor, Description: "drip edge absent"},
		{GapID: "H2", Category: core.GapMissingCodeItem, Severity: core.SeverityMinor, Description: "ice and water shield not in scope"},
	}}

	got := gapDisagreements(a, b)
	types := make(map[string]int)
	for _, d := range got {
		types[d["type"].(string)]++
	}
	assert.Equal(t, 1, types["severity_mismatch"])
	assert.Equal(t, 1, types["missing_in_b"])
	assert.Equal(t, 1, types["missing_in_a"])
}

func TestApplyGapPatch(t *testing.T) {
	mine := &core.GapAnalysis{
		ScopeGaps: []core.ScopeGap{
			{GapID: "G1", Category: core.GapMissingLineItem, Severity: core.SeverityCritical, Description: "drip edge absent", UnpaidWorkRisk: true},
			{GapID: "G2", Category: core.GapUnderquantified, Severity: core.SeverityMajor, Description: "ridge cap short"},
		},
		CoverageSummary: core.CoverageSummary{Narrative: "initial pass"},
	}
	theirs := &core.GapAnalysis{ScopeGaps: []core.ScopeGap{
		{GapID: "H2", Category: core.GapMissingCodeItem, Severity: core.SeverityMinor, Description: "ice and water shield"},
	}}

	patched, err := applyGapPatch(mine, theirs,
		`{"add_gaps": ["H2"], "remove_gaps": ["G2"], "severity_changes": {"G1": "major", "H2": "catastrophic"}}`)
	require.NoError(t, err)

	require.Len(t, patched.ScopeGaps, 2)
	assert.Equal(t, "G1", patched.ScopeGaps[0].GapID)
	assert.Equal(t, core.SeverityMajor, patched.ScopeGaps[0].Severity)
	assert.Equal(t, "H2", patched.ScopeGaps[1].GapID)
	assert.Equal(t, core.SeverityMinor, patched.ScopeGaps[1].Severity, "invalid severity level must be ignored")

	assert.Equal(t, 1, patched.CoverageSummary.MajorGaps)
	assert.Equal(t, 1, patched.CoverageSummary.MinorGaps)
	assert.Equal(t, 1, patched.CoverageSummary.TotalUnpaidRiskItems)
	assert.Equal(t, "initial pass", patched.CoverageSummary.Narrative)

	_, err = applyGapPatch(mine, theirs, "garbage")
	require.Error(t, err)
}

func TestMergeGapAnalyses(t *testing.T) {
	a := &core.GapAnalysis{ScopeGaps: []core.ScopeGap{
		{GapID: "G1", Category: core.GapMissingLineItem, Severity: core.SeverityCritical, Description: "drip edge absent from estimate",
			LinkedPhotos: []string{"p1"}, Confidence: 0.8, UnpaidWorkRisk: true},
		{GapID: "G2", Category: core.GapUnderquantified, Severity: core.SeverityMajor, Description: "ridge cap short", Confidence: 0.9},
	}}
	b := &core.GapAnalysis{ScopeGaps: []core.ScopeGap{
		{GapID: "H1", Category: core.GapMissingLineItem, Severity: core.SeverityCritical, Description: "drip edge absent from estimate",
			LinkedPhotos: []string{"p2"}, Confidence: 0.9},
		{GapID: "H3", Category: core.GapOther, Severity: core.SeverityMinor, Description: "minor hunch", Confidence: 0.5},
	}}

	merged := mergeGapAnalyses(a, b)

	require.Len(t, merged.ScopeGaps, 2, "low-confidence single-model gap must be dropped")

	dripEdge := merged.ScopeGaps[0]
	assert.Equal(t, "H1", dripEdge.GapID, "higher-confidence side supplies the identity")
	assert.ElementsMatch(t, []string{"p1", "p2"}, dripEdge.LinkedPhotos)
	assert.InDelta(t, 0.935, dripEdge.Confidence, 1e-9)
	assert.True(t, dripEdge.UnpaidWorkRisk)

	assert.Equal(t, "G2", merged.ScopeGaps[1].GapID, "high-confidence singleton survives")

	assert.Equal(t, 1, merged.CoverageSummary.CriticalGaps)
	assert.Equal(t, 1, merged.CoverageSummary.MajorGaps)
	assert.Contains(t, merged.CoverageSummary.Narrative, "Consensus analysis identified 2 gaps")
}

func TestMergeGapAnalysesCommutative(t *testing.T) {
	a := &core.GapAnalysis{ScopeGaps: []core.ScopeGap{
		{GapID: "G1", Category: core.GapMissingLineItem, Severity: core.SeverityCritical,
			Description: "drip edge missing along north eave", LinkedPhotos: []string{"p1"}, Confidence: 0.8},
		{GapID: "G2", Category: core.GapUnderquantified, Severity: core.SeverityMajor,
			Description: "ridge cap short", Confidence: 0.9},
	}}
	b := &core.GapAnalysis{ScopeGaps: []core.ScopeGap{
		{GapID: "H1", Category: core.GapMissingLineItem, Severity: core.SeverityCritical,
			Description: "drip edge missing along north eave", LinkedPhotos: []string{"p2"}, Confidence: 0.85},
		{GapID: "H3", Category: core.GapOther, Severity: core.SeverityMinor,
			Description: "below-floor hunch", Confidence: 0.5},
	}}

	ab := mergeGapAnalyses(a, b)
	ba := mergeGapAnalyses(b, a)

	keyConf := func(m *core.GapAnalysis) map[string]float64 {
		out := make(map[string]float64, len(m.ScopeGaps))
		for _, g := range m.ScopeGaps {
			out[gapKey(g)] = g.Confidence
		}
		return out
	}
	abConf, baConf := keyConf(ab), keyConf(ba)

	require.Len(t, baConf, len(abConf), "surviving key set must not depend on argument order")
	for key, conf := range abConf {
		got, ok := baConf[key]
		require.True(t, ok, "key %q missing from swapped merge", key)
		assert.InDelta(t, conf, got, 1e-9)
	}

	assert.Equal(t, ab.CoverageSummary.CriticalGaps, ba.CoverageSummary.CriticalGaps)
	assert.Equal(t, ab.CoverageSummary.MajorGaps, ba.CoverageSummary.MajorGaps)
	assert.Equal(t, ab.CoverageSummary.MinorGaps, ba.CoverageSummary.MinorGaps)
}
