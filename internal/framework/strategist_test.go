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

func TestNewStrategistUnknownName(t *testing.T) {
	_, err := NewStrategist("oracle", &fakeTransport{}, nil, nil, nil, 3, fastRetry(), logging.NewNop())
	require.Error(t, err)
	var domErr *core.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, core.CodeUnknownFramework, domErr.Code)
}

func TestNewStrategistConsensusDegradesToSingle(t *testing.T) {
	f, err := NewStrategist(StrategistConsensus, &fakeTransport{}, nil, nil, nil, 3, fastRetry(), logging.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &strategistSingle{}, f)
}

func TestStrategistSingleFallsBackAfterExhaustedRetries(t *testing.T) {
	f, err := NewStrategist(StrategistSingle, failingTransport(), nil, nil, nil, 3, fastRetry(), logging.NewNop())
	require.NoError(t, err)

	req := agents.StrategyRequest{
		Estimate: &core.EstimateInterpretation{
			Financials: core.Financials{
				OriginalEstimateTotal: 20000,
				ActualCosts:           core.ActualCosts{Total: 16000},
			},
		},
		TargetMargin: 0.33,
	}
	result, err := f.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Empty(t, result.Supplements)
	assert.InDelta(t, 0.2, result.MarginAnalysis.CurrentMargin, 1e-9)
	assert.InDelta(t, 0.2, result.MarginAnalysis.ProjectedMargin, 1e-9)
	assert.False(t, result.MarginAnalysis.TargetAchieved)
	assert.Contains(t, result.StrategyNotes[0], "Fallback strategy")
}

func TestStrategyDisagreementsIncludePriceDeltas(t *testing.T) {
	a := &core.SupplementStrategy{Supplements: []core.SupplementProposal{
		{Type: "addition", Description: "ice and water shield at eaves", EstimatedValue: 1200},
		{Type: "addition", Description: "drip edge all elevations", EstimatedValue: 900},
	}}
	b := &core.SupplementStrategy{Supplements: []core.SupplementProposal{
		{Type: "addition", Description: "ice and water shield at eaves", EstimatedValue: 2000},
		{Type: "addition", Description: "steep charge for 8/12 pitch", EstimatedValue: 600},
	}}

	got := strategyDisagreements(a, b)
	types := make(map[string]int)
	for _, d := range got {
		types[d["type"].(string)]++
	}
	assert.Equal(t, 1, types["price_disagreement"], "50% value delta exceeds tolerance")
	assert.Equal(t, 1, types["missing_in_b"])
	assert.Equal(t, 1, types["missing_in_a"])
}

func TestStrategyDisagreementsIgnoreSmallPriceDeltas(t *testing.T) {
	a := &core.SupplementStrategy{Supplements: []core.SupplementProposal{
		{Type: "addition", Description: "drip edge all elevations", EstimatedValue: 1000},
	}}
	b := &core.SupplementStrategy{Supplements: []core.SupplementProposal{
		{Type: "addition", Description: "drip edge all elevations", EstimatedValue: 1100},
	}}
	assert.Empty(t, strategyDisagreements(a, b))
}

func TestApplyStrategyPatch(t *testing.T) {
	mine := &core.SupplementStrategy{
		Supplements: []core.SupplementProposal{
			{SupplementID: "S1", Type: "addition", Description: "ice and water shield at eaves",
				Quantity: 6, EstimatedUnitPrice: 200, EstimatedValue: 1200, Justification: "Code requires it."},
			{SupplementID: "S2", Type: "addition", Description: "gut feeling extra", EstimatedValue: 500},
		},
		MarginAnalysis: core.MarginAnalysis{OriginalEstimate: 20000, TotalCosts: 16000, CurrentMargin: 0.2, TargetMargin: 0.33},
	}
	theirs := &core.SupplementStrategy{Supplements: []core.SupplementProposal{
		{SupplementID: "T1", Type: "addition", Description: "steep charge for 8/12 pitch roof", EstimatedValue: 600},
	}}

	patched, err := applyStrategyPatch(mine, theirs, `{
		"add_items": [{"description": "Steep charge for 8/12 pitch", "value": 600, "justification": "agreed"}],
		"remove_items": ["addition:gut feeling extra"],
		"price_changes": {"addition:ice and water shield at eaves": 1800}
	}`)
	require.NoError(t, err)

	require.Len(t, patched.Supplements, 2)
	shield := patched.Supplements[0]
	assert.Equal(t, "S1", shield.SupplementID)
	assert.InDelta(t, 1800, shield.EstimatedValue, 1e-9)
	assert.InDelta(t, 300, shield.EstimatedUnitPrice, 1e-9)
	assert.Contains(t, shield.Justification, "Adjusted via consensus debate")

	assert.Equal(t, "T1", patched.Supplements[1].SupplementID, "additions come from the counterpart's proposals")

	assert.InDelta(t, 2400, patched.MarginAnalysis.ProposedSupplementTotal, 1e-9)
	assert.InDelta(t, 22400, patched.MarginAnalysis.NewEstimateTotal, 1e-9)

	_, err = applyStrategyPatch(mine, theirs, "garbage")
	require.Error(t, err)
}

func TestApplyStrategyPatchIgnoresUnknownAdditions(t *testing.T) {
	mine := &core.SupplementStrategy{}
	theirs := &core.SupplementStrategy{Supplements: []core.SupplementProposal{
		{SupplementID: "T1", Description: "steep charge"},
	}}

	patched, err := applyStrategyPatch(mine, theirs,
		`{"add_items": [{"description": "entirely fabricated line item", "value": 9999}]}`)
	require.NoError(t, err)
	assert.Empty(t, patched.Supplements, "additions not present in the counterpart's list are discarded")
}

func TestMergeStrategies(t *testing.T) {
	a := &core.SupplementStrategy{
		Supplements: []core.SupplementProposal{
			{SupplementID: "S1", Type: "addition", Description: "ice and water shield at eaves",
				Quantity: 6, EstimatedValue: 1200, Confidence: 0.7, LinkedGaps: []string{"G1"}},
			{SupplementID: "S2", Type: "addition", Description: "weak hunch", EstimatedValue: 300, Confidence: 0.4},
		},
		MarginAnalysis: core.MarginAnalysis{OriginalEstimate: 20000, TotalCosts: 16000, CurrentMargin: 0.2, TargetMargin: 0.33},
	}
	b := &core.SupplementStrategy{
		Supplements: []core.SupplementProposal{
			{SupplementID: "T1", Type: "addition", Description: "ice and water shield at eaves",
				Quantity: 6, EstimatedValue: 1800, Confidence: 0.9, LinkedGaps: []string{"G2"}},
			{SupplementID: "T2", Type: "addition", Description: "steep charge", EstimatedValue: 2000, Confidence: 0.8},
		},
		MarginAnalysis: core.MarginAnalysis{OriginalEstimate: 22000, TotalCosts: 16000, CurrentMargin: 0.27, TargetMargin: 0.33},
	}

	merged := mergeStrategies(a, b)

	require.Len(t, merged.Supplements, 2, "low-confidence single-model proposal must be dropped")

	assert.Equal(t, "T2", merged.Supplements[0].SupplementID, "sorted by value descending")

	shield := merged.Supplements[1]
	assert.Equal(t, "T1", shield.SupplementID, "higher-confidence side supplies the identity")
	assert.InDelta(t, 1500, shield.EstimatedValue, 1e-9)
	assert.InDelta(t, 250, shield.EstimatedUnitPrice, 1e-9)
	assert.ElementsMatch(t, []string{"G1", "G2"}, shield.LinkedGaps)
	assert.InDelta(t, 0.92, shield.Confidence, 1e-9)

	assert.InDelta(t, 3500, merged.MarginAnalysis.ProposedSupplementTotal, 1e-9)
	assert.InDelta(t, 21000, merged.MarginAnalysis.OriginalEstimate, 1e-9)
	assert.InDelta(t, 24500, merged.MarginAnalysis.NewEstimateTotal, 1e-9)
	assert.True(t, merged.MarginAnalysis.TargetAchieved)

	require.Len(t, merged.StrategyNotes, 2)
	assert.Contains(t, merged.StrategyNotes[0], "Consensus analysis from 2 + 2 proposals")
	assert.Contains(t, merged.StrategyNotes[1], "$3500.00 total")
}

func TestMergeStrategiesCommutative(t *testing.T) {
	a := &core.SupplementStrategy{
		Supplements: []core.SupplementProposal{
			{SupplementID: "S1", Type: "addition", Description: "ice and water shield at eaves",
				Quantity: 6, EstimatedValue: 1200, Confidence: 0.7},
			{SupplementID: "S2", Type: "addition", Description: "weak hunch", EstimatedValue: 300, Confidence: 0.4},
		},
		MarginAnalysis: core.MarginAnalysis{OriginalEstimate: 20000, TotalCosts: 16000, CurrentMargin: 0.2, TargetMargin: 0.33},
	}
	b := &core.SupplementStrategy{
		Supplements: []core.SupplementProposal{
			{SupplementID: "T1", Type: "addition", Description: "ice and water shield at eaves",
				Quantity: 6, EstimatedValue: 1800, Confidence: 0.9},
			{SupplementID: "T2", Type: "addition", Description: "steep charge", EstimatedValue: 2000, Confidence: 0.8},
		},
		MarginAnalysis: core.MarginAnalysis{OriginalEstimate: 22000, TotalCosts: 16000, CurrentMargin: 0.27, TargetMargin: 0.33},
	}

	ab := mergeStrategies(a, b)
	ba := mergeStrategies(b, a)

	keyed := func(m *core.SupplementStrategy) map[string]core.SupplementProposal {
		out := make(map[string]core.SupplementProposal, len(m.Supplements))
		for _, s := range m.Supplements {
			out[supplementKey(s)] = s
		}
		return out
	}
	abKeys, baKeys := keyed(ab), keyed(ba)

	require.Len(t, baKeys, len(abKeys), "surviving key set must not depend on argument order")
	for key, s := range abKeys {
		got, ok := baKeys[key]
		require.True(t, ok, "key %q missing from swapped merge", key)
		assert.InDelta(t, s.Confidence, got.Confidence, 1e-9)
		assert.InDelta(t, s.EstimatedValue, got.EstimatedValue, 1e-9)
	}

	assert.InDelta(t, ab.MarginAnalysis.ProposedSupplementTotal, ba.MarginAnalysis.ProposedSupplementTotal, 1e-9)
	assert.InDelta(t, ab.MarginAnalysis.OriginalEstimate, ba.MarginAnalysis.OriginalEstimate, 1e-9)
}
