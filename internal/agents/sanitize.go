package agents

import (
	"strings"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

// Sanitization repairs structurally valid but semantically sloppy model
// output before schema validation: unknown enum labels are coerced to the
// catch-all, uppercase enum spellings are normalized, and derived aggregate
// blocks the model omitted are recomputed from their constituent items.

func sanitizeGapAnalysis(m map[string]any) {
	gaps, _ := m["scope_gaps"].([]any)
	var critical, major, minor, unpaid int

	for _, raw := range gaps {
		gap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if cat, ok := gap["category"].(string); ok {
			if !core.ValidGapCategory(core.GapCategory(cat)) {
				gap["category"] = string(core.GapOther)
			}
		}
		if sev, ok := gap["severity"].(string); ok {
			lower := strings.ToLower(sev)
			if core.ValidSeverity(core.Severity(lower)) {
				gap["severity"] = lower
			}
		}
		switch gap["severity"] {
		case string(core.SeverityCritical):
			critical++
		case string(core.SeverityMajor):
			major++
		case string(core.SeverityMinor):
			minor++
		}
		if risk, ok := gap["unpaid_work_risk"].(bool); ok && risk {
			unpaid++
		}
	}

	if _, ok := m["coverage_summary"].(map[string]any); !ok {
		m["coverage_summary"] = map[string]any{
			"critical_gaps":           critical,
			"major_gaps":              major,
			"minor_gaps":              minor,
			"total_unpaid_risk_items": unpaid,
			"narrative":               "",
		}
	}
}

func sanitizeStrategy(m map[string]any) {
	supplements, _ := m["supplements"].([]any)
	for _, raw := range supplements {
		supp, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		lowerEnum(supp, "pushback_risk")
		lowerEnum(supp, "priority")
	}

	margin, ok := m["margin_analysis"].(map[string]any)
	if !ok {
		return
	}
	target, _ := margin["target_margin"].(float64)
	projected, _ := margin["projected_margin"].(float64)
	if _, ok := margin["margin_gap_remaining"]; !ok {
		margin["margin_gap_remaining"] = target - projected
	}
	if _, ok := margin["target_achieved"]; !ok {
		margin["target_achieved"] = projected >= target
	}
	if _, ok := margin["current_margin"]; !ok {
		margin["current_margin"] = 0.0
	}
}

func sanitizeReview(m map[string]any) {
	if risk, ok := m["carrier_risk_assessment"].(map[string]any); ok {
		lowerEnum(risk, "overall_risk")
	}
	if flags, ok := m["human_flags"].([]any); ok {
		for _, raw := range flags {
			if flag, ok := raw.(map[string]any); ok {
				lowerEnum(flag, "severity")
			}
		}
	}
	if reruns, ok := m["reruns_requested"].([]any); ok {
		for _, raw := range reruns {
			if rerun, ok := raw.(map[string]any); ok {
				lowerEnum(rerun, "priority")
			}
		}
	}
}

func lowerEnum(m map[string]any, key string) {
	if s, ok := m[key].(string); ok {
		m[key] = strings.ToLower(s)
	}
}
