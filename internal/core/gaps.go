package core

// GapCategory classifies a coverage gap between the evidence and the
// estimate. The sanitizer coerces unknown categories to GapOther.
type GapCategory string

const (
	GapMissingLineItem        GapCategory = "missing_line_item"
	GapUnderquantified        GapCategory = "underquantified"
	GapIncorrectPricing       GapCategory = "incorrect_pricing"
	GapMissingCodeItem        GapCategory = "missing_code_item"
	GapDamageNotCovered       GapCategory = "damage_not_covered"
	GapComponentMissed        GapCategory = "component_missed"
	GapMeasurementDiscrepancy GapCategory = "measurement_discrepancy"
	GapMaterialUpgradeNeeded  GapCategory = "material_upgrade_needed"
	GapLaborUnderestimated    GapCategory = "labor_underestimated"
	GapOther                  GapCategory = "other"
)

// ValidGapCategory reports whether c is one of the defined categories.
func ValidGapCategory(c GapCategory) bool {
	switch c {
	case GapMissingLineItem, GapUnderquantified, GapIncorrectPricing,
		GapMissingCodeItem, GapDamageNotCovered, GapComponentMissed,
		GapMeasurementDiscrepancy, GapMaterialUpgradeNeeded,
		GapLaborUnderestimated, GapOther:
		return true
	default:
		return false
	}
}

// Severity grades how serious a gap is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// ValidSeverity reports whether s is one of the three defined levels.
func ValidSeverity(s Severity) bool {
	return s == SeverityCritical || s == SeverityMajor || s == SeverityMinor
}

// ScopeGap is one identified gap between photo evidence and the estimate.
type ScopeGap struct {
	GapID               string      `json:"gap_id"`
	Category            GapCategory `json:"category"`
	Severity            Severity    `json:"severity"`
	Description         string      `json:"description"`
	LinkedPhotos        []string    `json:"linked_photos"`
	LinkedEstimateLines []string    `json:"linked_estimate_lines"`
	Confidence          float64     `json:"confidence"`
	UnpaidWorkRisk      bool        `json:"unpaid_work_risk"`
	Notes               string      `json:"notes,omitempty"`
}

// CoverageSummary aggregates gap counts. Its counts must always equal the
// tally over the gap list it accompanies; use SummarizeGaps after any
// mutation instead of copying counts forward.
type CoverageSummary struct {
	CriticalGaps         int    `json:"critical_gaps"`
	MajorGaps            int    `json:"major_gaps"`
	MinorGaps            int    `json:"minor_gaps"`
	TotalUnpaidRiskItems int    `json:"total_unpaid_risk_items"`
	Narrative            string `json:"narrative"`
}

// GapAnalysis is the gap stage output.
type GapAnalysis struct {
	ScopeGaps       []ScopeGap      `json:"scope_gaps"`
	CoverageSummary CoverageSummary `json:"coverage_summary"`
}

// SummarizeGaps recomputes a CoverageSummary from the gap list.
func SummarizeGaps(gaps []ScopeGap, narrative string) CoverageSummary {
	s := CoverageSummary{Narrative: narrative}
	for _, g := range gaps {
		switch g.Severity {
		case SeverityCritical:
			s.CriticalGaps++
		case SeverityMajor:
			s.MajorGaps++
		case SeverityMinor:
			s.MinorGaps++
		}
		if g.UnpaidWorkRisk {
			s.TotalUnpaidRiskItems++
		}
	}
	return s
}
