package core

// ScopeCategory classifies an estimate line item by the kind of work it
// covers. Unknown categories are coerced to ScopeOther during sanitization.
type ScopeCategory string

const (
	ScopeRoofingRemoval      ScopeCategory = "roofing_removal"
	ScopeRoofingInstallation ScopeCategory = "roofing_installation"
	ScopeFlashing            ScopeCategory = "flashing"
	ScopeVentilation         ScopeCategory = "ventilation"
	ScopeGutters             ScopeCategory = "gutters"
	ScopeSkylights           ScopeCategory = "skylights"
	ScopeChimney             ScopeCategory = "chimney"
	ScopeDecking             ScopeCategory = "decking"
	ScopeUnderlayment        ScopeCategory = "underlayment"
	ScopeIceWaterShield      ScopeCategory = "ice_water_shield"
	ScopeDripEdge            ScopeCategory = "drip_edge"
	ScopeRidgeCap            ScopeCategory = "ridge_cap"
	ScopeCleanup             ScopeCategory = "cleanup"
	ScopePermit              ScopeCategory = "permit"
	ScopeOverheadProfit      ScopeCategory = "overhead_profit"
	ScopeCodeUpgrade         ScopeCategory = "code_upgrade"
	ScopeGeneralConditions   ScopeCategory = "general_conditions"
	ScopeOther               ScopeCategory = "other"
)

// LineItem is one parsed line from the carrier's estimate document.
type LineItem struct {
	LineID          string        `json:"line_id"`
	Description     string        `json:"description"`
	ScopeCategory   ScopeCategory `json:"scope_category"`
	Quantity        float64       `json:"quantity"`
	Unit            string        `json:"unit"`
	UnitPrice       float64       `json:"unit_price"`
	Total           float64       `json:"total"`
	IsRoofingCore   bool          `json:"is_roofing_core"`
	IsCodeItem      bool          `json:"is_code_item"`
	IsOversightRisk bool          `json:"is_oversight_risk"`
	RawLineText     string        `json:"raw_line_text,omitempty"`
}

// EstimateSummary is the header-level reading of the estimate document.
type EstimateSummary struct {
	Carrier                   string  `json:"carrier"`
	ClaimNumber               string  `json:"claim_number"`
	TotalEstimateAmount       float64 `json:"total_estimate_amount"`
	RoofRelatedTotal          float64 `json:"roof_related_total"`
	OverheadAndProfitIncluded bool    `json:"overhead_and_profit_included"`
	DepreciationAmount        float64 `json:"depreciation_amount"`
}

// ActualCosts is the cost breakdown carried inside Financials.
type ActualCosts struct {
	Materials float64 `json:"materials"`
	Labor     float64 `json:"labor"`
	Other     float64 `json:"other"`
	Total     float64 `json:"total"`
}

// Financials compares the estimate against the contractor's actual costs.
type Financials struct {
	OriginalEstimateTotal float64     `json:"original_estimate_total"`
	ActualCosts           ActualCosts `json:"actual_costs"`
	CurrentMargin         float64     `json:"current_margin"`
	TargetMargin          float64     `json:"target_margin"`
	MarginGap             float64     `json:"margin_gap"`
}

// EstimateInterpretation is the estimate stage output.
type EstimateInterpretation struct {
	EstimateSummary   EstimateSummary `json:"estimate_summary"`
	LineItems         []LineItem      `json:"line_items"`
	Financials        Financials      `json:"financials"`
	ParsingNotes      []string        `json:"parsing_notes"`
	ParsingConfidence float64         `json:"parsing_confidence"`
}
