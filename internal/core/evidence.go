package core

// ComponentType enumerates roofing components the vision stage can detect.
// Unrecognized model outputs are coerced to ComponentOther during
// sanitization rather than rejected.
type ComponentType string

const (
	ComponentShingle        ComponentType = "shingle"
	ComponentFlashing       ComponentType = "flashing"
	ComponentRidgeCap       ComponentType = "ridge_cap"
	ComponentValley         ComponentType = "valley"
	ComponentVent           ComponentType = "vent"
	ComponentPipeBoot       ComponentType = "pipe_boot"
	ComponentSkylight       ComponentType = "skylight"
	ComponentChimney        ComponentType = "chimney"
	ComponentGutter         ComponentType = "gutter"
	ComponentDownspout      ComponentType = "downspout"
	ComponentFascia         ComponentType = "fascia"
	ComponentSoffit         ComponentType = "soffit"
	ComponentDripEdge       ComponentType = "drip_edge"
	ComponentIceWaterShield ComponentType = "ice_water_shield"
	ComponentUnderlayment   ComponentType = "underlayment"
	ComponentDecking        ComponentType = "decking"
	ComponentDishMount      ComponentType = "satellite_dish_mount"
	ComponentHVACCurb       ComponentType = "hvac_curb"
	ComponentOther          ComponentType = "other"
)

// BoundingBox locates a component in a photo, normalized to [0,1].
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AreaUnit is the measurement unit of an estimated area.
type AreaUnit string

const (
	AreaSqFt     AreaUnit = "sq_ft"
	AreaSqM      AreaUnit = "sq_m"
	AreaLinearFt AreaUnit = "linear_ft"
	AreaLinearM  AreaUnit = "linear_m"
	AreaEach     AreaUnit = "each"
)

// EstimatedArea is a model-estimated size for a detected component.
type EstimatedArea struct {
	Value      float64  `json:"value"`
	Unit       AreaUnit `json:"unit"`
	Confidence float64  `json:"confidence"`
	Method     string   `json:"method"`
}

// Component is a single detected roofing component in one photo.
type Component struct {
	Type                ComponentType  `json:"component_type"`
	LocationHint        string         `json:"location_hint"`
	Condition           string         `json:"condition"`
	Description         string         `json:"description"`
	EstimatedArea       *EstimatedArea `json:"estimated_area,omitempty"`
	SeverityScore       float64        `json:"severity_score"`
	DetectionConfidence float64        `json:"detection_confidence"`
	BBox                *BoundingBox   `json:"bbox,omitempty"`
}

// GlobalObservation is a roof-wide finding not tied to one component.
type GlobalObservation struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// VisionEvidence is the vision stage output for a single photo.
type VisionEvidence struct {
	PhotoID            string              `json:"photo_id"`
	Components         []Component         `json:"components"`
	GlobalObservations []GlobalObservation `json:"global_observations"`
}
