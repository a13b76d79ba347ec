package core

// Job is the immutable input bundle for one orchestration run. It is created
// once by the API layer and read-only afterwards.
type Job struct {
	ID          string          `json:"job_id"`
	Metadata    ClaimMetadata   `json:"metadata"`
	EstimatePDF []byte          `json:"-"`
	Photos      []Photo         `json:"photos"`
	Costs       Costs           `json:"costs"`
	Targets     BusinessTargets `json:"business_targets"`

	// GenerateReport controls whether the reporting phase renders artifacts.
	GenerateReport bool `json:"generate_report"`
}

// ClaimMetadata describes the insurance claim and property.
type ClaimMetadata struct {
	Carrier         string `json:"carrier"`
	ClaimNumber     string `json:"claim_number"`
	InsuredName     string `json:"insured_name"`
	PropertyAddress string `json:"property_address"`
	DateOfLoss      string `json:"date_of_loss,omitempty"`
	PolicyNumber    string `json:"policy_number,omitempty"`
	AdjusterName    string `json:"adjuster_name,omitempty"`
	AdjusterEmail   string `json:"adjuster_email,omitempty"`
	AdjusterPhone   string `json:"adjuster_phone,omitempty"`
}

// PhotoView classifies what a claim photo captures.
type PhotoView string

const (
	ViewOverview     PhotoView = "overview"
	ViewCloseUp      PhotoView = "close_up"
	ViewDamageDetail PhotoView = "damage_detail"
	ViewMeasurement  PhotoView = "measurement"
	ViewBefore       PhotoView = "before"
	ViewAfter        PhotoView = "after"
	ViewAerial       PhotoView = "aerial"
	ViewUnknown      PhotoView = "unknown"
)

// Photo is one piece of photographic evidence attached to a job.
type Photo struct {
	ID       string    `json:"photo_id"`
	Data     []byte    `json:"-"`
	Filename string    `json:"filename"`
	MIMEType string    `json:"mime_type"`
	View     PhotoView `json:"view_type"`
	Notes    string    `json:"notes,omitempty"`
}

// Costs captures the contractor's actual costs for the job.
type Costs struct {
	Materials float64 `json:"materials_cost"`
	Labor     float64 `json:"labor_cost"`
	Other     float64 `json:"other_costs"`
	Currency  string  `json:"currency"`
}

// Total returns the sum of all cost components.
func (c Costs) Total() float64 {
	return c.Materials + c.Labor + c.Other
}

// BusinessTargets holds the margin targets used throughout the pipeline.
type BusinessTargets struct {
	// MinimumMargin is the minimum acceptable profit margin as a decimal
	// (0.33 = 33%).
	MinimumMargin float64 `json:"minimum_margin"`
}

// DefaultMinimumMargin is applied when a job omits business targets.
const DefaultMinimumMargin = 0.33
