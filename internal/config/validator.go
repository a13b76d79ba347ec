package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Framework names accepted per stage. Factory construction is fail-fast,
// so catching a typo here keeps a bad name from surfacing mid-pipeline.
var (
	visionFrameworks     = []string{"single_model", "parallel_aggregate", "consensus_debate", "ensemble_voting"}
	estimateFrameworks   = []string{"single", "ensemble"}
	gapFrameworks        = []string{"single", "consensus"}
	strategistFrameworks = []string{"single", "consensus"}
)

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateAPI(&cfg.API)
	v.validatePipeline(&cfg.Pipeline)
	v.validateFrameworks(&cfg.Frameworks)
	v.validateBusiness(&cfg.Business)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateAPI(cfg *APIConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("api.port", cfg.Port, "must be between 1 and 65535")
	}
}

func (v *Validator) validatePipeline(cfg *PipelineConfig) {
	if cfg.MaxReviewCycles < 1 {
		v.addError("pipeline.max_review_cycles", cfg.MaxReviewCycles, "must be at least 1")
	}
	if cfg.MaxRerunsPerAgent < 0 {
		v.addError("pipeline.max_reruns_per_agent", cfg.MaxRerunsPerAgent, "must not be negative")
	}
	if cfg.MaxPhotos < 1 {
		v.addError("pipeline.max_photos", cfg.MaxPhotos, "must be at least 1")
	}
	if cfg.PhotoBatchSize < 1 {
		v.addError("pipeline.photo_batch_size", cfg.PhotoBatchSize, "must be at least 1")
	}
	if cfg.RetryAttempts < 1 {
		v.addError("pipeline.retry_attempts", cfg.RetryAttempts, "must be at least 1")
	}
	if _, err := time.ParseDuration(cfg.RetryBaseDelay); err != nil {
		v.addError("pipeline.retry_base_delay", cfg.RetryBaseDelay, "must be a valid duration (e.g. 2s)")
	}
}

func (v *Validator) validateFrameworks(cfg *FrameworksConfig) {
	if !contains(visionFrameworks, cfg.Vision) {
		v.addError("frameworks.vision", cfg.Vision, "must be one of: "+strings.Join(visionFrameworks, ", "))
	}
	if !contains(estimateFrameworks, cfg.Estimate) {
		v.addError("frameworks.estimate", cfg.Estimate, "must be one of: "+strings.Join(estimateFrameworks, ", "))
	}
	if !contains(gapFrameworks, cfg.Gap) {
		v.addError("frameworks.gap", cfg.Gap, "must be one of: "+strings.Join(gapFrameworks, ", "))
	}
	if !contains(strategistFrameworks, cfg.Strategist) {
		v.addError("frameworks.strategist", cfg.Strategist, "must be one of: "+strings.Join(strategistFrameworks, ", "))
	}
	if cfg.DebateRounds < 1 {
		v.addError("frameworks.debate_rounds", cfg.DebateRounds, "must be at least 1")
	}
}

func (v *Validator) validateBusiness(cfg *BusinessConfig) {
	if cfg.DefaultMarginTarget <= 0 || cfg.DefaultMarginTarget >= 1 {
		v.addError("business.default_margin_target", cfg.DefaultMarginTarget, "must be between 0 and 1 exclusive")
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
