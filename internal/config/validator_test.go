package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		API: APIConfig{Host: "0.0.0.0", Port: 8080},
		Pipeline: PipelineConfig{
			MaxReviewCycles:   2,
			MaxRerunsPerAgent: 1,
			MaxPhotos:         20,
			PhotoBatchSize:    5,
			RetryAttempts:     3,
			RetryBaseDelay:    "2s",
		},
		Frameworks: FrameworksConfig{
			Vision:       "single_model",
			Estimate:     "single",
			Gap:          "single",
			Strategist:   "single",
			DebateRounds: 2,
		},
		Business: BusinessConfig{DefaultMarginTarget: 0.33, Currency: "USD"},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, NewValidator().Validate(validConfig()))
}

func TestValidateUnknownFramework(t *testing.T) {
	cfg := validConfig()
	cfg.Frameworks.Vision = "quadruple_model"

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frameworks.vision")
}

func TestValidateFrameworkStagesAreDistinct(t *testing.T) {
	// single_model is a vision name, not a text-stage name.
	cfg := validConfig()
	cfg.Frameworks.Gap = "single_model"

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frameworks.gap")
}

func TestValidateBadRetryDelay(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.RetryBaseDelay = "two seconds"

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_base_delay")
}

func TestValidateMarginBounds(t *testing.T) {
	for _, margin := range []float64{0, -0.1, 1, 1.5} {
		cfg := validConfig()
		cfg.Business.DefaultMarginTarget = margin
		assert.Error(t, NewValidator().Validate(cfg), "margin %v", margin)
	}
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	cfg.API.Port = 0
	cfg.Frameworks.DebateRounds = 0

	v := NewValidator()
	err := v.Validate(cfg)
	require.Error(t, err)
	assert.Len(t, v.Errors(), 3)
}
