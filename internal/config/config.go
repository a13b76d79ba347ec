package config

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	API        APIConfig        `mapstructure:"api"`
	Store      StoreConfig      `mapstructure:"store"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Frameworks FrameworksConfig `mapstructure:"frameworks"`
	Business   BusinessConfig   `mapstructure:"business"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// APIConfig configures the HTTP API server.
type APIConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StoreConfig configures job and knowledge persistence.
type StoreConfig struct {
	Path         string `mapstructure:"path"`
	ExamplesPath string `mapstructure:"examples_path"`
}

// ProviderConfig configures one model backend.
type ProviderConfig struct {
	Kind           string `mapstructure:"kind"` // openai, anthropic
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Enabled reports whether the provider is configured for use.
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

// ProvidersConfig configures the model backends per role. Secondary
// backends are optional; frameworks that need two models fall back to
// single-model behavior when a secondary is absent.
type ProvidersConfig struct {
	Vision          ProviderConfig `mapstructure:"vision"`
	VisionSecondary ProviderConfig `mapstructure:"vision_secondary"`
	Text            ProviderConfig `mapstructure:"text"`
	TextSecondary   ProviderConfig `mapstructure:"text_secondary"`
	Review          ProviderConfig `mapstructure:"review"`
}

// PipelineConfig configures orchestration limits.
type PipelineConfig struct {
	MaxReviewCycles   int    `mapstructure:"max_review_cycles"`
	MaxRerunsPerAgent int    `mapstructure:"max_reruns_per_agent"`
	MaxPhotos         int    `mapstructure:"max_photos"`
	PhotoBatchSize    int    `mapstructure:"photo_batch_size"`
	RetryAttempts     int    `mapstructure:"retry_attempts"`
	RetryBaseDelay    string `mapstructure:"retry_base_delay"`
}

// FrameworksConfig selects the analysis framework per stage.
type FrameworksConfig struct {
	Vision       string `mapstructure:"vision"`
	Estimate     string `mapstructure:"estimate"`
	Gap          string `mapstructure:"gap"`
	Strategist   string `mapstructure:"strategist"`
	DebateRounds int    `mapstructure:"debate_rounds"`
}

// BusinessConfig holds business defaults.
type BusinessConfig struct {
	DefaultMarginTarget float64 `mapstructure:"default_margin_target"`
	Currency            string  `mapstructure:"currency"`
}
