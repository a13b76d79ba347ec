package config

// setDefaults registers all default values on the viper instance.
func (l *Loader) setDefaults() {
	v := l.v

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	// API server
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", []string{"*"})

	// Persistence
	v.SetDefault("store.path", "claimpilot.db")
	v.SetDefault("store.examples_path", "")

	// Providers
	v.SetDefault("providers.vision.kind", "openai")
	v.SetDefault("providers.vision.model", "gpt-4o")
	v.SetDefault("providers.vision.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.vision.timeout_seconds", 120)
	v.SetDefault("providers.vision_secondary.kind", "openai")
	v.SetDefault("providers.vision_secondary.timeout_seconds", 120)
	v.SetDefault("providers.text.kind", "anthropic")
	v.SetDefault("providers.text.model", "claude-sonnet-4-5")
	v.SetDefault("providers.text.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("providers.text.timeout_seconds", 120)
	v.SetDefault("providers.text_secondary.kind", "openai")
	v.SetDefault("providers.text_secondary.timeout_seconds", 120)
	v.SetDefault("providers.review.kind", "anthropic")
	v.SetDefault("providers.review.model", "claude-opus-4-5")
	v.SetDefault("providers.review.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("providers.review.timeout_seconds", 180)

	// Pipeline limits
	v.SetDefault("pipeline.max_review_cycles", 2)
	v.SetDefault("pipeline.max_reruns_per_agent", 1)
	v.SetDefault("pipeline.max_photos", 20)
	v.SetDefault("pipeline.photo_batch_size", 5)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_base_delay", "2s")

	// Frameworks
	v.SetDefault("frameworks.vision", "single_model")
	v.SetDefault("frameworks.estimate", "single")
	v.SetDefault("frameworks.gap", "single")
	v.SetDefault("frameworks.strategist", "single")
	v.SetDefault("frameworks.debate_rounds", 2)

	// Business defaults
	v.SetDefault("business.default_margin_target", 0.33)
	v.SetDefault("business.currency", "USD")
}
