package module

import (
	"time"

	"secondbrain/internal/platform/config"
	"secondbrain/internal/services/capture/filing"
	"secondbrain/internal/services/capture/pipeline"
	"secondbrain/internal/services/capture/retry"
	"secondbrain/internal/services/capture/service"
)

// Options holds configuration settings for the capture module
type Options struct {
	Threshold       float64
	MaxRounds       int
	RunTimeout      time.Duration
	LegacyReconcile bool

	OpenAI pipeline.Config
}

// FromConfig reads configuration settings from the config.Conf
func FromConfig(cfg config.Conf) Options {
	cap := cfg.Prefix("CORE_CAPTURE_")
	oai := cfg.Prefix("SERVICE_OPENAI_")
	return Options{
		Threshold:       cap.MayFloat64("THRESHOLD", filing.DefaultThreshold),
		MaxRounds:       cap.MayInt("MAX_ROUNDS", retry.DefaultMaxRounds),
		RunTimeout:      cap.MayDuration("RUN_TIMEOUT", service.DefaultRunTimeout),
		LegacyReconcile: cap.MayBool("LEGACY_RECONCILE", false),
		OpenAI: pipeline.Config{
			APIKey:  oai.MayString("API_KEY", ""),
			BaseURL: oai.MayString("BASE_URL", pipeline.DefaultBaseURL),
			Model:   oai.MayString("MODEL", pipeline.DefaultModel),
		},
	}
}
