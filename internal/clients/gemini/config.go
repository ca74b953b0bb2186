package gemini

import (
	"time"

	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

const (
	DefaultModel       = "gemini-2.0-flash-001"
	DefaultTimeout     = 45 * time.Second
	MinTimeout         = 20 * time.Second
	MaxTimeout         = 55 * time.Second
	DefaultMaxAttempts = 3
)

type Config struct {
	APIKey          string
	Model           string
	Timeout         time.Duration
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

func DefaultConfig() Config {
	return Config{
		Model:           DefaultModel,
		Timeout:         DefaultTimeout,
		MaxAttempts:     DefaultMaxAttempts,
		BaseBackoff:     time.Second,
		MaxBackoff:      10 * time.Second,
		Temperature:     0.7,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 8192,
	}
}

func ConfigFromEnv(log *logger.Logger) Config {
	cfg := DefaultConfig()
	cfg.APIKey = envutil.String("GEMINI_API_KEY", "", log)
	cfg.Model = envutil.String("GEMINI_MODEL", DefaultModel, log)
	cfg.Timeout = ClampTimeout(envutil.Seconds("GEMINI_TIMEOUT_SECONDS", int(DefaultTimeout/time.Second), log))
	cfg.MaxAttempts = clampInt(envutil.Int("GEMINI_MAX_ATTEMPTS", DefaultMaxAttempts, log), 1, DefaultMaxAttempts)
	return cfg
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Temperature == 0 {
		c.Temperature = d.Temperature
	}
	if c.TopP == 0 {
		c.TopP = d.TopP
	}
	if c.TopK == 0 {
		c.TopK = d.TopK
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = d.MaxOutputTokens
	}
	return c
}

// ClampTimeout bounds a per-attempt timeout to [MinTimeout, MaxTimeout].
func ClampTimeout(d time.Duration) time.Duration { return clampDuration(d, MinTimeout, MaxTimeout) }

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
