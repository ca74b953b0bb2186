package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/lessonforge-backend/internal/clients/gemini"
	"github.com/yungbote/lessonforge-backend/internal/clients/huggingface"
	"github.com/yungbote/lessonforge-backend/internal/jobs/worker"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/content"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/visuals"
	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/platform/gcp"
	"github.com/yungbote/lessonforge-backend/internal/realtime/bus"
	"github.com/yungbote/lessonforge-backend/internal/services"
	"github.com/yungbote/lessonforge-backend/internal/temporalx"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string

	HTTPAddr    string
	MetricsAddr string

	Driver            string
	InlineConcurrency int

	Gemini      gemini.Config
	HuggingFace huggingface.Config
	Visuals     visuals.Config
	Pipeline    pipeline.Config
	Sweeper     worker.SweeperConfig
	Temporal    temporalx.Config
	Redis       bus.RedisConfig
	Assets      gcp.AssetStoreConfig
}

// LoadConfig reads the environment, then applies the YAML file named by
// LESSONGEN_CONFIG on top.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		ServiceName:       envutil.String("OTEL_SERVICE_NAME", "lessonforge", log),
		Environment:       envutil.String("APP_ENV", "development", log),
		Version:           envutil.String("APP_VERSION", "dev", log),
		HTTPAddr:          httpAddr(log),
		MetricsAddr:       envutil.String("METRICS_ADDR", "", log),
		Driver:            strings.ToLower(envutil.String("GENERATION_DRIVER", services.DriverInline, log)),
		InlineConcurrency: envutil.Int("INLINE_CONCURRENCY", 4, log),
		Gemini:            gemini.ConfigFromEnv(log),
		HuggingFace:       huggingface.ConfigFromEnv(log),
		Visuals:           visuals.DefaultConfig(),
		Pipeline:          pipeline.ConfigFromEnv(log),
		Sweeper:           worker.SweeperConfigFromEnv(log),
		Temporal:          temporalx.LoadConfig(log),
		Redis:             bus.RedisConfigFromEnv(log),
	}
	cfg.Visuals.FallbackTimeout = envutil.Seconds("VISUAL_FALLBACK_TIMEOUT_SECONDS", int(cfg.Visuals.FallbackTimeout/time.Second), log)

	assets, err := gcp.AssetStoreConfigFromEnv(log)
	if err != nil {
		return cfg, &StorageProviderBootstrapError{Code: StorageProviderBootstrapErrorInvalidConfig, Mode: string(assets.Mode), Cause: err}
	}
	cfg.Assets = assets

	if path := strings.TrimSpace(envutil.String("LESSONGEN_CONFIG", "", log)); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
		log.Info("Applied lesson generation config file", "path", path)
	}
	return cfg, cfg.validate()
}

func httpAddr(log *logger.Logger) string {
	if addr := envutil.String("HTTP_ADDR", "", log); addr != "" {
		return addr
	}
	return ":" + envutil.String("PORT", "8080", log)
}

func (c Config) validate() error {
	switch c.Driver {
	case services.DriverInline, services.DriverClient:
	case services.DriverTemporal:
		if !c.Temporal.Enabled() {
			return fmt.Errorf("GENERATION_DRIVER=%s requires TEMPORAL_ADDRESS", services.DriverTemporal)
		}
	default:
		return fmt.Errorf("invalid GENERATION_DRIVER=%q (allowed: %s, %s, %s)", c.Driver, services.DriverInline, services.DriverTemporal, services.DriverClient)
	}
	return nil
}

// FileConfig is the shape of the LESSONGEN_CONFIG file. Absent keys keep
// the environment's value.
type FileConfig struct {
	Visuals struct {
		visuals.Config         `yaml:",inline"`
		FallbackTimeoutSeconds *int `yaml:"fallback_timeout_seconds"`
	} `yaml:"visuals"`
	Keywords *content.Keywords `yaml:"keywords"`
	Pipeline struct {
		VisualSectionLimit *int `yaml:"visual_section_limit"`
		VisualsPerStep     *int `yaml:"visuals_per_step"`
		RunTimeoutSeconds  *int `yaml:"run_timeout_seconds"`
		LeaseTTLSeconds    *int `yaml:"lease_ttl_seconds"`
	} `yaml:"pipeline"`
	Gemini struct {
		Model          string `yaml:"model"`
		TimeoutSeconds *int   `yaml:"timeout_seconds"`
	} `yaml:"gemini"`
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read LESSONGEN_CONFIG: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse LESSONGEN_CONFIG %s: %w", path, err)
	}
	c.apply(fc)
	return nil
}

func (c *Config) apply(fc FileConfig) {
	if len(fc.Visuals.ImageModels) > 0 {
		c.Visuals.ImageModels = fc.Visuals.ImageModels
	}
	if len(fc.Visuals.DiagramModels) > 0 {
		c.Visuals.DiagramModels = fc.Visuals.DiagramModels
	}
	if v := fc.Visuals.FallbackTimeoutSeconds; v != nil && *v > 0 {
		c.Visuals.FallbackTimeout = seconds(*v)
	}
	if kw := fc.Keywords; kw != nil {
		if len(kw.NonTechnical) > 0 {
			c.Pipeline.Keywords.NonTechnical = kw.NonTechnical
		}
		if len(kw.Technical) > 0 {
			c.Pipeline.Keywords.Technical = kw.Technical
		}
	}
	if v := fc.Pipeline.VisualSectionLimit; v != nil {
		c.Pipeline.VisualSectionLimit = *v
	}
	if v := fc.Pipeline.VisualsPerStep; v != nil {
		c.Pipeline.VisualsPerStep = *v
	}
	if v := fc.Pipeline.RunTimeoutSeconds; v != nil && *v > 0 {
		c.Pipeline.RunTimeout = seconds(*v)
	}
	if v := fc.Pipeline.LeaseTTLSeconds; v != nil && *v > 0 {
		c.Pipeline.LeaseTTL = seconds(*v)
	}
	if m := strings.TrimSpace(fc.Gemini.Model); m != "" {
		c.Gemini.Model = m
	}
	if v := fc.Gemini.TimeoutSeconds; v != nil && *v > 0 {
		c.Gemini.Timeout = gemini.ClampTimeout(seconds(*v))
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
