package pipeline

import (
	"time"

	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/content"
	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

type Config struct {
	LeaseTTL   time.Duration
	RunTimeout time.Duration
	// VisualSectionLimit caps how many leading sections are considered for
	// visuals. 0 means all.
	VisualSectionLimit int
	// VisualsPerStep bounds one discrete generateVisuals call. 0 means all.
	VisualsPerStep int
	Keywords       content.Keywords
}

func DefaultConfig() Config {
	return Config{
		LeaseTTL:       5 * time.Minute,
		RunTimeout:     10 * time.Minute,
		VisualsPerStep: 1,
		Keywords:       content.DefaultKeywords(),
	}
}

func ConfigFromEnv(log *logger.Logger) Config {
	def := DefaultConfig()
	return Config{
		LeaseTTL:           envutil.Seconds("LESSON_LEASE_TTL_SECONDS", int(def.LeaseTTL/time.Second), log),
		RunTimeout:         envutil.Seconds("RUN_TIMEOUT_SECONDS", int(def.RunTimeout/time.Second), log),
		VisualSectionLimit: envutil.Int("VISUAL_SECTION_LIMIT", def.VisualSectionLimit, log),
		VisualsPerStep:     envutil.Int("VISUALS_PER_STEP", def.VisualsPerStep, log),
		Keywords:           def.Keywords,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = def.LeaseTTL
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = def.RunTimeout
	}
	if c.VisualSectionLimit < 0 {
		c.VisualSectionLimit = 0
	}
	if c.VisualsPerStep < 0 {
		c.VisualsPerStep = 0
	}
	if len(c.Keywords.NonTechnical) == 0 && len(c.Keywords.Technical) == 0 {
		c.Keywords = def.Keywords
	}
	return c
}
