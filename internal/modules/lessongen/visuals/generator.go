package visuals

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/prompts"
	"github.com/yungbote/lessonforge-backend/internal/observability"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/platform/gcp"
)

type Kind string

const (
	KindImage   Kind = "image"
	KindDiagram Kind = "diagram"
	KindCode    Kind = "code"
)

// ParseKind maps a section's visuals.type onto a Kind; unknown values are
// treated as images.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindDiagram:
		return KindDiagram
	case KindCode:
		return KindCode
	default:
		return KindImage
	}
}

type Source string

const (
	SourceImage       Source = "image"
	SourceDescription Source = "description"
	SourceNone        Source = "none"
)

// Result is empty-asset when no visual is available; Generate never fails.
type Result struct {
	Asset  string
	Source Source
	Model  string
}

// TextGenerator produces the textual fallback.
type TextGenerator interface {
	GenerateOnce(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// ImageBackend is satisfied by huggingface.Client.
type ImageBackend interface {
	Configured() bool
	Infer(ctx context.Context, model, prompt string) ([]byte, string, error)
}

// AssetStore is satisfied by gcp.AssetStore.
type AssetStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

const (
	ModelSDXL = "stabilityai/stable-diffusion-xl-base-1.0"
	ModelSD15 = "runwayml/stable-diffusion-v1-5"
)

type Config struct {
	ImageModels     []string      `yaml:"image_models"`
	DiagramModels   []string      `yaml:"diagram_models"`
	FallbackTimeout time.Duration `yaml:"-"`
	CacheTTL        time.Duration `yaml:"-"`
	RateEvery       time.Duration `yaml:"-"`
	RateBurst       int           `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		ImageModels:     []string{ModelSDXL, ModelSD15},
		DiagramModels:   []string{ModelSDXL},
		FallbackTimeout: 25 * time.Second,
		CacheTTL:        30 * time.Minute,
		RateEvery:       time.Second,
		RateBurst:       2,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if len(c.ImageModels) == 0 {
		c.ImageModels = def.ImageModels
	}
	if len(c.DiagramModels) == 0 {
		c.DiagramModels = def.DiagramModels
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = def.FallbackTimeout
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.RateEvery <= 0 {
		c.RateEvery = def.RateEvery
	}
	if c.RateBurst <= 0 {
		c.RateBurst = def.RateBurst
	}
	return c
}

type Generator struct {
	log     *logger.Logger
	cfg     Config
	text    TextGenerator
	images  ImageBackend
	assets  AssetStore
	cache   *cache.Cache
	limiter *rate.Limiter
}

// NewGenerator wires the image backend, text fallback and optional asset
// store. Any of them may be nil.
func NewGenerator(log *logger.Logger, cfg Config, text TextGenerator, images ImageBackend, assets AssetStore) *Generator {
	cfg = cfg.withDefaults()
	return &Generator{
		log:     log.With("service", "VisualGenerator"),
		cfg:     cfg,
		text:    text,
		images:  images,
		assets:  assets,
		cache:   cache.New(cfg.CacheTTL, time.Hour),
		limiter: rate.NewLimiter(rate.Every(cfg.RateEvery), cfg.RateBurst),
	}
}

func (g *Generator) ImagesConfigured() bool {
	return g != nil && g.images != nil && g.images.Configured()
}

func (g *Generator) Generate(ctx context.Context, description string, kind Kind) Result {
	return g.generate(ctx, "", 0, description, kind)
}

// GenerateForSection is Generate with an upload key scoped to the lesson.
func (g *Generator) GenerateForSection(ctx context.Context, lessonID string, index int, description string, kind Kind) Result {
	return g.generate(ctx, lessonID, index, description, kind)
}

func (g *Generator) generate(ctx context.Context, lessonID string, index int, description string, kind Kind) Result {
	description = strings.TrimSpace(description)
	if kind == KindCode || description == "" {
		return g.done(Result{Source: SourceNone})
	}

	ctx, span := observability.StartLessonSpan(ctx, "visuals.generate", lessonID,
		attribute.String("visuals.kind", string(kind)),
		attribute.Int("visuals.section", index),
	)
	defer span.End()

	key := string(kind) + "|" + description
	if v, ok := g.cache.Get(key); ok {
		res := v.(Result)
		span.SetAttributes(attribute.Bool("visuals.cache_hit", true))
		return g.done(res)
	}

	res := g.fromImageBackend(ctx, lessonID, index, description, kind)
	if res.Asset == "" {
		res = g.fromDescription(ctx, description)
	}
	span.SetAttributes(attribute.String("visuals.source", string(res.Source)))
	if res.Asset != "" {
		g.cache.Set(key, res, cache.DefaultExpiration)
	}
	return g.done(res)
}

func (g *Generator) done(res Result) Result {
	observability.Current().ObserveVisual(string(res.Source))
	return res
}

func (g *Generator) candidates(kind Kind) []string {
	if kind == KindDiagram {
		return g.cfg.DiagramModels
	}
	return g.cfg.ImageModels
}

func (g *Generator) fromImageBackend(ctx context.Context, lessonID string, index int, description string, kind Kind) Result {
	if !g.ImagesConfigured() {
		return Result{Source: SourceNone}
	}
	prompt := prompts.BuildImagePrompt(description)
	if kind == KindDiagram {
		prompt = prompts.BuildDiagramPrompt(description)
	}
	for _, model := range g.candidates(kind) {
		if err := g.limiter.Wait(ctx); err != nil {
			return Result{Source: SourceNone}
		}
		data, contentType, err := g.images.Infer(ctx, model, prompt)
		if err != nil {
			g.log.Warn("Image model failed, trying next candidate",
				"model", model,
				"kind", kind,
				"error", err,
			)
			if ctx.Err() != nil {
				return Result{Source: SourceNone}
			}
			continue
		}
		if contentType == "" || !strings.HasPrefix(contentType, "image/") {
			contentType = "image/jpeg"
		}
		return Result{
			Asset:  g.store(ctx, lessonID, index, data, contentType),
			Source: SourceImage,
			Model:  model,
		}
	}
	return Result{Source: SourceNone}
}

func (g *Generator) store(ctx context.Context, lessonID string, index int, data []byte, contentType string) string {
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	if g.assets == nil || lessonID == "" {
		return dataURL
	}
	key := fmt.Sprintf("lessons/%s/%d.%s", lessonID, index, gcp.ExtensionForContentType(contentType))
	url, err := g.assets.Upload(ctx, key, data, contentType)
	if err != nil {
		g.log.Warn("Asset upload failed, using inline image", "key", key, "error", err)
		return dataURL
	}
	return url
}

func (g *Generator) fromDescription(ctx context.Context, description string) Result {
	if g.text == nil || ctx.Err() != nil {
		return Result{Source: SourceNone}
	}
	text, err := g.text.GenerateOnce(ctx, prompts.BuildImageDescriptionPrompt(description), g.cfg.FallbackTimeout)
	if err != nil {
		g.log.Warn("Visual description fallback failed", "error", err)
		return Result{Source: SourceNone}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Source: SourceNone}
	}
	return Result{Asset: text, Source: SourceDescription}
}
