package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/lessonforge-backend/internal/clients/gemini"
	"github.com/yungbote/lessonforge-backend/internal/clients/huggingface"
	"github.com/yungbote/lessonforge-backend/internal/data/db"
	types "github.com/yungbote/lessonforge-backend/internal/domain"
	httpapi "github.com/yungbote/lessonforge-backend/internal/http"
	"github.com/yungbote/lessonforge-backend/internal/jobs/worker"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/visuals"
	"github.com/yungbote/lessonforge-backend/internal/observability"
	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/realtime"
	"github.com/yungbote/lessonforge-backend/internal/realtime/bus"
	"github.com/yungbote/lessonforge-backend/internal/services"
	"github.com/yungbote/lessonforge-backend/internal/temporalx"
	"github.com/yungbote/lessonforge-backend/internal/temporalx/temporalworker"
)

// Options adjust how New wires the process for a given command.
type Options struct {
	// Driver overrides GENERATION_DRIVER when set.
	Driver string
	// Worker dials Temporal even when lessons are dispatched another way.
	Worker bool
}

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *db.Service
	Metrics  *observability.Metrics
	Hub      *realtime.SSEHub
	Bus      bus.Bus
	Temporal temporalsdkclient.Client
	Repos    Repos
	Services Services
	Server   *httpapi.Server

	assets       assetStore
	otelShutdown func(context.Context) error
	ctx          context.Context
	cancel       context.CancelFunc
}

type Services struct {
	Text         *gemini.Client
	Images       *huggingface.Client
	Visuals      *visuals.Generator
	Orchestrator *pipeline.Orchestrator
	Notifier     services.LessonNotifier
	Dispatcher   services.Dispatcher
	Lesson       services.LessonService
	Sweeper      *worker.RecoverySweeper

	inline *services.InlineDispatcher
}

// NewLogger builds the process logger from LOG_MODE.
func NewLogger() (*logger.Logger, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development", nil))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

func New(ctx context.Context, opts Options) (*App, error) {
	log, err := NewLogger()
	if err != nil {
		return nil, err
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err == nil && opts.Driver != "" {
		cfg.Driver = opts.Driver
		err = cfg.validate()
	}
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a := &App{Log: log, Cfg: cfg, ctx: runCtx, cancel: cancel}
	if err := a.wire(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	log.Info("App wired", "driver", cfg.Driver, "db_driver", a.DB.Driver(), "redis", a.Bus != nil, "assets", a.assets != nil)
	return a, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	log, cfg := a.Log, a.Cfg

	a.Metrics = observability.Init(log)
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(cfg.ServiceName, cfg.Environment, cfg.Version))

	dbs, err := db.NewService(log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.DB = dbs
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	a.Repos = wireRepos(dbs.DB(), log)

	a.Hub = realtime.NewSSEHub(log)
	var emitter services.SSEEmitter = &services.HubEmitter{Hub: a.Hub}
	if cfg.Redis.Enabled() {
		b, err := bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis bus: %w", err)
		}
		a.Bus = b
		emitter = &services.RedisEmitter{Bus: b, Fallback: a.Hub, Log: log}
	}

	if cfg.Driver == services.DriverTemporal || (opts.Worker && cfg.Temporal.Enabled()) {
		tc, err := temporalx.NewClient(ctx, log, cfg.Temporal)
		if err != nil {
			return fmt.Errorf("init temporal client: %w", err)
		}
		a.Temporal = tc
	}

	assets, err := resolveAssetStore(ctx, log, cfg.Assets)
	if err != nil {
		return err
	}
	a.assets = assets

	svcs, err := wireServices(ctx, log, cfg, a.Repos, emitter, assets, a.Temporal, a.ctx)
	if err != nil {
		return err
	}
	a.Services = svcs

	otelService := ""
	if a.otelShutdown != nil {
		otelService = cfg.ServiceName
	}
	a.Server = wireServer(log, a.Metrics, otelService, a.Hub, svcs, a.DB)
	return nil
}

// Start launches background loops: the bus forwarder, metrics collectors
// and, for the inline driver, the recovery sweeper.
func (a *App) Start() error {
	if a == nil || a.ctx == nil {
		return errors.New("app not initialized")
	}
	ctx := a.ctx

	if a.Bus != nil {
		if err := a.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
			return fmt.Errorf("start redis forwarder: %w", err)
		}
	}

	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartDBCollector(ctx, a.Log, a.DB.DB())
	a.Metrics.StartLessonStatusCollector(ctx, a.Log, a.DB.DB())
	a.Metrics.StartRedisCollector(ctx, a.Log, bus.Client(a.Bus))

	if a.Services.Sweeper != nil {
		a.Services.Sweeper.Start(ctx)
	}
	return nil
}

// Serve runs the HTTP server until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr, "driver", a.Cfg.Driver)
	return a.Server.Run(ctx, a.Cfg.HTTPAddr)
}

// RunWorker polls the Temporal task queue until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	if a.Temporal == nil {
		return errors.New("worker requires TEMPORAL_ADDRESS")
	}
	if a.Bus == nil {
		a.Log.Warn("REDIS_ADDR not set; progress events from this worker reach no API instance")
	}
	a.Metrics.StartServer(a.ctx, a.Log, a.Cfg.MetricsAddr)

	runner, err := temporalworker.NewRunner(a.Log, a.Cfg.Temporal, a.Temporal, a.Services.Orchestrator)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// GenerateLesson creates a lesson and drives it to a terminal status in this
// process. A lesson that ends in error is returned without an error.
func (a *App) GenerateLesson(ctx context.Context, outline string) (*types.Lesson, error) {
	lesson, err := a.Services.Lesson.Create(ctx, outline)
	if err != nil {
		return nil, err
	}
	res, err := a.Services.Orchestrator.Run(ctx, lesson.ID)
	if err != nil {
		return nil, fmt.Errorf("run lesson %s: %w", lesson.ID, err)
	}
	a.Log.Info("Lesson run finished", "lesson_id", lesson.ID, "status", res.Status, "progress", res.Progress)
	return a.Services.Lesson.Get(ctx, lesson.ID)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.inline != nil {
		a.Services.inline.Wait()
	}
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			a.Log.Warn("redis bus close failed", "error", err)
		}
	}
	if a.assets != nil {
		if err := a.assets.Close(); err != nil {
			a.Log.Warn("asset store close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(shutdownCtx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	a.Log.Sync()
}

// Migrate opens the database and applies the schema.
func Migrate() error {
	log, err := NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	dbs, err := db.NewService(log)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer dbs.Close()
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	log.Info("Schema up to date", "driver", dbs.Driver())
	return nil
}
