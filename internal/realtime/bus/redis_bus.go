package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/realtime"
)

const (
	defaultRedisChannel = "lessonforge:lesson-events"
	publishTimeout      = 2 * time.Second
	slowDeliveryLag     = 2 * time.Second
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Channel is the single pub/sub channel every lesson event travels on.
	// Per-lesson routing happens in each instance's hub.
	Channel string
}

func RedisConfigFromEnv(log *logger.Logger) RedisConfig {
	return RedisConfig{
		Addr:     envutil.String("REDIS_ADDR", "", log),
		Password: envutil.String("REDIS_PASSWORD", "", log),
		DB:       envutil.Int("REDIS_DB", 0, log),
		Channel:  envutil.String("REDIS_CHANNEL", defaultRedisChannel, log),
	}
}

func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

// envelope is the wire form of a lesson event on the bus.
type envelope struct {
	Origin string              `json:"origin"`
	SentAt time.Time           `json:"sent_at"`
	Msg    realtime.SSEMessage `json:"msg"`
}

func decodeEnvelope(payload string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return env, err
	}
	if env.Msg.Channel == "" || env.Msg.Event == "" {
		return env, errors.New("envelope without channel or event")
	}
	return env, nil
}

type redisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	origin  string
}

// NewRedisBus connects and pings Redis; an unreachable server is an error.
func NewRedisBus(log *logger.Logger, cfg RedisConfig) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if strings.TrimSpace(cfg.Channel) == "" {
		cfg.Channel = defaultRedisChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	origin := uuid.NewString()
	return &redisBus{
		log:     log.With("service", "LessonEventBus", "origin", origin),
		rdb:     rdb,
		channel: cfg.Channel,
		origin:  origin,
	}, nil
}

// Client exposes the connection for health collectors.
func Client(b Bus) goredis.UniversalClient {
	if rb, ok := b.(*redisBus); ok && rb != nil {
		return rb.rdb
	}
	return nil
}

func (b *redisBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("lesson event bus not initialized")
	}
	raw, err := json.Marshal(envelope{Origin: b.origin, SentAt: time.Now().UTC(), Msg: msg})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", msg.Event, err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes and hands every decoded event to onMsg until ctx
// is done. go-redis resubscribes on its own after connection drops.
func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("lesson event bus not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.log.Info("Forwarding lesson events", "channel", b.channel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				env, err := decodeEnvelope(m.Payload)
				if err != nil {
					b.log.Warn("Dropping malformed lesson event", "error", err)
					continue
				}
				if lag := time.Since(env.SentAt); !env.SentAt.IsZero() && lag > slowDeliveryLag {
					b.log.Warn("Slow lesson event delivery", "channel", env.Msg.Channel, "event", env.Msg.Event, "lag_ms", lag.Milliseconds(), "from", env.Origin)
				}
				onMsg(env.Msg)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
