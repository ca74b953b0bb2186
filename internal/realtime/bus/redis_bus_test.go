package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/realtime"
)

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_CHANNEL", "")
	t.Setenv("REDIS_DB", "2")
	cfg := RedisConfigFromEnv(logger.NewNop())
	if !cfg.Enabled() || cfg.Addr != "redis:6379" {
		t.Fatalf("addr: got=%q", cfg.Addr)
	}
	if cfg.Channel != defaultRedisChannel {
		t.Fatalf("channel: want default got=%q", cfg.Channel)
	}
	if cfg.DB != 2 {
		t.Fatalf("db: want=2 got=%d", cfg.DB)
	}
}

func TestNewRedisBusRequiresAddr(t *testing.T) {
	if _, err := NewRedisBus(logger.NewNop(), RedisConfig{}); err == nil {
		t.Fatalf("NewRedisBus: want error without address")
	}
	if Client(nil) != nil {
		t.Fatalf("Client(nil): want nil")
	}
}

func TestDecodeEnvelope(t *testing.T) {
	id := uuid.New()
	raw, err := json.Marshal(envelope{
		Origin: "api-1",
		SentAt: time.Now().UTC(),
		Msg:    realtime.SSEMessage{Channel: realtime.LessonChannel(id), Event: realtime.SSEEventLessonProgress},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	env, err := decodeEnvelope(string(raw))
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if env.Msg.Channel != "lesson:"+id.String() || env.Origin != "api-1" {
		t.Fatalf("envelope: got=%+v", env)
	}

	for _, bad := range []string{"not json", `{"origin":"api-1"}`, `{"msg":{"channel":"lesson:x"}}`} {
		if _, err := decodeEnvelope(bad); err == nil {
			t.Fatalf("decodeEnvelope(%q): want error", bad)
		}
	}
}
