package gemini

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

type fakeModel struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call int) (string, error)
}

func (f *fakeModel) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	n := int(f.calls.Add(1))
	return f.fn(ctx, n)
}

func testConfig() Config {
	return Config{
		Model:       "test-model",
		Timeout:     50 * time.Millisecond,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}
}

func TestGenerateMissingCredential(t *testing.T) {
	c := NewWithModel(logger.NewNop(), testConfig(), nil)
	if c.Configured() {
		t.Fatalf("Configured: want=false")
	}
	_, err := c.Generate(context.Background(), "hi")
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("Generate: want ErrMissingCredential got=%v", err)
	}
	var up *UpstreamError
	if !errors.As(err, &up) || !up.Fatal {
		t.Fatalf("Generate: want fatal UpstreamError got=%#v", err)
	}
	if Retryable(context.Background(), err) {
		t.Fatalf("missing credential must not be retryable")
	}
}

func TestGenerateTimeoutThenSuccess(t *testing.T) {
	m := &fakeModel{fn: func(ctx context.Context, call int) (string, error) {
		if call == 1 {
			select {
			case <-ctx.Done():
				return "late", nil
			case <-time.After(time.Second):
				return "late", nil
			}
		}
		return "second", nil
	}}
	c := NewWithModel(logger.NewNop(), testConfig(), m)

	got, err := c.Generate(context.Background(), "lesson")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "second" {
		t.Fatalf("Generate: want=second got=%q", got)
	}
	if n := m.calls.Load(); n != 2 {
		t.Fatalf("calls: want=2 got=%d", n)
	}
}

func TestGenerateAllAttemptsTimeOut(t *testing.T) {
	m := &fakeModel{fn: func(ctx context.Context, call int) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := NewWithModel(logger.NewNop(), testConfig(), m)

	_, err := c.Generate(context.Background(), "lesson")
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Generate: want TimeoutError got=%v", err)
	}
	if n := m.calls.Load(); n != 3 {
		t.Fatalf("calls: want=3 got=%d", n)
	}
}

func TestGenerateEmptyResponseRetried(t *testing.T) {
	m := &fakeModel{fn: func(ctx context.Context, call int) (string, error) {
		if call < 3 {
			return "   ", nil
		}
		return "{}", nil
	}}
	c := NewWithModel(logger.NewNop(), testConfig(), m)
	got, err := c.Generate(context.Background(), "lesson")
	if err != nil || got != "{}" {
		t.Fatalf("Generate: want={} got=%q err=%v", got, err)
	}
}

func TestGenerateRetryClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantCalls int32
	}{
		{"not found", &genai.APIError{Code: 404, Message: "model not found"}, 1},
		{"forbidden", &genai.APIError{Code: 403, Message: "denied"}, 1},
		{"unauthorized", &genai.APIError{Code: 401, Message: "bad key"}, 1},
		{"bad request", &genai.APIError{Code: 400, Message: "bad"}, 1},
		{"rate limited", &genai.APIError{Code: 429, Message: "slow down"}, 3},
		{"unavailable", &genai.APIError{Code: 503, Message: "overloaded"}, 3},
		{"network", errors.New("connection reset by peer"), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &fakeModel{fn: func(ctx context.Context, call int) (string, error) {
				return "", tc.err
			}}
			c := NewWithModel(logger.NewNop(), testConfig(), m)
			if _, err := c.Generate(context.Background(), "x"); err == nil {
				t.Fatalf("Generate: expected error")
			}
			if n := m.calls.Load(); n != tc.wantCalls {
				t.Fatalf("calls: want=%d got=%d", tc.wantCalls, n)
			}
		})
	}
}

func TestGenerateParentCancelNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &fakeModel{fn: func(c context.Context, call int) (string, error) {
		cancel()
		<-c.Done()
		return "", c.Err()
	}}
	cl := NewWithModel(logger.NewNop(), testConfig(), m)
	_, err := cl.Generate(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate: want context.Canceled got=%v", err)
	}
	if n := m.calls.Load(); n != 1 {
		t.Fatalf("calls: want=1 got=%d", n)
	}
}

func TestGenerateOnceSingleAttempt(t *testing.T) {
	m := &fakeModel{fn: func(ctx context.Context, call int) (string, error) {
		return "", &genai.APIError{Code: 500, Message: "boom"}
	}}
	c := NewWithModel(logger.NewNop(), testConfig(), m)
	if _, err := c.GenerateOnce(context.Background(), "x", 10*time.Millisecond); err == nil {
		t.Fatalf("GenerateOnce: expected error")
	}
	if n := m.calls.Load(); n != 1 {
		t.Fatalf("calls: want=1 got=%d", n)
	}
}

func TestConfigFromEnvClamps(t *testing.T) {
	t.Setenv("GEMINI_TIMEOUT_SECONDS", "5")
	t.Setenv("GEMINI_MAX_ATTEMPTS", "9")
	cfg := ConfigFromEnv(logger.NewNop())
	if cfg.Timeout != MinTimeout {
		t.Fatalf("Timeout: want=%v got=%v", MinTimeout, cfg.Timeout)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts: want=3 got=%d", cfg.MaxAttempts)
	}
	t.Setenv("GEMINI_TIMEOUT_SECONDS", "90")
	if got := ConfigFromEnv(logger.NewNop()).Timeout; got != MaxTimeout {
		t.Fatalf("Timeout: want=%v got=%v", MaxTimeout, got)
	}
}
