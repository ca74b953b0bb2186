package gemini

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/lessonforge-backend/internal/observability"
	"github.com/yungbote/lessonforge-backend/internal/pkg/httpx"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

const pingPrompt = "Say hello world"

// Client generates text with bounded retries. Each attempt races the model
// call against a timer and discards late results.
type Client struct {
	log   *logger.Logger
	cfg   Config
	model Model
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client backed by the Gemini API. A missing API key is
// not an error here: the client reports Configured()==false and every call
// fails with ErrMissingCredential.
func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	c := &Client{
		log:   log.With("client", "GeminiClient"),
		cfg:   cfg,
		sleep: httpx.Sleep,
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		c.log.Warn("GEMINI_API_KEY not set; text generation disabled")
		return c, nil
	}
	m, err := newGenaiModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.model = m
	return c, nil
}

func NewWithModel(log *logger.Logger, cfg Config, m Model) *Client {
	return &Client{
		log:   log.With("client", "GeminiClient"),
		cfg:   cfg.withDefaults(),
		model: m,
		sleep: httpx.Sleep,
	}
}

func (c *Client) Configured() bool { return c != nil && c.model != nil }

func (c *Client) ModelName() string {
	if c == nil {
		return ""
	}
	return c.cfg.Model
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, c.cfg.Timeout, c.cfg.MaxAttempts)
}

// GenerateOnce makes a single attempt with its own deadline.
func (c *Client) GenerateOnce(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	return c.generate(ctx, prompt, timeout, 1)
}

func (c *Client) Ping(ctx context.Context) (string, error) {
	return c.GenerateOnce(ctx, pingPrompt, c.cfg.Timeout)
}

func (c *Client) generate(ctx context.Context, prompt string, timeout time.Duration, maxAttempts int) (string, error) {
	if !c.Configured() {
		return "", classify(ErrMissingCredential)
	}
	ctx, span := observability.Tracer().Start(ctx, "gemini.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", c.cfg.Model),
		attribute.Int("gemini.prompt_chars", len(prompt)),
	)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := c.attempt(ctx, prompt, timeout)
		if err == nil {
			observability.Current().ObserveLLM(c.cfg.Model, "ok")
			span.SetAttributes(attribute.Int("gemini.attempts", attempt))
			return text, nil
		}
		lastErr = err
		observability.Current().ObserveLLM(c.cfg.Model, outcome(err))

		if !Retryable(ctx, err) || attempt == maxAttempts {
			break
		}
		sleepFor := httpx.JitterSleep(httpx.Backoff(c.cfg.BaseBackoff, c.cfg.MaxBackoff, attempt))
		c.log.Warn("Gemini request retrying",
			"model", c.cfg.Model,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := c.sleep(ctx, sleepFor); err != nil {
			lastErr = err
			break
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return "", lastErr
}

func (c *Client) attempt(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := c.model.GenerateText(attemptCtx, c.cfg.Model, prompt)
		ch <- result{text: text, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", classify(r.err)
		}
		if strings.TrimSpace(r.text) == "" {
			return "", &EmptyResponseError{Model: c.cfg.Model}
		}
		return r.text, nil
	case <-timer.C:
		return "", &TimeoutError{Timeout: timeout}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Retryable reports whether another attempt may succeed. Parent context
// cancellation, a missing credential and auth or not-found failures never are.
func Retryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var ee *EmptyResponseError
	if errors.As(err, &ee) {
		return true
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		if up.Fatal {
			return false
		}
		if up.StatusCode == 0 {
			return true
		}
		if httpx.IsPermanentHTTPStatus(up.StatusCode) {
			return false
		}
		return httpx.IsRetryableHTTPStatus(up.StatusCode)
	}
	return httpx.IsRetryableError(err)
}

func outcome(err error) string {
	var te *TimeoutError
	var ee *EmptyResponseError
	var up *UpstreamError
	switch {
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &ee):
		return "empty"
	case errors.As(err, &up) && up.Fatal:
		return "unconfigured"
	case errors.As(err, &up):
		return "upstream_error"
	default:
		return "canceled"
	}
}
