package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/lessonforge-backend/internal/pkg/envutil"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

const (
	DefaultBaseURL = "https://api-inference.huggingface.co/models"
	maxErrorBody   = 512
)

var ErrMissingToken = errors.New("missing HF_TOKEN")

type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

func ConfigFromEnv(log *logger.Logger) Config {
	return Config{
		Token:   envutil.String("HF_TOKEN", "", log),
		BaseURL: envutil.String("HF_INFERENCE_BASE_URL", DefaultBaseURL, log),
		Timeout: envutil.Seconds("HF_TIMEOUT_SECONDS", 60, log),
	}
}

// HTTPError is a non-2xx answer from the inference endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("huggingface http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Client calls hosted text-to-image models and returns the raw image bytes.
type Client struct {
	log        *logger.Logger
	token      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		log:        log.With("client", "HuggingFaceClient"),
		token:      strings.TrimSpace(cfg.Token),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool { return c != nil && c.token != "" }

type inferRequest struct {
	Inputs  string       `json:"inputs"`
	Options inferOptions `json:"options"`
}

type inferOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// Infer runs prompt through model. contentType is whatever the endpoint
// reported, possibly empty.
func (c *Client) Infer(ctx context.Context, model, prompt string) ([]byte, string, error) {
	if !c.Configured() {
		return nil, "", ErrMissingToken
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(inferRequest{
		Inputs:  prompt,
		Options: inferOptions{WaitForModel: true},
	}); err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(model, "/"), &buf)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, "", readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(raw)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, "", &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("huggingface %s: empty body", model)
	}
	return raw, strings.TrimSpace(resp.Header.Get("Content-Type")), nil
}
