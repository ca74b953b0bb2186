package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonforge-backend/internal/http/response"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
)

type TextPinger interface {
	Configured() bool
	ModelName() string
	Ping(ctx context.Context) (string, error)
}

type DiagnosticsHandler struct {
	log    *logger.Logger
	text   TextPinger
	images func() bool
	driver string
}

func NewDiagnosticsHandler(log *logger.Logger, text TextPinger, imagesConfigured func() bool, driver string) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		log:    log.With("handler", "DiagnosticsHandler"),
		text:   text,
		images: imagesConfigured,
		driver: driver,
	}
}

// GET /api/diagnostics
func (h *DiagnosticsHandler) Config(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"textGenerationConfigured":  h.text != nil && h.text.Configured(),
		"imageGenerationConfigured": h.images != nil && h.images(),
		"driver":                    h.driver,
	})
}

// GET /api/diagnostics/text-generation
func (h *DiagnosticsHandler) PingText(c *gin.Context) {
	if h.text == nil || !h.text.Configured() {
		response.RespondErrorMessage(c, http.StatusInternalServerError, "generation_unavailable", msgGenerationUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()
	out, err := h.text.Ping(ctx)
	if err != nil {
		h.log.Warn("Text generation ping failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "generation_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"success":  true,
		"model":    h.text.ModelName(),
		"response": out,
	})
}
