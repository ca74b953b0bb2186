package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonforge-backend/internal/clients/gemini"
	"github.com/yungbote/lessonforge-backend/internal/data/repos"
	"github.com/yungbote/lessonforge-backend/internal/http/response"
	"github.com/yungbote/lessonforge-backend/internal/modules/lessongen/pipeline"
	"github.com/yungbote/lessonforge-backend/internal/pkg/ctxutil"
	apperr "github.com/yungbote/lessonforge-backend/internal/pkg/errors"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/services"
)

const msgGenerationUnavailable = "AI service is not properly configured"

// respondLessonError maps service errors onto the API's status codes.
func respondLessonError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidOutline):
		response.RespondError(c, http.StatusBadRequest, "invalid_outline", err)
	case errors.Is(err, services.ErrInvalidLessonID):
		response.RespondError(c, http.StatusBadRequest, "invalid_lesson_id", err)
	case errors.Is(err, pipeline.ErrUnknownStep):
		response.RespondError(c, http.StatusBadRequest, "invalid_step", err)
	case errors.Is(err, apperr.ErrNotFound):
		response.RespondErrorMessage(c, http.StatusNotFound, "lesson_not_found", "lesson not found")
	case errors.Is(err, pipeline.ErrLeaseHeld), errors.Is(err, repos.ErrLeaseLost):
		response.RespondError(c, http.StatusConflict, "lesson_busy", err)
	case errors.Is(err, pipeline.ErrStepOutOfOrder):
		response.RespondError(c, http.StatusConflict, "step_out_of_order", err)
	case errors.Is(err, pipeline.ErrStepAlreadyCompleted):
		response.RespondError(c, http.StatusConflict, "step_already_completed", err)
	case errors.Is(err, gemini.ErrMissingCredential):
		response.RespondErrorMessage(c, http.StatusServiceUnavailable, "generation_unavailable", msgGenerationUnavailable)
	case errors.Is(err, apperr.ErrUnavailable):
		response.RespondError(c, http.StatusServiceUnavailable, "dispatch_unavailable", err)
	case errors.Is(err, apperr.ErrInvalidArgument):
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
	default:
		if log != nil {
			log.Error("Lesson request failed", append([]any{"route", c.FullPath(), "error", err}, ctxutil.LogFields(c.Request.Context())...)...)
		}
		response.RespondErrorMessage(c, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
