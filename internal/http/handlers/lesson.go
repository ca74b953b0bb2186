package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lessonforge-backend/internal/http/response"
	"github.com/yungbote/lessonforge-backend/internal/pkg/logger"
	"github.com/yungbote/lessonforge-backend/internal/services"
)

type LessonHandler struct {
	log *logger.Logger
	svc services.LessonService
}

func NewLessonHandler(log *logger.Logger, svc services.LessonService) *LessonHandler {
	return &LessonHandler{log: log.With("handler", "LessonHandler"), svc: svc}
}

// POST /api/lessons
func (h *LessonHandler) Create(c *gin.Context) {
	var req struct {
		Outline string `json:"outline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	lesson, err := h.svc.Create(c.Request.Context(), req.Outline)
	if err != nil {
		respondLessonError(c, h.log, err)
		return
	}
	response.RespondAccepted(c, gin.H{"lesson": lesson})
}

// GET /api/lessons
func (h *LessonHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	lessons, err := h.svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondLessonError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"lessons": lessons})
}

// GET /api/lessons/:id
func (h *LessonHandler) Get(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	lesson, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondLessonError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"lesson": lesson})
}

// GET /api/lessons/:id/status
func (h *LessonHandler) Status(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	st, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		respondLessonError(c, h.log, err)
		return
	}
	response.RespondOK(c, st)
}

// POST /api/lessons/:id/steps
func (h *LessonHandler) AdvanceStep(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	var req struct {
		Step string `json:"step"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	res, err := h.svc.AdvanceStep(c.Request.Context(), id, req.Step)
	if err != nil {
		respondLessonError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

// POST /api/lessons/:id/run
func (h *LessonHandler) Run(c *gin.Context) {
	id, ok := lessonID(c)
	if !ok {
		return
	}
	st, err := h.svc.Run(c.Request.Context(), id)
	if err != nil {
		respondLessonError(c, h.log, err)
		return
	}
	response.RespondAccepted(c, gin.H{"status": st, "driver": h.svc.Driver()})
}

// POST /api/process-queue
func (h *LessonHandler) ProcessQueue(c *gin.Context) {
	var req struct {
		LessonID string `json:"lessonId"`
		Step     string `json:"step"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.ProcessQueue(c.Request.Context(), req.LessonID, req.Step)
	if err != nil {
		respondLessonError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true, "result": res})
}

func lessonID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_lesson_id", services.ErrInvalidLessonID)
		return uuid.Nil, false
	}
	return id, true
}
