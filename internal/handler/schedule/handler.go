package schedule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/handler"
	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/service/schedule"
)

type Handler struct {
	service *schedule.Service
}

func NewHandler(service *schedule.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	schedules := r.Group("/recurring-schedules")
	{
		schedules.POST("", h.Create)
		schedules.GET("", h.List)
		schedules.GET("/:id", h.Get)
		schedules.POST("/:id/pause", h.Pause)
		schedules.POST("/:id/resume", h.Resume)
		schedules.DELETE("/:id", h.Stop)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateRecurringScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusCreated, created)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, "invalid schedule ID")
		return
	}

	found, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, found)
}

func (h *Handler) List(c *gin.Context) {
	activeOnly := c.Query("status") == "active"

	schedules, err := h.service.List(c.Request.Context(), activeOnly)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, schedules)
}

func (h *Handler) Pause(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, "invalid schedule ID")
		return
	}

	if err := h.service.Pause(c.Request.Context(), id); err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, gin.H{"paused": true})
}

func (h *Handler) Resume(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, "invalid schedule ID")
		return
	}

	resumed, err := h.service.Resume(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, resumed)
}

func (h *Handler) Stop(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, "invalid schedule ID")
		return
	}

	if err := h.service.Stop(c.Request.Context(), id); err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, gin.H{"stopped": true})
}
