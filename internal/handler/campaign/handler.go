package campaign

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/handler"
	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/service/campaign"
)

type Handler struct {
	service *campaign.Service
}

func NewHandler(service *campaign.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	campaigns := r.Group("/campaigns")
	{
		campaigns.POST("/execute", h.ExecuteNow)
		campaigns.POST("/schedule", h.Schedule)
		campaigns.GET("/scheduled", h.ListScheduled)
		campaigns.POST("/scheduled/:id/cancel", h.Cancel)
	}
	runs := r.Group("/runs")
	{
		runs.GET("", h.ListRuns)
		runs.GET("/:id", h.GetRun)
	}
}

type executeRequest struct {
	RuleID uuid.UUID `json:"rule_id" binding:"required"`
}

func (h *Handler) ExecuteNow(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.service.ExecuteRule(c.Request.Context(), req.RuleID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	if run == nil {
		handler.Success(c, http.StatusOK, gin.H{"run": nil, "message": "cohort is empty, nothing to send"})
		return
	}
	handler.Success(c, http.StatusCreated, gin.H{"run": run})
}

func (h *Handler) Schedule(c *gin.Context) {
	var req model.ScheduleCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	scheduled, err := h.service.ScheduleCampaign(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusCreated, scheduled)
}

func (h *Handler) ListScheduled(c *gin.Context) {
	pendingOnly := c.Query("status") == "pending"

	scheduled, err := h.service.ListScheduled(c.Request.Context(), pendingOnly)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, scheduled)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, "invalid scheduled campaign ID")
		return
	}

	cancelled, err := h.service.CancelScheduled(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, cancelled)
}

func (h *Handler) ListRuns(c *gin.Context) {
	incompleteOnly := c.Query("status") == "incomplete"

	runs, err := h.service.ListRuns(c.Request.Context(), incompleteOnly)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, runs)
}

func (h *Handler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, "invalid run ID")
		return
	}

	detail, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, detail)
}
