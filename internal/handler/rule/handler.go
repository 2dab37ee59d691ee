package rule

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/handler"
	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/service/rule"
)

type Handler struct {
	service *rule.Service
}

func NewHandler(service *rule.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rules := r.Group("/rules")
	{
		rules.POST("", h.CreateRule)
		rules.GET("", h.ListRules)
		rules.GET("/:id", h.GetRule)
		rules.GET("/:id/cohort", h.PreviewCohort)
	}
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req model.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.service.CreateRule(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusCreated, created)
}

func (h *Handler) GetRule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, "invalid rule ID")
		return
	}

	found, err := h.service.GetRule(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, found)
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.service.ListRules(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, rules)
}

func (h *Handler) PreviewCohort(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, "invalid rule ID")
		return
	}

	members, err := h.service.PreviewCohort(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, gin.H{"count": len(members), "members": members})
}
