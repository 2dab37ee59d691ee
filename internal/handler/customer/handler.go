package customer

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rallyhq/reengage-api/internal/handler"
	"github.com/rallyhq/reengage-api/internal/model"
	"github.com/rallyhq/reengage-api/internal/service/customer"
)

type Handler struct {
	service *customer.Service
}

func NewHandler(service *customer.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/customers", h.ListCustomers)
	r.GET("/vehicles/:id", h.GetVehicle)
	r.POST("/appointments", h.BookAppointment)
}

func (h *Handler) ListCustomers(c *gin.Context) {
	customers, err := h.service.ListCustomers(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, customers)
}

func (h *Handler) GetVehicle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, "invalid vehicle ID")
		return
	}

	detail, err := h.service.GetVehicle(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusOK, detail)
}

func (h *Handler) BookAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.ErrorMessage(c, http.StatusBadRequest, err.Error())
		return
	}

	appointment, err := h.service.BookAppointment(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Success(c, http.StatusCreated, appointment)
}
