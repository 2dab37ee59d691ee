// Package handler holds the response envelope and error mapping shared by
// all HTTP handlers.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/rallyhq/reengage-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"status": "success", "data": data})
}

func ErrorMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"status": "error", "message": message})
}

// Error maps application error codes onto HTTP statuses. Unknown errors are
// reported as 500 without leaking wrapped internals.
func Error(c *gin.Context, err error) {
	switch {
	case apperrors.IsNotFound(err):
		ErrorMessage(c, http.StatusNotFound, err.Error())
	case apperrors.IsBadRequest(err):
		ErrorMessage(c, http.StatusBadRequest, err.Error())
	case apperrors.IsInvalidState(err):
		ErrorMessage(c, http.StatusConflict, err.Error())
	default:
		ErrorMessage(c, http.StatusInternalServerError, err.Error())
	}
}
