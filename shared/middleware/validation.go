package middleware

import (
	"net/http"

	"github.com/eaglebank/transaction-service/shared/apperrors"
	"github.com/gin-gonic/gin"
)

type BadRequestErrorResponse struct {
	Message string                 `json:"message"`
	Details []apperrors.FieldError `json:"details"`
}

func RespondWithValidationError(c *gin.Context, fields []apperrors.FieldError) {
	c.JSON(http.StatusBadRequest, BadRequestErrorResponse{
		Message: "Invalid request data",
		Details: fields,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"message": message,
	})
}
