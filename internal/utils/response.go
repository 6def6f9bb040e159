package utils

import (
	"github.com/gin-gonic/gin"

	"vocalize/internal/apperr"
)

func Success(c *gin.Context, data gin.H) {
	c.JSON(200, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// Classified writes a classified error in the standard envelope. Payment
// errors carry the exact shortfall; validation errors name the field; raw
// internal detail only ever appears in the details debug field.
func Classified(c *gin.Context, e *apperr.Error) {
	body := gin.H{
		"success": false,
		"error":   e.Message,
	}
	switch e.Kind {
	case apperr.KindValidation:
		body["field"] = e.Field
	case apperr.KindPaymentRequired:
		body["required_credits"] = e.Required
		body["available_credits"] = e.Available
	}
	if e.Details != "" {
		body["details"] = e.Details
	}
	c.JSON(e.HTTPStatus(), body)
}
