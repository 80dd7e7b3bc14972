package main

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// respondError traduz a taxonomia de erros do domínio para HTTP
func respondError(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var (
		validationErr *ValidationError
		transitionErr *InvalidTransitionError
		stockErr      *InsufficientStockError
		wasteErr      *WasteBinError
	)

	switch {
	case errors.As(err, &validationErr):
		problems := validationErr.Errors
		if problems == nil {
			problems = []string{}
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": validationErr.Message, "errors": problems})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"message":         transitionErr.Error(),
			"currentStatus":   transitionErr.Current,
			"requestedStatus": transitionErr.Requested,
		})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusBadRequest, gin.H{"message": stockErr.Error(), "errors": []string{stockErr.Error()}})
	case errors.As(err, &wasteErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": wasteErr.Message})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	default:
		log.Printf("❌ [HTTP] %s %s | Error=%v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

// respondBindError responde 400 para corpos JSON malformados
func respondBindError(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body", "errors": []string{err.Error()}})
}

// HealthCheck é o endpoint de health check
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
