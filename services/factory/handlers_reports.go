package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReportHandler expõe os relatórios somente leitura
type ReportHandler struct {
	useCase *ReportUseCase
	tracer  trace.Tracer
}

// NewReportHandler cria uma nova instância de ReportHandler
func NewReportHandler(useCase *ReportUseCase, tracer trace.Tracer) *ReportHandler {
	return &ReportHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

func (h *ReportHandler) BranchInventory(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "branch_inventory_report")
	defer span.End()

	branchID := c.Param("branchId")
	span.SetAttributes(attribute.String("branch_id", branchID))

	report, err := h.useCase.BranchInventoryReport(ctx, branchID)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// Monthly agrega o ano informado em ?year=, padrão o ano corrente
func (h *ReportHandler) Monthly(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "monthly_report")
	defer span.End()

	year := time.Now().Year()
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 9999 {
			respondError(c, span, NewValidationError("Validation failed", "year must be a four digit number"))
			return
		}
		year = parsed
	}
	span.SetAttributes(attribute.Int("year", year))

	summary, err := h.useCase.MonthlySummary(ctx, year)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": summary})
}
