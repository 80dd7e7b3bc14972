package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WasteBinHandler contém os handlers HTTP do contêiner de resíduos
type WasteBinHandler struct {
	useCase *WasteBinUseCase
	tracer  trace.Tracer
}

// NewWasteBinHandler cria uma nova instância de WasteBinHandler
func NewWasteBinHandler(useCase *WasteBinUseCase, tracer trace.Tracer) *WasteBinHandler {
	return &WasteBinHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

// Get devolve o contêiner e suas estatísticas
func (h *WasteBinHandler) Get(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "get_waste_bin")
	defer span.End()

	bin, err := h.useCase.GetOrCreate(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	stats, err := h.useCase.Statistics(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "bin": bin, "statistics": stats})
}

// AddWaste registra uma coleta vinda de uma filial
func (h *WasteBinHandler) AddWaste(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "add_waste")
	defer span.End()

	var req AddWasteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, span, err)
		return
	}
	span.SetAttributes(
		attribute.String("branch_id", req.SourceBranchID),
		attribute.String("collection_request_id", req.CollectionRequestID),
	)

	bin, err := h.useCase.AddWaste(ctx, req, actorFrom(c))
	if err != nil {
		respondError(c, span, err)
		return
	}
	stats, err := h.useCase.Statistics(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Waste added to factory bin successfully",
		"bin":        bin,
		"statistics": stats,
	})
}

// Recycle esvazia o contêiner
func (h *WasteBinHandler) Recycle(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "recycle_waste_bin")
	defer span.End()

	result, err := h.useCase.Recycle(ctx, actorFrom(c))
	if err != nil {
		respondError(c, span, err)
		return
	}
	stats, err := h.useCase.Statistics(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        fmt.Sprintf("Waste recycled successfully. %s kg processed.", result.RecycledAmount),
		"recycledAmount": result.RecycledAmount,
		"totalRecycled":  result.TotalRecycled,
		"bin":            result.Bin,
		"statistics":     stats,
		"recycledBy":     result.RecycledBy,
	})
}

func (h *WasteBinHandler) Statistics(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "waste_bin_statistics")
	defer span.End()

	stats, err := h.useCase.Statistics(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "statistics": stats})
}

// History devolve o histórico filtrado e paginado
func (h *WasteBinHandler) History(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "waste_bin_history")
	defer span.End()

	filter := WasteHistoryFilter{
		BranchID:  c.Query("branchId"),
		WasteType: c.Query("wasteType"),
	}
	var problems []string
	if raw := c.Query("startDate"); raw != "" {
		if t, ok := parseDate(raw); ok {
			filter.StartDate = &t
		} else {
			problems = append(problems, "startDate must be a valid date")
		}
	}
	if raw := c.Query("endDate"); raw != "" {
		if t, ok := parseDate(raw); ok {
			filter.EndDate = &t
		} else {
			problems = append(problems, "endDate must be a valid date")
		}
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		problems = append(problems, "page must be a number")
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil {
		problems = append(problems, "limit must be a number")
	}
	if len(problems) > 0 {
		respondError(c, span, NewValidationError("Validation failed", problems...))
		return
	}

	result, err := h.useCase.History(ctx, filter, page, limit)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"history":     result.History,
		"totalCount":  result.TotalCount,
		"currentPage": result.CurrentPage,
		"totalPages":  result.TotalPages,
	})
}
