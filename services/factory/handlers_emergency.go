package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EmergencyHandler contém os handlers das brigadas e do despacho de emergência
type EmergencyHandler struct {
	useCase *EmergencyUseCase
	tracer  trace.Tracer
}

// NewEmergencyHandler cria uma nova instância de EmergencyHandler
func NewEmergencyHandler(useCase *EmergencyUseCase, tracer trace.Tracer) *EmergencyHandler {
	return &EmergencyHandler{
		useCase: useCase,
		tracer:  tracer,
	}
}

func (h *EmergencyHandler) RegisterLocation(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "register_brigade_location")
	defer span.End()

	var req BrigadeLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, span, err)
		return
	}
	span.SetAttributes(attribute.String("brigade_id", c.Param("brigadeId")))

	brigade, err := h.useCase.RegisterLocation(ctx, c.Param("brigadeId"), req)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"brigade": brigade})
}

// ReportWaterLevel recebe o nível e, se for o caso, dispara a solicitação automática
func (h *EmergencyHandler) ReportWaterLevel(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "report_water_level")
	defer span.End()

	var req WaterLevelReport
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, span, err)
		return
	}
	brigadeID := c.Param("brigadeId")
	span.SetAttributes(attribute.String("brigade_id", brigadeID))
	if req.Level != nil {
		span.SetAttributes(attribute.String("level", strconv.Itoa(*req.Level)))
	}

	result, err := h.useCase.ReportWaterLevel(ctx, brigadeID, req, actorFrom(c))
	if err != nil {
		respondError(c, span, err)
		return
	}

	status := http.StatusOK
	if result.Request != nil {
		status = http.StatusCreated
		span.SetAttributes(attribute.String("emergency_request_id", result.Request.ID))
	}
	c.JSON(status, result)
}

func (h *EmergencyHandler) GetBrigade(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "get_brigade")
	defer span.End()

	brigade, err := h.useCase.GetBrigade(ctx, c.Param("brigadeId"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"brigade": brigade})
}

func (h *EmergencyHandler) ListRequests(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "list_emergency_requests")
	defer span.End()

	requests, err := h.useCase.ListRequests(ctx, c.Query("brigadeId"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
