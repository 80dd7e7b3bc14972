package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SetStatusRequest é o corpo de PUT /orders/:id/status
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// OrderHandler contém os handlers HTTP de pedidos
type OrderHandler struct {
	useCase *OrderUseCase
	reports *ReportUseCase
	tracer  trace.Tracer
}

// NewOrderHandler cria uma nova instância de OrderHandler
func NewOrderHandler(useCase *OrderUseCase, reports *ReportUseCase, tracer trace.Tracer) *OrderHandler {
	return &OrderHandler{
		useCase: useCase,
		reports: reports,
		tracer:  tracer,
	}
}

// Submit cria um pedido a partir do rascunho da filial
func (h *OrderHandler) Submit(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "submit_order")
	defer span.End()

	var draft OrderDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		respondBindError(c, span, err)
		return
	}
	span.SetAttributes(
		attribute.String("branch_id", draft.BranchID),
		attribute.Int("items", len(draft.Items)),
	)

	order, err := h.useCase.Submit(ctx, draft)
	if err != nil {
		respondError(c, span, err)
		return
	}

	span.SetAttributes(attribute.String("order_id", order.ID))
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// Accept reserva o estoque e aceita o pedido
func (h *OrderHandler) Accept(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "accept_order")
	defer span.End()

	orderID := c.Param("id")
	span.SetAttributes(attribute.String("order_id", orderID))

	result, err := h.useCase.Accept(ctx, orderID, actorFrom(c))
	if err != nil {
		respondError(c, span, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "Order accepted successfully",
		"order":            result.Order,
		"inventoryUpdates": result.InventoryUpdates,
	})
}

// SetStatus aplica uma transição de status
func (h *OrderHandler) SetStatus(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "set_order_status")
	defer span.End()

	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, span, err)
		return
	}

	orderID := c.Param("id")
	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("status", req.Status),
	)

	result, err := h.useCase.SetStatus(ctx, orderID, req.Status, actorFrom(c))
	if err != nil {
		respondError(c, span, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": result.Order, "inventoryUpdates": result.InventoryUpdates})
}

// Delete remove o pedido sem devolver estoque
func (h *OrderHandler) Delete(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "delete_order")
	defer span.End()

	orderID := c.Param("id")
	span.SetAttributes(attribute.String("order_id", orderID))

	order, err := h.useCase.Delete(ctx, orderID)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted successfully", "order": order})
}

// Get busca um pedido
func (h *OrderHandler) Get(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "get_order")
	defer span.End()

	order, err := h.useCase.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// List lista todos os pedidos
func (h *OrderHandler) List(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "list_orders")
	defer span.End()

	orders, err := h.useCase.List(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// ListPending lista a fila de pedidos a tratar
func (h *OrderHandler) ListPending(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "list_pending_orders")
	defer span.End()

	orders, err := h.useCase.ListPending(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// Stats devolve os contadores do painel
func (h *OrderHandler) Stats(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "order_stats")
	defer span.End()

	stats, err := h.reports.OrderStats(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Activities devolve o feed de atividades recentes
func (h *OrderHandler) Activities(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "recent_activities")
	defer span.End()

	activities, err := h.reports.RecentActivities(ctx)
	if err != nil {
		respondError(c, span, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}
