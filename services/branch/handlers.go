package main

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "branch-service"

// respondError traduz os erros do domínio para HTTP
func respondError(c *gin.Context, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"message": validationErr.Message, "errors": validationErr.Errors})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	default:
		log.Printf("❌ [HTTP] %s %s | Error=%v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

// HandleCreateBranchOrder handler para registrar um pedido da filial
func HandleCreateBranchOrder(uc *BranchOrderUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "branch.order.create")
		defer span.End()

		var req CreateBranchOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body", "errors": []string{err.Error()}})
			return
		}

		order, err := uc.Create(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			respondError(c, err)
			return
		}

		span.SetAttributes(attribute.String("branch_order_id", order.ID))
		c.JSON(http.StatusCreated, gin.H{"order": order})
	}
}

// HandleGetBranchOrder handler para buscar um pedido
func HandleGetBranchOrder(uc *BranchOrderUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := uc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": order})
	}
}

// HandleListBranchOrders handler para listar pedidos, opcionalmente por filial
func HandleListBranchOrders(uc *BranchOrderUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := uc.List(c.Request.Context(), c.Query("branchId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	}
}

// HandleSyncBranchOrder recebe o espelhamento de status da fábrica, direto ou via DTM
func HandleSyncBranchOrder(uc *BranchOrderUseCase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body", "errors": []string{err.Error()}})
			return
		}

		// pelo DTM o traceparent não chega; os ids do corpo ligam este span ao da fábrica
		var opts []trace.SpanStartOption
		if remote, ok := RemoteSpanContext(req.TraceID, req.SpanID); ok {
			opts = append(opts, trace.WithLinks(trace.Link{SpanContext: remote}))
		}
		ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "branch.order.sync", opts...)
		defer span.End()

		span.SetAttributes(
			attribute.String("event_id", req.EventID),
			attribute.String("branch_order_id", req.BranchOrderID),
			attribute.String("status", req.Status),
		)

		if err := uc.ApplySync(ctx, c.Request.URL.Query(), req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"dtm_result": "SUCCESS"})
	}
}

// RemoteSpanContext monta o span context remoto a partir dos ids hex enviados pela fábrica
func RemoteSpanContext(traceIDHex, spanIDHex string) (trace.SpanContext, bool) {
	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return trace.SpanContext{}, false
	}

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), true
}

// HandleHealth handler para health check
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "branch-service"})
	}
}
