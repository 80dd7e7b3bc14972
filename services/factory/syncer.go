package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dtm-labs/client/dtmcli"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const syncTracerName = "branch-sync"

// ErrPermanentSync marca falhas que não devem ser retentadas
var ErrPermanentSync = errors.New("permanent sync failure")

// branchSyncPath é o endpoint do serviço de filiais que aplica o espelhamento
const branchSyncPath = "/api/branch-orders/sync"

// BranchOrderSyncer entrega um evento de outbox ao serviço de filiais
type BranchOrderSyncer interface {
	Sync(ctx context.Context, event *BranchOrderSyncEvent) error
}

// barrierQuery monta os parâmetros que a barreira do serviço de filiais usa para deduplicar.
// O gid é o id do evento, então reentregas do mesmo evento caem na mesma chave.
func barrierQuery(event *BranchOrderSyncEvent) map[string]string {
	return map[string]string{
		"trans_type": "msg",
		"gid":        event.ID,
		"branch_id":  "01",
		"op":         "action",
	}
}

// startSyncSpan abre o span de entrega e devolve o payload carregando trace e span ids.
// Pelo DTM o cabeçalho traceparent não chega ao serviço de filiais, então os ids vão no corpo.
func startSyncSpan(ctx context.Context, name string, event *BranchOrderSyncEvent, actionURL string) (context.Context, trace.Span, BranchOrderSyncPayload) {
	ctx, span := otel.Tracer(syncTracerName).Start(ctx, name)
	span.SetAttributes(
		attribute.String("dtm.gid", event.ID),
		attribute.String("dtm.action.url", actionURL),
		attribute.String("branch_order_id", event.BranchOrderID),
		attribute.String("status", string(event.Status)),
	)

	payload := event.Payload()
	if sc := span.SpanContext(); sc.IsValid() {
		payload.TraceID = sc.TraceID().String()
		payload.SpanID = sc.SpanID().String()
	}
	return ctx, span, payload
}

func endSyncSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// HTTPBranchOrderSyncer chama o serviço de filiais diretamente
type HTTPBranchOrderSyncer struct {
	client *resty.Client
}

// NewHTTPBranchOrderSyncer cria uma nova instância de HTTPBranchOrderSyncer
func NewHTTPBranchOrderSyncer(baseURL string, timeout time.Duration) *HTTPBranchOrderSyncer {
	return &HTTPBranchOrderSyncer{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Sync envia o payload e interpreta o status HTTP
func (s *HTTPBranchOrderSyncer) Sync(ctx context.Context, event *BranchOrderSyncEvent) (err error) {
	ctx, span, payload := startSyncSpan(ctx, "branch.sync.http", event, s.client.BaseURL+branchSyncPath)
	defer func() { endSyncSpan(span, err) }()

	headers := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeaderMultiValues(headers).
		SetQueryParams(barrierQuery(event)).
		SetBody(payload).
		Post(branchSyncPath)
	if err != nil {
		return fmt.Errorf("branch service unreachable: %w", err)
	}

	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusBadRequest:
		return fmt.Errorf("branch service rejected event %s (%d: %s): %w",
			event.ID, resp.StatusCode(), resp.String(), ErrPermanentSync)
	default:
		return fmt.Errorf("branch service returned %d: %s", resp.StatusCode(), resp.String())
	}
}

// DTMBranchOrderSyncer submete cada evento como uma mensagem 2-fases do DTM, que retenta a entrega
type DTMBranchOrderSyncer struct {
	dtmServer     string
	branchService string
}

// NewDTMBranchOrderSyncer cria uma nova instância de DTMBranchOrderSyncer
func NewDTMBranchOrderSyncer(dtmServer, branchService string) *DTMBranchOrderSyncer {
	return &DTMBranchOrderSyncer{
		dtmServer:     dtmServer,
		branchService: strings.TrimRight(branchService, "/"),
	}
}

// Sync registra a mensagem no DTM; a entrega ao serviço de filiais fica a cargo do coordenador
func (s *DTMBranchOrderSyncer) Sync(ctx context.Context, event *BranchOrderSyncEvent) (err error) {
	actionURL := s.branchService + branchSyncPath
	_, span, payload := startSyncSpan(ctx, "dtm.msg.submit", event, actionURL)
	defer func() { endSyncSpan(span, err) }()

	msg := dtmcli.NewMsg(s.dtmServer, event.ID).
		Add(actionURL, payload)

	err = msg.Submit()
	if err != nil && (errors.Is(err, dtmcli.ErrDuplicated) || strings.Contains(err.Error(), "DUPLICATED")) {
		log.Printf("ℹ️ [IDEMPOTENCY] DTM msg already submitted | GID=%s", event.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to submit dtm msg: %w", err)
	}

	log.Printf("✅ DTM msg submitted | GID=%s | BranchOrderID=%s", event.ID, event.BranchOrderID)
	return nil
}
