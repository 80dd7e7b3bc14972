package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	syncBatchSize  = 20
	syncMaxBackoff = 5 * time.Minute
	// syncLease segura o evento reivindicado enquanto a entrega está em andamento
	syncLease = time.Minute
)

// SyncDrainer entrega os eventos do outbox ao serviço de filiais com retentativa
type SyncDrainer struct {
	repository       SyncOutboxRepository
	syncer           BranchOrderSyncer
	interval         time.Duration
	maxAttempts      int
	now              func() time.Time
	deliveredCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
}

// NewSyncDrainer cria uma nova instância de SyncDrainer
func NewSyncDrainer(repository SyncOutboxRepository, syncer BranchOrderSyncer, interval time.Duration, maxAttempts int) *SyncDrainer {
	meter := otel.Meter("factory-service")
	delivered, _ := meter.Int64Counter("branch_sync_delivered",
		metric.WithDescription("Branch order sync events delivered"))
	failed, _ := meter.Int64Counter("branch_sync_failed",
		metric.WithDescription("Branch order sync delivery failures"))

	return &SyncDrainer{
		repository:       repository,
		syncer:           syncer,
		interval:         interval,
		maxAttempts:      maxAttempts,
		now:              time.Now,
		deliveredCounter: delivered,
		failedCounter:    failed,
	}
}

// Run drena o outbox até o contexto ser cancelado
func (d *SyncDrainer) Run(ctx context.Context) {
	log.Printf("🚀 Branch sync drainer started | Interval=%s | MaxAttempts=%d", d.interval, d.maxAttempts)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DrainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("❌ [SYNC] Drain failed: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Println("ℹ️ Branch sync drainer stopped")
			return
		case <-ticker.C:
		}
	}
}

// DrainOnce processa um lote de eventos vencidos e devolve quantos foram entregues.
// O lote é reivindicado e arrendado numa transação curta; a entrega HTTP roda sem
// transação aberta e cada resultado é gravado na sua própria transação.
func (d *SyncDrainer) DrainOnce(ctx context.Context) (int, error) {
	events, err := d.claimBatch(ctx)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := range events {
		event := &events[i]

		syncErr := d.syncer.Sync(ctx, event)
		if syncErr == nil {
			if err := d.recordDelivered(ctx, event); err != nil {
				return delivered, err
			}
			delivered++
			d.deliveredCounter.Add(ctx, 1)
			log.Printf("✅ [SYNC] Delivered | EventID=%s | BranchOrderID=%s | Status=%s", event.ID, event.BranchOrderID, event.Status)
			continue
		}

		d.failedCounter.Add(ctx, 1)
		d.scheduleRetry(event, syncErr)
		if err := d.recordRetry(ctx, event); err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}

// claimBatch reivindica eventos vencidos e empurra next_attempt_at para frente,
// para que outro drenador não pegue o mesmo evento durante a entrega
func (d *SyncDrainer) claimBatch(ctx context.Context) ([]BranchOrderSyncEvent, error) {
	tx, err := d.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := d.now()
	events, err := d.repository.ClaimDueSyncEvents(ctx, tx, now, syncBatchSize)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	for i := range events {
		leased := events[i]
		leased.NextAttemptAt = now.Add(syncLease)
		if err := d.repository.RescheduleSyncEvent(ctx, tx, &leased); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit sync claim: %w", err)
	}
	return events, nil
}

func (d *SyncDrainer) recordDelivered(ctx context.Context, event *BranchOrderSyncEvent) error {
	tx, err := d.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := d.repository.MarkSyncEventDelivered(ctx, tx, event.ID, d.now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync delivery: %w", err)
	}
	return nil
}

func (d *SyncDrainer) recordRetry(ctx context.Context, event *BranchOrderSyncEvent) error {
	tx, err := d.repository.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := d.repository.RescheduleSyncEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync retry: %w", err)
	}
	return nil
}

// scheduleRetry aplica backoff exponencial (2^tentativas segundos, até 5 min) ou estaciona o evento
func (d *SyncDrainer) scheduleRetry(event *BranchOrderSyncEvent, syncErr error) {
	event.Attempts++
	event.LastError = syncErr.Error()

	if errors.Is(syncErr, ErrPermanentSync) || event.Attempts >= d.maxAttempts {
		event.Dead = true
		log.Printf("❌ [SYNC] Event parked | EventID=%s | Attempts=%d | Error=%v", event.ID, event.Attempts, syncErr)
		return
	}

	event.NextAttemptAt = d.now().Add(syncBackoff(event.Attempts))
	log.Printf("⏳ [SYNC] Retry scheduled | EventID=%s | Attempt=%d | Next=%s | Error=%v",
		event.ID, event.Attempts, event.NextAttemptAt.Format(time.RFC3339), syncErr)
}

func syncBackoff(attempts int) time.Duration {
	if attempts >= 9 {
		return syncMaxBackoff
	}
	backoff := time.Duration(1<<attempts) * time.Second
	if backoff > syncMaxBackoff {
		return syncMaxBackoff
	}
	return backoff
}
