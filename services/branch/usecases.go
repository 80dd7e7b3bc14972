package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"
)

// BranchOrderUseCase contém a lógica dos pedidos da filial
type BranchOrderUseCase struct {
	repository BranchOrderRepository
}

// NewBranchOrderUseCase cria uma nova instância de BranchOrderUseCase
func NewBranchOrderUseCase(repository BranchOrderRepository) *BranchOrderUseCase {
	return &BranchOrderUseCase{
		repository: repository,
	}
}

// Create registra um pedido da filial antes de ele ser enviado à fábrica
func (uc *BranchOrderUseCase) Create(ctx context.Context, req CreateBranchOrderRequest) (*BranchOrder, error) {
	if problems := req.Validate(); len(problems) > 0 {
		return nil, &ValidationError{Message: "Validation failed", Errors: problems}
	}

	order := NewBranchOrder(req)
	if err := uc.repository.Create(ctx, order); err != nil {
		log.Printf("❌ [BRANCH ORDER] Create failed | BranchID=%s | Error=%v", order.BranchID, err)
		return nil, err
	}

	log.Printf("✅ [BRANCH ORDER] Created | ID=%s | BranchID=%s | Items=%d", order.ID, order.BranchID, len(order.Items))
	return order, nil
}

// Get busca um pedido por id
func (uc *BranchOrderUseCase) Get(ctx context.Context, id string) (*BranchOrder, error) {
	return uc.repository.Get(ctx, id)
}

// List lista os pedidos de uma filial
func (uc *BranchOrderUseCase) List(ctx context.Context, branchID string) ([]BranchOrder, error) {
	return uc.repository.ListByBranch(ctx, strings.TrimSpace(branchID))
}

// ApplySync espelha o status vindo da fábrica. A barreira garante que cada evento é aplicado uma vez;
// um evento criado antes do último aplicado é ignorado, e qualquer transição da fábrica
// (inclusive Processing -> Pending) é espelhada como veio.
func (uc *BranchOrderUseCase) ApplySync(ctx context.Context, query url.Values, req SyncRequest) error {
	status, ok := ParseOrderStatus(req.Status)
	var problems []string
	if strings.TrimSpace(req.BranchOrderID) == "" {
		problems = append(problems, "branchOrderId is required")
	}
	if !ok {
		problems = append(problems, fmt.Sprintf("invalid status %q", req.Status))
	}
	if len(problems) > 0 {
		return &ValidationError{Message: "Invalid sync payload", Errors: problems}
	}

	log.Printf("🔄 [SYNC] Applying | EventID=%s | BranchOrderID=%s | Status=%s", req.EventID, req.BranchOrderID, status)

	applied, stale := false, false
	err := uc.repository.CallInBarrier(ctx, query, func(tx *sql.Tx) error {
		applied = true

		order, err := uc.repository.GetForUpdate(ctx, tx, req.BranchOrderID)
		if err != nil {
			return err
		}

		if req.EventCreatedAt != nil && order.LastEventAt != nil && req.EventCreatedAt.Before(*order.LastEventAt) {
			stale = true
			return nil
		}

		order.Status = status
		if req.EventCreatedAt != nil {
			order.LastEventAt = req.EventCreatedAt
		}
		if req.OrderID != "" {
			order.FactoryOrderID = req.OrderID
		}
		if req.AcceptedDate != nil {
			order.AcceptedDate = req.AcceptedDate
		}
		order.UpdatedAt = time.Now()
		return uc.repository.UpdateStatus(ctx, tx, order)
	})
	if err != nil {
		log.Printf("❌ [SYNC] Failed | EventID=%s | BranchOrderID=%s | Error=%v", req.EventID, req.BranchOrderID, err)
		return err
	}

	if !applied {
		log.Printf("ℹ️ [IDEMPOTENCY] Event already applied | EventID=%s", req.EventID)
		return nil
	}
	if stale {
		log.Printf("ℹ️ [SYNC] Stale event ignored | EventID=%s | BranchOrderID=%s | Incoming=%s",
			req.EventID, req.BranchOrderID, status)
		return nil
	}
	log.Printf("✅ [SYNC] Applied | BranchOrderID=%s | Status=%s", req.BranchOrderID, status)
	return nil
}
