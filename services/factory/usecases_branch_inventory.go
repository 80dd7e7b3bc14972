package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// errAlreadyCredited indica que a linha do pedido já foi creditada na filial
var errAlreadyCredited = errors.New("order line already credited to branch")

// BranchCreditRequest descreve o crédito de uma linha entregue
type BranchCreditRequest struct {
	OrderID    string
	BranchID   string
	BranchName string
	ItemName   string
	Quantity   int
	// Factory é o item da fábrica usado como padrão; nil aplica pieces/10/100
	Factory *InventoryItem
}

// BranchInventoryUseCase contém a lógica do estoque das filiais
type BranchInventoryUseCase struct {
	repository    BranchInventoryRepository
	creditCounter metric.Int64Counter
}

// NewBranchInventoryUseCase cria uma nova instância de BranchInventoryUseCase
func NewBranchInventoryUseCase(repository BranchInventoryRepository) *BranchInventoryUseCase {
	credited, _ := otel.Meter("factory-service").Int64Counter("branch_inventory_credited_units",
		metric.WithDescription("Units credited to branch inventory on delivery"))

	return &BranchInventoryUseCase{
		repository:    repository,
		creditCounter: credited,
	}
}

// ListByBranch lista o estoque de uma filial
func (uc *BranchInventoryUseCase) ListByBranch(ctx context.Context, branchID string) ([]BranchInventoryItem, error) {
	return uc.repository.ListBranchInventory(ctx, branchID)
}

// CreditOnDelivery soma a quantidade entregue ao estoque da filial, uma única vez por linha de pedido
func (uc *BranchInventoryUseCase) CreditOnDelivery(ctx context.Context, tx Tx, req BranchCreditRequest) (*InventoryUpdate, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid credit quantity %d for %s", req.Quantity, req.ItemName)
	}

	inserted, err := uc.repository.InsertBranchCredit(ctx, tx, &BranchCredit{
		OrderID:   req.OrderID,
		ItemName:  req.ItemName,
		BranchID:  req.BranchID,
		Quantity:  req.Quantity,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		log.Printf("ℹ️ [IDEMPOTENCY] Branch credit already applied | OrderID=%s | Item=%s", req.OrderID, req.ItemName)
		return nil, errAlreadyCredited
	}

	previous := 0
	existing, err := uc.repository.GetBranchInventoryItemForUpdate(ctx, tx, req.BranchID, req.ItemName)
	switch {
	case err == nil:
		previous = existing.Quantity
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	row := &BranchInventoryItem{
		BranchID:      req.BranchID,
		Name:          req.ItemName,
		Quantity:      req.Quantity,
		Unit:          defaultBranchUnit,
		MinStockLevel: defaultBranchMinStockLevel,
		MaxStockLevel: defaultBranchMaxStockLevel,
		BranchName:    req.BranchName,
		LastUpdated:   time.Now(),
	}
	if req.Factory != nil {
		if req.Factory.Unit != "" {
			row.Unit = req.Factory.Unit
		}
		row.MinStockLevel = req.Factory.MinStockLevel
		row.MaxStockLevel = req.Factory.MaxStockLevel
	}

	stored, err := uc.repository.IncrementBranchInventory(ctx, tx, row)
	if err != nil {
		return nil, err
	}

	uc.creditCounter.Add(ctx, int64(req.Quantity), metric.WithAttributes(attribute.String("branch_id", req.BranchID)))

	newTotal := stored.Quantity
	return &InventoryUpdate{
		ItemName:         req.ItemName,
		QuantityAdded:    req.Quantity,
		PreviousQuantity: previous,
		NewTotalQuantity: &newTotal,
		Unit:             stored.Unit,
		Status:           stored.Status,
	}, nil
}
