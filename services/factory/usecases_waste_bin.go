package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// AddWasteRequest representa a entrada de resíduos coletados em uma filial
type AddWasteRequest struct {
	SourceBranch        string           `json:"sourceBranch"`
	SourceBranchID      string           `json:"sourceBranchId"`
	WasteWeight         *decimal.Decimal `json:"wasteWeight"`
	WasteType           string           `json:"wasteType"`
	CollectionRequestID string           `json:"collectionRequestId"`
	ProcessedBy         string           `json:"processedBy"`
}

// WasteBinStatistics é o resumo derivado do contêiner
type WasteBinStatistics struct {
	CurrentLevel      decimal.Decimal            `json:"currentLevel"`
	Capacity          decimal.Decimal            `json:"capacity"`
	FillPercentage    decimal.Decimal            `json:"fillPercentage"`
	Band              FillBand                   `json:"band"`
	RemainingCapacity decimal.Decimal            `json:"remainingCapacity"`
	TotalRecycled     decimal.Decimal            `json:"totalRecycled"`
	TotalEntries      int                        `json:"totalEntries"`
	WasteByType       map[string]decimal.Decimal `json:"wasteByType"`
	LastRecycledAt    *time.Time                 `json:"lastRecycledAt,omitempty"`
}

// RecycleResult é a resposta de um esvaziamento
type RecycleResult struct {
	RecycledAmount decimal.Decimal  `json:"recycledAmount"`
	TotalRecycled  decimal.Decimal  `json:"totalRecycled"`
	RecycledBy     string           `json:"recycledBy"`
	Bin            *FactoryWasteBin `json:"bin"`
}

// WasteHistoryPage é uma página do histórico
type WasteHistoryPage struct {
	History     []WasteEntry `json:"history"`
	TotalCount  int          `json:"totalCount"`
	CurrentPage int          `json:"currentPage"`
	TotalPages  int          `json:"totalPages"`
}

// WasteBinUseCase contém a lógica do contêiner de resíduos da fábrica
type WasteBinUseCase struct {
	repository WasteBinRepository
	capacity   decimal.Decimal
}

// NewWasteBinUseCase cria uma nova instância de WasteBinUseCase
func NewWasteBinUseCase(repository WasteBinRepository, capacity decimal.Decimal) *WasteBinUseCase {
	return &WasteBinUseCase{
		repository: repository,
		capacity:   capacity,
	}
}

// GetOrCreate devolve o contêiner, criando-o na chave fixa no primeiro acesso
func (uc *WasteBinUseCase) GetOrCreate(ctx context.Context) (*FactoryWasteBin, error) {
	if err := uc.repository.EnsureWasteBin(ctx, &FactoryWasteBin{
		ID:        wasteBinID,
		Capacity:  uc.capacity,
		UpdatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}
	return uc.repository.GetWasteBin(ctx)
}

// AddWaste lança uma coleta no contêiner; collectionRequestId repetido não soma de novo
func (uc *WasteBinUseCase) AddWaste(ctx context.Context, req AddWasteRequest, actor string) (*FactoryWasteBin, error) {
	var missing []string
	if strings.TrimSpace(req.SourceBranch) == "" {
		missing = append(missing, "sourceBranch")
	}
	if strings.TrimSpace(req.SourceBranchID) == "" {
		missing = append(missing, "sourceBranchId")
	}
	if req.WasteWeight == nil || !req.WasteWeight.IsPositive() {
		missing = append(missing, "wasteWeight")
	}
	if strings.TrimSpace(req.WasteType) == "" {
		missing = append(missing, "wasteType")
	}
	if strings.TrimSpace(req.CollectionRequestID) == "" {
		missing = append(missing, "collectionRequestId")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{
			Message: "Missing required fields: sourceBranch, sourceBranchId, wasteWeight, wasteType, collectionRequestId",
			Errors:  missing,
		}
	}

	if _, err := uc.GetOrCreate(ctx); err != nil {
		return nil, err
	}

	processedBy := req.ProcessedBy
	if processedBy == "" {
		processedBy = actor
	}
	if processedBy == "" {
		processedBy = "Unknown"
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	bin, err := uc.repository.GetWasteBinForUpdate(ctx, tx)
	if err != nil {
		return nil, err
	}

	entry := NewWasteEntry(req, *req.WasteWeight, processedBy)
	inserted, err := uc.repository.InsertWasteEntry(ctx, tx, entry)
	if err != nil {
		return nil, err
	}
	if !inserted {
		log.Printf("ℹ️ [IDEMPOTENCY] Collection already added | CollectionRequestID=%s", req.CollectionRequestID)
		return bin, nil
	}

	bin.CurrentLevel = bin.CurrentLevel.Add(entry.WasteWeight)
	bin.UpdatedAt = time.Now()
	if err := uc.repository.UpdateWasteBin(ctx, tx, bin); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit waste entry: %w", err)
	}

	log.Printf("✅ [WASTE] Added %s kg from %s | Level=%s", entry.WasteWeight, entry.SourceBranchID, bin.CurrentLevel)
	return bin, nil
}

// Recycle move o nível atual para o total reciclado e zera o contêiner
func (uc *WasteBinUseCase) Recycle(ctx context.Context, actor string) (*RecycleResult, error) {
	if _, err := uc.GetOrCreate(ctx); err != nil {
		return nil, err
	}
	if actor == "" {
		actor = "Unknown"
	}

	tx, err := uc.repository.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	bin, err := uc.repository.GetWasteBinForUpdate(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !bin.CurrentLevel.IsPositive() {
		return nil, ErrNothingToRecycle
	}

	now := time.Now()
	amount := bin.CurrentLevel
	bin.TotalRecycled = bin.TotalRecycled.Add(amount)
	bin.CurrentLevel = decimal.Zero
	bin.LastRecycledAt = &now
	bin.LastRecycledBy = actor
	bin.UpdatedAt = now

	if err := uc.repository.UpdateWasteBin(ctx, tx, bin); err != nil {
		return nil, err
	}
	if err := uc.repository.InsertRecycleEvent(ctx, tx, &RecycleEvent{
		ID:         uuid.New().String(),
		Amount:     amount,
		RecycledBy: actor,
		Date:       now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit recycle: %w", err)
	}

	log.Printf("♻️  Factory bin recycled by %s | Recycled=%s kg | Total=%s kg", actor, amount, bin.TotalRecycled)
	return &RecycleResult{
		RecycledAmount: amount,
		TotalRecycled:  bin.TotalRecycled,
		RecycledBy:     actor,
		Bin:            bin,
	}, nil
}

// Statistics calcula percentual, faixa e totais por tipo
func (uc *WasteBinUseCase) Statistics(ctx context.Context) (*WasteBinStatistics, error) {
	bin, err := uc.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	entries, total, err := uc.repository.ListWasteEntries(ctx, WasteHistoryFilter{})
	if err != nil {
		return nil, err
	}

	byType := map[string]decimal.Decimal{}
	for _, e := range entries {
		byType[e.WasteType] = byType[e.WasteType].Add(e.WasteWeight)
	}

	fill := bin.FillPercentage()
	return &WasteBinStatistics{
		CurrentLevel:      bin.CurrentLevel,
		Capacity:          bin.Capacity,
		FillPercentage:    fill,
		Band:              ClassifyFill(fill),
		RemainingCapacity: bin.RemainingCapacity(),
		TotalRecycled:     bin.TotalRecycled,
		TotalEntries:      total,
		WasteByType:       byType,
		LastRecycledAt:    bin.LastRecycledAt,
	}, nil
}

// History pagina o histórico filtrado; page começa em 1
func (uc *WasteBinUseCase) History(ctx context.Context, filter WasteHistoryFilter, page, limit int) (*WasteHistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	entries, total, err := uc.repository.ListWasteEntries(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &WasteHistoryPage{
		History:     entries,
		TotalCount:  total,
		CurrentPage: page,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}
