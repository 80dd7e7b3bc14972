package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// wasteBinID é a chave fixa do único contêiner de resíduos da fábrica
const wasteBinID = "main"

// FactoryWasteBin representa o contêiner de resíduos recicláveis da fábrica
type FactoryWasteBin struct {
	ID             string          `json:"id" db:"id"`
	CurrentLevel   decimal.Decimal `json:"currentLevel" db:"current_level"`
	Capacity       decimal.Decimal `json:"capacity" db:"capacity"`
	TotalRecycled  decimal.Decimal `json:"totalRecycled" db:"total_recycled"`
	LastRecycledAt *time.Time      `json:"lastRecycledAt,omitempty" db:"last_recycled_at"`
	LastRecycledBy string          `json:"lastRecycledBy,omitempty" db:"last_recycled_by"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// FillPercentage devolve o nível atual em relação à capacidade, com uma casa decimal
func (b *FactoryWasteBin) FillPercentage() decimal.Decimal {
	if !b.Capacity.IsPositive() {
		return decimal.Zero
	}
	return b.CurrentLevel.Div(b.Capacity).Mul(decimal.NewFromInt(100)).Round(1)
}

// RemainingCapacity nunca é negativa, mesmo com o contêiner acima da capacidade
func (b *FactoryWasteBin) RemainingCapacity() decimal.Decimal {
	remaining := b.Capacity.Sub(b.CurrentLevel)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// FillBand classifica um percentual de preenchimento
type FillBand string

const (
	FillBandCritical FillBand = "Critical"
	FillBandHigh     FillBand = "High"
	FillBandMedium   FillBand = "Medium"
	FillBandLow      FillBand = "Low"
	FillBandEmpty    FillBand = "Empty"
)

// ClassifyFill aplica as faixas 80/60/40/20
func ClassifyFill(percentage decimal.Decimal) FillBand {
	switch {
	case percentage.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return FillBandCritical
	case percentage.GreaterThanOrEqual(decimal.NewFromInt(60)):
		return FillBandHigh
	case percentage.GreaterThanOrEqual(decimal.NewFromInt(40)):
		return FillBandMedium
	case percentage.GreaterThanOrEqual(decimal.NewFromInt(20)):
		return FillBandLow
	default:
		return FillBandEmpty
	}
}

// WasteEntry é um lançamento no histórico do contêiner
type WasteEntry struct {
	ID                  string          `json:"id" db:"id"`
	SourceBranch        string          `json:"sourceBranch" db:"source_branch"`
	SourceBranchID      string          `json:"sourceBranchId" db:"source_branch_id"`
	WasteWeight         decimal.Decimal `json:"wasteWeight" db:"waste_weight"`
	WasteType           string          `json:"wasteType" db:"waste_type"`
	CollectionRequestID string          `json:"collectionRequestId" db:"collection_request_id"`
	ProcessedBy         string          `json:"processedBy" db:"processed_by"`
	Date                time.Time       `json:"date" db:"date"`
}

// NewWasteEntry cria um lançamento com id e data preenchidos
func NewWasteEntry(req AddWasteRequest, weight decimal.Decimal, processedBy string) *WasteEntry {
	return &WasteEntry{
		ID:                  uuid.New().String(),
		SourceBranch:        req.SourceBranch,
		SourceBranchID:      req.SourceBranchID,
		WasteWeight:         weight,
		WasteType:           req.WasteType,
		CollectionRequestID: req.CollectionRequestID,
		ProcessedBy:         processedBy,
		Date:                time.Now(),
	}
}

// RecycleEvent registra um esvaziamento do contêiner
type RecycleEvent struct {
	ID         string          `json:"id" db:"id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	RecycledBy string          `json:"recycledBy" db:"recycled_by"`
	Date       time.Time       `json:"date" db:"date"`
}

// WasteHistoryFilter filtra o histórico do contêiner
type WasteHistoryFilter struct {
	BranchID  string
	WasteType string
	StartDate *time.Time
	EndDate   *time.Time
	// Limit 0 returns every matching entry.
	Limit  int
	Offset int
}
