package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Tx interface para transações
type Tx interface {
	Commit() error
	Rollback() error
	// Savepoint abre uma transação aninhada que pode ser desfeita sem afetar a externa
	Savepoint(ctx context.Context) (Tx, error)
}

// TxBeginner inicia transações no armazenamento
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// InventoryRepository define as operações de banco do estoque da fábrica
type InventoryRepository interface {
	TxBeginner
	ListInventory(ctx context.Context) ([]InventoryItem, error)
	GetInventoryItem(ctx context.Context, id string) (*InventoryItem, error)
	GetInventoryItemByName(ctx context.Context, name string) (*InventoryItem, error)
	GetInventoryItemForUpdate(ctx context.Context, tx Tx, id string) (*InventoryItem, error)
	// GetInventoryItemsByNameForUpdate trava as linhas em ordem de nome; nomes ausentes não aparecem no mapa
	GetInventoryItemsByNameForUpdate(ctx context.Context, tx Tx, names []string) (map[string]*InventoryItem, error)
	CreateInventoryItem(ctx context.Context, tx Tx, item *InventoryItem) error
	// UpdateInventoryItem grava o item se a versão ainda for item.Version e a incrementa
	UpdateInventoryItem(ctx context.Context, tx Tx, item *InventoryItem) error
	DeleteInventoryItem(ctx context.Context, tx Tx, id string) error
	InsertInventoryMovement(ctx context.Context, tx Tx, movement *InventoryMovement) error
	CountOpenOrdersWithItem(ctx context.Context, tx Tx, itemName string) (int, error)
}

// BranchInventoryRepository define as operações de banco do estoque das filiais
type BranchInventoryRepository interface {
	TxBeginner
	ListBranchInventory(ctx context.Context, branchID string) ([]BranchInventoryItem, error)
	GetBranchInventoryItemForUpdate(ctx context.Context, tx Tx, branchID, name string) (*BranchInventoryItem, error)
	// InsertBranchCredit devolve false quando a linha do pedido já creditou a filial
	InsertBranchCredit(ctx context.Context, tx Tx, credit *BranchCredit) (bool, error)
	// IncrementBranchInventory cria a linha com item ou soma item.Quantity a uma linha existente
	IncrementBranchInventory(ctx context.Context, tx Tx, item *BranchInventoryItem) (*BranchInventoryItem, error)
}

// OrderRepository define as operações de banco dos pedidos
type OrderRepository interface {
	TxBeginner
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	GetOrderForUpdate(ctx context.Context, tx Tx, id string) (*Order, error)
	UpdateOrder(ctx context.Context, tx Tx, order *Order) error
	DeleteOrder(ctx context.Context, id string) (*Order, error)
	// ListOrders devolve os pedidos do mais recente para o mais antigo
	ListOrders(ctx context.Context) ([]Order, error)
	ListOrdersByStatus(ctx context.Context, statuses ...OrderStatus) ([]Order, error)
}

// SyncOutboxRepository define as operações do outbox de sincronização com as filiais
type SyncOutboxRepository interface {
	TxBeginner
	InsertSyncEvent(ctx context.Context, tx Tx, event *BranchOrderSyncEvent) error
	ClaimDueSyncEvents(ctx context.Context, tx Tx, now time.Time, limit int) ([]BranchOrderSyncEvent, error)
	MarkSyncEventDelivered(ctx context.Context, tx Tx, id string, at time.Time) error
	RescheduleSyncEvent(ctx context.Context, tx Tx, event *BranchOrderSyncEvent) error
}

// WasteBinRepository define as operações do contêiner de resíduos
type WasteBinRepository interface {
	TxBeginner
	EnsureWasteBin(ctx context.Context, bin *FactoryWasteBin) error
	GetWasteBin(ctx context.Context) (*FactoryWasteBin, error)
	GetWasteBinForUpdate(ctx context.Context, tx Tx) (*FactoryWasteBin, error)
	UpdateWasteBin(ctx context.Context, tx Tx, bin *FactoryWasteBin) error
	// InsertWasteEntry devolve false quando a coleta já foi registrada
	InsertWasteEntry(ctx context.Context, tx Tx, entry *WasteEntry) (bool, error)
	InsertRecycleEvent(ctx context.Context, tx Tx, event *RecycleEvent) error
	ListWasteEntries(ctx context.Context, filter WasteHistoryFilter) ([]WasteEntry, int, error)
	ListRecycleEvents(ctx context.Context, from, to time.Time) ([]RecycleEvent, error)
}

// EmergencyRepository define as operações de brigadas e solicitações de emergência
type EmergencyRepository interface {
	TxBeginner
	EnsureBrigade(ctx context.Context, tx Tx, brigadeID, brigadeName string) error
	GetBrigade(ctx context.Context, brigadeID string) (*BrigadeWaterLevel, error)
	GetBrigadeForUpdate(ctx context.Context, tx Tx, brigadeID string) (*BrigadeWaterLevel, error)
	UpdateBrigade(ctx context.Context, tx Tx, brigade *BrigadeWaterLevel) error
	InsertEmergencyRequest(ctx context.Context, tx Tx, request *EmergencyRequest) error
	ListEmergencyRequests(ctx context.Context, brigadeID string) ([]EmergencyRequest, error)
}

// PostgresTx implementa a interface Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// Savepoint usa o Begin aninhado do pgx, que emite SAVEPOINT
func (t *PostgresTx) Savepoint(ctx context.Context) (Tx, error) {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}
	return &PostgresTx{tx: nested}, nil
}

// pgTx extrai a transação pgx de um Tx
func pgTx(tx Tx) pgx.Tx {
	return tx.(*PostgresTx).tx
}

// PostgresStore agrupa o pool usado por todos os repositórios Postgres
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore cria uma nova instância de PostgresStore
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// BeginTx inicia uma nova transação
func (s *PostgresStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

// Migrate aplica o schema embutido
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// mapNoRows traduz pgx.ErrNoRows para ErrNotFound
func mapNoRows(err error, entity string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(entity)
	}
	return err
}

// isUniqueViolation detecta violações de unicidade (23505)
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
