package main

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/dtm-labs/client/dtmcli"
)

//go:embed schema.sql
var schemaSQL string

// BranchOrderRepository define as operações de persistência de pedidos da filial
type BranchOrderRepository interface {
	Create(ctx context.Context, order *BranchOrder) error
	Get(ctx context.Context, id string) (*BranchOrder, error)
	ListByBranch(ctx context.Context, branchID string) ([]BranchOrder, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*BranchOrder, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, order *BranchOrder) error
	// CallInBarrier executa fn no máximo uma vez por (gid, branch_id, op) da query
	CallInBarrier(ctx context.Context, query url.Values, fn func(tx *sql.Tx) error) error
}

// PostgresBranchOrderRepository implementa BranchOrderRepository com database/sql + lib/pq
type PostgresBranchOrderRepository struct {
	db *sql.DB
}

// NewPostgresBranchOrderRepository cria uma nova instância de PostgresBranchOrderRepository
func NewPostgresBranchOrderRepository(db *sql.DB) *PostgresBranchOrderRepository {
	return &PostgresBranchOrderRepository{db: db}
}

// Migrate aplica o schema, incluindo a tabela de barreira do DTM
func (r *PostgresBranchOrderRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

const branchOrderColumns = `id, branch_id, branch_name, items, status, COALESCE(factory_order_id, ''), accepted_date, last_event_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBranchOrder(row rowScanner) (*BranchOrder, error) {
	var (
		order BranchOrder
		items []byte
	)
	err := row.Scan(
		&order.ID,
		&order.BranchID,
		&order.BranchName,
		&items,
		&order.Status,
		&order.FactoryOrderID,
		&order.AcceptedDate,
		&order.LastEventAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Branch order %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan branch order: %w", err)
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items of %s: %w", order.ID, err)
	}
	return &order, nil
}

// Create insere um novo pedido
func (r *PostgresBranchOrderRepository) Create(ctx context.Context, order *BranchOrder) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	query := `
		INSERT INTO branch_orders (id, branch_id, branch_name, items, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		order.ID, order.BranchID, order.BranchName, items, order.Status, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create branch order: %w", err)
	}
	return nil
}

// Get busca um pedido por id
func (r *PostgresBranchOrderRepository) Get(ctx context.Context, id string) (*BranchOrder, error) {
	query := `SELECT ` + branchOrderColumns + ` FROM branch_orders WHERE id = $1`
	return scanBranchOrder(r.db.QueryRowContext(ctx, query, id))
}

// ListByBranch lista os pedidos da filial, mais recentes primeiro; sem filial lista todos
func (r *PostgresBranchOrderRepository) ListByBranch(ctx context.Context, branchID string) ([]BranchOrder, error) {
	query := `
		SELECT ` + branchOrderColumns + `
		FROM branch_orders
		WHERE $1::text = '' OR branch_id = $1::text
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list branch orders: %w", err)
	}
	defer rows.Close()

	orders := []BranchOrder{}
	for rows.Next() {
		order, err := scanBranchOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// GetForUpdate obtém o pedido com lock pessimista (FOR UPDATE)
func (r *PostgresBranchOrderRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*BranchOrder, error) {
	query := `SELECT ` + branchOrderColumns + ` FROM branch_orders WHERE id = $1 FOR UPDATE`
	return scanBranchOrder(tx.QueryRowContext(ctx, query, id))
}

// UpdateStatus grava o status espelhado
func (r *PostgresBranchOrderRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, order *BranchOrder) error {
	query := `
		UPDATE branch_orders
		SET status = $2,
			factory_order_id = NULLIF($3, ''),
			accepted_date = $4,
			last_event_at = $5,
			updated_at = $6
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, query,
		order.ID, order.Status, order.FactoryOrderID, order.AcceptedDate, order.LastEventAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update branch order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("Branch order %w", ErrNotFound)
	}
	return nil
}

// CallInBarrier usa a barreira de sub-transação do DTM: uma reentrega do mesmo gid não executa fn de novo
func (r *PostgresBranchOrderRepository) CallInBarrier(ctx context.Context, query url.Values, fn func(tx *sql.Tx) error) error {
	barrier, err := dtmcli.BarrierFromQuery(query)
	if err != nil {
		return &ValidationError{Message: "Invalid barrier parameters", Errors: []string{err.Error()}}
	}
	return barrier.CallWithDB(r.db, fn)
}
