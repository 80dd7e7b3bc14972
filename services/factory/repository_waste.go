package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const wasteBinColumns = `id, current_level, capacity, total_recycled, last_recycled_at, last_recycled_by, updated_at`

func scanWasteBin(row pgx.Row) (*FactoryWasteBin, error) {
	var bin FactoryWasteBin
	err := row.Scan(
		&bin.ID,
		&bin.CurrentLevel,
		&bin.Capacity,
		&bin.TotalRecycled,
		&bin.LastRecycledAt,
		&bin.LastRecycledBy,
		&bin.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bin, nil
}

// EnsureWasteBin cria o contêiner na chave fixa se ainda não existir
func (s *PostgresStore) EnsureWasteBin(ctx context.Context, bin *FactoryWasteBin) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO factory_waste_bin (id, current_level, capacity, total_recycled, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, bin.ID, bin.CurrentLevel, bin.Capacity, bin.TotalRecycled, bin.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to ensure waste bin: %w", err)
	}
	return nil
}

// GetWasteBin lê o contêiner
func (s *PostgresStore) GetWasteBin(ctx context.Context) (*FactoryWasteBin, error) {
	bin, err := scanWasteBin(s.db.QueryRow(ctx,
		`SELECT `+wasteBinColumns+` FROM factory_waste_bin WHERE id = $1`, wasteBinID))
	if err != nil {
		return nil, mapNoRows(err, "Waste bin")
	}
	return bin, nil
}

// GetWasteBinForUpdate lê o contêiner com lock pessimista
func (s *PostgresStore) GetWasteBinForUpdate(ctx context.Context, tx Tx) (*FactoryWasteBin, error) {
	bin, err := scanWasteBin(pgTx(tx).QueryRow(ctx,
		`SELECT `+wasteBinColumns+` FROM factory_waste_bin WHERE id = $1 FOR UPDATE`, wasteBinID))
	if err != nil {
		return nil, mapNoRows(err, "Waste bin")
	}
	return bin, nil
}

// UpdateWasteBin grava os contadores do contêiner
func (s *PostgresStore) UpdateWasteBin(ctx context.Context, tx Tx, bin *FactoryWasteBin) error {
	_, err := pgTx(tx).Exec(ctx, `
		UPDATE factory_waste_bin
		SET current_level = $1,
		    total_recycled = $2,
		    last_recycled_at = $3,
		    last_recycled_by = $4,
		    updated_at = $5
		WHERE id = $6
	`, bin.CurrentLevel, bin.TotalRecycled, bin.LastRecycledAt, bin.LastRecycledBy, bin.UpdatedAt, bin.ID)
	if err != nil {
		return fmt.Errorf("failed to update waste bin: %w", err)
	}
	return nil
}

// InsertWasteEntry grava o lançamento; coleta repetida não altera nada
func (s *PostgresStore) InsertWasteEntry(ctx context.Context, tx Tx, entry *WasteEntry) (bool, error) {
	tag, err := pgTx(tx).Exec(ctx, `
		INSERT INTO waste_entries (id, source_branch, source_branch_id, waste_weight, waste_type, collection_request_id, processed_by, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (collection_request_id) DO NOTHING
	`,
		entry.ID,
		entry.SourceBranch,
		entry.SourceBranchID,
		entry.WasteWeight,
		entry.WasteType,
		entry.CollectionRequestID,
		entry.ProcessedBy,
		entry.Date,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert waste entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertRecycleEvent registra um esvaziamento
func (s *PostgresStore) InsertRecycleEvent(ctx context.Context, tx Tx, event *RecycleEvent) error {
	_, err := pgTx(tx).Exec(ctx, `
		INSERT INTO recycle_events (id, amount, recycled_by, date)
		VALUES ($1, $2, $3, $4)
	`, event.ID, event.Amount, event.RecycledBy, event.Date)
	if err != nil {
		return fmt.Errorf("failed to insert recycle event: %w", err)
	}
	return nil
}

// ListWasteEntries filtra o histórico, do mais recente para o mais antigo, e devolve o total sem paginação
func (s *PostgresStore) ListWasteEntries(ctx context.Context, filter WasteHistoryFilter) ([]WasteEntry, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.BranchID != "" {
		add("source_branch_id = $%d", filter.BranchID)
	}
	if filter.WasteType != "" {
		add("waste_type = $%d", filter.WasteType)
	}
	if filter.StartDate != nil {
		add("date >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("date <= $%d", *filter.EndDate)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM waste_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count waste entries: %w", err)
	}

	query := `
		SELECT id, source_branch, source_branch_id, waste_weight, waste_type, collection_request_id, processed_by, date
		FROM waste_entries ` + where + ` ORDER BY date DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list waste entries: %w", err)
	}
	defer rows.Close()

	entries := []WasteEntry{}
	for rows.Next() {
		var e WasteEntry
		if err := rows.Scan(
			&e.ID,
			&e.SourceBranch,
			&e.SourceBranchID,
			&e.WasteWeight,
			&e.WasteType,
			&e.CollectionRequestID,
			&e.ProcessedBy,
			&e.Date,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan waste entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// ListRecycleEvents lista esvaziamentos no intervalo [from, to)
func (s *PostgresStore) ListRecycleEvents(ctx context.Context, from, to time.Time) ([]RecycleEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, amount, recycled_by, date
		FROM recycle_events
		WHERE date >= $1 AND date < $2
		ORDER BY date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list recycle events: %w", err)
	}
	defer rows.Close()

	events := []RecycleEvent{}
	for rows.Next() {
		var e RecycleEvent
		if err := rows.Scan(&e.ID, &e.Amount, &e.RecycledBy, &e.Date); err != nil {
			return nil, fmt.Errorf("failed to scan recycle event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
