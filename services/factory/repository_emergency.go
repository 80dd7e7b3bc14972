package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const brigadeColumns = `brigade_id, brigade_name, location, level, alert_sent, lat, lng, updated_at`

func scanBrigade(row pgx.Row) (*BrigadeWaterLevel, error) {
	var b BrigadeWaterLevel
	err := row.Scan(&b.BrigadeID, &b.BrigadeName, &b.Location, &b.Level, &b.AlertSent, &b.Lat, &b.Lng, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// EnsureBrigade cria a linha da brigada no primeiro contato
func (s *PostgresStore) EnsureBrigade(ctx context.Context, tx Tx, brigadeID, brigadeName string) error {
	_, err := pgTx(tx).Exec(ctx, `
		INSERT INTO brigade_water_levels (brigade_id, brigade_name)
		VALUES ($1, $2)
		ON CONFLICT (brigade_id) DO NOTHING
	`, brigadeID, brigadeName)
	if err != nil {
		return fmt.Errorf("failed to ensure brigade: %w", err)
	}
	return nil
}

// GetBrigade lê o estado de uma brigada
func (s *PostgresStore) GetBrigade(ctx context.Context, brigadeID string) (*BrigadeWaterLevel, error) {
	b, err := scanBrigade(s.db.QueryRow(ctx,
		`SELECT `+brigadeColumns+` FROM brigade_water_levels WHERE brigade_id = $1`, brigadeID))
	if err != nil {
		return nil, mapNoRows(err, "Brigade")
	}
	return b, nil
}

// GetBrigadeForUpdate lê a brigada com lock pessimista
func (s *PostgresStore) GetBrigadeForUpdate(ctx context.Context, tx Tx, brigadeID string) (*BrigadeWaterLevel, error) {
	b, err := scanBrigade(pgTx(tx).QueryRow(ctx,
		`SELECT `+brigadeColumns+` FROM brigade_water_levels WHERE brigade_id = $1 FOR UPDATE`, brigadeID))
	if err != nil {
		return nil, mapNoRows(err, "Brigade")
	}
	return b, nil
}

// UpdateBrigade grava nível, flag de alerta e localização
func (s *PostgresStore) UpdateBrigade(ctx context.Context, tx Tx, brigade *BrigadeWaterLevel) error {
	_, err := pgTx(tx).Exec(ctx, `
		UPDATE brigade_water_levels
		SET brigade_name = $1, location = $2, level = $3, alert_sent = $4, lat = $5, lng = $6, updated_at = $7
		WHERE brigade_id = $8
	`,
		brigade.BrigadeName,
		brigade.Location,
		brigade.Level,
		brigade.AlertSent,
		brigade.Lat,
		brigade.Lng,
		brigade.UpdatedAt,
		brigade.BrigadeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update brigade: %w", err)
	}
	return nil
}

// InsertEmergencyRequest grava a solicitação de emergência
func (s *PostgresStore) InsertEmergencyRequest(ctx context.Context, tx Tx, r *EmergencyRequest) error {
	_, err := pgTx(tx).Exec(ctx, `
		INSERT INTO emergency_requests (id, brigade_id, brigade_name, brigade_location, request_type, priority,
			water_level, description, lat, lng, location_source, status, requested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		r.ID,
		r.BrigadeID,
		r.BrigadeName,
		r.BrigadeLocation,
		r.RequestType,
		r.Priority,
		r.WaterLevel,
		r.Description,
		r.Lat,
		r.Lng,
		r.LocationSource,
		r.Status,
		r.RequestedBy,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert emergency request: %w", err)
	}
	return nil
}

// ListEmergencyRequests lista solicitações, opcionalmente de uma brigada, mais recentes primeiro
func (s *PostgresStore) ListEmergencyRequests(ctx context.Context, brigadeID string) ([]EmergencyRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, brigade_id, brigade_name, brigade_location, request_type, priority, water_level,
			description, lat, lng, location_source, status, requested_by, created_at
		FROM emergency_requests
		WHERE $1 = '' OR brigade_id = $1
		ORDER BY created_at DESC
	`, brigadeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency requests: %w", err)
	}
	defer rows.Close()

	requests := []EmergencyRequest{}
	for rows.Next() {
		var r EmergencyRequest
		if err := rows.Scan(
			&r.ID,
			&r.BrigadeID,
			&r.BrigadeName,
			&r.BrigadeLocation,
			&r.RequestType,
			&r.Priority,
			&r.WaterLevel,
			&r.Description,
			&r.Lat,
			&r.Lng,
			&r.LocationSource,
			&r.Status,
			&r.RequestedBy,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan emergency request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}
