package storage

import (
	"context"

	"github.com/market-tracker/internal/types"
)

// AlertHistoryRepository records fired alerts in Postgres, keeping only
// the most recent entries up to a fixed limit.
type AlertHistoryRepository struct {
	db    *PostgresDB
	limit int
}

// NewAlertHistoryRepository creates a new alert history repository
func NewAlertHistoryRepository(db *PostgresDB, limit int) *AlertHistoryRepository {
	if limit <= 0 {
		limit = 100
	}
	return &AlertHistoryRepository{db: db, limit: limit}
}

// Append records a fired alert and trims history beyond the limit
func (r *AlertHistoryRepository) Append(ctx context.Context, event *types.AlertEvent) error {
	insert := `
		INSERT INTO alert_history (id, rule_id, asset_key, kind, threshold, price, message, fired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Pool().Exec(ctx, insert,
		event.ID,
		event.RuleID,
		event.AssetKey,
		string(event.Kind),
		event.Threshold,
		event.Price,
		event.Message,
		event.FiredAt,
	)
	if err != nil {
		return err
	}

	// Keep only the newest entries
	trim := `
		DELETE FROM alert_history
		WHERE id NOT IN (
			SELECT id FROM alert_history ORDER BY fired_at DESC LIMIT $1
		)
	`
	_, err = r.db.Pool().Exec(ctx, trim, r.limit)
	return err
}

// List returns fired alerts newest first, up to limit entries
func (r *AlertHistoryRepository) List(ctx context.Context, limit int) ([]*types.AlertEvent, error) {
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}

	query := `
		SELECT id, rule_id, asset_key, kind, threshold, price, message, fired_at
		FROM alert_history
		ORDER BY fired_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*types.AlertEvent
	for rows.Next() {
		var (
			ev   types.AlertEvent
			kind string
		)
		if err := rows.Scan(&ev.ID, &ev.RuleID, &ev.AssetKey, &kind, &ev.Threshold, &ev.Price, &ev.Message, &ev.FiredAt); err != nil {
			return nil, err
		}
		ev.Kind = types.AlertKind(kind)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// Clear removes all recorded alert events
func (r *AlertHistoryRepository) Clear(ctx context.Context) error {
	_, err := r.db.Pool().Exec(ctx, `DELETE FROM alert_history`)
	return err
}
