package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/market-tracker/internal/types"
)

// AlertRepository handles alert rule persistence in Postgres
type AlertRepository struct {
	db *PostgresDB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *PostgresDB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert rule. Trigger state is persisted too so that
// a restored backup keeps fired rules fired.
func (r *AlertRepository) Create(ctx context.Context, rule *types.AlertRule) error {
	var triggeredAt *time.Time
	if !rule.TriggeredAt.IsZero() {
		triggeredAt = &rule.TriggeredAt
	}
	var triggeredPrice *float64
	if rule.TriggeredPrice != 0 {
		triggeredPrice = &rule.TriggeredPrice
	}
	query := `
		INSERT INTO alert_rules (id, asset_key, kind, threshold, message, active, triggered, created_at, triggered_at, triggered_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		rule.ID,
		rule.AssetKey,
		string(rule.Kind),
		rule.Threshold,
		rule.Message,
		rule.Active,
		rule.Triggered,
		rule.CreatedAt,
		triggeredAt,
		triggeredPrice,
	)
	return err
}

// GetByID returns a single rule, or pgx.ErrNoRows if absent
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*types.AlertRule, error) {
	query := `
		SELECT id, asset_key, kind, threshold, message, active, triggered, created_at, triggered_at, triggered_price
		FROM alert_rules
		WHERE id = $1
	`
	return r.scanRule(r.db.Pool().QueryRow(ctx, query, id))
}

// ListActive returns all rules that are still armed: active and not yet
// triggered. A fired rule stays out of the set even if it is re-activated,
// until a rearm clears its trigger.
func (r *AlertRepository) ListActive(ctx context.Context) ([]*types.AlertRule, error) {
	query := `
		SELECT id, asset_key, kind, threshold, message, active, triggered, created_at, triggered_at, triggered_price
		FROM alert_rules
		WHERE active = true AND triggered = false
		ORDER BY created_at ASC
	`
	return r.queryRules(ctx, query)
}

// ListAll returns every rule, armed or not
func (r *AlertRepository) ListAll(ctx context.Context) ([]*types.AlertRule, error) {
	query := `
		SELECT id, asset_key, kind, threshold, message, active, triggered, created_at, triggered_at, triggered_price
		FROM alert_rules
		ORDER BY created_at ASC
	`
	return r.queryRules(ctx, query)
}

// MarkTriggered records a firing: the rule is disarmed and stamped with the
// price and time it fired at
func (r *AlertRepository) MarkTriggered(ctx context.Context, id string, price float64, at time.Time) error {
	query := `UPDATE alert_rules SET active = false, triggered = true, triggered_at = $2, triggered_price = $3 WHERE id = $1`
	_, err := r.db.Pool().Exec(ctx, query, id, at, price)
	return err
}

// Rearm clears a rule's trigger state and re-activates it
func (r *AlertRepository) Rearm(ctx context.Context, id string) (bool, error) {
	query := `UPDATE alert_rules SET active = true, triggered = false, triggered_at = NULL, triggered_price = NULL WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Activate turns a rule back on without touching its trigger state; a fired
// rule stays fired until rearmed
func (r *AlertRepository) Activate(ctx context.Context, id string) (bool, error) {
	query := `UPDATE alert_rules SET active = true WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Deactivate disarms a rule without recording a trigger
func (r *AlertRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	query := `UPDATE alert_rules SET active = false WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a rule. Returns false if no rule matched.
func (r *AlertRepository) Delete(ctx context.Context, id string) (bool, error) {
	query := `DELETE FROM alert_rules WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAll clears every rule, returning the number removed
func (r *AlertRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM alert_rules`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *AlertRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*types.AlertRule, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*types.AlertRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *AlertRepository) scanRule(row pgx.Row) (*types.AlertRule, error) {
	var (
		rule           types.AlertRule
		kind           string
		triggeredAt    *time.Time
		triggeredPrice *float64
	)
	if err := row.Scan(&rule.ID, &rule.AssetKey, &kind, &rule.Threshold, &rule.Message, &rule.Active, &rule.Triggered, &rule.CreatedAt, &triggeredAt, &triggeredPrice); err != nil {
		return nil, err
	}
	rule.Kind = types.AlertKind(kind)
	if triggeredAt != nil {
		rule.TriggeredAt = *triggeredAt
	}
	if triggeredPrice != nil {
		rule.TriggeredPrice = *triggeredPrice
	}
	return &rule, nil
}
