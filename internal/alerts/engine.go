// Package alerts evaluates price alert rules against snapshot cycles.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/types"
)

// RuleStore supplies armed rules and records firings.
type RuleStore interface {
	ListActive(ctx context.Context) ([]*types.AlertRule, error)
	MarkTriggered(ctx context.Context, id string, price float64, at time.Time) error
}

// HistorySink records fired alert events.
type HistorySink interface {
	Append(ctx context.Context, event *types.AlertEvent) error
}

// Engine checks armed rules after every fetch cycle. A rule fires at most
// once: firing disarms it until it is explicitly re-armed.
type Engine struct {
	rules     RuleStore
	history   HistorySink
	notifiers []Notifier
}

// NewEngine creates an alert engine.
func NewEngine(rules RuleStore, history HistorySink, notifiers ...Notifier) *Engine {
	return &Engine{rules: rules, history: history, notifiers: notifiers}
}

// Check evaluates all armed rules against the current and previous snapshots
// and returns the events that fired this cycle.
func (e *Engine) Check(ctx context.Context, current, previous types.PriceSnapshot) ([]*types.AlertEvent, error) {
	logger := logging.FromContext(ctx)

	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var fired []*types.AlertEvent

	for _, rule := range rules {
		price, ok := current[rule.AssetKey]
		if !ok {
			continue
		}

		if !Evaluate(rule, price, previous[rule.AssetKey]) {
			continue
		}

		event := &types.AlertEvent{
			ID:        uuid.New().String(),
			RuleID:    rule.ID,
			AssetKey:  rule.AssetKey,
			Kind:      rule.Kind,
			Threshold: rule.Threshold,
			Price:     price,
			Message:   eventMessage(rule, price),
			FiredAt:   now,
		}

		// Disarm before notifying so a slow notifier cannot double-fire
		if err := e.rules.MarkTriggered(ctx, rule.ID, price, now); err != nil {
			logger.WithField("rule", rule.ID).WithError(err).Error("Failed to disarm fired alert rule")
			continue
		}

		if e.history != nil {
			if err := e.history.Append(ctx, event); err != nil {
				logger.WithField("rule", rule.ID).WithError(err).Error("Failed to record alert event")
			}
		}

		for _, n := range e.notifiers {
			if err := n.Notify(ctx, event); err != nil {
				logger.WithField("rule", rule.ID).WithError(err).Warn("Alert notification failed")
			}
		}

		fired = append(fired, event)
	}

	return fired, nil
}

// Evaluate reports whether a rule's condition holds for the given prices.
// previous is only consulted by percent-change kinds and may be zero when no
// prior cycle exists, in which case those kinds never fire.
func Evaluate(rule *types.AlertRule, price, previous float64) bool {
	switch rule.Kind {
	case types.AlertAbove:
		return price >= rule.Threshold
	case types.AlertBelow:
		return price <= rule.Threshold
	case types.AlertPctUp:
		if previous <= 0 {
			return false
		}
		return (price-previous)/previous*100 >= rule.Threshold
	case types.AlertPctDown:
		if previous <= 0 {
			return false
		}
		return (price-previous)/previous*100 <= -rule.Threshold
	}
	return false
}

// eventMessage prefers the user's own message, falling back to a generated
// description of what fired.
func eventMessage(rule *types.AlertRule, price float64) string {
	if rule.Message != "" {
		return rule.Message
	}
	return describeEvent(rule, price)
}

func describeEvent(rule *types.AlertRule, price float64) string {
	switch rule.Kind {
	case types.AlertAbove:
		return fmt.Sprintf("%s rose to %.4f, at or above %.4f", rule.AssetKey, price, rule.Threshold)
	case types.AlertBelow:
		return fmt.Sprintf("%s fell to %.4f, at or below %.4f", rule.AssetKey, price, rule.Threshold)
	case types.AlertPctUp:
		return fmt.Sprintf("%s gained %.2f%% or more in one cycle (now %.4f)", rule.AssetKey, rule.Threshold, price)
	case types.AlertPctDown:
		return fmt.Sprintf("%s lost %.2f%% or more in one cycle (now %.4f)", rule.AssetKey, rule.Threshold, price)
	}
	return fmt.Sprintf("%s alert fired at %.4f", rule.AssetKey, price)
}
