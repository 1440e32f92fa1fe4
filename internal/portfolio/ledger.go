// Package portfolio implements the paper-trading ledger.
package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/storage"
	"github.com/market-tracker/internal/types"
)

// DefaultStartingCash is the paper cash balance of a fresh portfolio.
const DefaultStartingCash = 50000

// DefaultFeeRate is the per-trade fee applied to the gross amount.
const DefaultFeeRate = 0.001

// dust below this quantity is treated as a fully closed position
const dustQuantity = 1e-9

// OrderLog records executed trades and answers cost-basis queries.
type OrderLog interface {
	Append(ctx context.Context, order *types.Order) error
	BuyTotals(ctx context.Context, assetKey string) (quantity, cost float64, err error)
}

// State is the persisted portfolio: paper cash plus per-asset holdings.
type State struct {
	Cash     float64            `json:"cash"`
	Holdings map[string]float64 `json:"holdings"`
}

// Position is a valued holding.
type Position struct {
	AssetKey string  `json:"assetKey"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
}

// Valuation is the portfolio marked against a price snapshot.
type Valuation struct {
	Cash          float64    `json:"cash"`
	HoldingsValue float64    `json:"holdingsValue"`
	TotalValue    float64    `json:"totalValue"`
	Positions     []Position `json:"positions"`
}

// Ledger executes paper trades against the persisted portfolio state.
// Buys debit cash by gross + fee; sells credit cash by gross - fee. All
// mutations are serialized through a single mutex.
type Ledger struct {
	mu           sync.Mutex
	kv           *storage.KVStore
	orders       OrderLog
	startingCash float64
	feeRate      float64
}

// NewLedger creates a ledger. Zero startingCash or feeRate select the
// defaults.
func NewLedger(kv *storage.KVStore, orders OrderLog, startingCash, feeRate float64) *Ledger {
	if startingCash <= 0 {
		startingCash = DefaultStartingCash
	}
	if feeRate <= 0 {
		feeRate = DefaultFeeRate
	}
	return &Ledger{kv: kv, orders: orders, startingCash: startingCash, feeRate: feeRate}
}

// FeeRate returns the configured per-trade fee rate.
func (l *Ledger) FeeRate() float64 {
	return l.feeRate
}

// State returns the current portfolio state, seeding a fresh one when none
// is persisted.
func (l *Ledger) State(ctx context.Context) (*State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadState(ctx)
}

func (l *Ledger) loadState(ctx context.Context) (*State, error) {
	state := &State{}
	found, err := l.kv.GetJSON(ctx, storage.KeyPortfolioState, state)
	if err != nil {
		return nil, err
	}
	if !found {
		state = &State{Cash: l.startingCash, Holdings: map[string]float64{}}
	}
	if state.Holdings == nil {
		state.Holdings = map[string]float64{}
	}
	return state, nil
}

func (l *Ledger) saveState(ctx context.Context, state *State) error {
	return l.kv.PutJSON(ctx, storage.KeyPortfolioState, state, 0)
}

// Buy purchases quantity of an asset at price. The cash debit is
// quantity*price plus the fee.
func (l *Ledger) Buy(ctx context.Context, assetKey string, quantity, price float64) (*types.Order, error) {
	if err := validateTrade(quantity, price); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadState(ctx)
	if err != nil {
		return nil, err
	}

	gross := quantity * price
	fee := gross * l.feeRate
	total := gross + fee

	if state.Cash < total {
		return nil, apperrors.NewInsufficientFundsError(total, state.Cash)
	}

	state.Cash -= total
	state.Holdings[assetKey] += quantity

	order := &types.Order{
		ID:         uuid.New().String(),
		AssetKey:   assetKey,
		Side:       types.SideBuy,
		Quantity:   quantity,
		Price:      price,
		Fee:        fee,
		CashDelta:  -total,
		ExecutedAt: time.Now().UTC(),
	}

	if err := l.saveState(ctx, state); err != nil {
		return nil, err
	}
	if l.orders != nil {
		if err := l.orders.Append(ctx, order); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// Sell disposes quantity of an asset at price. The cash credit is
// quantity*price minus the fee.
func (l *Ledger) Sell(ctx context.Context, assetKey string, quantity, price float64) (*types.Order, error) {
	if err := validateTrade(quantity, price); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadState(ctx)
	if err != nil {
		return nil, err
	}

	held := state.Holdings[assetKey]
	if held < quantity {
		return nil, apperrors.NewInsufficientHoldingsError(assetKey, quantity, held)
	}

	gross := quantity * price
	fee := gross * l.feeRate
	net := gross - fee

	state.Cash += net
	state.Holdings[assetKey] = held - quantity
	if state.Holdings[assetKey] < dustQuantity {
		delete(state.Holdings, assetKey)
	}

	order := &types.Order{
		ID:         uuid.New().String(),
		AssetKey:   assetKey,
		Side:       types.SideSell,
		Quantity:   quantity,
		Price:      price,
		Fee:        fee,
		CashDelta:  net,
		ExecutedAt: time.Now().UTC(),
	}

	if err := l.saveState(ctx, state); err != nil {
		return nil, err
	}
	if l.orders != nil {
		if err := l.orders.Append(ctx, order); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// AverageCost returns the average per-unit buy cost for an asset, fees
// included. Sells do not affect the basis. Returns false when the asset has
// never been bought.
func (l *Ledger) AverageCost(ctx context.Context, assetKey string) (float64, bool, error) {
	if l.orders == nil {
		return 0, false, nil
	}
	quantity, cost, err := l.orders.BuyTotals(ctx, assetKey)
	if err != nil {
		return 0, false, err
	}
	if quantity <= 0 {
		return 0, false, nil
	}
	return cost / quantity, true, nil
}

// Value marks the portfolio against a price snapshot. Holdings without a
// snapshot price are valued at zero.
func (l *Ledger) Value(ctx context.Context, snap types.PriceSnapshot) (*Valuation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadState(ctx)
	if err != nil {
		return nil, err
	}

	v := &Valuation{Cash: state.Cash}
	for key, quantity := range state.Holdings {
		price := snap[key]
		position := Position{
			AssetKey: key,
			Quantity: quantity,
			Price:    price,
			Value:    quantity * price,
		}
		v.HoldingsValue += position.Value
		v.Positions = append(v.Positions, position)
	}
	v.TotalValue = v.Cash + v.HoldingsValue

	return v, nil
}

// Reset restores the starting cash balance and clears all holdings.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveState(ctx, &State{Cash: l.startingCash, Holdings: map[string]float64{}})
}

// Restore overwrites the persisted state. Used by backup import.
func (l *Ledger) Restore(ctx context.Context, state *State) error {
	if state == nil {
		return apperrors.NewInvalidTradeError("portfolio state must not be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if state.Holdings == nil {
		state.Holdings = map[string]float64{}
	}
	return l.saveState(ctx, state)
}

func validateTrade(quantity, price float64) error {
	if quantity <= 0 {
		return apperrors.NewInvalidTradeError("quantity must be positive")
	}
	if price <= 0 {
		return apperrors.NewInvalidTradeError("price must be positive")
	}
	return nil
}
