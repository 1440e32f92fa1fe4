// Package poller schedules periodic fetch cycles.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/ratelimit"
	"github.com/market-tracker/internal/service"
)

// BackupSaver persists an auto-backup after a cycle. Optional.
type BackupSaver interface {
	SaveAuto(ctx context.Context) error
}

// Config holds poller scheduling configuration.
type Config struct {
	Tracker *service.TrackerService
	Backup  BackupSaver
	// Interval is the cadence while the UI is hidden or nobody is watching.
	Interval time.Duration
	// TradingInterval is the faster cadence while the UI is visible.
	TradingInterval time.Duration
	// AutoBackup saves a backup bundle after each completed cycle.
	AutoBackup bool
}

// Poller drives fetch cycles on a ticker. The cadence switches between the
// slow interval and the faster trading interval based on UI visibility.
type Poller struct {
	tracker         *service.TrackerService
	backup          BackupSaver
	interval        time.Duration
	tradingInterval time.Duration
	autoBackup      bool

	mu         sync.RWMutex
	running    bool
	visible    bool
	lastCycle  time.Time
	cycleCount uint64

	stopCh   chan struct{}
	doneCh   chan struct{}
	reloadCh chan struct{}
}

// New creates a poller.
func New(cfg *Config) (*Poller, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("tracker service cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 300 * time.Second
	}
	tradingInterval := cfg.TradingInterval
	if tradingInterval <= 0 {
		tradingInterval = 30 * time.Second
	}
	if tradingInterval > interval {
		return nil, fmt.Errorf("trading interval %v must not exceed base interval %v", tradingInterval, interval)
	}

	return &Poller{
		tracker:         cfg.Tracker,
		backup:          cfg.Backup,
		interval:        interval,
		tradingInterval: tradingInterval,
		autoBackup:      cfg.AutoBackup,
		reloadCh:        make(chan struct{}, 1),
	}, nil
}

// Start launches the polling loop. An immediate first cycle runs before the
// ticker takes over.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"interval":        p.interval.String(),
		"tradingInterval": p.tradingInterval.String(),
	}).Info("Starting price poller")

	go p.loop(ctx)
	return nil
}

// Stop signals the loop and waits for it to drain.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is not running")
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("poller stop timeout")
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// SetVisible switches between the base and trading cadence. Takes effect on
// the next tick.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	changed := p.visible != visible
	p.visible = visible
	p.mu.Unlock()

	if changed {
		// Nudge the loop so the new cadence applies without waiting out a
		// full slow interval
		select {
		case p.reloadCh <- struct{}{}:
		default:
		}
	}
}

// IsRunning reports whether the loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Status describes the poller for the status endpoint.
type Status struct {
	Running    bool      `json:"running"`
	Visible    bool      `json:"visible"`
	Interval   string    `json:"interval"`
	LastCycle  time.Time `json:"lastCycle,omitempty"`
	CycleCount uint64    `json:"cycleCount"`
}

// GetStatus returns a snapshot of the poller state.
func (p *Poller) GetStatus() *Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &Status{
		Running:    p.running,
		Visible:    p.visible,
		Interval:   p.currentIntervalLocked().String(),
		LastCycle:  p.lastCycle,
		CycleCount: p.cycleCount,
	}
}

func (p *Poller) currentIntervalLocked() time.Duration {
	if p.visible {
		return p.tradingInterval
	}
	return p.interval
}

func (p *Poller) currentInterval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentIntervalLocked()
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.doneCh)

	p.runCycle(ctx)

	timer := time.NewTimer(p.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-p.reloadCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.currentInterval())
		case <-timer.C:
			p.runCycle(ctx)
			timer.Reset(p.currentInterval())
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) {
	logger := logging.FromContext(ctx)

	// Background cycles draw from the shared upstream budget pool so
	// interactive refreshes keep their reserved headroom
	ctx = ratelimit.WithPriority(ctx, ratelimit.PriorityLow)

	if _, err := p.tracker.RunCycle(ctx); err != nil {
		// Keep polling despite errors
		logger.WithError(err).Error("Fetch cycle failed")
		return
	}

	p.mu.Lock()
	p.lastCycle = time.Now().UTC()
	p.cycleCount++
	p.mu.Unlock()

	if p.autoBackup && p.backup != nil {
		if err := p.backup.SaveAuto(ctx); err != nil {
			logger.WithError(err).Warn("Auto backup failed")
		}
	}
}
