/*
accrual.go - Timer-driven coin accrual

PURPOSE:
  Credits a fixed amount (1 coin by default) every Interval while the
  browser is running.

STATES:
  STOPPED --Start--> RUNNING --Stop--> STOPPED
  Start on RUNNING and Stop on STOPPED are no-ops.

CATCH-UP:
  On Start, if the last credit is older than CatchUpAfter (or there never
  was one), exactly one coin is credited right away. Downtime is never paid
  out per missed interval: a week offline is worth the same single coin as
  a minute offline.

STOP GUARANTEE:
  Stop closes the stop channel and waits for the ticker goroutine to exit,
  so a tick that was already running finishes before Stop returns and no
  tick starts afterwards. Stop then flushes the balance.

DURABILITY:
  Ticks use Ledger.Accrue: a failed persist is logged and the in-memory
  balance still advances. The next successful write (or the flush on Stop)
  catches the store up.
*/
package coins

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// AccrualConfig controls the accrual schedule.
type AccrualConfig struct {
	Interval     time.Duration // tick period
	CatchUpAfter time.Duration // minimum age of the last credit for a catch-up coin
	Amount       int64         // coins per tick
}

// DefaultAccrualConfig returns the stock schedule: one coin every 50s, with
// a catch-up coin if the last one is at least 10s old.
func DefaultAccrualConfig() AccrualConfig {
	return AccrualConfig{
		Interval:     50 * time.Second,
		CatchUpAfter: 10 * time.Second,
		Amount:       1,
	}
}

func (c AccrualConfig) withDefaults() AccrualConfig {
	d := DefaultAccrualConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.CatchUpAfter <= 0 {
		c.CatchUpAfter = d.CatchUpAfter
	}
	if c.Amount <= 0 {
		c.Amount = d.Amount
	}
	return c
}

// AccrualProgress describes where the engine is in the current interval.
type AccrualProgress struct {
	Running   bool
	LastTick  time.Time // last tick, or the moment the timer was armed
	NextAt    time.Time
	Remaining time.Duration
	Fraction  decimal.Decimal // elapsed/interval in [0, 1], two decimals
}

// Accrual is the coin accrual engine.
type Accrual struct {
	ledger *Ledger
	cfg    AccrualConfig
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex // serializes Start/Stop; guards stop and done
	stop chan struct{}
	done chan struct{}

	running  atomic.Bool  // readable from event subscribers during Start
	lastTick atomic.Int64 // unix nanos
}

func NewAccrual(ledger *Ledger, cfg AccrualConfig, now func() time.Time, logger *slog.Logger) *Accrual {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accrual{
		ledger: ledger,
		cfg:    cfg.withDefaults(),
		now:    now,
		logger: logger,
	}
}

// Config returns the effective schedule.
func (a *Accrual) Config() AccrualConfig { return a.cfg }

// Running reports whether the timer is armed.
func (a *Accrual) Running() bool {
	return a.running.Load()
}

// Start moves the engine to RUNNING, crediting a catch-up coin if due.
// The only error is ErrNotLoaded; storage failures are logged.
func (a *Accrual) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running.Load() {
		return nil
	}

	if a.catchUpDue() {
		balance, err := a.ledger.credit(ctx, a.cfg.Amount, ReasonCatchUp, true)
		switch {
		case errors.Is(err, ErrNotLoaded):
			return err
		case err != nil:
			a.logger.Warn("catch-up coin not persisted", "balance", balance, "error", err)
		default:
			a.logger.Info("catch-up coin credited", "balance", balance)
		}
	}

	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	a.lastTick.Store(a.now().UnixNano())
	go a.run(time.NewTicker(a.cfg.Interval), a.stop, a.done)
	a.running.Store(true)

	a.logger.Info("coin accrual started", "interval", a.cfg.Interval, "amount", a.cfg.Amount)
	return nil
}

// Stop moves the engine to STOPPED, waits for any in-flight tick and
// flushes the balance to the store.
func (a *Accrual) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running.Load() {
		return nil
	}

	close(a.stop)
	<-a.done
	a.running.Store(false)
	a.logger.Info("coin accrual stopped", "balance", a.ledger.Balance())

	return a.ledger.Flush(ctx)
}

func (a *Accrual) catchUpDue() bool {
	last := a.ledger.LastUpdate()
	if last.IsZero() {
		return true
	}
	return a.now().Sub(last) >= a.cfg.CatchUpAfter
}

func (a *Accrual) run(ticker *time.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Both may be ready at once; stop wins.
			select {
			case <-stop:
				return
			default:
			}
			a.tick(context.Background())
		}
	}
}

func (a *Accrual) tick(ctx context.Context) {
	a.lastTick.Store(a.now().UnixNano())
	balance, err := a.ledger.credit(ctx, a.cfg.Amount, ReasonAccrual, true)
	if err != nil {
		a.logger.Warn("accrual tick not persisted", "balance", balance, "error", err)
		return
	}
	a.logger.Debug("coin accrued", "balance", balance)
}

// Progress reports how far the current interval has elapsed.
func (a *Accrual) Progress() AccrualProgress {
	if !a.Running() {
		return AccrualProgress{Fraction: decimal.Zero}
	}

	last := time.Unix(0, a.lastTick.Load())
	now := a.now()
	next := last.Add(a.cfg.Interval)

	elapsed := now.Sub(last)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > a.cfg.Interval {
		elapsed = a.cfg.Interval
	}
	remaining := next.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	fraction := decimal.NewFromInt(int64(elapsed)).
		Div(decimal.NewFromInt(int64(a.cfg.Interval))).
		Round(2)

	return AccrualProgress{
		Running:   true,
		LastTick:  last,
		NextAt:    next,
		Remaining: remaining,
		Fraction:  fraction,
	}
}
