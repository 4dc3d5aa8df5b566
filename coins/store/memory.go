// Package store provides in-process coins.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/coin-rewards/coins"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Op names a Store method for fault injection.
type Op string

const (
	OpLoadCoins    Op = "load_coins"
	OpSaveCoins    Op = "save_coins"
	OpAppendCoupon Op = "append_coupon"
	OpListCoupons  Op = "list_coupons"
	OpClearCoupons Op = "clear_coupons"
)

type Memory struct {
	mu      sync.RWMutex
	state   coins.CoinState
	found   bool
	coupons []coins.Record // chronological
	faults  map[Op]error
	saves   int
}

func NewMemory() *Memory {
	return &Memory{faults: make(map[Op]error)}
}

// NewMemoryWithState returns a store that already holds a balance row, as
// if a previous process had written it.
func NewMemoryWithState(state coins.CoinState) *Memory {
	m := NewMemory()
	m.state = state
	m.found = true
	return m
}

// FailOn makes every subsequent call to op return err until cleared with
// FailOn(op, nil).
func (m *Memory) FailOn(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

func (m *Memory) LoadCoins(_ context.Context) (coins.CoinState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.faults[OpLoadCoins]; err != nil {
		return coins.CoinState{}, false, err
	}
	return m.state, m.found, nil
}

func (m *Memory) SaveCoins(_ context.Context, state coins.CoinState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faults[OpSaveCoins]; err != nil {
		return err
	}
	m.state = state
	m.found = true
	m.saves++
	return nil
}

func (m *Memory) AppendCoupon(_ context.Context, rec coins.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faults[OpAppendCoupon]; err != nil {
		return err
	}
	m.coupons = append(m.coupons, rec)
	return nil
}

// ListCoupons returns the log newest first.
func (m *Memory) ListCoupons(_ context.Context) ([]coins.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.faults[OpListCoupons]; err != nil {
		return nil, err
	}
	result := make([]coins.Record, len(m.coupons))
	for i, rec := range m.coupons {
		result[len(m.coupons)-1-i] = rec
	}
	return result, nil
}

func (m *Memory) ClearCoupons(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.faults[OpClearCoupons]; err != nil {
		return err
	}
	m.coupons = nil
	return nil
}

// Persisted returns the balance row as last written.
func (m *Memory) Persisted() (coins.CoinState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.found
}

// Saves counts successful SaveCoins calls.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

var _ coins.Store = (*Memory)(nil)
