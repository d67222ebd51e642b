// Package tokenhost defines the external fungible-token custody interface
// (spec §6 "Callee contract interface") and an in-memory reference
// implementation for tests and local demos, grounded on the teacher's
// types.Account.BalanceZNHB big.Int accounting.
package tokenhost

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"guildcore/internal/principal"
)

// ErrInsufficientBalance is returned when from lacks enough balance for a
// transfer.
var ErrInsufficientBalance = errors.New("tokenhost: insufficient balance")

// Host is the engine's sole required external token operation: an
// authenticated transfer. Implementations must treat the call as already
// authenticated by from (spec §6: "authenticated by from; failure aborts
// the current engine operation").
type Host interface {
	Transfer(ctx context.Context, from, to principal.Principal, amount *big.Int) error
}

// Memory is an in-memory reference Host implementation, balances keyed by
// principal like the teacher's account-balance ledger.
type Memory struct {
	mu       sync.Mutex
	balances map[principal.Principal]*big.Int
}

// NewMemory constructs an empty in-memory token host.
func NewMemory() *Memory {
	return &Memory{balances: make(map[principal.Principal]*big.Int)}
}

// Credit adds amount to p's balance, used to seed test/demo fixtures.
func (m *Memory) Credit(p principal.Principal, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balances[p]
	if bal == nil {
		bal = big.NewInt(0)
	}
	m.balances[p] = new(big.Int).Add(bal, amount)
}

// Balance returns p's current balance.
func (m *Memory) Balance(p principal.Principal) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balances[p]
	if bal == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

// Transfer debits from and credits to by amount, failing if from's balance
// is insufficient.
func (m *Memory) Transfer(_ context.Context, from, to principal.Principal, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fromBal := m.balances[from]
	if fromBal == nil {
		fromBal = big.NewInt(0)
	}
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	m.balances[from] = new(big.Int).Sub(fromBal, amount)
	toBal := m.balances[to]
	if toBal == nil {
		toBal = big.NewInt(0)
	}
	m.balances[to] = new(big.Int).Add(toBal, amount)
	return nil
}
