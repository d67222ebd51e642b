package tokenhost

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"guildcore/internal/principal"
)

func mustPrincipal(t *testing.T) principal.Principal {
	t.Helper()
	p, err := principal.Random()
	if err != nil {
		t.Fatalf("Random: %v", err)
	}
	return p
}

func TestCreditIncreasesBalance(t *testing.T) {
	m := NewMemory()
	p := mustPrincipal(t)
	m.Credit(p, big.NewInt(100))
	m.Credit(p, big.NewInt(50))
	if got := m.Balance(p); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected balance 150, got %s", got.String())
	}
}

func TestBalanceOfUnknownPrincipalIsZero(t *testing.T) {
	m := NewMemory()
	p := mustPrincipal(t)
	if got := m.Balance(p); got.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", got.String())
	}
}

func TestTransferMovesFunds(t *testing.T) {
	m := NewMemory()
	from := mustPrincipal(t)
	to := mustPrincipal(t)
	m.Credit(from, big.NewInt(100))

	if err := m.Transfer(context.Background(), from, to, big.NewInt(40)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := m.Balance(from); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected sender balance 60, got %s", got.String())
	}
	if got := m.Balance(to); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected recipient balance 40, got %s", got.String())
	}
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	m := NewMemory()
	from := mustPrincipal(t)
	to := mustPrincipal(t)
	m.Credit(from, big.NewInt(10))

	err := m.Transfer(context.Background(), from, to, big.NewInt(20))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := m.Balance(from); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected a failed transfer to leave the balance untouched, got %s", got.String())
	}
}

func TestBalanceReturnsDefensiveCopy(t *testing.T) {
	m := NewMemory()
	p := mustPrincipal(t)
	m.Credit(p, big.NewInt(10))

	got := m.Balance(p)
	got.Add(got, big.NewInt(1000))

	if fresh := m.Balance(p); fresh.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("mutating the returned balance affected internal state, got %s", fresh.String())
	}
}
