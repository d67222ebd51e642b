package treasury

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"guildcore/internal/events"
	"guildcore/internal/principal"
	"guildcore/internal/storage"
	"guildcore/internal/tokenhost"
	"guildcore/native/roles"
)

// fakeGuildOwnerView satisfies GuildOwnerView with a single fixed
// (guild, owner) -> Owner-role mapping, so this package's tests need no
// native/guild import.
type fakeGuildOwnerView struct {
	guildID uint64
	owner   principal.Principal
}

func (f fakeGuildOwnerView) GetMember(guild uint64, p principal.Principal) (roles.MemberRecord, bool, error) {
	if guild == f.guildID && p.Equal(f.owner) {
		return roles.MemberRecord{Role: roles.Owner}, true, nil
	}
	return roles.MemberRecord{}, false, nil
}

func newTestEngine(t *testing.T, owner principal.Principal) (*Engine, *tokenhost.Memory, *events.CollectingEmitter) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "treasury.db")
	s, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	collector := &events.CollectingEmitter{}
	host := tokenhost.NewMemory()
	guilds := fakeGuildOwnerView{guildID: 1, owner: owner}
	return New(s, collector, guilds, host), host, collector
}

func mustPrincipal(t *testing.T) principal.Principal {
	t.Helper()
	p, err := principal.Random()
	if err != nil {
		t.Fatalf("random principal: %v", err)
	}
	return p
}

func TestInitializeTreasuryRejectsUnsafeThreshold(t *testing.T) {
	owner := mustPrincipal(t)
	e, _, _ := newTestEngine(t, owner)
	signer := mustPrincipal(t)
	if _, err := e.InitializeTreasury(1, []principal.Principal{signer}, 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDepositIncreasesBalance(t *testing.T) {
	owner := mustPrincipal(t)
	e, host, collector := newTestEngine(t, owner)
	signer2 := mustPrincipal(t)
	if _, err := e.InitializeTreasury(1, []principal.Principal{owner, signer2}, 2); err != nil {
		t.Fatalf("InitializeTreasury: %v", err)
	}
	depositor := mustPrincipal(t)
	host.Credit(depositor, big.NewInt(1000))

	if err := e.Deposit(1, depositor, big.NewInt(400), "GLD", 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	bal, err := e.GetBalance(1, "GLD")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected balance 400, got %s", bal.String())
	}
	var sawDeposit bool
	for _, ev := range collector.Events {
		if ev.EventType() == "deposit/v1" {
			sawDeposit = true
		}
	}
	if !sawDeposit {
		t.Fatalf("expected a deposit event, got %+v", collector.Events)
	}
}

func TestProposeWithdrawalRejectsInsufficientFunds(t *testing.T) {
	owner := mustPrincipal(t)
	e, _, _ := newTestEngine(t, owner)
	if _, err := e.InitializeTreasury(1, []principal.Principal{owner}, 1); err != nil {
		t.Fatalf("InitializeTreasury: %v", err)
	}
	recipient := mustPrincipal(t)
	if _, err := e.ProposeWithdrawal(1, owner, recipient, big.NewInt(50), "GLD", "rent", 10); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

// TestWithdrawalLifecycleDebitsBalance covers propose -> approve (reaching
// threshold) -> execute, ending with the treasury debited and recipient
// credited through the token host.
func TestWithdrawalLifecycleDebitsBalance(t *testing.T) {
	owner := mustPrincipal(t)
	e, host, _ := newTestEngine(t, owner)
	signer2 := mustPrincipal(t)
	if _, err := e.InitializeTreasury(1, []principal.Principal{owner, signer2}, 2); err != nil {
		t.Fatalf("InitializeTreasury: %v", err)
	}
	depositor := mustPrincipal(t)
	host.Credit(depositor, big.NewInt(1000))
	if err := e.Deposit(1, depositor, big.NewInt(1000), "GLD", 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	recipient := mustPrincipal(t)
	tx, err := e.ProposeWithdrawal(1, owner, recipient, big.NewInt(300), "GLD", "", 11)
	if err != nil {
		t.Fatalf("ProposeWithdrawal: %v", err)
	}

	if err := e.ExecuteTransaction(1, tx.Seq, owner, 12); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus before reaching the approval threshold, got %v", err)
	}

	if err := e.ApproveTransaction(1, tx.Seq, signer2, 13); err != nil {
		t.Fatalf("ApproveTransaction: %v", err)
	}
	if err := e.ExecuteTransaction(1, tx.Seq, owner, 14); err != nil {
		t.Fatalf("ExecuteTransaction: %v", err)
	}

	bal, err := e.GetBalance(1, "GLD")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected remaining balance 700, got %s", bal.String())
	}
	if got := host.Balance(recipient); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected recipient credited 300, got %s", got.String())
	}
}

// TestExecuteTransactionExpiresPastTimeout covers propose -> approve ->
// advance past the 24h withdrawal timeout -> execute, asserting the call
// surfaces ErrExpired (rather than succeeding silently) and leaves the
// balance untouched.
func TestExecuteTransactionExpiresPastTimeout(t *testing.T) {
	owner := mustPrincipal(t)
	e, host, _ := newTestEngine(t, owner)
	signer2 := mustPrincipal(t)
	if _, err := e.InitializeTreasury(1, []principal.Principal{owner, signer2}, 2); err != nil {
		t.Fatalf("InitializeTreasury: %v", err)
	}
	depositor := mustPrincipal(t)
	host.Credit(depositor, big.NewInt(1000))
	if err := e.Deposit(1, depositor, big.NewInt(1000), "GLD", 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	recipient := mustPrincipal(t)
	tx, err := e.ProposeWithdrawal(1, owner, recipient, big.NewInt(300), "GLD", "", 1000)
	if err != nil {
		t.Fatalf("ProposeWithdrawal: %v", err)
	}
	if err := e.ApproveTransaction(1, tx.Seq, signer2, 1001); err != nil {
		t.Fatalf("ApproveTransaction: %v", err)
	}

	pastExpiry := 1000 + withdrawalTimeoutSeconds + 1
	if err := e.ExecuteTransaction(1, tx.Seq, owner, pastExpiry); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	stored, err := e.getTx(1, tx.Seq)
	if err != nil {
		t.Fatalf("getTx: %v", err)
	}
	if stored.Status != ExpiredT {
		t.Fatalf("expected persisted status Expired, got %s", stored.Status)
	}
	bal, err := e.GetBalance(1, "GLD")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected balance unchanged at 1000, got %s", bal.String())
	}
	if got := host.Balance(recipient); got.Sign() != 0 {
		t.Fatalf("expected recipient uncredited, got %s", got.String())
	}
}

// TestApproveTransactionExpiresPastTimeout covers approving a withdrawal
// after its 24h window has elapsed: the call must surface ErrExpired, not a
// silent success, with the transition persisted.
func TestApproveTransactionExpiresPastTimeout(t *testing.T) {
	owner := mustPrincipal(t)
	e, host, _ := newTestEngine(t, owner)
	signer2 := mustPrincipal(t)
	if _, err := e.InitializeTreasury(1, []principal.Principal{owner, signer2}, 2); err != nil {
		t.Fatalf("InitializeTreasury: %v", err)
	}
	depositor := mustPrincipal(t)
	host.Credit(depositor, big.NewInt(1000))
	if err := e.Deposit(1, depositor, big.NewInt(1000), "GLD", 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	recipient := mustPrincipal(t)
	tx, err := e.ProposeWithdrawal(1, owner, recipient, big.NewInt(300), "GLD", "", 1000)
	if err != nil {
		t.Fatalf("ProposeWithdrawal: %v", err)
	}

	pastExpiry := 1000 + withdrawalTimeoutSeconds + 1
	if err := e.ApproveTransaction(1, tx.Seq, signer2, pastExpiry); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	stored, err := e.getTx(1, tx.Seq)
	if err != nil {
		t.Fatalf("getTx: %v", err)
	}
	if stored.Status != ExpiredT {
		t.Fatalf("expected persisted status Expired, got %s", stored.Status)
	}
}

func TestBudgetExceededBlocksExecution(t *testing.T) {
	owner := mustPrincipal(t)
	e, host, _ := newTestEngine(t, owner)
	if _, err := e.InitializeTreasury(1, []principal.Principal{owner}, 1); err != nil {
		t.Fatalf("InitializeTreasury: %v", err)
	}
	depositor := mustPrincipal(t)
	host.Credit(depositor, big.NewInt(1000))
	if err := e.Deposit(1, depositor, big.NewInt(1000), "GLD", 10); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := e.SetBudget(1, "payroll", big.NewInt(100), 3600, owner, 10); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	recipient := mustPrincipal(t)
	tx, err := e.ProposeWithdrawal(1, owner, recipient, big.NewInt(200), "GLD", "payroll", 11)
	if err != nil {
		t.Fatalf("ProposeWithdrawal: %v", err)
	}
	if err := e.ApproveTransaction(1, tx.Seq, owner, 11); err != nil {
		t.Fatalf("ApproveTransaction: %v", err)
	}
	if err := e.ExecuteTransaction(1, tx.Seq, owner, 12); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestEmergencyPauseBlocksNewProposals(t *testing.T) {
	owner := mustPrincipal(t)
	e, _, _ := newTestEngine(t, owner)
	if _, err := e.InitializeTreasury(1, []principal.Principal{owner}, 1); err != nil {
		t.Fatalf("InitializeTreasury: %v", err)
	}
	if err := e.EmergencyPause(1, owner, true); err != nil {
		t.Fatalf("EmergencyPause: %v", err)
	}
	recipient := mustPrincipal(t)
	if _, err := e.ProposeWithdrawal(1, owner, recipient, big.NewInt(1), "GLD", "", 10); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
}

func TestSetBudgetRequiresOwner(t *testing.T) {
	owner := mustPrincipal(t)
	e, _, _ := newTestEngine(t, owner)
	if _, err := e.InitializeTreasury(1, []principal.Principal{owner}, 1); err != nil {
		t.Fatalf("InitializeTreasury: %v", err)
	}
	nonOwner := mustPrincipal(t)
	if err := e.SetBudget(1, "payroll", big.NewInt(100), 3600, nonOwner, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
