// Package treasury implements the balance ledger and gated withdrawal
// lifecycle (spec §4.6): deposits, proposed/approved/executed withdrawals,
// budgets, and emergency pause. Generalized from the teacher's
// native/governance TreasuryDirectivePayload debit-source/credit-recipient
// pattern into a standing balance ledger with its own propose/approve/
// execute pipeline, gated by the treasury's own signer set and threshold.
// The pipeline does not consult the multisig engine: no executed multisig
// operation is required before a withdrawal executes.
package treasury

import (
	"context"
	"errors"
	"math/big"

	"guildcore/internal/events"
	"guildcore/internal/principal"
	"guildcore/internal/storage"
	"guildcore/internal/tokenhost"
	"guildcore/native/roles"
)

var (
	ErrNotFound          = errors.New("treasury: not found")
	ErrUnauthorized      = errors.New("treasury: unauthorized")
	ErrPaused            = errors.New("treasury: paused")
	ErrInvalidInput      = errors.New("treasury: invalid input")
	ErrInsufficientFunds = errors.New("treasury: insufficient balance")
	ErrBadStatus         = errors.New("treasury: bad status for this operation")
	ErrExpired           = errors.New("treasury: transaction expired")
	ErrBudgetExceeded    = errors.New("treasury: budget exceeded")
)

const withdrawalTimeoutSeconds = 24 * 3600

// TxType enumerates the closed set of ledger transaction kinds.
type TxType string

const (
	Deposit          TxType = "Deposit"
	Withdrawal       TxType = "Withdrawal"
	MilestonePayment TxType = "MilestonePayment"
	AllowanceGrant   TxType = "AllowanceGrant"
)

// TxStatus is the transaction lifecycle state.
type TxStatus string

const (
	Proposed TxStatus = "Proposed"
	Approved TxStatus = "Approved"
	Executed TxStatus = "Executed"
	Rejected TxStatus = "Rejected"
	ExpiredT TxStatus = "Expired"
)

func thresholdSafe(threshold uint32, signerCount int) bool {
	if signerCount == 0 {
		return false
	}
	min := uint32(signerCount/2) + 1
	return threshold >= min && threshold <= uint32(signerCount)
}

// Treasury is the stored value backing storage.TreasuryKey.
type Treasury struct {
	GuildID   uint64                 `json:"guild_id"`
	Signers   []principal.Principal  `json:"signers"`
	Threshold uint32                 `json:"threshold"`
	Paused    bool                   `json:"paused"`
	Balances  map[string]*big.Int    `json:"balances"`
}

func (t Treasury) isSigner(p principal.Principal) bool {
	for _, s := range t.Signers {
		if s.Equal(p) {
			return true
		}
	}
	return false
}

func (t Treasury) balance(token string) *big.Int {
	if b, ok := t.Balances[token]; ok && b != nil {
		return b
	}
	return big.NewInt(0)
}

// Transaction is the stored value backing storage.TreasuryTxKey.
type Transaction struct {
	Seq       uint64                `json:"seq"`
	TreasuryID uint64               `json:"treasury_id"`
	Type      TxType                `json:"type"`
	Amount    *big.Int              `json:"amount"`
	Token     string                `json:"token"`
	Initiator principal.Principal   `json:"initiator"`
	Recipient principal.Principal   `json:"recipient,omitempty"`
	Reason    string                `json:"reason"`
	Signatures []principal.Principal `json:"signatures"`
	Status    TxStatus              `json:"status"`
	CreatedAt uint64                `json:"created_at"`
	ExpiresAt uint64                `json:"expires_at,omitempty"`
}

func (tx Transaction) hasSigned(p principal.Principal) bool {
	for _, s := range tx.Signatures {
		if s.Equal(p) {
			return true
		}
	}
	return false
}

// Budget is the stored value backing storage.BudgetKey.
type Budget struct {
	Limit         *big.Int `json:"limit"`
	WindowSeconds uint64   `json:"window_seconds"`
	Spent         *big.Int `json:"spent"`
	WindowStart   uint64   `json:"window_start"`
}

// GuildOwnerView is the minimal guild lookup treasury needs for owner-gated
// operations (set_budget), keeping treasury free of a native/guild import.
type GuildOwnerView interface {
	GetMember(guild uint64, p principal.Principal) (roles.MemberRecord, bool, error)
}

// Engine implements the treasury operations.
type Engine struct {
	store   *storage.Store
	emitter events.Emitter
	guilds  GuildOwnerView
	host    tokenhost.Host
}

// New constructs a treasury Engine. host is the external token custody
// collaborator; guilds supplies owner lookups for set_budget.
func New(s *storage.Store, emitter events.Emitter, guilds GuildOwnerView, host tokenhost.Host) *Engine {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{store: s, emitter: emitter, guilds: guilds, host: host}
}

func (e *Engine) get(guildID uint64) (Treasury, error) {
	t, ok, err := storage.Get[Treasury](e.store, storage.TreasuryKey(guildID))
	if err != nil {
		return Treasury{}, err
	}
	if !ok {
		return Treasury{}, ErrNotFound
	}
	return t, nil
}

func (e *Engine) put(t Treasury) error {
	return storage.Put(e.store, storage.TreasuryKey(t.GuildID), t)
}

// InitializeTreasury creates a Treasury tied to guild (1:1: TreasuryId ==
// GuildId, see DESIGN.md). threshold must satisfy THRESHOLD-SAFE.
func (e *Engine) InitializeTreasury(guildID uint64, signers []principal.Principal, threshold uint32) (*Treasury, error) {
	if !thresholdSafe(threshold, len(signers)) {
		return nil, ErrInvalidInput
	}
	t := Treasury{
		GuildID:   guildID,
		Signers:   append([]principal.Principal(nil), signers...),
		Threshold: threshold,
		Balances:  map[string]*big.Int{},
	}
	if err := e.put(t); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Record{
		Topic:      "treasury_initialized",
		Version:    "v1",
		Attributes: map[string]string{"guild_id": events.FormatUint64(guildID)},
	})
	return &t, nil
}

func (e *Engine) appendTx(treasuryID uint64, tx Transaction) error {
	if err := storage.Put(e.store, storage.TreasuryTxKey(treasuryID, tx.Seq), tx); err != nil {
		return err
	}
	list, _, err := storage.Get[txIDList](e.store, storage.TreasuryTxListKey(treasuryID))
	if err != nil {
		return err
	}
	list.Seqs = append(list.Seqs, tx.Seq)
	return storage.Put(e.store, storage.TreasuryTxListKey(treasuryID), list)
}

type txIDList struct {
	Seqs []uint64 `json:"seqs"`
}

// Deposit authenticates a transfer from -> treasury, appends an Executed
// Deposit transaction, and increments balance[token].
func (e *Engine) Deposit(guildID uint64, from principal.Principal, amount *big.Int, token string, now uint64) error {
	t, err := e.get(guildID)
	if err != nil {
		return err
	}
	if t.Paused {
		return ErrPaused
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidInput
	}
	contract, err := principal.New(make([]byte, 20))
	if err != nil {
		return err
	}
	if err := e.host.Transfer(context.Background(), from, contract, amount); err != nil {
		return err
	}
	seq, err := storage.NextID(e.store, storage.TreasuryTxCounter(guildID))
	if err != nil {
		return err
	}
	tx := Transaction{
		Seq: seq, TreasuryID: guildID, Type: Deposit, Amount: amount, Token: token,
		Initiator: from, Status: Executed, CreatedAt: now,
	}
	if err := e.appendTx(guildID, tx); err != nil {
		return err
	}
	if t.Balances == nil {
		t.Balances = map[string]*big.Int{}
	}
	t.Balances[token] = new(big.Int).Add(t.balance(token), amount)
	if err := e.put(t); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "deposit",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(guildID),
			"amount":   amount.String(),
			"token":    token,
		},
	})
	return nil
}

// ProposeWithdrawal creates a Proposed withdrawal transaction, auto-signed
// by proposer, expiring in 24h.
func (e *Engine) ProposeWithdrawal(guildID uint64, proposer, recipient principal.Principal, amount *big.Int, token, reason string, now uint64) (*Transaction, error) {
	t, err := e.get(guildID)
	if err != nil {
		return nil, err
	}
	if t.Paused {
		return nil, ErrPaused
	}
	if !t.isSigner(proposer) {
		return nil, ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(t.balance(token)) > 0 {
		return nil, ErrInsufficientFunds
	}
	seq, err := storage.NextID(e.store, storage.TreasuryTxCounter(guildID))
	if err != nil {
		return nil, err
	}
	tx := Transaction{
		Seq: seq, TreasuryID: guildID, Type: Withdrawal, Amount: amount, Token: token,
		Initiator: proposer, Recipient: recipient, Reason: reason,
		Signatures: []principal.Principal{proposer}, Status: Proposed,
		CreatedAt: now, ExpiresAt: now + withdrawalTimeoutSeconds,
	}
	if err := e.appendTx(guildID, tx); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Record{
		Topic:   "withdrawal_proposed",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(guildID),
			"seq":      events.FormatUint64(seq),
		},
	})
	return &tx, nil
}

func (e *Engine) getTx(guildID, seq uint64) (Transaction, error) {
	tx, ok, err := storage.Get[Transaction](e.store, storage.TreasuryTxKey(guildID, seq))
	if err != nil {
		return Transaction{}, err
	}
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (e *Engine) putTx(tx Transaction) error {
	return storage.Put(e.store, storage.TreasuryTxKey(tx.TreasuryID, tx.Seq), tx)
}

// ApproveTransaction adds signer's signature to a Proposed, unexpired
// transaction, advancing to Approved once signatures reach the treasury's
// threshold.
func (e *Engine) ApproveTransaction(guildID, seq uint64, signer principal.Principal, now uint64) error {
	t, err := e.get(guildID)
	if err != nil {
		return err
	}
	if !t.isSigner(signer) {
		return ErrUnauthorized
	}
	tx, err := e.getTx(guildID, seq)
	if err != nil {
		return err
	}
	if tx.Status != Proposed {
		return ErrBadStatus
	}
	if tx.ExpiresAt != 0 && now > tx.ExpiresAt {
		tx.Status = ExpiredT
		if err := e.putTx(tx); err != nil {
			return err
		}
		return ErrExpired
	}
	if !tx.hasSigned(signer) {
		tx.Signatures = append(tx.Signatures, signer)
	}
	if uint32(len(tx.Signatures)) >= t.Threshold {
		tx.Status = Approved
	}
	if err := e.putTx(tx); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "withdrawal_approved",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(guildID),
			"seq":      events.FormatUint64(seq),
		},
	})
	return nil
}

// ExecuteTransaction executes an Approved, unexpired withdrawal: checks and
// rolls the category budget window, transfers treasury -> recipient, and
// debits the balance.
func (e *Engine) ExecuteTransaction(guildID, seq uint64, executor principal.Principal, now uint64) error {
	t, err := e.get(guildID)
	if err != nil {
		return err
	}
	if t.Paused {
		return ErrPaused
	}
	if !t.isSigner(executor) {
		return ErrUnauthorized
	}
	tx, err := e.getTx(guildID, seq)
	if err != nil {
		return err
	}
	if tx.Status != Approved {
		return ErrBadStatus
	}
	if tx.ExpiresAt != 0 && now > tx.ExpiresAt {
		tx.Status = ExpiredT
		if err := e.putTx(tx); err != nil {
			return err
		}
		return ErrExpired
	}
	if err := e.checkAndRollBudget(guildID, tx.Reason, tx.Amount, now); err != nil {
		return err
	}
	contract, err := principal.New(make([]byte, 20))
	if err != nil {
		return err
	}
	if err := e.host.Transfer(context.Background(), contract, tx.Recipient, tx.Amount); err != nil {
		return err
	}
	t.Balances[tx.Token] = new(big.Int).Sub(t.balance(tx.Token), tx.Amount)
	if err := e.put(t); err != nil {
		return err
	}
	tx.Status = Executed
	if err := e.putTx(tx); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "withdrawal_executed",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(guildID),
			"seq":      events.FormatUint64(seq),
		},
	})
	return nil
}

func (e *Engine) checkAndRollBudget(guildID uint64, category string, amount *big.Int, now uint64) error {
	if category == "" {
		return nil
	}
	b, ok, err := storage.Get[Budget](e.store, storage.BudgetKey(guildID, category))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if now >= b.WindowStart+b.WindowSeconds {
		b.Spent = big.NewInt(0)
		b.WindowStart = now
	}
	spent := b.Spent
	if spent == nil {
		spent = big.NewInt(0)
	}
	if new(big.Int).Add(spent, amount).Cmp(b.Limit) > 0 {
		return ErrBudgetExceeded
	}
	b.Spent = new(big.Int).Add(spent, amount)
	return storage.Put(e.store, storage.BudgetKey(guildID, category), b)
}

// SetBudget sets a per-category limit/window. caller must be the guild's
// Owner.
func (e *Engine) SetBudget(guildID uint64, category string, limit *big.Int, windowSeconds uint64, caller principal.Principal, now uint64) error {
	rec, ok, err := e.guilds.GetMember(guildID, caller)
	if err != nil {
		return err
	}
	if !ok || rec.Role != roles.Owner {
		return ErrUnauthorized
	}
	if limit == nil || limit.Sign() < 0 || windowSeconds == 0 {
		return ErrInvalidInput
	}
	b := Budget{Limit: limit, WindowSeconds: windowSeconds, Spent: big.NewInt(0), WindowStart: now}
	if err := storage.Put(e.store, storage.BudgetKey(guildID, category), b); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "budget_set",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(guildID),
			"category": category,
			"limit":    limit.String(),
		},
	})
	return nil
}

// EmergencyPause toggles the paused flag, blocking new proposals and
// executions. caller must be a treasury signer.
func (e *Engine) EmergencyPause(guildID uint64, caller principal.Principal, flag bool) error {
	t, err := e.get(guildID)
	if err != nil {
		return err
	}
	if !t.isSigner(caller) {
		return ErrUnauthorized
	}
	t.Paused = flag
	if err := e.put(t); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "emergency_pause_toggled",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(guildID),
			"paused":   events.FormatBool(flag),
		},
	})
	return nil
}

// GetBalance returns the current balance for token.
func (e *Engine) GetBalance(guildID uint64, token string) (*big.Int, error) {
	t, err := e.get(guildID)
	if err != nil {
		return nil, err
	}
	return t.balance(token), nil
}

// GetTransactionHistory returns the treasury's full append-only ledger,
// newest-last, per spec §3.
func (e *Engine) GetTransactionHistory(guildID uint64) ([]Transaction, error) {
	list, _, err := storage.Get[txIDList](e.store, storage.TreasuryTxListKey(guildID))
	if err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(list.Seqs))
	for _, seq := range list.Seqs {
		tx, err := e.getTx(guildID, seq)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
