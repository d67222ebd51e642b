package treasury

import (
	"math/big"

	"guildcore/internal/principal"
	"guildcore/internal/storage"
)

// GrantAllowance proposes a recurring-intent AllowanceGrant transaction,
// auto-approving it when the treasury's threshold is 1 (SPEC_FULL.md §4.6
// expansion: reuses propose_withdrawal/approve_transaction semantics
// verbatim, no new invariant).
func (e *Engine) GrantAllowance(guildID uint64, proposer, recipient principal.Principal, amount *big.Int, token, category string, now uint64) (*Transaction, error) {
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
		Seq: seq, TreasuryID: guildID, Type: AllowanceGrant, Amount: amount, Token: token,
		Initiator: proposer, Recipient: recipient, Reason: category,
		Signatures: []principal.Principal{proposer}, Status: Proposed,
		CreatedAt: now, ExpiresAt: now + withdrawalTimeoutSeconds,
	}
	if uint32(len(tx.Signatures)) >= t.Threshold {
		tx.Status = Approved
	}
	if err := e.appendTx(guildID, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ProposeMilestonePayment proposes a MilestonePayment transaction using the
// same propose/approve machinery as withdrawals; callers reuse
// ApproveTransaction to gather signatures before ExecuteMilestonePayment.
func (e *Engine) ProposeMilestonePayment(guildID uint64, proposer, recipient principal.Principal, amount *big.Int, token, reason string, now uint64) (*Transaction, error) {
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
		Seq: seq, TreasuryID: guildID, Type: MilestonePayment, Amount: amount, Token: token,
		Initiator: proposer, Recipient: recipient, Reason: reason,
		Signatures: []principal.Principal{proposer}, Status: Proposed,
		CreatedAt: now, ExpiresAt: now + withdrawalTimeoutSeconds,
	}
	if err := e.appendTx(guildID, tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ExecuteMilestonePayment executes an already-Approved MilestonePayment
// transaction through the same budget/threshold checks as
// ExecuteTransaction.
func (e *Engine) ExecuteMilestonePayment(guildID, seq uint64, executor principal.Principal, now uint64) error {
	tx, err := e.getTx(guildID, seq)
	if err != nil {
		return err
	}
	if tx.Type != MilestonePayment {
		return ErrInvalidInput
	}
	return e.ExecuteTransaction(guildID, seq, executor, now)
}
