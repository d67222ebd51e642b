package multisig

import (
	"guildcore/internal/events"
	"guildcore/internal/principal"
	"guildcore/internal/storage"
)

// Propose allocates an OperationId, snapshots the account's current nonce,
// increments it (replay protection for downstream bindings), and auto-signs
// the proposer. account must be Active; proposer must be a signer.
func (e *Engine) Propose(accountID uint64, opType OperationType, description string, proposer principal.Principal, now uint64) (*Operation, error) {
	a, err := e.getAccount(accountID)
	if err != nil {
		return nil, err
	}
	if a.Status != Active {
		return nil, ErrBadStatus
	}
	if !a.isSigner(proposer) {
		return nil, ErrInvalidSigner
	}
	policy, err := e.GetOperationPolicy(accountID, opType)
	if err != nil {
		return nil, err
	}
	id, err := storage.NextID(e.store, storage.CounterOperation)
	if err != nil {
		return nil, err
	}
	nonce := a.Nonce
	a.Nonce++
	if err := e.putAccount(a); err != nil {
		return nil, err
	}
	op := Operation{
		ID:          id,
		AccountID:   accountID,
		OpType:      opType,
		Description: description,
		Proposer:    proposer,
		Signatures:  []principal.Principal{proposer},
		Nonce:       nonce,
		CreatedAt:   now,
		ExpiresAt:   now + policy.TimeoutSeconds,
		Status:      Pending,
	}
	if err := e.putOperation(op); err != nil {
		return nil, err
	}
	if err := e.indexAccountOperation(accountID, id); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Record{
		Topic:   "ms_operation_proposed",
		Version: "v1",
		Attributes: map[string]string{
			"operation_id": events.FormatUint64(id),
			"account_id":   events.FormatUint64(accountID),
			"op_type":      string(opType),
		},
	})
	return &op, nil
}

// expireIfDue transitions op to Expired if Pending and now > expires_at,
// persisting the transition before returning. Returns whether it expired.
func (e *Engine) expireIfDue(op *Operation, now uint64) (bool, error) {
	if op.Status == Pending && now > op.ExpiresAt {
		op.Status = ExpiredOp
		if err := e.putOperation(*op); err != nil {
			return false, err
		}
		e.emitter.Emit(events.Record{
			Topic:   "ms_operation_expired",
			Version: "v1",
			Attributes: map[string]string{
				"operation_id": events.FormatUint64(op.ID),
			},
		})
		return true, nil
	}
	return false, nil
}

// Sign appends signer's signature to a Pending, unexpired operation.
func (e *Engine) Sign(opID uint64, signer principal.Principal, now uint64) (int, error) {
	op, err := e.getOperation(opID)
	if err != nil {
		return 0, err
	}
	if op.Status != Pending {
		return 0, ErrBadStatus
	}
	if expired, err := e.expireIfDue(&op, now); err != nil {
		return 0, err
	} else if expired {
		return 0, ErrExpired
	}
	a, err := e.getAccount(op.AccountID)
	if err != nil {
		return 0, err
	}
	if !a.isSigner(signer) {
		return 0, ErrInvalidSigner
	}
	if op.hasSigned(signer) {
		return len(op.Signatures), ErrInvalidInput
	}
	op.Signatures = append(op.Signatures, signer)
	if err := e.putOperation(op); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.Record{
		Topic:   "ms_operation_signed",
		Version: "v1",
		Attributes: map[string]string{
			"operation_id": events.FormatUint64(opID),
			"signer":       signer.String(),
		},
	})
	return len(op.Signatures), nil
}

func requiredSignatures(policy Policy, account Account) uint32 {
	if policy.RequireAll {
		return uint32(len(account.Signers))
	}
	if policy.MinSignatures > 0 {
		return policy.MinSignatures
	}
	return account.Threshold
}

// Execute transitions a Pending, unexpired, sufficiently-signed operation to
// Executed.
func (e *Engine) Execute(opID uint64, executor principal.Principal, now uint64) error {
	op, err := e.getOperation(opID)
	if err != nil {
		return err
	}
	if op.Status != Pending {
		return ErrBadStatus
	}
	if expired, err := e.expireIfDue(&op, now); err != nil {
		return err
	} else if expired {
		return ErrExpired
	}
	a, err := e.getAccount(op.AccountID)
	if err != nil {
		return err
	}
	policy, err := e.GetOperationPolicy(op.AccountID, op.OpType)
	if err != nil {
		return err
	}
	required := requiredSignatures(policy, a)
	if uint32(len(op.Signatures)) < required {
		return ErrInsufficientSignatures
	}
	if policy.RequireOwner {
		owned := false
		for _, s := range op.Signatures {
			if s.Equal(a.Owner) {
				owned = true
				break
			}
		}
		if !owned {
			return ErrMissingOwnerSignature
		}
	}
	op.Status = Executed
	if err := e.putOperation(op); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "ms_operation_executed",
		Version: "v1",
		Attributes: map[string]string{
			"operation_id": events.FormatUint64(opID),
			"executor":     executor.String(),
		},
	})
	return nil
}

// Cancel transitions a Pending operation to Cancelled. caller must be the
// proposer or the account owner.
func (e *Engine) Cancel(opID uint64, caller principal.Principal) error {
	op, err := e.getOperation(opID)
	if err != nil {
		return err
	}
	if op.Status != Pending {
		return ErrBadStatus
	}
	a, err := e.getAccount(op.AccountID)
	if err != nil {
		return err
	}
	if !caller.Equal(op.Proposer) && !caller.Equal(a.Owner) {
		return ErrUnauthorized
	}
	op.Status = Cancelled
	return e.putOperation(op)
}

// CheckAndExpire forces the lazy expiry check for op, returning whether a
// transition occurred.
func (e *Engine) CheckAndExpire(opID uint64, now uint64) (bool, error) {
	op, err := e.getOperation(opID)
	if err != nil {
		return false, err
	}
	return e.expireIfDue(&op, now)
}

// EmergencyExpire force-expires a Pending operation. owner-gated.
func (e *Engine) EmergencyExpire(opID uint64, owner principal.Principal) error {
	op, err := e.getOperation(opID)
	if err != nil {
		return err
	}
	a, err := e.getAccount(op.AccountID)
	if err != nil {
		return err
	}
	if !a.Owner.Equal(owner) {
		return ErrUnauthorized
	}
	if op.Status != Pending {
		return ErrBadStatus
	}
	op.Status = ExpiredOp
	if err := e.putOperation(op); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "ms_operation_expired",
		Version: "v1",
		Attributes: map[string]string{
			"operation_id": events.FormatUint64(opID),
		},
	})
	return nil
}

// EmergencyExtendTimeout rebases a Pending operation's expiry from now,
// clamping the extension to [24h, 48h]. owner-gated.
func (e *Engine) EmergencyExtendTimeout(opID uint64, newTimeoutSeconds uint64, owner principal.Principal, now uint64) error {
	op, err := e.getOperation(opID)
	if err != nil {
		return err
	}
	a, err := e.getAccount(op.AccountID)
	if err != nil {
		return err
	}
	if !a.Owner.Equal(owner) {
		return ErrUnauthorized
	}
	if op.Status != Pending {
		return ErrBadStatus
	}
	op.ExpiresAt = now + clampTimeout(newTimeoutSeconds)
	return e.putOperation(op)
}

// SweepExpired scans all operations of account, transitioning any Pending
// op past its expiry to Expired. Returns the number transitioned.
func (e *Engine) SweepExpired(accountID uint64, now uint64) (int, error) {
	list, _, err := storage.Get[accountIndexList](e.store, storage.AccountOperationListKey(accountID))
	if err != nil {
		return 0, err
	}
	count := 0
	for _, id := range list.IDs {
		op, err := e.getOperation(id)
		if err != nil {
			return count, err
		}
		expired, err := e.expireIfDue(&op, now)
		if err != nil {
			return count, err
		}
		if expired {
			count++
		}
	}
	return count, nil
}

// RequireExecutedOperation fails unless op.status=Executed and
// op.op_type=expectedType. Used by the governance engine to gate privileged
// proposal execution.
func (e *Engine) RequireExecutedOperation(opID uint64, expectedType OperationType) error {
	op, err := e.getOperation(opID)
	if err != nil {
		return err
	}
	if op.Status != Executed {
		return ErrBadStatus
	}
	if op.OpType != expectedType {
		return ErrTypeMismatch
	}
	return nil
}

// ListAccountsByOwner returns every account currently owned by owner.
func (e *Engine) ListAccountsByOwner(owner principal.Principal) ([]Account, error) {
	list, _, err := storage.Get[accountIndexList](e.store, storage.OwnerAccountListKey(owner))
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(list.IDs))
	for _, id := range list.IDs {
		a, err := e.getAccount(id)
		if err != nil {
			return nil, err
		}
		if a.Owner.Equal(owner) {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetPendingOperations returns every Pending operation for account.
func (e *Engine) GetPendingOperations(accountID uint64) ([]Operation, error) {
	list, _, err := storage.Get[accountIndexList](e.store, storage.AccountOperationListKey(accountID))
	if err != nil {
		return nil, err
	}
	out := make([]Operation, 0, len(list.IDs))
	for _, id := range list.IDs {
		op, err := e.getOperation(id)
		if err != nil {
			return nil, err
		}
		if op.Status == Pending {
			out = append(out, op)
		}
	}
	return out, nil
}

// GetAccount exposes the stored account to callers needing read access.
func (e *Engine) GetAccount(accountID uint64) (Account, error) {
	return e.getAccount(accountID)
}

// GetOperation exposes the stored operation to callers needing read access.
func (e *Engine) GetOperation(opID uint64) (Operation, error) {
	return e.getOperation(opID)
}
