// Package multisig implements the account/operation lifecycle (spec §4.5):
// signer sets with a numeric threshold, per-operation-type policy, and a
// propose/sign/execute/expire state machine. Generalized from the teacher's
// native/escrow ArbitratorSet/FrozenArb committee-threshold pattern
// (signers, threshold, scheme) into a standing, reusable account.
package multisig

import (
	"errors"

	"guildcore/internal/events"
	"guildcore/internal/principal"
	"guildcore/internal/storage"
)

var (
	ErrAccountNotFound          = errors.New("multisig: account not found")
	ErrUnauthorized             = errors.New("multisig: unauthorized")
	ErrOperationNotFound        = errors.New("multisig: operation not found")
	ErrBadStatus                = errors.New("multisig: bad status for this operation")
	ErrExpired                  = errors.New("multisig: operation expired")
	ErrInvalidSigner            = errors.New("multisig: invalid signer")
	ErrInsufficientSignatures   = errors.New("multisig: insufficient signatures")
	ErrMissingOwnerSignature    = errors.New("multisig: missing required owner signature")
	ErrTypeMismatch             = errors.New("multisig: operation type mismatch")
	ErrInvalidInput             = errors.New("multisig: invalid input")
)

// OperationType enumerates the closed set of multisig-gated action kinds.
type OperationType string

const (
	TreasuryWithdrawal OperationType = "TreasuryWithdrawal"
	GovernanceUpdate   OperationType = "GovernanceUpdate"
	GuildConfigChange  OperationType = "GuildConfigChange"
	EmergencyAction    OperationType = "EmergencyAction"
)

// AccountStatus is the account's Active/Frozen toggle.
type AccountStatus string

const (
	Active AccountStatus = "Active"
	Frozen AccountStatus = "Frozen"
)

// OperationStatus is the operation lifecycle state.
type OperationStatus string

const (
	Pending   OperationStatus = "Pending"
	Executed  OperationStatus = "Executed"
	ExpiredOp OperationStatus = "Expired"
	Cancelled OperationStatus = "Cancelled"
)

const (
	minTimeoutSeconds     = 24 * 3600
	maxTimeoutSeconds     = 48 * 3600
	defaultTimeoutSeconds = maxTimeoutSeconds
)

func clampTimeout(seconds uint64) uint64 {
	if seconds == 0 {
		return defaultTimeoutSeconds
	}
	if seconds < minTimeoutSeconds {
		return minTimeoutSeconds
	}
	if seconds > maxTimeoutSeconds {
		return maxTimeoutSeconds
	}
	return seconds
}

// thresholdSafe reports whether threshold satisfies THRESHOLD-SAFE for the
// given signer count: threshold >= floor(n/2)+1 and <= n.
func thresholdSafe(threshold uint32, signerCount int) bool {
	if signerCount == 0 {
		return false
	}
	min := uint32(signerCount/2) + 1
	return threshold >= min && threshold <= uint32(signerCount)
}

// Account is the stored value backing storage.MultiSigAccountKey.
type Account struct {
	ID        uint64                `json:"id"`
	Owner     principal.Principal   `json:"owner"`
	Signers   []principal.Principal `json:"signers"`
	Threshold uint32                `json:"threshold"`
	Status    AccountStatus         `json:"status"`
	Nonce     uint64                `json:"nonce"`
}

func (a Account) isSigner(p principal.Principal) bool {
	for _, s := range a.Signers {
		if s.Equal(p) {
			return true
		}
	}
	return false
}

// Policy is the stored value backing storage.OperationPolicyKey.
type Policy struct {
	MinSignatures    uint32 `json:"min_signatures"`
	RequireAll       bool   `json:"require_all_signers"`
	TimeoutSeconds   uint64 `json:"timeout_seconds"`
	RequireOwner     bool   `json:"require_owner_signature"`
}

func defaultPolicy() Policy {
	return Policy{MinSignatures: 1, RequireAll: false, TimeoutSeconds: defaultTimeoutSeconds, RequireOwner: false}
}

// Operation is the stored value backing storage.MultiSigOperationKey.
type Operation struct {
	ID          uint64                `json:"id"`
	AccountID   uint64                `json:"account_id"`
	OpType      OperationType         `json:"op_type"`
	Description string                `json:"description"`
	Proposer    principal.Principal   `json:"proposer"`
	Signatures  []principal.Principal `json:"signatures"`
	Nonce       uint64                `json:"nonce"`
	CreatedAt   uint64                `json:"created_at"`
	ExpiresAt   uint64                `json:"expires_at"`
	Status      OperationStatus       `json:"status"`
}

func (o Operation) hasSigned(p principal.Principal) bool {
	for _, s := range o.Signatures {
		if s.Equal(p) {
			return true
		}
	}
	return false
}

// Engine implements the multisig account/operation operations.
type Engine struct {
	store   *storage.Store
	emitter events.Emitter
}

// New constructs a multisig Engine.
func New(s *storage.Store, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{store: s, emitter: emitter}
}

func (e *Engine) getAccount(id uint64) (Account, error) {
	a, ok, err := storage.Get[Account](e.store, storage.MultiSigAccountKey(id))
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (e *Engine) putAccount(a Account) error {
	return storage.Put(e.store, storage.MultiSigAccountKey(a.ID), a)
}

func (e *Engine) getOperation(id uint64) (Operation, error) {
	op, ok, err := storage.Get[Operation](e.store, storage.MultiSigOperationKey(id))
	if err != nil {
		return Operation{}, err
	}
	if !ok {
		return Operation{}, ErrOperationNotFound
	}
	return op, nil
}

func (e *Engine) putOperation(op Operation) error {
	return storage.Put(e.store, storage.MultiSigOperationKey(op.ID), op)
}

type accountIndexList struct {
	IDs []uint64 `json:"ids"`
}

func (e *Engine) indexOwnerAccount(owner principal.Principal, accountID uint64) error {
	key := storage.OwnerAccountListKey(owner)
	list, _, err := storage.Get[accountIndexList](e.store, key)
	if err != nil {
		return err
	}
	list.IDs = append(list.IDs, accountID)
	return storage.Put(e.store, key, list)
}

func (e *Engine) indexAccountOperation(accountID, opID uint64) error {
	key := storage.AccountOperationListKey(accountID)
	list, _, err := storage.Get[accountIndexList](e.store, key)
	if err != nil {
		return err
	}
	list.IDs = append(list.IDs, opID)
	return storage.Put(e.store, key, list)
}

// RegisterAccount allocates an AccountId for a new multisig account. owner
// is auto-added to signers if missing. threshold must satisfy THRESHOLD-SAFE.
func (e *Engine) RegisterAccount(owner principal.Principal, signers []principal.Principal, threshold uint32) (*Account, error) {
	all := append([]principal.Principal(nil), signers...)
	hasOwner := false
	for _, s := range all {
		if s.Equal(owner) {
			hasOwner = true
			break
		}
	}
	if !hasOwner {
		all = append(all, owner)
	}
	if !thresholdSafe(threshold, len(all)) {
		return nil, ErrInvalidInput
	}
	id, err := storage.NextID(e.store, storage.CounterAccount)
	if err != nil {
		return nil, err
	}
	a := Account{ID: id, Owner: owner, Signers: all, Threshold: threshold, Status: Active, Nonce: 0}
	if err := e.putAccount(a); err != nil {
		return nil, err
	}
	if err := e.indexOwnerAccount(owner, id); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Record{
		Topic:   "ms_account_registered",
		Version: "v1",
		Attributes: map[string]string{
			"account_id": events.FormatUint64(id),
			"owner":      owner.String(),
		},
	})
	return &a, nil
}

// Freeze toggles an account to Frozen. owner-only.
func (e *Engine) Freeze(accountID uint64, caller principal.Principal) error {
	return e.setStatus(accountID, caller, Frozen)
}

// Unfreeze toggles an account back to Active. owner-only.
func (e *Engine) Unfreeze(accountID uint64, caller principal.Principal) error {
	return e.setStatus(accountID, caller, Active)
}

func (e *Engine) setStatus(accountID uint64, caller principal.Principal, status AccountStatus) error {
	a, err := e.getAccount(accountID)
	if err != nil {
		return err
	}
	if !a.Owner.Equal(caller) {
		return ErrUnauthorized
	}
	a.Status = status
	return e.putAccount(a)
}

// AddSigner appends a new signer. owner-only.
func (e *Engine) AddSigner(accountID uint64, signer principal.Principal, caller principal.Principal) error {
	a, err := e.getAccount(accountID)
	if err != nil {
		return err
	}
	if !a.Owner.Equal(caller) {
		return ErrUnauthorized
	}
	if a.isSigner(signer) {
		return ErrInvalidInput
	}
	a.Signers = append(a.Signers, signer)
	a.Nonce++
	return e.putAccount(a)
}

// RemoveSigner removes a signer, refusing removal of the owner or any
// removal that would violate SIGNERS-NONEMPTY or THRESHOLD-SAFE under
// newThreshold.
func (e *Engine) RemoveSigner(accountID uint64, signer principal.Principal, newThreshold uint32, caller principal.Principal) error {
	a, err := e.getAccount(accountID)
	if err != nil {
		return err
	}
	if !a.Owner.Equal(caller) {
		return ErrUnauthorized
	}
	if a.Owner.Equal(signer) {
		return ErrInvalidInput
	}
	remaining := make([]principal.Principal, 0, len(a.Signers))
	found := false
	for _, s := range a.Signers {
		if s.Equal(signer) {
			found = true
			continue
		}
		remaining = append(remaining, s)
	}
	if !found {
		return ErrInvalidSigner
	}
	if len(remaining) == 0 {
		return ErrInvalidInput
	}
	if !thresholdSafe(newThreshold, len(remaining)) {
		return ErrInvalidInput
	}
	a.Signers = remaining
	a.Threshold = newThreshold
	a.Nonce++
	return e.putAccount(a)
}

// RotateSigner replaces oldSigner with newSigner. If oldSigner is the
// account owner, newSigner becomes the new owner.
func (e *Engine) RotateSigner(accountID uint64, oldSigner, newSigner principal.Principal, caller principal.Principal) error {
	a, err := e.getAccount(accountID)
	if err != nil {
		return err
	}
	if !a.Owner.Equal(caller) {
		return ErrUnauthorized
	}
	if a.isSigner(newSigner) {
		return ErrInvalidInput
	}
	found := false
	for i, s := range a.Signers {
		if s.Equal(oldSigner) {
			a.Signers[i] = newSigner
			found = true
			break
		}
	}
	if !found {
		return ErrInvalidSigner
	}
	if a.Owner.Equal(oldSigner) {
		a.Owner = newSigner
	}
	a.Nonce++
	return e.putAccount(a)
}

// UpdateThreshold sets a new threshold, enforcing THRESHOLD-SAFE.
func (e *Engine) UpdateThreshold(accountID uint64, newThreshold uint32, caller principal.Principal) error {
	a, err := e.getAccount(accountID)
	if err != nil {
		return err
	}
	if !a.Owner.Equal(caller) {
		return ErrUnauthorized
	}
	if !thresholdSafe(newThreshold, len(a.Signers)) {
		return ErrInvalidInput
	}
	a.Threshold = newThreshold
	return e.putAccount(a)
}

// SetOperationPolicy records a per-(account, op_type) policy. timeout is
// clamped to [24h, 48h] (0 -> 48h default). min_sigs must satisfy
// THRESHOLD-SAFE unless requireAll.
func (e *Engine) SetOperationPolicy(accountID uint64, opType OperationType, minSignatures uint32, requireAll bool, timeoutSeconds uint64, requireOwner bool, caller principal.Principal) error {
	a, err := e.getAccount(accountID)
	if err != nil {
		return err
	}
	if !a.Owner.Equal(caller) {
		return ErrUnauthorized
	}
	if !requireAll && !thresholdSafe(minSignatures, len(a.Signers)) {
		return ErrInvalidInput
	}
	p := Policy{
		MinSignatures:  minSignatures,
		RequireAll:     requireAll,
		TimeoutSeconds: clampTimeout(timeoutSeconds),
		RequireOwner:   requireOwner,
	}
	return storage.Put(e.store, storage.OperationPolicyKey(accountID, string(opType)), p)
}

// GetOperationPolicy returns the recorded policy for (account, op_type), or
// the default policy if none was set.
func (e *Engine) GetOperationPolicy(accountID uint64, opType OperationType) (Policy, error) {
	p, ok, err := storage.Get[Policy](e.store, storage.OperationPolicyKey(accountID, string(opType)))
	if err != nil {
		return Policy{}, err
	}
	if !ok {
		return defaultPolicy(), nil
	}
	return p, nil
}
