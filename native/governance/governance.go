// Package governance implements the proposal lifecycle (spec §4.4):
// creation, voting, delegation resolution, finalization, and execution,
// generalized from the teacher's native/governance SubmitProposal/CastVote/
// Finalize/Execute shape to role-weighted votes and transitive delegation.
package governance

import (
	"errors"
	"fmt"
	"math/big"

	"guildcore/internal/events"
	"guildcore/internal/principal"
	"guildcore/internal/storage"
	"guildcore/native/guild"
	"guildcore/native/multisig"
	"guildcore/native/roles"
)

var (
	ErrUnauthorized     = errors.New("governance: unauthorized")
	ErrNotFound         = errors.New("governance: not found")
	ErrInvalidInput     = errors.New("governance: invalid input")
	ErrBadState         = errors.New("governance: bad state for this operation")
	ErrVotingOpen       = errors.New("governance: voting period still open")
	ErrVotingClosed     = errors.New("governance: voting period has closed")
	ErrAlreadyVoted     = errors.New("governance: principal already voted")
	ErrDelegatedVoter   = errors.New("governance: delegators cannot vote directly")
	ErrSelfDelegation   = errors.New("governance: cannot delegate to self")
	ErrExecutionExpired = errors.New("governance: execution window elapsed")
)

// ProposalType enumerates the closed set of proposal kinds from spec §3.
type ProposalType string

const (
	GeneralDecision ProposalType = "GeneralDecision"
	TreasurySpend   ProposalType = "TreasurySpend"
	RuleChange      ProposalType = "RuleChange"
	AddMember       ProposalType = "AddMember"
	RemoveMember    ProposalType = "RemoveMember"
)

// Decision is a vote's tally bucket.
type Decision string

const (
	For     Decision = "for"
	Against Decision = "against"
	Abstain Decision = "abstain"
)

// Status is the proposal lifecycle state.
type Status string

const (
	Active    Status = "Active"
	Passed    Status = "Passed"
	Rejected  Status = "Rejected"
	Cancelled Status = "Cancelled"
	Executed  Status = "Executed"
	Expired   Status = "Expired"
)

const (
	defaultVotingPeriodSeconds = 7 * 24 * 3600
	defaultQuorumPercentage    = 30
	defaultApprovalPercentage  = 50
	executionWindowSeconds     = 3 * 24 * 3600
	delegationWalkCap          = 16
)

// Payload carries the type-tagged directive applied on execution
// (SPEC_FULL.md §4.4 / §9 Open Question 2: execution applies a small closed
// set of directive kinds, not opaque calldata).
type Payload struct {
	// Member target fields, used by AddMember/RemoveMember.
	MemberAddress principal.Principal `json:"member_address,omitempty"`
	MemberRole    roles.Role          `json:"member_role,omitempty"`

	// Treasury fields, used by TreasurySpend.
	Recipient principal.Principal `json:"recipient,omitempty"`
	Amount    *big.Int            `json:"amount,omitempty"`
	Token     string              `json:"token,omitempty"`
	Reason    string              `json:"reason,omitempty"`

	// RuleChange / GovernanceUpdate fields.
	NewVotingPeriodSeconds uint64 `json:"new_voting_period_seconds,omitempty"`
	NewQuorumPercentage    uint64 `json:"new_quorum_percentage,omitempty"`
	NewApprovalPercentage  uint64 `json:"new_approval_percentage,omitempty"`

	// RequiredOperationID binds this execution to a prior executed multisig
	// operation, per spec §4.4's require_executed_operation precondition.
	RequiredOperationID uint64 `json:"required_operation_id,omitempty"`
}

// Tallies holds per-decision accumulated weight.
type Tallies struct {
	For     uint64 `json:"for"`
	Against uint64 `json:"against"`
	Abstain uint64 `json:"abstain"`
}

// Proposal is the stored value backing storage.ProposalKey.
type Proposal struct {
	ID          uint64              `json:"id"`
	GuildID     uint64              `json:"guild_id"`
	Proposer    principal.Principal `json:"proposer"`
	Type        ProposalType        `json:"type"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Payload     Payload             `json:"payload"`
	CreatedAt   uint64              `json:"created_at"`
	VotingEnd   uint64              `json:"voting_end"`
	Status      Status              `json:"status"`
	PassedAt    uint64              `json:"passed_at,omitempty"`
	ExecutedAt  uint64              `json:"executed_at,omitempty"`
	Tallies     Tallies             `json:"tallies"`
}

// VoteRecord is the stored value backing storage.VoteKey.
type VoteRecord struct {
	Decision Decision `json:"decision"`
}

// Config is the stored value backing storage.GovConfigKey.
type Config struct {
	VotingPeriodSeconds       uint64 `json:"voting_period_seconds"`
	QuorumPercentage          uint64 `json:"quorum_percentage"`
	ApprovalThresholdPercent  uint64 `json:"approval_threshold_percentage"`
}

func defaultConfig() Config {
	return Config{
		VotingPeriodSeconds:      defaultVotingPeriodSeconds,
		QuorumPercentage:         defaultQuorumPercentage,
		ApprovalThresholdPercent: defaultApprovalPercentage,
	}
}

type proposalList struct {
	IDs []uint64 `json:"ids"`
}

// Engine implements the governance operations.
type Engine struct {
	store    *storage.Store
	emitter  events.Emitter
	members  *guild.Engine
	multisig *multisig.Engine
}

// New constructs a governance Engine. members supplies membership lookups
// and applies AddMember/RemoveMember directives on execution; ms supplies
// require_executed_operation gating for privileged execution.
func New(s *storage.Store, emitter events.Emitter, members *guild.Engine, ms *multisig.Engine) *Engine {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{store: s, emitter: emitter, members: members, multisig: ms}
}

func (e *Engine) config(guild uint64) (Config, error) {
	cfg, ok, err := storage.Get[Config](e.store, storage.GovConfigKey(guild))
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return defaultConfig(), nil
	}
	return cfg, nil
}

// UpdateGovernanceConfig overwrites a guild's voting parameters. caller must
// be Owner.
func (e *Engine) UpdateGovernanceConfig(guild uint64, cfg Config, caller principal.Principal) error {
	rec, ok, err := e.members.GetMember(guild, caller)
	if err != nil {
		return err
	}
	if !ok || rec.Role != roles.Owner {
		return ErrUnauthorized
	}
	if cfg.VotingPeriodSeconds == 0 {
		cfg.VotingPeriodSeconds = defaultVotingPeriodSeconds
	}
	return e.applyGovernanceConfig(guild, cfg)
}

// applyGovernanceConfig writes cfg without a caller-permission check, for
// use both by the Owner-gated UpdateGovernanceConfig and by a passed
// RuleChange proposal's execution, whose authorization came from the vote
// itself.
func (e *Engine) applyGovernanceConfig(guild uint64, cfg Config) error {
	return storage.Put(e.store, storage.GovConfigKey(guild), cfg)
}

func appendProposal(s *storage.Store, guild, id uint64) error {
	list, _, err := storage.Get[proposalList](s, storage.ProposalListKey(guild))
	if err != nil {
		return err
	}
	list.IDs = append(list.IDs, id)
	return storage.Put(s, storage.ProposalListKey(guild), list)
}

// CreateProposal allocates a ProposalId and initializes an Active proposal.
// proposer must hold permission >= Member; RuleChange/TreasurySpend require
// >= Admin.
func (e *Engine) CreateProposal(guild uint64, proposer principal.Principal, typ ProposalType, title, description string, payload Payload, now uint64) (*Proposal, error) {
	rec, ok, err := e.members.GetMember(guild, proposer)
	if err != nil {
		return nil, err
	}
	if !ok || !roles.Dominates(rec.Role, roles.Member) {
		return nil, ErrUnauthorized
	}
	if typ == RuleChange || typ == TreasurySpend {
		if !roles.Dominates(rec.Role, roles.Admin) {
			return nil, ErrUnauthorized
		}
	}
	if title == "" {
		return nil, fmt.Errorf("%w: title must be non-empty", ErrInvalidInput)
	}
	cfg, err := e.config(guild)
	if err != nil {
		return nil, err
	}
	id, err := storage.NextID(e.store, storage.CounterProposal)
	if err != nil {
		return nil, err
	}
	p := &Proposal{
		ID:          id,
		GuildID:     guild,
		Proposer:    proposer,
		Type:        typ,
		Title:       title,
		Description: description,
		Payload:     payload,
		CreatedAt:   now,
		VotingEnd:   now + cfg.VotingPeriodSeconds,
		Status:      Active,
	}
	if err := storage.Put(e.store, storage.ProposalKey(id), *p); err != nil {
		return nil, err
	}
	if err := appendProposal(e.store, guild, id); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Record{
		Topic:   "proposal_created",
		Version: "v1",
		Attributes: map[string]string{
			"proposal_id": events.FormatUint64(id),
			"guild_id":    events.FormatUint64(guild),
			"type":        string(typ),
		},
	})
	return p, nil
}

// GetProposal fetches a proposal by id.
func (e *Engine) GetProposal(id uint64) (Proposal, bool, error) {
	return storage.Get[Proposal](e.store, storage.ProposalKey(id))
}

// GetActiveProposals returns every proposal in guild currently in status
// Active.
func (e *Engine) GetActiveProposals(guild uint64) ([]Proposal, error) {
	list, _, err := storage.Get[proposalList](e.store, storage.ProposalListKey(guild))
	if err != nil {
		return nil, err
	}
	var out []Proposal
	for _, id := range list.IDs {
		p, ok, err := e.GetProposal(id)
		if err != nil {
			return nil, err
		}
		if ok && p.Status == Active {
			out = append(out, p)
		}
	}
	return out, nil
}

// Vote records voter's decision on proposal_id and accrues their weight.
func (e *Engine) Vote(proposalID uint64, voter principal.Principal, decision Decision, now uint64) error {
	p, ok, err := e.GetProposal(proposalID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if p.Status != Active {
		return ErrBadState
	}
	if now >= p.VotingEnd {
		return ErrVotingClosed
	}
	rec, ok, err := e.members.GetMember(p.GuildID, voter)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	if _, voted, err := storage.Get[VoteRecord](e.store, storage.VoteKey(proposalID, voter)); err != nil {
		return err
	} else if voted {
		return ErrAlreadyVoted
	}
	if del, delegated, err := storage.Get[Delegation](e.store, storage.DelegationKey(p.GuildID, voter)); err != nil {
		return err
	} else if delegated && !del.Delegate.IsZero() {
		return ErrDelegatedVoter
	}
	if err := storage.Put(e.store, storage.VoteKey(proposalID, voter), VoteRecord{Decision: decision}); err != nil {
		return err
	}
	w := roles.Weight(rec.Role)
	switch decision {
	case For:
		p.Tallies.For += w
	case Against:
		p.Tallies.Against += w
	case Abstain:
		p.Tallies.Abstain += w
	default:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, decision)
	}
	if err := storage.Put(e.store, storage.ProposalKey(proposalID), p); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "vote_cast",
		Version: "v1",
		Attributes: map[string]string{
			"proposal_id": events.FormatUint64(proposalID),
			"voter":       voter.String(),
			"decision":    string(decision),
		},
	})
	return nil
}

// CancelProposal transitions an Active proposal to Cancelled. caller must be
// the proposer or hold permission >= Admin in the guild.
func (e *Engine) CancelProposal(proposalID uint64, caller principal.Principal) error {
	p, ok, err := e.GetProposal(proposalID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if p.Status != Active {
		return ErrBadState
	}
	if !caller.Equal(p.Proposer) {
		rec, ok, err := e.members.GetMember(p.GuildID, caller)
		if err != nil {
			return err
		}
		if !ok || !roles.Dominates(rec.Role, roles.Admin) {
			return ErrUnauthorized
		}
	}
	p.Status = Cancelled
	return storage.Put(e.store, storage.ProposalKey(proposalID), p)
}
