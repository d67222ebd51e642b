package governance

import (
	"guildcore/internal/events"
	"guildcore/internal/principal"
	"guildcore/internal/storage"
	"guildcore/native/multisig"
	"guildcore/native/roles"
)

// FinalizeProposal computes the delegated vote contributions, totals weight,
// and decides Passed/Rejected per spec §4.4. Idempotent on terminal states;
// fails with ErrVotingOpen if the voting window has not yet elapsed.
func (e *Engine) FinalizeProposal(proposalID uint64, now uint64) (Status, error) {
	p, ok, err := e.GetProposal(proposalID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	if p.Status != Active {
		return p.Status, nil
	}
	if now < p.VotingEnd {
		return "", ErrVotingOpen
	}

	rootDecision, delegatedWeight, err := e.delegatedContributions(p.GuildID, proposalID)
	if err != nil {
		return "", err
	}
	for delegator, decision := range rootDecision {
		w := delegatedWeight[delegator]
		switch decision {
		case For:
			p.Tallies.For += w
		case Against:
			p.Tallies.Against += w
		case Abstain:
			p.Tallies.Abstain += w
		}
	}

	members, err := e.members.GetAllMembers(p.GuildID)
	if err != nil {
		return "", err
	}
	var totalWeight uint64
	for _, rec := range members {
		totalWeight += roles.Weight(rec.Role)
	}

	cfg, err := e.config(p.GuildID)
	if err != nil {
		return "", err
	}
	votesCast := p.Tallies.For + p.Tallies.Against + p.Tallies.Abstain

	var finalStatus Status
	if votesCast*100 < cfg.QuorumPercentage*totalWeight {
		finalStatus = Rejected
	} else if p.Tallies.For*100 > cfg.ApprovalThresholdPercent*(p.Tallies.For+p.Tallies.Against) {
		finalStatus = Passed
		p.PassedAt = now
	} else {
		finalStatus = Rejected
	}
	p.Status = finalStatus

	if err := storage.Put(e.store, storage.ProposalKey(proposalID), p); err != nil {
		return "", err
	}
	e.emitter.Emit(events.Record{
		Topic:   "proposal_finalized",
		Version: "v1",
		Attributes: map[string]string{
			"proposal_id": events.FormatUint64(proposalID),
			"status":      string(finalStatus),
		},
	})
	return finalStatus, nil
}

// ExecuteProposal auto-finalizes a still-Active proposal whose voting window
// has elapsed, then requires status Passed and an unexpired execution
// window. TreasurySpend/RuleChange payloads additionally require a prior
// executed multisig operation of matching type, bound via
// Payload.RequiredOperationID.
func (e *Engine) ExecuteProposal(proposalID uint64, executor principal.Principal, now uint64) (bool, error) {
	p, ok, err := e.GetProposal(proposalID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	if p.Status == Active && now >= p.VotingEnd {
		if _, err := e.FinalizeProposal(proposalID, now); err != nil {
			return false, err
		}
		p, _, err = e.GetProposal(proposalID)
		if err != nil {
			return false, err
		}
	}
	if p.Status != Passed {
		return false, ErrBadState
	}
	if now > p.PassedAt+executionWindowSeconds {
		p.Status = Expired
		if err := storage.Put(e.store, storage.ProposalKey(proposalID), p); err != nil {
			return false, err
		}
		return false, ErrExecutionExpired
	}

	if requiresMultisigGate(p.Type) {
		opType := multisigOpTypeFor(p.Type)
		if err := e.multisig.RequireExecutedOperation(p.Payload.RequiredOperationID, opType); err != nil {
			e.emitter.Emit(events.Record{
				Topic:   "proposal_executed",
				Version: "v1",
				Attributes: map[string]string{
					"proposal_id": events.FormatUint64(proposalID),
					"success":     events.FormatBool(false),
				},
			})
			return false, nil
		}
	}

	success, err := e.applyPayload(p, executor, now)
	if err != nil {
		return false, err
	}
	if success {
		p.Status = Executed
		p.ExecutedAt = now
		if err := storage.Put(e.store, storage.ProposalKey(proposalID), p); err != nil {
			return false, err
		}
	}
	e.emitter.Emit(events.Record{
		Topic:   "proposal_executed",
		Version: "v1",
		Attributes: map[string]string{
			"proposal_id": events.FormatUint64(proposalID),
			"success":     events.FormatBool(success),
		},
	})
	return success, nil
}

func requiresMultisigGate(t ProposalType) bool {
	return t == TreasurySpend || t == RuleChange
}

func multisigOpTypeFor(t ProposalType) multisig.OperationType {
	switch t {
	case TreasurySpend:
		return multisig.TreasuryWithdrawal
	default:
		return multisig.GovernanceUpdate
	}
}
