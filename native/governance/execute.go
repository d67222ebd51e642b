package governance

import (
	"guildcore/internal/principal"
)

// applyPayload type-dispatches a Passed proposal's payload (SPEC_FULL.md §9
// decision 2): a payload-application failure yields success=false rather
// than a hard error, leaving the proposal's status untouched by the caller
// (ExecuteProposal only advances to Executed when success is true). now is
// the execution timestamp, passed explicitly since p.ExecutedAt is not set
// on p until after this call returns.
func (e *Engine) applyPayload(p Proposal, executor principal.Principal, now uint64) (bool, error) {
	switch p.Type {
	case AddMember:
		if err := e.members.ApplyAddMember(p.GuildID, p.Payload.MemberAddress, p.Payload.MemberRole, now); err != nil {
			return false, nil
		}
		return true, nil
	case RemoveMember:
		if err := e.members.ApplyRemoveMember(p.GuildID, p.Payload.MemberAddress); err != nil {
			return false, nil
		}
		return true, nil
	case RuleChange:
		cfg := Config{
			VotingPeriodSeconds:      p.Payload.NewVotingPeriodSeconds,
			QuorumPercentage:         p.Payload.NewQuorumPercentage,
			ApprovalThresholdPercent: p.Payload.NewApprovalPercentage,
		}
		if cfg.VotingPeriodSeconds == 0 {
			cfg.VotingPeriodSeconds = defaultVotingPeriodSeconds
		}
		if err := e.applyGovernanceConfig(p.GuildID, cfg); err != nil {
			return false, nil
		}
		return true, nil
	case TreasurySpend:
		// The treasury withdrawal itself is executed through the treasury
		// engine's own propose/approve/execute pipeline, gated by the
		// multisig operation already verified in ExecuteProposal; a passed
		// TreasurySpend proposal only records authorization to proceed.
		return true, nil
	case GeneralDecision:
		return true, nil
	default:
		return false, nil
	}
}
