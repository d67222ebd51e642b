package storage

import (
	"strconv"

	"guildcore/internal/principal"
)

// Counter names backing the instance-partition monotonic ids from spec.md
// §4.1: GuildCounter, ProposalCounter, AccountCounter, OperationCounter.
const (
	CounterGuild     = "guild_counter"
	CounterProposal  = "proposal_counter"
	CounterAccount   = "account_counter"
	CounterOperation = "operation_counter"
)

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

// GuildKey addresses the Guild(id) entry.
func GuildKey(id uint64) Key { return Key{Bucket: "guild", ID: u64(id)} }

// MemberKey addresses the Member(guild, principal) entry.
func MemberKey(guild uint64, p principal.Principal) Key {
	return Key{Bucket: "member", ID: u64(guild) + ":" + p.String()}
}

// MemberListKey addresses the MemberList(guild) entry.
func MemberListKey(guild uint64) Key { return Key{Bucket: "member_list", ID: u64(guild)} }

// DelegationKey addresses the Delegation(guild, principal) entry, keyed by
// the delegator.
func DelegationKey(guild uint64, delegator principal.Principal) Key {
	return Key{Bucket: "delegation", ID: u64(guild) + ":" + delegator.String()}
}

// DelegationListKey addresses the set of delegators for a guild, used so
// Finalize can enumerate delegations without a full table scan.
func DelegationListKey(guild uint64) Key { return Key{Bucket: "delegation_list", ID: u64(guild)} }

// GovConfigKey addresses the GovernanceConfig(guild) entry.
func GovConfigKey(guild uint64) Key { return Key{Bucket: "gov_config", ID: u64(guild)} }

// ProposalKey addresses the Proposal(id) entry.
func ProposalKey(id uint64) Key { return Key{Bucket: "proposal", ID: u64(id)} }

// VoteKey addresses the Vote(proposal, principal) entry.
func VoteKey(proposal uint64, voter principal.Principal) Key {
	return Key{Bucket: "vote", ID: u64(proposal) + ":" + voter.String()}
}

// ProposalListKey addresses the ProposalList(guild) entry.
func ProposalListKey(guild uint64) Key { return Key{Bucket: "proposal_list", ID: u64(guild)} }

// MultiSigAccountKey addresses the MultiSigAccount(id) entry.
func MultiSigAccountKey(id uint64) Key { return Key{Bucket: "ms_account", ID: u64(id)} }

// MultiSigOperationKey addresses the MultiSigOperation(id) entry.
func MultiSigOperationKey(id uint64) Key { return Key{Bucket: "ms_operation", ID: u64(id)} }

// OperationPolicyKey addresses the OperationPolicy(account, op_type) entry.
func OperationPolicyKey(account uint64, opType string) Key {
	return Key{Bucket: "ms_policy", ID: u64(account) + ":" + opType}
}

// AccountOperationListKey indexes operation ids by owning account so
// sweep_expired and get_pending_operations don't need a full id-range scan.
func AccountOperationListKey(account uint64) Key {
	return Key{Bucket: "ms_account_ops", ID: u64(account)}
}

// OwnerAccountListKey indexes account ids by owner for list_accounts_by_owner.
func OwnerAccountListKey(owner principal.Principal) Key {
	return Key{Bucket: "ms_owner_accounts", ID: owner.String()}
}

// TreasuryKey addresses the Treasury(id) entry. Treasuries are 1:1 with
// guilds (spec.md: "TreasuryId tied to a guild"), so the treasury id and the
// owning guild id are the same value.
func TreasuryKey(guild uint64) Key { return Key{Bucket: "treasury", ID: u64(guild)} }

// TreasuryTxKey addresses a single Transaction within a treasury's ledger.
func TreasuryTxKey(treasury uint64, seq uint64) Key {
	return Key{Bucket: "treasury_tx", ID: u64(treasury) + ":" + u64(seq)}
}

// TreasuryTxListKey addresses the append-only ordered list of transaction
// sequence numbers for a treasury.
func TreasuryTxListKey(treasury uint64) Key {
	return Key{Bucket: "treasury_tx_list", ID: u64(treasury)}
}

// BudgetKey addresses the Budget(treasury, category) entry.
func BudgetKey(treasury uint64, category string) Key {
	return Key{Bucket: "budget", ID: u64(treasury) + ":" + category}
}

// TreasuryTxCounter names the per-treasury instance counter backing
// TreasuryTxKey sequence numbers.
func TreasuryTxCounter(treasury uint64) string { return "treasury_tx_seq:" + u64(treasury) }
