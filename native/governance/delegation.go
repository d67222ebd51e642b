package governance

import (
	"guildcore/internal/principal"
	"guildcore/internal/storage"
	"guildcore/native/roles"
)

// Delegation is the stored value backing storage.DelegationKey: a single
// outgoing delegator -> delegate edge.
type Delegation struct {
	Delegate principal.Principal `json:"delegate"`
}

type delegatorList struct {
	Delegators []principal.Principal `json:"delegators"`
}

// DelegateVote records that delegator's weight should be redirected to
// delegate. Both must be members; delegator cannot delegate to itself.
func (e *Engine) DelegateVote(guild uint64, delegator, delegate principal.Principal) error {
	if delegator.Equal(delegate) {
		return ErrSelfDelegation
	}
	if _, ok, err := e.members.GetMember(guild, delegator); err != nil {
		return err
	} else if !ok {
		return ErrUnauthorized
	}
	if _, ok, err := e.members.GetMember(guild, delegate); err != nil {
		return err
	} else if !ok {
		return ErrUnauthorized
	}
	if err := storage.Put(e.store, storage.DelegationKey(guild, delegator), Delegation{Delegate: delegate}); err != nil {
		return err
	}
	list, _, err := storage.Get[delegatorList](e.store, storage.DelegationListKey(guild))
	if err != nil {
		return err
	}
	for _, d := range list.Delegators {
		if d.Equal(delegator) {
			return nil
		}
	}
	list.Delegators = append(list.Delegators, delegator)
	return storage.Put(e.store, storage.DelegationListKey(guild), list)
}

// UndelegateVote removes delegator's outgoing delegation edge, if any.
func (e *Engine) UndelegateVote(guild uint64, delegator principal.Principal) error {
	if err := storage.Delete(e.store, storage.DelegationKey(guild, delegator)); err != nil {
		return err
	}
	list, _, err := storage.Get[delegatorList](e.store, storage.DelegationListKey(guild))
	if err != nil {
		return err
	}
	out := list.Delegators[:0]
	for _, d := range list.Delegators {
		if !d.Equal(delegator) {
			out = append(out, d)
		}
	}
	list.Delegators = out
	return storage.Put(e.store, storage.DelegationListKey(guild), list)
}

// resolveRoot walks the delegation chain from delegator up to delegationWalkCap
// hops, stopping early and returning ok=false on a revisit (cycle) or if the
// cap is exceeded, per spec §4.4 and the original Rust source's
// stop-accumulating-on-cycle behavior (DESIGN.md Open Question decision 1).
func resolveRoot(s *storage.Store, guild uint64, delegator principal.Principal) (root principal.Principal, ok bool, err error) {
	visited := map[principal.Principal]bool{delegator: true}
	current := delegator
	for hop := 0; hop < delegationWalkCap; hop++ {
		del, has, e := storage.Get[Delegation](s, storage.DelegationKey(guild, current))
		if e != nil {
			return principal.Principal{}, false, e
		}
		if !has {
			if hop == 0 {
				return principal.Principal{}, false, nil
			}
			return current, true, nil
		}
		if visited[del.Delegate] {
			return principal.Principal{}, false, nil
		}
		visited[del.Delegate] = true
		current = del.Delegate
	}
	return principal.Principal{}, false, nil
}

// delegatedContributions computes, for every recorded delegator in guild who
// did not vote directly, the (root, weight) pair to add to the root's tally
// bucket if the root itself voted. Delegators whose chain does not
// terminate within the cap (or cycles) contribute nothing.
func (e *Engine) delegatedContributions(guild uint64, proposalID uint64) (map[principal.Principal]Decision, map[principal.Principal]uint64, error) {
	list, _, err := storage.Get[delegatorList](e.store, storage.DelegationListKey(guild))
	if err != nil {
		return nil, nil, err
	}
	rootDecision := map[principal.Principal]Decision{}
	added := map[principal.Principal]uint64{}
	for _, d := range list.Delegators {
		if _, voted, err := storage.Get[VoteRecord](e.store, storage.VoteKey(proposalID, d)); err != nil {
			return nil, nil, err
		} else if voted {
			continue
		}
		root, ok, err := resolveRoot(e.store, guild, d)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		rootVote, voted, err := storage.Get[VoteRecord](e.store, storage.VoteKey(proposalID, root))
		if err != nil {
			return nil, nil, err
		}
		if !voted {
			continue
		}
		rec, found, err := e.members.GetMember(guild, d)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			continue
		}
		rootDecision[d] = rootVote.Decision
		added[d] = roles.Weight(rec.Role)
	}
	return rootDecision, added, nil
}
