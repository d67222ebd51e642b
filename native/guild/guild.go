// Package guild implements the membership registry (spec §4.3): guild
// creation, member add/remove, and role updates, enforcing the OWNER-ALIVE
// invariant throughout.
package guild

import (
	"errors"
	"fmt"

	"guildcore/internal/events"
	"guildcore/internal/principal"
	"guildcore/internal/storage"
	"guildcore/native/roles"
)

var (
	ErrNotFound        = errors.New("guild: not found")
	ErrUnauthorized    = errors.New("guild: unauthorized")
	ErrDuplicateMember = errors.New("guild: already a member")
	ErrInvalidInput    = errors.New("guild: invalid input")
	ErrOwnerInvariant  = errors.New("guild: would leave guild without an owner")
)

// Guild is the stored value backing storage.GuildKey.
type Guild struct {
	ID          uint64              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       principal.Principal `json:"owner"`
	CreatedAt   uint64              `json:"created_at"`
}

// Engine implements the membership registry operations against a Store,
// emitting events through an Emitter. The zero value is unusable; construct
// with New.
type Engine struct {
	store   *storage.Store
	emitter events.Emitter
}

// New constructs a membership Engine. A nil emitter is replaced with
// events.NoopEmitter, matching the teacher's zero-value-safe style.
func New(s *storage.Store, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{store: s, emitter: emitter}
}

func memberList(s *storage.Store, guild uint64) (roles.MemberList, error) {
	list, _, err := storage.Get[roles.MemberList](s, storage.MemberListKey(guild))
	return list, err
}

func appendMember(s *storage.Store, guild uint64, p principal.Principal) error {
	list, err := memberList(s, guild)
	if err != nil {
		return err
	}
	list.Members = append(list.Members, p)
	return storage.Put(s, storage.MemberListKey(guild), list)
}

func removeFromList(s *storage.Store, guild uint64, p principal.Principal) error {
	list, err := memberList(s, guild)
	if err != nil {
		return err
	}
	out := list.Members[:0]
	for _, m := range list.Members {
		if !m.Equal(p) {
			out = append(out, m)
		}
	}
	list.Members = out
	return storage.Put(s, storage.MemberListKey(guild), list)
}

// CreateGuild allocates a GuildId, registers owner as the sole initial
// member with role Owner, and emits guild_created.
func (e *Engine) CreateGuild(name, description string, owner principal.Principal, now uint64) (*Guild, error) {
	if name == "" || len(name) > 64 {
		return nil, fmt.Errorf("%w: name must be 1-64 chars", ErrInvalidInput)
	}
	if len(description) > 512 {
		return nil, fmt.Errorf("%w: description must be <=512 chars", ErrInvalidInput)
	}
	id, err := storage.NextID(e.store, storage.CounterGuild)
	if err != nil {
		return nil, err
	}
	g := &Guild{ID: id, Name: name, Description: description, Owner: owner, CreatedAt: now}
	if err := storage.Put(e.store, storage.GuildKey(id), *g); err != nil {
		return nil, err
	}
	if err := storage.Put(e.store, storage.MemberKey(id, owner), roles.MemberRecord{Role: roles.Owner, JoinedAt: now}); err != nil {
		return nil, err
	}
	if err := storage.Put(e.store, storage.MemberListKey(id), roles.MemberList{Members: []principal.Principal{owner}}); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Record{
		Topic:   "guild_created",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(id),
			"owner":    owner.String(),
		},
	})
	return g, nil
}

// GetMember returns the membership record for (guild, p).
func (e *Engine) GetMember(guild uint64, p principal.Principal) (roles.MemberRecord, bool, error) {
	return storage.Get[roles.MemberRecord](e.store, storage.MemberKey(guild, p))
}

// IsMember reports whether p is currently a member of guild.
func (e *Engine) IsMember(guild uint64, p principal.Principal) (bool, error) {
	_, ok, err := e.GetMember(guild, p)
	return ok, err
}

// HasPermission delegates to roles.HasPermission.
func (e *Engine) HasPermission(guild uint64, p principal.Principal, required roles.Role) (bool, error) {
	return roles.HasPermission(e.store, guild, p, required)
}

// GetAllMembers returns every (principal, record) pair currently in guild.
func (e *Engine) GetAllMembers(guild uint64) (map[principal.Principal]roles.MemberRecord, error) {
	list, err := memberList(e.store, guild)
	if err != nil {
		return nil, err
	}
	out := make(map[principal.Principal]roles.MemberRecord, len(list.Members))
	for _, p := range list.Members {
		rec, ok, err := storage.Get[roles.MemberRecord](e.store, storage.MemberKey(guild, p))
		if err != nil {
			return nil, err
		}
		if ok {
			out[p] = rec
		}
	}
	return out, nil
}

// AddMember adds address to guild with the given role. caller must hold
// permission >= Admin; assigning Owner additionally requires caller to
// already be Owner.
func (e *Engine) AddMember(guild uint64, address principal.Principal, role roles.Role, caller principal.Principal, now uint64) error {
	callerRec, ok, err := e.GetMember(guild, caller)
	if err != nil {
		return err
	}
	if !ok || !roles.Dominates(callerRec.Role, roles.Admin) {
		return ErrUnauthorized
	}
	if role == roles.Owner && callerRec.Role != roles.Owner {
		return ErrUnauthorized
	}
	return e.addMember(guild, address, role, now)
}

// ApplyAddMember adds address to guild with the given role without a
// caller-permission check, for use when authorization was already granted
// by a passed AddMember governance proposal (spec §4.4 execution).
func (e *Engine) ApplyAddMember(guild uint64, address principal.Principal, role roles.Role, now uint64) error {
	return e.addMember(guild, address, role, now)
}

func (e *Engine) addMember(guild uint64, address principal.Principal, role roles.Role, now uint64) error {
	if already, err := e.IsMember(guild, address); err != nil {
		return err
	} else if already {
		return ErrDuplicateMember
	}
	if err := storage.Put(e.store, storage.MemberKey(guild, address), roles.MemberRecord{Role: role, JoinedAt: now}); err != nil {
		return err
	}
	if err := appendMember(e.store, guild, address); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "member_added",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(guild),
			"address":  address.String(),
			"role":     role.String(),
		},
	})
	return nil
}

// RemoveMember removes address from guild. Permitted as self-removal, or by
// a caller whose role strictly dominates the target's and is >= Admin.
// Refused if the target is the sole Owner. Any outgoing delegation edge for
// address is also deleted (spec §9 Open Question 1: a removed member's
// delegation carries no weight).
func (e *Engine) RemoveMember(guild uint64, address principal.Principal, caller principal.Principal) error {
	target, ok, err := e.GetMember(guild, address)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !caller.Equal(address) {
		callerRec, callerOK, err := e.GetMember(guild, caller)
		if err != nil {
			return err
		}
		if !callerOK || !roles.Dominates(callerRec.Role, roles.Admin) || callerRec.Role <= target.Role {
			return ErrUnauthorized
		}
	}
	return e.removeMember(guild, address, target)
}

// ApplyRemoveMember removes address from guild without a caller-permission
// check, for use when authorization was already granted by a passed
// RemoveMember governance proposal (spec §4.4 execution).
func (e *Engine) ApplyRemoveMember(guild uint64, address principal.Principal) error {
	target, ok, err := e.GetMember(guild, address)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return e.removeMember(guild, address, target)
}

func (e *Engine) removeMember(guild uint64, address principal.Principal, target roles.MemberRecord) error {
	if target.Role == roles.Owner {
		count, err := roles.OwnerCount(e.store, guild)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrOwnerInvariant
		}
	}
	if err := storage.Delete(e.store, storage.MemberKey(guild, address)); err != nil {
		return err
	}
	if err := removeFromList(e.store, guild, address); err != nil {
		return err
	}
	if err := storage.Delete(e.store, storage.DelegationKey(guild, address)); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "member_removed",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(guild),
			"address":  address.String(),
		},
	})
	return nil
}

// UpdateRole changes address's role within guild. caller must hold
// permission >= Admin; assigning Owner requires caller to already be Owner;
// demoting the last Owner is refused.
func (e *Engine) UpdateRole(guild uint64, address principal.Principal, newRole roles.Role, caller principal.Principal) error {
	callerRec, ok, err := e.GetMember(guild, caller)
	if err != nil {
		return err
	}
	if !ok || !roles.Dominates(callerRec.Role, roles.Admin) {
		return ErrUnauthorized
	}
	target, ok, err := e.GetMember(guild, address)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if newRole == roles.Owner && callerRec.Role != roles.Owner {
		return ErrUnauthorized
	}
	if target.Role == roles.Owner && newRole != roles.Owner {
		count, err := roles.OwnerCount(e.store, guild)
		if err != nil {
			return err
		}
		if count <= 1 {
			return ErrOwnerInvariant
		}
	}
	target.Role = newRole
	if err := storage.Put(e.store, storage.MemberKey(guild, address), target); err != nil {
		return err
	}
	e.emitter.Emit(events.Record{
		Topic:   "role_updated",
		Version: "v1",
		Attributes: map[string]string{
			"guild_id": events.FormatUint64(guild),
			"address":  address.String(),
			"role":     newRole.String(),
		},
	})
	return nil
}
