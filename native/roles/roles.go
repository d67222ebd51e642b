// Package roles implements the role lattice and permission predicate shared
// by every other native package (spec §4.2): Contributor < Member < Admin <
// Owner, vote weights, and the owner-count invariant check.
package roles

import (
	"errors"

	"guildcore/internal/principal"
	"guildcore/internal/storage"
)

// ErrUnauthorized is returned by AssertPermission when the caller's role
// does not dominate the required role.
var ErrUnauthorized = errors.New("roles: unauthorized")

// Role is a totally ordered lattice value: higher numbers dominate lower
// ones. Zero is reserved for "not a member".
type Role uint8

const (
	// None marks the absence of membership; never stored against a Member.
	None Role = iota
	Contributor
	Member
	Admin
	Owner
)

// String renders the role name, used in logs and event attributes.
func (r Role) String() string {
	switch r {
	case Contributor:
		return "contributor"
	case Member:
		return "member"
	case Admin:
		return "admin"
	case Owner:
		return "owner"
	default:
		return "none"
	}
}

// Weight returns the deterministic vote weight for a role, per spec §6
// constants: Owner=10, Admin=5, Member=2, Contributor=1, everything else 0.
func Weight(r Role) uint64 {
	switch r {
	case Owner:
		return 10
	case Admin:
		return 5
	case Member:
		return 2
	case Contributor:
		return 1
	default:
		return 0
	}
}

// Dominates reports whether r satisfies a required role, i.e. r >= required.
func Dominates(r, required Role) bool {
	return r >= required
}

// MemberRecord is the stored value backing storage.MemberKey: spec's
// "(GuildId, Principal) -> {role, joined_at}".
type MemberRecord struct {
	Role     Role   `json:"role"`
	JoinedAt uint64 `json:"joined_at"`
}

// HasPermission reports whether principal p is a member of guild with role
// >= required. Absence of membership is reported as false, not as an error;
// only a storage read failure returns an error.
func HasPermission(s *storage.Store, guild uint64, p principal.Principal, required Role) (bool, error) {
	rec, ok, err := storage.Get[MemberRecord](s, storage.MemberKey(guild, p))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return Dominates(rec.Role, required), nil
}

// AssertPermission fails with ErrUnauthorized unless p holds role >= required
// in guild.
func AssertPermission(s *storage.Store, guild uint64, p principal.Principal, required Role) error {
	ok, err := HasPermission(s, guild, p, required)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}

// MemberList is the stored value backing storage.MemberListKey: an
// insertion-ordered set of member principals for a guild.
type MemberList struct {
	Members []principal.Principal `json:"members"`
}

// OwnerCount scans a guild's member list and counts how many currently hold
// role Owner, backing the OWNER-ALIVE invariant check in native/guild.
func OwnerCount(s *storage.Store, guild uint64) (int, error) {
	list, ok, err := storage.Get[MemberList](s, storage.MemberListKey(guild))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	count := 0
	for _, p := range list.Members {
		rec, found, err := storage.Get[MemberRecord](s, storage.MemberKey(guild, p))
		if err != nil {
			return 0, err
		}
		if found && rec.Role == Owner {
			count++
		}
	}
	return count, nil
}
