package roles

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"guildcore/internal/principal"
	"guildcore/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.db")
	s, err := storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWeight(t *testing.T) {
	cases := []struct {
		role Role
		want uint64
	}{
		{Owner, 10},
		{Admin, 5},
		{Member, 2},
		{Contributor, 1},
		{None, 0},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Weight(c.role))
	}
}

func TestDominates(t *testing.T) {
	require.True(t, Dominates(Owner, Admin))
	require.True(t, Dominates(Admin, Admin))
	require.False(t, Dominates(Member, Admin))
}

func TestHasPermissionAbsentMember(t *testing.T) {
	s := newTestStore(t)
	p, err := principal.Random()
	require.NoError(t, err)

	ok, err := HasPermission(s, 1, p, Member)
	require.NoError(t, err)
	require.False(t, ok, "expected non-member to lack permission")
}

func TestAssertPermission(t *testing.T) {
	s := newTestStore(t)
	p, err := principal.Random()
	require.NoError(t, err)
	require.NoError(t, storage.Put(s, storage.MemberKey(1, p), MemberRecord{Role: Admin, JoinedAt: 10}))

	require.NoError(t, AssertPermission(s, 1, p, Admin))
	require.ErrorIs(t, AssertPermission(s, 1, p, Owner), ErrUnauthorized)
}

func TestOwnerCount(t *testing.T) {
	s := newTestStore(t)
	owner, err := principal.Random()
	require.NoError(t, err)
	member, err := principal.Random()
	require.NoError(t, err)

	require.NoError(t, storage.Put(s, storage.MemberListKey(1), MemberList{Members: []principal.Principal{owner, member}}))
	require.NoError(t, storage.Put(s, storage.MemberKey(1, owner), MemberRecord{Role: Owner}))
	require.NoError(t, storage.Put(s, storage.MemberKey(1, member), MemberRecord{Role: Member}))

	count, err := OwnerCount(s, 1)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
