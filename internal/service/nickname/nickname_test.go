package nickname

import (
	"context"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/log"
	"github.com/lbessard/canal/internal/store"
	"github.com/lbessard/canal/internal/store/sqlite"
)

var suffixedAlice = regexp.MustCompile(`^Alice(\d{4})$`)

func newTestResolver(t *testing.T) (*Resolver, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.CreateChannel(ctx, &store.Channel{ID: "c1", Name: "#general"}))
	for _, u := range []struct{ id, name string }{
		{"u1", "alice"}, {"u2", "bob"}, {"u3", "carol"},
	} {
		require.NoError(t, st.CreateUser(ctx, &store.User{ID: u.id, Name: u.name}))
	}

	return NewResolver(st, log.Nop()), st
}

func TestAssignFirstHolderKeepsDesiredName(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	nick, err := r.Assign(ctx, "c1", "u1", "Alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", nick)
}

func TestAssignCollisionAppendsFourDigitSuffix(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Assign(ctx, "c1", "u1", "Alice")
	require.NoError(t, err)

	nick, err := r.Assign(ctx, "c1", "u2", "Alice")
	require.NoError(t, err)

	m := suffixedAlice.FindStringSubmatch(nick)
	require.NotNil(t, m, "expected a suffixed nickname, got %q", nick)

	suffix, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	require.GreaterOrEqual(t, suffix, 1000)
	require.LessOrEqual(t, suffix, 9999)
}

func TestAssignIsIdempotentForCurrentHolder(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	first, err := r.Assign(ctx, "c1", "u1", "Alice")
	require.NoError(t, err)

	again, err := r.Assign(ctx, "c1", "u1", "Alice")
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestAssignKeepsDisambiguatedBinding(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Assign(ctx, "c1", "u1", "Alice")
	require.NoError(t, err)

	first, err := r.Assign(ctx, "c1", "u2", "Alice")
	require.NoError(t, err)
	require.Regexp(t, suffixedAlice, first)

	// Re-assigning the same desired name must return the binding the member
	// already holds, not roll a fresh suffix.
	again, err := r.Assign(ctx, "c1", "u2", "Alice")
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestResolveAndResolveUser(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Assign(ctx, "c1", "u1", "Alice")
	require.NoError(t, err)

	nick, err := r.Resolve(ctx, "c1", "u1")
	require.NoError(t, err)
	require.Equal(t, "Alice", nick)

	userID, err := r.ResolveUser(ctx, "c1", "Alice")
	require.NoError(t, err)
	require.Equal(t, "u1", userID)

	_, err = r.Resolve(ctx, "c1", "u2")
	require.ErrorIs(t, err, core.ErrMemberNotFound)

	_, err = r.ResolveUser(ctx, "c1", "Nobody")
	require.ErrorIs(t, err, core.ErrMemberNotFound)
}

func TestRenameRequiresExistingBinding(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Rename(ctx, "c1", "u1", "Alpha")
	require.ErrorIs(t, err, core.ErrMemberNotFound)
}

func TestRenameToTakenNameGetsSuffix(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Assign(ctx, "c1", "u1", "Alice")
	require.NoError(t, err)
	_, err = r.Assign(ctx, "c1", "u2", "Bob")
	require.NoError(t, err)

	nick, err := r.Rename(ctx, "c1", "u2", "Alice")
	require.NoError(t, err)
	require.Regexp(t, suffixedAlice, nick)

	// The old nickname is released.
	_, err = r.ResolveUser(ctx, "c1", "Bob")
	require.ErrorIs(t, err, core.ErrMemberNotFound)
}

func TestRenameToCurrentNameIsNoOp(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	_, err := r.Assign(ctx, "c1", "u1", "Alice")
	require.NoError(t, err)

	nick, err := r.Rename(ctx, "c1", "u1", "Alice")
	require.NoError(t, err)
	require.Equal(t, "Alice", nick)
}
