package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lbessard/canal/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateUser(t *testing.T, s *SQLiteStore, id, name string) *store.User {
	t.Helper()

	user := &store.User{ID: id, Name: name}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return user
}

func mustCreateChannel(t *testing.T, s *SQLiteStore, id, name string) *store.Channel {
	t.Helper()

	ch := &store.Channel{ID: id, Name: name}
	if err := s.CreateChannel(context.Background(), ch); err != nil {
		t.Fatalf("failed to create channel %s: %v", name, err)
	}
	return ch
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "u1", "alice")

	got, err := s.GetUserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Name != "alice" {
		t.Fatalf("unexpected name: %s", got.Name)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	byName, err := s.GetUserByName(ctx, "alice")
	if err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if byName.ID != "u1" {
		t.Fatalf("unexpected id: %s", byName.ID)
	}

	// Duplicate display name must surface as a conflict.
	err = s.CreateUser(ctx, &store.User{ID: "u2", Name: "alice"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := s.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := s.GetUserByID(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChannelRenameAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateChannel(t, s, "c1", "#general")
	mustCreateChannel(t, s, "c2", "#random")
	mustCreateChannel(t, s, "c3", "#generators")

	results, err := s.SearchChannels(ctx, "GEN")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	all, err := s.SearchChannels(ctx, "")
	if err != nil {
		t.Fatalf("search all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(all))
	}

	if err := s.RenameChannel(ctx, "c2", "#casual"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	renamed, err := s.GetChannelByName(ctx, "#casual")
	if err != nil || renamed.ID != "c2" {
		t.Fatalf("renamed channel not found: %v", err)
	}

	err = s.RenameChannel(ctx, "c3", "#general")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on rename to taken name, got %v", err)
	}

	err = s.RenameChannel(ctx, "missing", "#whatever")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchChannelsTreatsWildcardsAsLiterals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateChannel(t, s, "c1", "#a_b")
	mustCreateChannel(t, s, "c2", "#axb")
	mustCreateChannel(t, s, "c3", "#100%")

	underscore, err := s.SearchChannels(ctx, "a_b")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(underscore) != 1 || underscore[0].Name != "#a_b" {
		t.Fatalf("expected only #a_b, got %+v", underscore)
	}

	percent, err := s.SearchChannels(ctx, "%")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(percent) != 1 || percent[0].Name != "#100%" {
		t.Fatalf("expected only #100%%, got %+v", percent)
	}
}

func TestMembershipNicknameUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "u1", "alice")
	mustCreateUser(t, s, "u2", "bob")
	mustCreateChannel(t, s, "c1", "#general")

	if err := s.AddMember(ctx, &store.Membership{ChannelID: "c1", UserID: "u1", Nickname: "Alice"}); err != nil {
		t.Fatalf("add member: %v", err)
	}

	// Same nickname in the same channel violates the unique constraint.
	err := s.AddMember(ctx, &store.Membership{ChannelID: "c1", UserID: "u2", Nickname: "Alice"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := s.AddMember(ctx, &store.Membership{ChannelID: "c1", UserID: "u2", Nickname: "Alice1234"}); err != nil {
		t.Fatalf("add second member: %v", err)
	}

	owner, err := s.GetMembershipByNickname(ctx, "c1", "Alice1234")
	if err != nil {
		t.Fatalf("get by nickname: %v", err)
	}
	if owner.UserID != "u2" {
		t.Fatalf("unexpected owner: %s", owner.UserID)
	}

	err = s.UpdateNickname(ctx, "c1", "u2", "Alice")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on update to taken nickname, got %v", err)
	}
	if err := s.UpdateNickname(ctx, "c1", "u2", "Bob"); err != nil {
		t.Fatalf("update nickname: %v", err)
	}

	members, err := s.ListMembers(ctx, "c1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	if err := s.RemoveMember(ctx, "c1", "u1"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if err := s.RemoveMember(ctx, "c1", "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double remove, got %v", err)
	}
}

func TestDeleteChannelCascadesMembershipsAndMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateUser(t, s, "u1", "alice")
	mustCreateChannel(t, s, "c1", "#general")
	mustCreateChannel(t, s, "c2", "#random")

	for _, cid := range []string{"c1", "c2"} {
		if err := s.AddMember(ctx, &store.Membership{ChannelID: cid, UserID: "u1", Nickname: "Alice"}); err != nil {
			t.Fatalf("add member to %s: %v", cid, err)
		}
	}

	// A channel with history must still delete cleanly; the messages FK
	// would otherwise reject removing the channel row.
	msg := &store.Message{ID: "m1", ChannelID: "c2", SenderID: "u1", SenderLabel: "Alice", Text: "hi", CreatedAt: time.Now().UTC()}
	if err := s.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save message: %v", err)
	}

	if err := s.DeleteChannel(ctx, "c2"); err != nil {
		t.Fatalf("delete channel: %v", err)
	}

	history, err := s.ListChannelMessages(ctx, "c2", "u1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected history to be removed, got %d messages", len(history))
	}

	if _, err := s.GetMembership(ctx, "c2", "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected membership to be cascaded, got %v", err)
	}

	channels, err := s.ListChannelsOfUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list channels of user: %v", err)
	}
	if len(channels) != 1 || channels[0].ID != "c1" {
		t.Fatalf("unexpected channels after cascade: %+v", channels)
	}

	if err := s.DeleteChannel(ctx, "c2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestListChannelMessagesVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreateChannel(t, s, "c1", "#general")

	now := time.Now().UTC()
	recipient := "u2"
	msgs := []*store.Message{
		{ID: "m1", ChannelID: "c1", SenderID: "u1", SenderLabel: "Alice", Text: "hello all", CreatedAt: now},
		{ID: "m2", ChannelID: "c1", SenderID: "u1", SenderLabel: "Alice", RecipientID: &recipient, Text: "psst", Private: true, CreatedAt: now.Add(time.Second)},
		{ID: "m3", ChannelID: "c1", SenderID: "u3", SenderLabel: "Carol", Text: "hi", CreatedAt: now.Add(2 * time.Second)},
	}
	for _, m := range msgs {
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("save %s: %v", m.ID, err)
		}
	}

	// The sender and the recipient see the private message.
	for _, uid := range []string{"u1", "u2"} {
		list, err := s.ListChannelMessages(ctx, "c1", uid)
		if err != nil {
			t.Fatalf("list for %s: %v", uid, err)
		}
		if len(list) != 3 {
			t.Fatalf("expected 3 messages for %s, got %d", uid, len(list))
		}
	}

	// A third member only sees broadcasts.
	list, err := s.ListChannelMessages(ctx, "c1", "u3")
	if err != nil {
		t.Fatalf("list for u3: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 messages for u3, got %d", len(list))
	}
	for _, m := range list {
		if m.Private {
			t.Fatalf("u3 must not see private message %s", m.ID)
		}
	}

	// Chronological order.
	if list[0].ID != "m1" || list[1].ID != "m3" {
		t.Fatalf("unexpected order: %s, %s", list[0].ID, list[1].ID)
	}
}
