// Package membership owns the set-of-users-per-channel relation and keeps it
// consistent with the per-channel nickname bindings. All mutations of the
// member/nickname aggregate go through the Manager, which serializes them per
// channel and notifies the fan-out layer before releasing the channel lock.
package membership

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/service/nickname"
	"github.com/lbessard/canal/internal/store"
	"github.com/lbessard/canal/internal/utils"
)

// GeneralChannel is the default channel every new user is enrolled into.
// It can never be renamed, deleted, or voluntarily left.
const GeneralChannel = "#general"

// Notifier receives membership state changes while the affected channel's
// lock is still held, so events reach the broadcast group in the order the
// mutations were accepted.
type Notifier interface {
	MemberJoined(channelID, channelName, userID, nickname string)
	MemberLeft(channelID, userID, nickname string)
	MemberRenamed(channelID, userID, newNickname string)
	ChannelRenamed(channelID, oldName, newName string)
	ChannelDeleted(channelID, name string)
}

// Member is a channel member together with their per-channel nickname.
type Member struct {
	UserID   string
	Nickname string
}

// ChannelView is the channel state returned by mutating operations.
type ChannelView struct {
	ID      string
	Name    string
	OldName string
	Members []Member

	// DepartedNickname is the former nickname of the member a Quit removed.
	DepartedNickname string
}

// Manager coordinates channel membership, nickname bindings and fan-out
// notifications.
type Manager struct {
	store    store.Store
	nicks    *nickname.Resolver
	notifier Notifier
	locks    *channelLocks
	log      *zerolog.Logger
}

// NewManager creates a membership manager. The notifier may be nil, in which
// case state changes are not fanned out (useful in tests).
func NewManager(st store.Store, nicks *nickname.Resolver, notifier Notifier, logger *zerolog.Logger) *Manager {
	return &Manager{
		store:    st,
		nicks:    nicks,
		notifier: notifier,
		locks:    newChannelLocks(),
		log:      logger,
	}
}

// normalizeName prefixes a channel name with '#' if absent.
func normalizeName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return name
	}
	if !strings.HasPrefix(name, "#") {
		name = "#" + name
	}
	return name
}

// EnsureGeneral creates the #general channel if it does not exist yet.
func (m *Manager) EnsureGeneral(ctx context.Context) error {
	_, err := m.store.GetChannelByName(ctx, GeneralChannel)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return core.StorageError(err)
	}

	channel := &store.Channel{ID: utils.NewID(), Name: GeneralChannel}
	if err := m.store.CreateChannel(ctx, channel); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another process created it first.
			return nil
		}
		return core.StorageError(err)
	}
	m.log.Info().Str("channel_id", channel.ID).Msg("created default channel")
	return nil
}

// Create creates a channel with the creator as sole member, carrying their
// display name as the initial nickname. The name is normalized to start
// with '#'.
func (m *Manager) Create(ctx context.Context, creatorID, rawName string) (*ChannelView, error) {
	name := normalizeName(rawName)
	if name == "" {
		return nil, core.Validation("Channel name cannot be empty")
	}

	user, err := m.getUser(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	channel := &store.Channel{ID: utils.NewID(), Name: name}
	if err := m.store.CreateChannel(ctx, channel); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, core.ErrNameTaken
		}
		return nil, core.StorageError(err)
	}

	unlock := m.locks.acquire(channel.ID)
	defer unlock()

	nick, err := m.nicks.Assign(ctx, channel.ID, user.ID, user.Name)
	if err != nil {
		// Creation and enrollment are one logical unit; do not leave a
		// memberless channel behind.
		if delErr := m.store.DeleteChannel(ctx, channel.ID); delErr != nil {
			m.log.Warn().
				Err(delErr).
				Str("channel", channel.Name).
				Msg("failed to roll back channel after enroll failure")
		}
		return nil, err
	}
	if m.notifier != nil {
		m.notifier.MemberJoined(channel.ID, channel.Name, user.ID, nick)
	}

	m.log.Info().
		Str("channel", channel.Name).
		Str("creator_id", user.ID).
		Msg("channel created")

	return m.view(ctx, channel)
}

// Join adds a user, looked up by id, to a channel looked up by name, and
// derives their nickname from their display name. Joining a channel the user
// is already a member of keeps the existing binding.
func (m *Manager) Join(ctx context.Context, userID, channelName string) (*ChannelView, string, error) {
	channel, err := m.getChannelByName(ctx, channelName)
	if err != nil {
		return nil, "", err
	}
	user, err := m.getUser(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	unlock := m.locks.acquire(channel.ID)
	defer unlock()

	nick, err := m.nicks.Assign(ctx, channel.ID, user.ID, user.Name)
	if err != nil {
		return nil, "", err
	}
	if m.notifier != nil {
		m.notifier.MemberJoined(channel.ID, channel.Name, user.ID, nick)
	}

	view, err := m.view(ctx, channel)
	if err != nil {
		return nil, "", err
	}
	return view, nick, nil
}

// Quit removes a member from a channel along with their nickname binding.
// Quitting #general is rejected regardless of membership state.
func (m *Manager) Quit(ctx context.Context, userID, channelID string) (*ChannelView, error) {
	channel, err := m.getChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.Name == GeneralChannel {
		return nil, core.DomainRule("Cannot quit " + GeneralChannel)
	}

	unlock := m.locks.acquire(channel.ID)
	defer unlock()

	binding, err := m.store.GetMembership(ctx, channel.ID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrMemberNotFound
		}
		return nil, core.StorageError(err)
	}
	if err := m.store.RemoveMember(ctx, channel.ID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrMemberNotFound
		}
		return nil, core.StorageError(err)
	}
	if m.notifier != nil {
		m.notifier.MemberLeft(channel.ID, userID, binding.Nickname)
	}

	view, err := m.view(ctx, channel)
	if err != nil {
		return nil, err
	}
	view.DepartedNickname = binding.Nickname
	return view, nil
}

// RenameMember changes a member's nickname in a channel and fans the change
// out to the channel's group.
func (m *Manager) RenameMember(ctx context.Context, userID, channelID, newName string) (string, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return "", core.Validation("Nickname cannot be empty")
	}
	channel, err := m.getChannel(ctx, channelID)
	if err != nil {
		return "", err
	}

	unlock := m.locks.acquire(channel.ID)
	defer unlock()

	current, err := m.nicks.Resolve(ctx, channel.ID, userID)
	if err != nil {
		return "", err
	}
	nick, err := m.nicks.Rename(ctx, channel.ID, userID, newName)
	if err != nil {
		return "", err
	}
	if nick != current && m.notifier != nil {
		m.notifier.MemberRenamed(channel.ID, userID, nick)
	}
	return nick, nil
}

// Rename changes a channel's name. Membership and nicknames are untouched.
// Renaming #general is a domain-rule violation, never a silent no-op.
func (m *Manager) Rename(ctx context.Context, channelID, newName string) (*ChannelView, error) {
	name := normalizeName(newName)
	if name == "" {
		return nil, core.Validation("Channel name cannot be empty")
	}
	channel, err := m.getChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.Name == GeneralChannel {
		return nil, core.DomainRule(GeneralChannel + " cannot be renamed")
	}

	unlock := m.locks.acquire(channel.ID)
	defer unlock()

	if err := m.store.RenameChannel(ctx, channel.ID, name); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, core.ErrChannelNotFound
		case errors.Is(err, store.ErrConflict):
			return nil, core.ErrNameTaken
		default:
			return nil, core.StorageError(err)
		}
	}
	oldName := channel.Name
	channel.Name = name
	if m.notifier != nil {
		m.notifier.ChannelRenamed(channel.ID, oldName, name)
	}

	view, err := m.view(ctx, channel)
	if err != nil {
		return nil, err
	}
	view.OldName = oldName
	return view, nil
}

// Delete removes a channel, cascading all its nickname bindings, and evicts
// every session from its broadcast group. Deleting #general is rejected.
func (m *Manager) Delete(ctx context.Context, channelID string) (*store.Channel, error) {
	channel, err := m.getChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if channel.Name == GeneralChannel {
		return nil, core.DomainRule(GeneralChannel + " cannot be deleted")
	}

	unlock := m.locks.acquire(channel.ID)
	defer unlock()

	if err := m.store.DeleteChannel(ctx, channel.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrChannelNotFound
		}
		return nil, core.StorageError(err)
	}
	if m.notifier != nil {
		m.notifier.ChannelDeleted(channel.ID, channel.Name)
	}

	m.log.Info().Str("channel", channel.Name).Msg("channel deleted")
	return channel, nil
}

// DeleteByName deletes a channel addressed by name instead of id.
func (m *Manager) DeleteByName(ctx context.Context, channelName string) (*store.Channel, error) {
	channel, err := m.getChannelByName(ctx, channelName)
	if err != nil {
		return nil, err
	}
	return m.Delete(ctx, channel.ID)
}

// Channels lists channels whose name contains the search substring,
// case-insensitively. Empty search returns all channels.
func (m *Manager) Channels(ctx context.Context, search string) ([]*store.Channel, error) {
	channels, err := m.store.SearchChannels(ctx, search)
	if err != nil {
		return nil, core.StorageError(err)
	}
	return channels, nil
}

// ChannelsOfUser lists the channels a user is currently a member of. A user
// with no channels yields an empty list, not an error.
func (m *Manager) ChannelsOfUser(ctx context.Context, userID string) ([]*store.Channel, error) {
	if _, err := m.getUser(ctx, userID); err != nil {
		return nil, err
	}
	channels, err := m.store.ListChannelsOfUser(ctx, userID)
	if err != nil {
		return nil, core.StorageError(err)
	}
	return channels, nil
}

// Members lists the members of a channel with their nicknames.
func (m *Manager) Members(ctx context.Context, channelID string) ([]Member, error) {
	channel, err := m.getChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return m.members(ctx, channel.ID)
}

// Channel retrieves a channel by id.
func (m *Manager) Channel(ctx context.Context, channelID string) (*store.Channel, error) {
	return m.getChannel(ctx, channelID)
}

// ChannelByName retrieves a channel by name.
func (m *Manager) ChannelByName(ctx context.Context, name string) (*store.Channel, error) {
	return m.getChannelByName(ctx, name)
}

func (m *Manager) getUser(ctx context.Context, userID string) (*store.User, error) {
	user, err := m.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, core.StorageError(err)
	}
	return user, nil
}

func (m *Manager) getChannel(ctx context.Context, channelID string) (*store.Channel, error) {
	channel, err := m.store.GetChannelByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrChannelNotFound
		}
		return nil, core.StorageError(err)
	}
	return channel, nil
}

func (m *Manager) getChannelByName(ctx context.Context, name string) (*store.Channel, error) {
	channel, err := m.store.GetChannelByName(ctx, normalizeName(name))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrChannelNotFound
		}
		return nil, core.StorageError(err)
	}
	return channel, nil
}

func (m *Manager) members(ctx context.Context, channelID string) ([]Member, error) {
	bindings, err := m.store.ListMembers(ctx, channelID)
	if err != nil {
		return nil, core.StorageError(err)
	}
	members := make([]Member, 0, len(bindings))
	for _, b := range bindings {
		members = append(members, Member{UserID: b.UserID, Nickname: b.Nickname})
	}
	return members, nil
}

func (m *Manager) view(ctx context.Context, channel *store.Channel) (*ChannelView, error) {
	members, err := m.members(ctx, channel.ID)
	if err != nil {
		return nil, err
	}
	return &ChannelView{ID: channel.ID, Name: channel.Name, Members: members}, nil
}
