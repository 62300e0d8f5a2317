package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("unique constraint violation")
)

// User is a chat participant identified by a globally unique display name.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Channel is a named room users can join.
type Channel struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Membership binds a user to a channel under a per-channel nickname.
// It is the single relation backing both the channel member set and the
// nickname bindings: removing a row removes both at once.
type Membership struct {
	ChannelID string
	UserID    string
	Nickname  string
	JoinedAt  time.Time
}

// Message is a persisted chat message. SenderLabel is the sender's nickname
// at send time; RecipientID is nil for channel broadcasts.
type Message struct {
	ID          string
	ChannelID   string
	SenderID    string
	SenderLabel string
	RecipientID *string
	Text        string
	Private     bool
	CreatedAt   time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser persists a new user. Returns ErrConflict if the display
	// name is already taken.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByName retrieves a user by display name.
	GetUserByName(ctx context.Context, name string) (*User, error)

	// DeleteUser removes a user record.
	DeleteUser(ctx context.Context, id string) error
}

// ChannelStore handles channel persistence.
type ChannelStore interface {
	// CreateChannel persists a new channel. Returns ErrConflict if the
	// name is already taken.
	CreateChannel(ctx context.Context, channel *Channel) error

	// GetChannelByID retrieves a channel by ID.
	GetChannelByID(ctx context.Context, id string) (*Channel, error)

	// GetChannelByName retrieves a channel by name.
	GetChannelByName(ctx context.Context, name string) (*Channel, error)

	// RenameChannel updates a channel's name. Returns ErrConflict if the
	// new name is already taken, ErrNotFound if the channel is missing.
	RenameChannel(ctx context.Context, id, newName string) error

	// DeleteChannel removes a channel and cascades its memberships and
	// message history.
	DeleteChannel(ctx context.Context, id string) error

	// SearchChannels lists channels whose name contains the given
	// substring, case-insensitively. Empty substring matches all.
	SearchChannels(ctx context.Context, substring string) ([]*Channel, error)

	// ListChannelsOfUser lists channels the user is currently a member of.
	ListChannelsOfUser(ctx context.Context, userID string) ([]*Channel, error)
}

// MembershipStore handles the per-channel member/nickname relation.
type MembershipStore interface {
	// AddMember inserts a membership row. Returns ErrConflict if the user
	// is already a member or the nickname is taken in the channel.
	AddMember(ctx context.Context, m *Membership) error

	// UpdateNickname changes an existing member's nickname in place.
	// Returns ErrNotFound if no membership exists, ErrConflict if the
	// nickname is taken in the channel.
	UpdateNickname(ctx context.Context, channelID, userID, nickname string) error

	// RemoveMember deletes a membership row. Returns ErrNotFound if no
	// membership exists.
	RemoveMember(ctx context.Context, channelID, userID string) error

	// GetMembership retrieves the membership of a user in a channel.
	GetMembership(ctx context.Context, channelID, userID string) (*Membership, error)

	// GetMembershipByNickname retrieves the membership holding the given
	// nickname in a channel.
	GetMembershipByNickname(ctx context.Context, channelID, nickname string) (*Membership, error)

	// ListMembers lists all memberships of a channel.
	ListMembers(ctx context.Context, channelID string) ([]*Membership, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListChannelMessages retrieves all messages relevant to a user in a
	// channel, ordered by creation time ascending: channel broadcasts plus
	// private messages the user sent or received there.
	ListChannelMessages(ctx context.Context, channelID, userID string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChannelStore
	MembershipStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
