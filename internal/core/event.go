package core

import "github.com/lbessard/canal/internal/store"

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventMemberJoined notifies a channel that a user joined it.
	EventMemberJoined EventKind = iota
	// EventMemberLeft notifies a channel that a member left it.
	EventMemberLeft
	// EventMemberRenamed notifies a channel that a member changed nickname.
	EventMemberRenamed
	// EventChannelRenamed notifies a channel that it was renamed.
	EventChannelRenamed
	// EventChannelDeleted notifies a channel that it was deleted.
	EventChannelDeleted
	// EventNewMessage delivers a channel broadcast message.
	EventNewMessage
	// EventNewPrivateMessage delivers a channel-scoped private message.
	EventNewPrivateMessage
)

// Event describes a state change delivered to every session in a channel's
// broadcast group. Fields beyond Kind and ChannelID are populated per kind.
type Event struct {
	Kind        EventKind
	ChannelID   string
	ChannelName string
	UserID      string
	Nickname    string
	OldName     string
	NewName     string
	Message     *store.Message
}
