// Package proto defines the JSON wire envelope and payload shapes exchanged
// with clients over the WebSocket session.
package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for requests coming from the client. Seq is echoed
// back on the acknowledgement so the client can correlate replies.
type Inbound struct {
	Seq  int64           `json:"seq"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Request types accepted from clients.
const (
	ReqChooseName         = "chooseName"
	ReqCreateChannel      = "createChannel"
	ReqJoinChannel        = "joinChannel"
	ReqQuitChannel        = "quitChannel"
	ReqRenameChannel      = "renameChannel"
	ReqDeleteChannel      = "deleteChannel"
	ReqListChannels       = "listChannels"
	ReqListChannelsOfUser = "listChannelsOfUser"
	ReqListUsersInChannel = "listUsersInChannel"
	ReqGetChannelID       = "getChannelId"
	ReqGetChannelMessages = "getChannelMessages"
	ReqGetNickname        = "getNickname"
	ReqChangeName         = "changeName"
	ReqChannelMessage     = "channelMessage"
	ReqPrivateMessage     = "privateMessage"
)

// Outbound envelope types.
const (
	OutboundTypeAck   = "ack"
	OutboundTypeEvent = "event"
)

// Event names broadcast to channel groups.
const (
	EventMemberJoined      = "member-joined"
	EventMemberLeft        = "member-left"
	EventMemberRenamed     = "member-renamed"
	EventChannelRenamed    = "channel-renamed"
	EventChannelDeleted    = "channel-deleted"
	EventNewMessage        = "new-message"
	EventNewPrivateMessage = "new-private-message"
)

// Outbound is the envelope for messages sent to the client: either the
// direct acknowledgement of a request, or a server-initiated event.
type Outbound struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	Success bool   `json:"success,omitempty"`
	Event   string `json:"event,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error describes a failed request.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// ==== request payloads ====

// ChooseNameData picks a display name; blank requests a generated one.
type ChooseNameData struct {
	Name string `json:"name"`
}

// CreateChannelData creates a channel owned by nobody in particular, with
// the requesting user as sole member.
type CreateChannelData struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// JoinChannelData adds a user to a channel addressed by name.
type JoinChannelData struct {
	UserID      string `json:"userId"`
	ChannelName string `json:"channelName"`
}

// QuitChannelData removes a user from a channel.
type QuitChannelData struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
}

// RenameChannelData renames a channel.
type RenameChannelData struct {
	ChannelID string `json:"channelId"`
	NewName   string `json:"newName"`
}

// DeleteChannelData deletes a channel addressed by id or, failing that, name.
type DeleteChannelData struct {
	ChannelID string `json:"channelId"`
	Name      string `json:"name"`
}

// ListChannelsData filters channels by a case-insensitive substring.
type ListChannelsData struct {
	SearchString string `json:"searchString"`
}

// ListChannelsOfUserData lists a user's channels.
type ListChannelsOfUserData struct {
	UserID string `json:"userId"`
}

// ListUsersInChannelData lists a channel's members.
type ListUsersInChannelData struct {
	ChannelID string `json:"channelId"`
}

// GetChannelIDData resolves a channel name to its id.
type GetChannelIDData struct {
	ChannelName string `json:"channelName"`
}

// GetChannelMessagesData fetches the requesting user's view of a channel's
// message history.
type GetChannelMessagesData struct {
	ChannelID string `json:"channelId"`
}

// GetNicknameData resolves a user's nickname in a channel.
type GetNicknameData struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
}

// ChangeNameData changes a user's nickname in a channel.
type ChangeNameData struct {
	UserID    string `json:"userId"`
	NewName   string `json:"newName"`
	ChannelID string `json:"channelId"`
}

// ChannelMessageData is a broadcast message to a channel.
type ChannelMessageData struct {
	Text      string `json:"text"`
	ChannelID string `json:"channelId"`
}

// PrivateMessageData is a private message addressed by the recipient's
// nickname within the channel.
type PrivateMessageData struct {
	Text              string `json:"text"`
	RecipientNickname string `json:"recipientNickname"`
	ChannelID         string `json:"channelId"`
}

// ==== response payloads ====

// UserPayload identifies a user by id and global display name.
type UserPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChannelUserPayload is a channel member as shown inside a channel: the
// name is the member's per-channel nickname.
type ChannelUserPayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// MemberPayload is a member row of listUsersInChannel.
type MemberPayload struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
}

// ChannelPayload is the channel shape returned by mutating channel requests.
type ChannelPayload struct {
	ChannelID           string               `json:"channel_id"`
	Name                string               `json:"name"`
	OldName             string               `json:"old_name,omitempty"`
	Users               []ChannelUserPayload `json:"users,omitempty"`
	DeletedUserNickname string               `json:"deletedUserNickname,omitempty"`
}

// ChannelSummary is a channel row of listChannels / listChannelsOfUser.
type ChannelSummary struct {
	ChannelID string `json:"channel_id"`
	Name      string `json:"name"`
}

// MessagePayload is a chat message as shown to clients. Sender is the
// sender's nickname at send time; Recipient is set on private messages.
type MessagePayload struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	SenderID  string    `json:"sender_id"`
	ChannelID string    `json:"channel_id"`
	IsPrivate bool      `json:"isPrivate"`
	Recipient string    `json:"recipient_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ==== acknowledgement payloads ====

// ChooseNameResult carries the created user and a session token the client
// can reconnect with.
type ChooseNameResult struct {
	User  UserPayload `json:"user"`
	Token string      `json:"token,omitempty"`
}

// ChannelResult wraps a channel payload.
type ChannelResult struct {
	Channel ChannelPayload `json:"channel"`
}

// ChannelsResult wraps a channel listing.
type ChannelsResult struct {
	Channels []ChannelSummary `json:"channels"`
}

// MembersResult wraps a member listing.
type MembersResult struct {
	Users []MemberPayload `json:"users"`
}

// ChannelIDResult resolves getChannelId.
type ChannelIDResult struct {
	ChannelID string `json:"channelId"`
}

// NicknameResult resolves getNickname.
type NicknameResult struct {
	Nickname string `json:"nickname"`
}

// NewNameResult resolves changeName.
type NewNameResult struct {
	NewName string `json:"newName"`
}

// MessageResult wraps a single message.
type MessageResult struct {
	Message MessagePayload `json:"message"`
}

// MessagesResult wraps a message history listing.
type MessagesResult struct {
	Messages []MessagePayload `json:"messages"`
}

// ==== event payloads ====

// MemberJoinedEvent announces a user joining a channel.
type MemberJoinedEvent struct {
	UserID      string `json:"userId"`
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
	Nickname    string `json:"nickname"`
}

// MemberLeftEvent announces a member leaving a channel, carrying the
// nickname they held.
type MemberLeftEvent struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
	Nickname  string `json:"nickname"`
}

// MemberRenamedEvent announces a member's new nickname.
type MemberRenamedEvent struct {
	UserID      string `json:"userId"`
	ChannelID   string `json:"channelId"`
	NewNickname string `json:"newNickname"`
}

// ChannelRenamedEvent announces a channel rename.
type ChannelRenamedEvent struct {
	ChannelID string `json:"channelId"`
	OldName   string `json:"oldName"`
	NewName   string `json:"newName"`
}

// ChannelDeletedEvent announces a channel deletion.
type ChannelDeletedEvent struct {
	ChannelID string `json:"channelId"`
	Name      string `json:"name"`
}
