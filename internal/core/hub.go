package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lbessard/canal/internal/store"
)

// Hub maps channels to broadcast groups and fans events out to the live
// sessions attached to them. Group membership is a derived, best-effort view
// of the storage state: it is rebuilt for a session at (re)connect from the
// user's persisted channel list.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Client
	byUser   map[string]map[*Client]struct{}
	groups   map[string]*Group
	log      *zerolog.Logger
}

// NewHub creates a new fan-out hub.
func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Client),
		byUser:   make(map[string]map[*Client]struct{}),
		groups:   make(map[string]*Group),
		log:      logger,
	}
}

// RegisterSession adds a session to the registry. The session carries no
// user identity until BindUser.
func (h *Hub) RegisterSession(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[c.ID] = c
}

// UnregisterSession removes a session from the registry and every group it
// is attached to, and closes its event channel.
func (h *Hub) UnregisterSession(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[c.ID]; !ok {
		return
	}
	delete(h.sessions, c.ID)
	h.unbindLocked(c)
	for id, group := range h.groups {
		group.RemoveClient(c)
		if group.Empty() {
			delete(h.groups, id)
		}
	}
	close(c.Events)
}

// BindUser associates a session with an authenticated user. A session that
// re-authenticates under a new identity is detached from its old one.
func (h *Hub) BindUser(c *Client, userID, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unbindLocked(c)
	c.UserID = userID
	c.Name = name
	set, ok := h.byUser[userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byUser[userID] = set
	}
	set[c] = struct{}{}
}

// UnbindUser reverts BindUser, leaving the session connected but anonymous.
func (h *Hub) UnbindUser(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unbindLocked(c)
	c.UserID = ""
	c.Name = ""
}

func (h *Hub) unbindLocked(c *Client) {
	if c.UserID == "" {
		return
	}
	if set, ok := h.byUser[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
}

// Reconcile attaches a session to the groups of every channel the user is a
// persisted member of. Called at session (re)connect.
func (h *Hub) Reconcile(c *Client, channelIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range channelIDs {
		h.groupLocked(id).AddClient(c)
	}
}

// IsUserOnline reports whether the user has at least one live session.
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byUser[userID]) > 0
}

func (h *Hub) groupLocked(channelID string) *Group {
	group, ok := h.groups[channelID]
	if !ok {
		group = NewGroup(channelID)
		h.groups[channelID] = group
	}
	return group
}

func (h *Hub) attachUserLocked(group *Group, userID string) {
	for client := range h.byUser[userID] {
		group.AddClient(client)
	}
}

func (h *Hub) detachUserLocked(group *Group, userID string) {
	for client := range h.byUser[userID] {
		group.RemoveClient(client)
	}
}

// MemberJoined attaches the user's sessions to the channel's group and
// broadcasts the join to every session in it, the joiner included.
func (h *Hub) MemberJoined(channelID, channelName, userID, nickname string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.groupLocked(channelID)
	h.attachUserLocked(group, userID)
	group.Broadcast(&Event{
		Kind:        EventMemberJoined,
		ChannelID:   channelID,
		ChannelName: channelName,
		UserID:      userID,
		Nickname:    nickname,
	})
}

// MemberLeft detaches the user's sessions from the group, then broadcasts
// the departure to the remaining sessions.
func (h *Hub) MemberLeft(channelID, userID, nickname string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.groupLocked(channelID)
	h.detachUserLocked(group, userID)
	group.Broadcast(&Event{
		Kind:      EventMemberLeft,
		ChannelID: channelID,
		UserID:    userID,
		Nickname:  nickname,
	})
}

// MemberRenamed broadcasts a nickname change to the channel's group.
func (h *Hub) MemberRenamed(channelID, userID, newNickname string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.groupLocked(channelID).Broadcast(&Event{
		Kind:      EventMemberRenamed,
		ChannelID: channelID,
		UserID:    userID,
		Nickname:  newNickname,
	})
}

// ChannelRenamed broadcasts a channel rename to the channel's group.
func (h *Hub) ChannelRenamed(channelID, oldName, newName string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.groupLocked(channelID).Broadcast(&Event{
		Kind:      EventChannelRenamed,
		ChannelID: channelID,
		OldName:   oldName,
		NewName:   newName,
	})
}

// ChannelDeleted broadcasts the deletion to the group, then evicts every
// session from it.
func (h *Hub) ChannelDeleted(channelID, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	group := h.groupLocked(channelID)
	group.Broadcast(&Event{
		Kind:        EventChannelDeleted,
		ChannelID:   channelID,
		ChannelName: name,
	})
	delete(h.groups, channelID)
}

// BroadcastMessage delivers a channel message to every session in the
// channel's group.
func (h *Hub) BroadcastMessage(channelID string, msg *store.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.groupLocked(channelID).Broadcast(&Event{
		Kind:      EventNewMessage,
		ChannelID: channelID,
		Message:   msg,
	})
}

// DeliverPrivate delivers a private message to the sender's and recipient's
// sessions only, never to the rest of the channel group.
func (h *Hub) DeliverPrivate(channelID, senderID, recipientID string, msg *store.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	event := &Event{
		Kind:      EventNewPrivateMessage,
		ChannelID: channelID,
		Message:   msg,
	}
	h.sendToUserLocked(senderID, event)
	if recipientID != senderID {
		h.sendToUserLocked(recipientID, event)
	}
}

func (h *Hub) sendToUserLocked(userID string, event *Event) {
	for client := range h.byUser[userID] {
		select {
		case client.Events <- event:
		default:
			if h.log != nil {
				h.log.Warn().Str("session_id", client.ID).Msg("dropping event for slow session")
			}
		}
	}
}
