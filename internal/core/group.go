package core

// Group is the broadcast group of a channel: the set of live sessions
// currently attached to it.
type Group struct {
	ChannelID string
	clients   map[*Client]struct{}
}

// NewGroup constructs a group with no sessions.
func NewGroup(channelID string) *Group {
	return &Group{
		ChannelID: channelID,
		clients:   make(map[*Client]struct{}),
	}
}

// AddClient inserts a session into the group. Returns true if newly added.
func (g *Group) AddClient(c *Client) bool {
	if _, exists := g.clients[c]; exists {
		return false
	}
	g.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a session from the group. Returns true if removed.
func (g *Group) RemoveClient(c *Client) bool {
	if _, exists := g.clients[c]; !exists {
		return false
	}
	delete(g.clients, c)
	return true
}

// Broadcast sends an event to all sessions in the group. Delivery is
// best-effort per recipient: slow consumers are dropped, never blocked on.
func (g *Group) Broadcast(event *Event) {
	for client := range g.clients {
		select {
		case client.Events <- event:
		default:
			// Drop if slow consumer.
		}
	}
}

// Empty returns true if no sessions are in the group.
func (g *Group) Empty() bool {
	return len(g.clients) == 0
}
