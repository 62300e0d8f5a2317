package core

// Client is a live session as seen by the fan-out layer. UserID is empty
// until the session authenticates by choosing a name or presenting a token.
type Client struct {
	ID     string
	UserID string
	Name   string
	Events chan *Event
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id string) *Client {
	return &Client{
		ID:     id,
		Events: make(chan *Event, 32),
	}
}
