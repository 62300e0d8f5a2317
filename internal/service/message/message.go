// Package message validates and routes channel broadcasts and
// channel-scoped private messages.
package message

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/service/nickname"
	"github.com/lbessard/canal/internal/store"
	"github.com/lbessard/canal/internal/utils"
)

// Gateway is the fan-out surface the router delivers through.
type Gateway interface {
	BroadcastMessage(channelID string, msg *store.Message)
	DeliverPrivate(channelID, senderID, recipientID string, msg *store.Message)
	IsUserOnline(userID string) bool
}

// Router persists messages and hands them to the fan-out gateway.
type Router struct {
	store   store.Store
	nicks   *nickname.Resolver
	gateway Gateway
	log     *zerolog.Logger
}

// NewRouter creates a message router.
func NewRouter(st store.Store, nicks *nickname.Resolver, gateway Gateway, logger *zerolog.Logger) *Router {
	return &Router{store: st, nicks: nicks, gateway: gateway, log: logger}
}

// SendChannelMessage persists a broadcast message and fans it out to the
// channel's group. The sender must be a current channel member.
func (r *Router) SendChannelMessage(ctx context.Context, senderID, channelID, text string) (*store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.Validation("Message text cannot be empty")
	}
	if _, err := r.channel(ctx, channelID); err != nil {
		return nil, err
	}

	binding, err := r.store.GetMembership(ctx, channelID, senderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.DomainRule("Sender must be a member of the channel")
		}
		return nil, core.StorageError(err)
	}

	msg := &store.Message{
		ID:          utils.NewID(),
		ChannelID:   channelID,
		SenderID:    senderID,
		SenderLabel: binding.Nickname,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.SaveMessage(ctx, msg); err != nil {
		return nil, core.StorageError(err)
	}
	r.gateway.BroadcastMessage(channelID, msg)
	return msg, nil
}

// SendPrivateMessage persists a private message addressed by the recipient's
// current nickname in the channel, and delivers it to the sender's and
// recipient's sessions only.
func (r *Router) SendPrivateMessage(ctx context.Context, senderID, channelID, recipientNickname, text string) (*store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.Validation("Message text cannot be empty")
	}
	if strings.TrimSpace(recipientNickname) == "" {
		return nil, core.Validation("Recipient is required")
	}
	if _, err := r.channel(ctx, channelID); err != nil {
		return nil, err
	}

	senderBinding, err := r.store.GetMembership(ctx, channelID, senderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.DomainRule("Both users must be members of the channel to exchange private messages")
		}
		return nil, core.StorageError(err)
	}

	recipientID, err := r.nicks.ResolveUser(ctx, channelID, recipientNickname)
	if err != nil {
		if errors.Is(err, core.ErrMemberNotFound) {
			return nil, core.RecipientNotFound("Recipient not found in channel")
		}
		return nil, err
	}
	if !r.gateway.IsUserOnline(recipientID) {
		return nil, core.RecipientNotFound("Recipient is not online")
	}

	msg := &store.Message{
		ID:          utils.NewID(),
		ChannelID:   channelID,
		SenderID:    senderID,
		SenderLabel: senderBinding.Nickname,
		RecipientID: &recipientID,
		Text:        text,
		Private:     true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.SaveMessage(ctx, msg); err != nil {
		return nil, core.StorageError(err)
	}
	r.gateway.DeliverPrivate(channelID, senderID, recipientID, msg)
	return msg, nil
}

// ChannelMessages returns all messages relevant to the user in a channel:
// broadcasts plus private messages they sent or received there.
func (r *Router) ChannelMessages(ctx context.Context, userID, channelID string) ([]*store.Message, error) {
	if _, err := r.channel(ctx, channelID); err != nil {
		return nil, err
	}
	if _, err := r.store.GetMembership(ctx, channelID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.DomainRule("User is not a member of this channel")
		}
		return nil, core.StorageError(err)
	}

	messages, err := r.store.ListChannelMessages(ctx, channelID, userID)
	if err != nil {
		return nil, core.StorageError(err)
	}
	return messages, nil
}

func (r *Router) channel(ctx context.Context, channelID string) (*store.Channel, error) {
	channel, err := r.store.GetChannelByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrChannelNotFound
		}
		return nil, core.StorageError(err)
	}
	return channel, nil
}
