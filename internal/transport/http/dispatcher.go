package http

import (
	"context"
	"encoding/json"

	"github.com/lbessard/canal/internal/auth"
	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/proto"
	"github.com/lbessard/canal/internal/service/identity"
	"github.com/lbessard/canal/internal/service/membership"
	"github.com/lbessard/canal/internal/service/message"
	"github.com/lbessard/canal/internal/service/nickname"
	"github.com/lbessard/canal/internal/store"
)

// Services bundles everything the transport layer dispatches into.
type Services struct {
	Identity *identity.Service
	Members  *membership.Manager
	Messages *message.Router
	Nicks    *nickname.Resolver
	Auth     *auth.Service
	Hub      *core.Hub
}

func ack(seq int64, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeAck, Seq: seq, Success: true, Data: data}
}

func nack(seq int64, err error) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeAck, Seq: seq, Success: false, Error: protoError(err)}
}

// dispatch executes one client request to completion, including its fan-out,
// and returns the direct acknowledgement for the caller. Failures never
// escape: they all become a failure ack.
func (h *WSHandler) dispatch(ctx context.Context, client *core.Client, inbound proto.Inbound) proto.Outbound {
	switch inbound.Type {
	case proto.ReqChooseName:
		return h.chooseName(ctx, client, inbound)
	case proto.ReqCreateChannel:
		return h.createChannel(ctx, inbound)
	case proto.ReqJoinChannel:
		return h.joinChannel(ctx, inbound)
	case proto.ReqQuitChannel:
		return h.quitChannel(ctx, inbound)
	case proto.ReqRenameChannel:
		return h.renameChannel(ctx, inbound)
	case proto.ReqDeleteChannel:
		return h.deleteChannel(ctx, inbound)
	case proto.ReqListChannels:
		return h.listChannels(ctx, inbound)
	case proto.ReqListChannelsOfUser:
		return h.listChannelsOfUser(ctx, inbound)
	case proto.ReqListUsersInChannel:
		return h.listUsersInChannel(ctx, inbound)
	case proto.ReqGetChannelID:
		return h.getChannelID(ctx, inbound)
	case proto.ReqGetChannelMessages:
		return h.getChannelMessages(ctx, client, inbound)
	case proto.ReqGetNickname:
		return h.getNickname(ctx, inbound)
	case proto.ReqChangeName:
		return h.changeName(ctx, inbound)
	case proto.ReqChannelMessage:
		return h.channelMessage(ctx, client, inbound)
	case proto.ReqPrivateMessage:
		return h.privateMessage(ctx, client, inbound)
	default:
		return nack(inbound.Seq, core.Validation("unknown request type"))
	}
}

func decode[T any](inbound proto.Inbound) (T, error) {
	var data T
	if len(inbound.Data) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(inbound.Data, &data); err != nil {
		return data, core.Validation("malformed request data")
	}
	return data, nil
}

func (h *WSHandler) chooseName(ctx context.Context, client *core.Client, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.ChooseNameData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}

	// Bind the session before enrollment so the auto-join into #general
	// reaches this session too.
	user, err := h.svc.Identity.CreateUser(ctx, data.Name, func(u *store.User) {
		if u == nil {
			// Creation was rolled back; the binding must not survive it.
			h.svc.Hub.UnbindUser(client)
			return
		}
		h.svc.Hub.BindUser(client, u.ID, u.Name)
	})
	if err != nil {
		return nack(inbound.Seq, err)
	}

	token, err := h.svc.Auth.TokenFor(user)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to issue session token")
	}

	return ack(inbound.Seq, proto.ChooseNameResult{
		User:  proto.UserPayload{ID: user.ID, Name: user.Name},
		Token: token,
	})
}

func (h *WSHandler) createChannel(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.CreateChannelData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	view, err := h.svc.Members.Create(ctx, data.UserID, data.Name)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.ChannelResult{Channel: channelPayload(view)})
}

func (h *WSHandler) joinChannel(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.JoinChannelData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	view, _, err := h.svc.Members.Join(ctx, data.UserID, data.ChannelName)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.ChannelResult{Channel: channelPayload(view)})
}

func (h *WSHandler) quitChannel(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.QuitChannelData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	view, err := h.svc.Members.Quit(ctx, data.UserID, data.ChannelID)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.ChannelResult{Channel: channelPayload(view)})
}

func (h *WSHandler) renameChannel(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.RenameChannelData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	view, err := h.svc.Members.Rename(ctx, data.ChannelID, data.NewName)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.ChannelResult{Channel: channelPayload(view)})
}

func (h *WSHandler) deleteChannel(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.DeleteChannelData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}

	var channel *store.Channel
	if data.ChannelID != "" {
		channel, err = h.svc.Members.Delete(ctx, data.ChannelID)
	} else {
		channel, err = h.svc.Members.DeleteByName(ctx, data.Name)
	}
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.ChannelResult{Channel: proto.ChannelPayload{
		ChannelID: channel.ID,
		Name:      channel.Name,
	}})
}

func (h *WSHandler) listChannels(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.ListChannelsData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	channels, err := h.svc.Members.Channels(ctx, data.SearchString)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.ChannelsResult{Channels: channelSummaries(channels)})
}

func (h *WSHandler) listChannelsOfUser(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.ListChannelsOfUserData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	channels, err := h.svc.Members.ChannelsOfUser(ctx, data.UserID)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.ChannelsResult{Channels: channelSummaries(channels)})
}

func (h *WSHandler) listUsersInChannel(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.ListUsersInChannelData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	members, err := h.svc.Members.Members(ctx, data.ChannelID)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.MembersResult{Users: memberPayloads(members)})
}

func (h *WSHandler) getChannelID(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.GetChannelIDData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	channel, err := h.svc.Members.ChannelByName(ctx, data.ChannelName)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.ChannelIDResult{ChannelID: channel.ID})
}

func (h *WSHandler) getChannelMessages(ctx context.Context, client *core.Client, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.GetChannelMessagesData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	if client.UserID == "" {
		return nack(inbound.Seq, core.DomainRule("Choose a name before reading messages"))
	}
	messages, err := h.svc.Messages.ChannelMessages(ctx, client.UserID, data.ChannelID)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.MessagesResult{Messages: messagePayloads(messages)})
}

func (h *WSHandler) getNickname(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.GetNicknameData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	nick, err := h.svc.Nicks.Resolve(ctx, data.ChannelID, data.UserID)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.NicknameResult{Nickname: nick})
}

func (h *WSHandler) changeName(ctx context.Context, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.ChangeNameData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	nick, err := h.svc.Members.RenameMember(ctx, data.UserID, data.ChannelID, data.NewName)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.NewNameResult{NewName: nick})
}

func (h *WSHandler) channelMessage(ctx context.Context, client *core.Client, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.ChannelMessageData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	if client.UserID == "" {
		return nack(inbound.Seq, core.DomainRule("Choose a name before sending a message"))
	}
	msg, err := h.svc.Messages.SendChannelMessage(ctx, client.UserID, data.ChannelID, data.Text)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.MessageResult{Message: messagePayload(msg)})
}

func (h *WSHandler) privateMessage(ctx context.Context, client *core.Client, inbound proto.Inbound) proto.Outbound {
	data, err := decode[proto.PrivateMessageData](inbound)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	if client.UserID == "" {
		return nack(inbound.Seq, core.DomainRule("Choose a name before sending a message"))
	}
	msg, err := h.svc.Messages.SendPrivateMessage(ctx, client.UserID, data.ChannelID, data.RecipientNickname, data.Text)
	if err != nil {
		return nack(inbound.Seq, err)
	}
	return ack(inbound.Seq, proto.MessageResult{Message: messagePayload(msg)})
}
