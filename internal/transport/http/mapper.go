package http

import (
	"errors"

	"github.com/samber/lo"

	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/proto"
	"github.com/lbessard/canal/internal/service/membership"
	"github.com/lbessard/canal/internal/store"
)

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMemberJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMemberJoined,
			Data: proto.MemberJoinedEvent{
				UserID:      event.UserID,
				ChannelID:   event.ChannelID,
				ChannelName: event.ChannelName,
				Nickname:    event.Nickname,
			},
		}
	case core.EventMemberLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMemberLeft,
			Data: proto.MemberLeftEvent{
				UserID:    event.UserID,
				ChannelID: event.ChannelID,
				Nickname:  event.Nickname,
			},
		}
	case core.EventMemberRenamed:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMemberRenamed,
			Data: proto.MemberRenamedEvent{
				UserID:      event.UserID,
				ChannelID:   event.ChannelID,
				NewNickname: event.Nickname,
			},
		}
	case core.EventChannelRenamed:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventChannelRenamed,
			Data: proto.ChannelRenamedEvent{
				ChannelID: event.ChannelID,
				OldName:   event.OldName,
				NewName:   event.NewName,
			},
		}
	case core.EventChannelDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventChannelDeleted,
			Data: proto.ChannelDeletedEvent{
				ChannelID: event.ChannelID,
				Name:      event.ChannelName,
			},
		}
	case core.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data:  messagePayload(event.Message),
		}
	case core.EventNewPrivateMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewPrivateMessage,
			Data:  messagePayload(event.Message),
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func messagePayload(msg *store.Message) proto.MessagePayload {
	p := proto.MessagePayload{
		ID:        msg.ID,
		Text:      msg.Text,
		Sender:    msg.SenderLabel,
		SenderID:  msg.SenderID,
		ChannelID: msg.ChannelID,
		IsPrivate: msg.Private,
		Timestamp: msg.CreatedAt,
	}
	if msg.RecipientID != nil {
		p.Recipient = *msg.RecipientID
	}
	return p
}

func channelPayload(view *membership.ChannelView) proto.ChannelPayload {
	return proto.ChannelPayload{
		ChannelID: view.ID,
		Name:      view.Name,
		OldName:   view.OldName,
		Users: lo.Map(view.Members, func(m membership.Member, _ int) proto.ChannelUserPayload {
			return proto.ChannelUserPayload{UserID: m.UserID, Name: m.Nickname}
		}),
		DeletedUserNickname: view.DepartedNickname,
	}
}

func channelSummaries(channels []*store.Channel) []proto.ChannelSummary {
	return lo.Map(channels, func(c *store.Channel, _ int) proto.ChannelSummary {
		return proto.ChannelSummary{ChannelID: c.ID, Name: c.Name}
	})
}

func memberPayloads(members []membership.Member) []proto.MemberPayload {
	return lo.Map(members, func(m membership.Member, _ int) proto.MemberPayload {
		return proto.MemberPayload{UserID: m.UserID, Nickname: m.Nickname}
	})
}

func messagePayloads(messages []*store.Message) []proto.MessagePayload {
	return lo.Map(messages, func(m *store.Message, _ int) proto.MessagePayload {
		return messagePayload(m)
	})
}

// protoError converts any service error into a wire error. Domain errors
// keep their code; anything else is an opaque storage failure.
func protoError(err error) *proto.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return &proto.Error{Code: coreErr.Code, Msg: coreErr.Message}
	}
	return &proto.Error{Code: core.ErrCodeStorage, Msg: err.Error()}
}
