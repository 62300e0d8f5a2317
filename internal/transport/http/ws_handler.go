package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/lbessard/canal/internal/core"
	"github.com/lbessard/canal/internal/proto"
	"github.com/lbessard/canal/internal/store"
	"github.com/lbessard/canal/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client
// sessions.
type WSHandler struct {
	svc         *Services
	maxMsgBytes int64
	log         *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(svc *Services, maxMsgBytes int64, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{svc: svc, maxMsgBytes: maxMsgBytes, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(h.maxMsgBytes)

	client := core.NewClient(utils.NewID())
	h.svc.Hub.RegisterSession(client)
	defer h.svc.Hub.UnregisterSession(client)

	// A token in the query string resumes an existing identity, so the
	// session sees its channels' events without choosing a name again.
	if token := r.URL.Query().Get("token"); token != "" {
		if err := h.resumeSession(ctx, client, token); err != nil {
			h.log.Warn().Err(err).Str("session_id", client.ID).Msg("session resume rejected")
			conn.Close(websocket.StatusPolicyViolation, "invalid token")
			return
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) resumeSession(ctx context.Context, client *core.Client, token string) error {
	claims, err := h.svc.Auth.Validate(token)
	if err != nil {
		return err
	}
	user, err := h.svc.Identity.User(ctx, claims.UserID)
	if err != nil {
		return err
	}
	channels, err := h.svc.Members.ChannelsOfUser(ctx, user.ID)
	if err != nil {
		return err
	}

	h.svc.Hub.BindUser(client, user.ID, user.Name)
	h.svc.Hub.Reconcile(client, lo.Map(channels, func(c *store.Channel, _ int) string {
		return c.ID
	}))
	return nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		outbound := h.dispatch(ctx, client, inbound)
		if err := wsjson.Write(ctx, conn, outbound); err != nil {
			h.log.Error().Err(err).Str("session_id", client.ID).Msg("write ws ack")
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("session_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
