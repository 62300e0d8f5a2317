package http

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lbessard/canal/internal/proto"
)

// wireMsg mirrors proto.Outbound with raw data for test-side decoding.
type wireMsg struct {
	Type    string          `json:"type"`
	Seq     int64           `json:"seq"`
	Success bool            `json:"success"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Error   *proto.Error    `json:"error"`
}

func dialWS(t *testing.T, ctx context.Context, tsURL string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(tsURL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendReq(t *testing.T, ctx context.Context, conn *websocket.Conn, seq int64, reqType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal request data: %v", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Seq: seq, Type: reqType, Data: payload}); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

// readUntil reads frames until pred matches one; acks and events interleave
// on the wire so callers must not assume arrival order.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, pred func(wireMsg) bool) wireMsg {
	t.Helper()

	for i := 0; i < 20; i++ {
		var msg wireMsg
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if pred(msg) {
			return msg
		}
	}
	t.Fatal("expected frame never arrived")
	return wireMsg{}
}

func mustAck(t *testing.T, ctx context.Context, conn *websocket.Conn, seq int64) wireMsg {
	t.Helper()

	msg := readUntil(t, ctx, conn, func(m wireMsg) bool {
		return m.Type == proto.OutboundTypeAck && m.Seq == seq
	})
	if !msg.Success {
		t.Fatalf("request %d failed: %+v", seq, msg.Error)
	}
	return msg
}

func chooseName(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) proto.ChooseNameResult {
	t.Helper()

	sendReq(t, ctx, conn, 1, proto.ReqChooseName, proto.ChooseNameData{Name: name})
	ack := mustAck(t, ctx, conn, 1)

	var result proto.ChooseNameResult
	if err := json.Unmarshal(ack.Data, &result); err != nil {
		t.Fatalf("unmarshal chooseName result: %v", err)
	}
	return result
}

func TestWebSocketChooseNameJoinsGeneral(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts.URL)

	result := chooseName(t, ctx, conn, "alice")
	if result.User.Name != "alice" || result.User.ID == "" || result.Token == "" {
		t.Fatalf("unexpected chooseName result: %+v", result)
	}

	// The auto-join into #general reaches the joiner's own session.
	joined := readUntil(t, ctx, conn, func(m wireMsg) bool {
		return m.Type == proto.OutboundTypeEvent && m.Event == proto.EventMemberJoined
	})
	var event proto.MemberJoinedEvent
	if err := json.Unmarshal(joined.Data, &event); err != nil {
		t.Fatalf("unmarshal join event: %v", err)
	}
	if event.ChannelName != "#general" || event.Nickname != "alice" || event.UserID != result.User.ID {
		t.Fatalf("unexpected join event: %+v", event)
	}
}

func TestWebSocketChannelMessageFanOut(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts.URL)
	connB := dialWS(t, ctx, ts.URL)

	chooseName(t, ctx, connA, "alice")
	chooseName(t, ctx, connB, "bob")

	sendReq(t, ctx, connA, 2, proto.ReqGetChannelID, proto.GetChannelIDData{ChannelName: "#general"})
	ack := mustAck(t, ctx, connA, 2)
	var channel proto.ChannelIDResult
	if err := json.Unmarshal(ack.Data, &channel); err != nil {
		t.Fatalf("unmarshal channel id: %v", err)
	}

	sendReq(t, ctx, connA, 3, proto.ReqChannelMessage, proto.ChannelMessageData{ChannelID: channel.ChannelID, Text: "hi there"})
	mustAck(t, ctx, connA, 3)

	frame := readUntil(t, ctx, connB, func(m wireMsg) bool {
		return m.Type == proto.OutboundTypeEvent && m.Event == proto.EventNewMessage
	})
	var msg proto.MessagePayload
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Text != "hi there" || msg.Sender != "alice" || msg.ChannelID != channel.ChannelID {
		t.Fatalf("unexpected message payload: %+v", msg)
	}
}

func TestWebSocketMessageRequiresChosenName(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts.URL)

	sendReq(t, ctx, conn, 1, proto.ReqChannelMessage, proto.ChannelMessageData{ChannelID: "whatever", Text: "hi"})

	frame := readUntil(t, ctx, conn, func(m wireMsg) bool {
		return m.Type == proto.OutboundTypeAck && m.Seq == 1
	})
	if frame.Success {
		t.Fatal("expected request to fail before choosing a name")
	}
	if frame.Error == nil || frame.Error.Msg != "Choose a name before sending a message" {
		t.Fatalf("unexpected error: %+v", frame.Error)
	}
}

func TestWebSocketPrivateMessageSkipsOtherMembers(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts.URL)
	connB := dialWS(t, ctx, ts.URL)
	connC := dialWS(t, ctx, ts.URL)

	chooseName(t, ctx, connA, "alice")
	chooseName(t, ctx, connB, "bob")
	chooseName(t, ctx, connC, "carol")

	sendReq(t, ctx, connA, 2, proto.ReqGetChannelID, proto.GetChannelIDData{ChannelName: "#general"})
	ack := mustAck(t, ctx, connA, 2)
	var channel proto.ChannelIDResult
	if err := json.Unmarshal(ack.Data, &channel); err != nil {
		t.Fatalf("unmarshal channel id: %v", err)
	}

	sendReq(t, ctx, connA, 3, proto.ReqPrivateMessage, proto.PrivateMessageData{
		ChannelID:         channel.ChannelID,
		RecipientNickname: "bob",
		Text:              "psst",
	})
	mustAck(t, ctx, connA, 3)

	frame := readUntil(t, ctx, connB, func(m wireMsg) bool {
		return m.Type == proto.OutboundTypeEvent && m.Event == proto.EventNewPrivateMessage
	})
	var msg proto.MessagePayload
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("unmarshal private message: %v", err)
	}
	if !msg.IsPrivate || msg.Text != "psst" {
		t.Fatalf("unexpected private message: %+v", msg)
	}

	// Carol sends a broadcast and reads it back; no private message may
	// arrive before it on her connection.
	sendReq(t, ctx, connC, 2, proto.ReqChannelMessage, proto.ChannelMessageData{ChannelID: channel.ChannelID, Text: "marker"})
	frame = readUntil(t, ctx, connC, func(m wireMsg) bool {
		if m.Type == proto.OutboundTypeEvent && m.Event == proto.EventNewPrivateMessage {
			t.Fatal("third member must not receive the private message")
		}
		return m.Type == proto.OutboundTypeEvent && m.Event == proto.EventNewMessage
	})
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("unmarshal marker: %v", err)
	}
	if msg.Text != "marker" {
		t.Fatalf("unexpected marker payload: %+v", msg)
	}
}

func TestWebSocketTokenResumeReceivesEvents(t *testing.T) {
	ts, _ := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts.URL)
	result := chooseName(t, ctx, connA, "alice")
	connA.Close(websocket.StatusNormalClosure, "reconnecting")

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=" + result.Token
	resumed, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial with token: %v", err)
	}
	defer resumed.Close(websocket.StatusNormalClosure, "done")

	// A new member joining #general must reach the resumed session without
	// it choosing a name again.
	connB := dialWS(t, ctx, ts.URL)
	chooseName(t, ctx, connB, "bob")

	frame := readUntil(t, ctx, resumed, func(m wireMsg) bool {
		return m.Type == proto.OutboundTypeEvent && m.Event == proto.EventMemberJoined
	})
	var event proto.MemberJoinedEvent
	if err := json.Unmarshal(frame.Data, &event); err != nil {
		t.Fatalf("unmarshal join event: %v", err)
	}
	if event.Nickname != "bob" {
		t.Fatalf("unexpected join event: %+v", event)
	}
}
