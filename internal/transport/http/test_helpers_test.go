package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/config"
	"github.com/skygrid/roomdir-server/internal/core"
	"github.com/skygrid/roomdir-server/internal/proto"
	"github.com/skygrid/roomdir-server/internal/simengine"
)

// serverFrame is the outbound envelope as tests read it off the wire.
type serverFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// startTestServer spins up the full HTTP surface over a fresh registry.
func startTestServer(t *testing.T) (*httptest.Server, *core.Registry) {
	t.Helper()

	logger := zerolog.New(nil)
	pub := core.NewPublisher(64, &logger)
	reg := core.NewRegistry(pub, core.PublicRoomInfo{
		Name:        "Public Lobby",
		Description: "test public room",
	}, &logger)
	if err := reg.Bootstrap(); err != nil {
		t.Fatalf("bootstrap registry: %v", err)
	}

	engine := simengine.NewStandalone([]byte("test-secret"), "ws://localhost:2568/sim")
	neg := core.NewNegotiator(reg, engine, &logger)

	cfg := config.Default()
	cfg.Addr = ":0"
	server := NewServer(reg, neg, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts, reg
}

// dialWS opens a directory stream and returns the connection plus the
// decoded initial snapshot.
func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) (*websocket.Conn, proto.SnapshotData) {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	frame := readFrame(t, ctx, conn)
	if frame.Type != proto.OutboundTypeSnapshot {
		t.Fatalf("expected snapshot first, got %q", frame.Type)
	}
	var snapshot proto.SnapshotData
	if err := json.Unmarshal(frame.Data, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return conn, snapshot
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) serverFrame {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var frame serverFrame
	if err := wsjson.Read(readCtx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// readUntilType skips directory events until a frame of the wanted type
// arrives.
func readUntilType(t *testing.T, ctx context.Context, conn *websocket.Conn, wanted string) serverFrame {
	t.Helper()

	for i := 0; i < 20; i++ {
		frame := readFrame(t, ctx, conn)
		if frame.Type == wanted {
			return frame
		}
		if frame.Type != proto.OutboundTypeEvent {
			t.Fatalf("expected %q or event, got %q (error: %+v)", wanted, frame.Type, frame.Error)
		}
	}
	t.Fatalf("frame of type %q never arrived", wanted)
	return serverFrame{}
}

// readUntilEvent skips frames until a directory event of the wanted kind
// arrives.
func readUntilEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, kind core.DeltaKind) proto.DeltaData {
	t.Helper()

	for i := 0; i < 20; i++ {
		frame := readFrame(t, ctx, conn)
		if frame.Type != proto.OutboundTypeEvent {
			continue
		}
		var delta proto.DeltaData
		if err := json.Unmarshal(frame.Data, &delta); err != nil {
			t.Fatalf("decode delta: %v", err)
		}
		if delta.Kind == string(kind) {
			return delta
		}
	}
	t.Fatalf("event %q never arrived", kind)
	return proto.DeltaData{}
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal inbound: %v", err)
		}
		raw = payload
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: raw}); err != nil {
		t.Fatalf("write inbound: %v", err)
	}
}

func strptr(s string) *string {
	return &s
}
