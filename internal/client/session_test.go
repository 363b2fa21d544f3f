package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/config"
	"github.com/skygrid/roomdir-server/internal/core"
	"github.com/skygrid/roomdir-server/internal/proto"
	"github.com/skygrid/roomdir-server/internal/simengine"
	transport "github.com/skygrid/roomdir-server/internal/transport/http"
)

// startDirectory runs a full server and returns its ws endpoint.
func startDirectory(t *testing.T) string {
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
	neg := core.NewNegotiator(reg, simengine.NewStandalone([]byte("test-secret"), "ws://localhost:2568/sim"), &logger)

	cfg := config.Default()
	server := transport.NewServer(reg, neg, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

func connect(t *testing.T, url string, opts Options) *Session {
	t.Helper()

	logger := zerolog.New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Connect(ctx, url, opts, &logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitForDelta(t *testing.T, deltas <-chan proto.DeltaData, kind core.DeltaKind) proto.DeltaData {
	t.Helper()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case d := <-deltas:
			if d.Kind == string(kind) {
				return d
			}
		case <-deadline:
			t.Fatalf("delta %q never arrived", kind)
		}
	}
}

func TestConnectSyncsDirectory(t *testing.T) {
	url := startDirectory(t)
	s := connect(t, url, Options{})

	if !s.Connected() {
		t.Fatalf("expected connected session")
	}
	rooms := s.Rooms()
	if len(rooms) != 1 || rooms[0].Type != string(core.RoomTypePublic) {
		t.Fatalf("expected just the public room, got %+v", rooms)
	}
	if _, ok := s.CurrentRoomID(); ok {
		t.Fatalf("fresh session should not be in a room")
	}

	s.Close()
	if s.Connected() {
		t.Fatalf("closed session still reports connected")
	}
	if _, err := s.JoinPublic(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestCreateJoinLeaveFlow(t *testing.T) {
	url := startDirectory(t)

	deltas := make(chan proto.DeltaData, 16)
	s := connect(t, url, Options{OnDelta: func(d proto.DeltaData) { deltas <- d }})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := s.CreateRoom(ctx, "board games", "bring dice", nil, 4)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	added := waitForDelta(t, deltas, core.DeltaRoomAdded)
	if added.Room.ID != room.ID {
		t.Fatalf("delta for wrong room: %s", added.Room.ID)
	}

	grant, err := s.JoinByID(ctx, room.ID, nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if grant.Session.Token == "" {
		t.Fatalf("grant missing session token")
	}
	if id, ok := s.CurrentRoomID(); !ok || id != room.ID {
		t.Fatalf("current room not tracked: %q %v", id, ok)
	}

	if err := s.Leave(ctx); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, ok := s.CurrentRoomID(); ok {
		t.Fatalf("still in a room after leave")
	}

	// The room auto-disposes on the last leave and the session's view follows.
	waitForDelta(t, deltas, core.DeltaRoomRemoved)
	for _, r := range s.Rooms() {
		if r.ID == room.ID {
			t.Fatalf("disposed room still in view")
		}
	}
}

func TestJoinDeniedSurfacesPasswordNeed(t *testing.T) {
	url := startDirectory(t)
	s := connect(t, url, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pw := "hunter2"
	room, err := s.CreateRoom(ctx, "secret club", "", &pw, 0)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	_, err = s.JoinByID(ctx, room.ID, nil)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Code != core.ErrCodePasswordRequired || !denied.PasswordNeeded() {
		t.Fatalf("unexpected denial: %+v", denied)
	}

	wrong := "xyz"
	if _, err := s.JoinByID(ctx, room.ID, &wrong); !errors.As(err, &denied) || denied.Code != core.ErrCodeIncorrectPassword {
		t.Fatalf("expected incorrect_password, got %v", err)
	}
	if !denied.PasswordNeeded() {
		t.Fatalf("incorrect_password should ask for a password again")
	}
	if _, ok := s.CurrentRoomID(); ok {
		t.Fatalf("denied join must not set the current room")
	}

	if _, err := s.JoinByID(ctx, room.ID, &pw); err != nil {
		t.Fatalf("join with right password: %v", err)
	}
}

func TestDeepLinkAutoJoin(t *testing.T) {
	url := startDirectory(t)
	creator := connect(t, url, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := creator.CreateRoom(ctx, "linked", "", nil, 0)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	s := connect(t, url, Options{RoomID: room.ID})
	if id, ok := s.CurrentRoomID(); !ok || id != room.ID {
		t.Fatalf("deep link did not join: %q %v", id, ok)
	}
}

func TestDeepLinkDeniedKeepsSessionUsable(t *testing.T) {
	url := startDirectory(t)
	creator := connect(t, url, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pw := "abc"
	room, err := creator.CreateRoom(ctx, "linked gated", "", &pw, 0)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	logger := zerolog.New(nil)
	s, err := Connect(ctx, url, Options{RoomID: room.ID}, &logger)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if s == nil {
		t.Fatalf("denied deep link must still return the session")
	}
	t.Cleanup(func() { s.Close() })
	if !denied.PasswordNeeded() {
		t.Fatalf("expected a password prompt, got %+v", denied)
	}
	if !s.Connected() {
		t.Fatalf("session unusable after denied deep link")
	}

	// The caller prompts and retries on the same session.
	if _, err := s.JoinByID(ctx, room.ID, &pw); err != nil {
		t.Fatalf("retry with password: %v", err)
	}
	if id, ok := s.CurrentRoomID(); !ok || id != room.ID {
		t.Fatalf("retry did not join: %q %v", id, ok)
	}
}
