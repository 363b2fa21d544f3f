package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/core"
	"github.com/skygrid/roomdir-server/internal/proto"
)

// ErrNotConnected is returned when a directory-dependent action is attempted
// while the directory stream is down. Callers surface it as "try again"
// rather than issuing the request.
var ErrNotConnected = errors.New("directory not connected")

// DeniedError is a typed join rejection. The code, never the message text,
// decides what the caller does next.
type DeniedError struct {
	Code    string
	Message string
}

func (e *DeniedError) Error() string {
	return e.Message
}

// PasswordNeeded reports whether the caller should (re-)prompt for a
// password and retry the same room, as opposed to giving up on the target.
func (e *DeniedError) PasswordNeeded() bool {
	return e.Code == core.ErrCodePasswordRequired || e.Code == core.ErrCodeIncorrectPassword
}

// Options configures a directory session.
type Options struct {
	// RoomID is a deep-linked target; when set, the session joins it
	// automatically as soon as the directory is connected.
	RoomID string
	// Password accompanies the deep-linked join.
	Password *string
	// OnDelta, when set, observes every applied directory change.
	OnDelta func(proto.DeltaData)
	// OnResubscribed fires after the session recovered from being dropped
	// as a slow subscriber; the room view has been replaced wholesale.
	OnResubscribed func()
}

// frame is the server-to-client envelope as the client reads it.
type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

// Session is the client-local directory handle: whether the directory is
// connected, which room the client is in, and a live room view maintained
// from the snapshot plus ordered deltas.
type Session struct {
	url  string
	opts Options
	log  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex
	conn          *websocket.Conn
	connected     bool
	closed        bool
	currentRoomID string
	rooms         map[string]proto.Room

	reqMu     sync.Mutex
	replyCh   chan frame
	closeOnce sync.Once
}

// Connect dials the directory, waits for the initial snapshot and starts the
// delta stream. With Options.RoomID set the deep-linked join runs before
// Connect returns; a *DeniedError there still yields a usable session so the
// caller can prompt for the password and retry.
func Connect(ctx context.Context, url string, opts Options, logger *zerolog.Logger) (*Session, error) {
	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		url:     url,
		opts:    opts,
		log:     logger.With().Str("component", "session").Logger(),
		ctx:     sctx,
		cancel:  cancel,
		rooms:   make(map[string]proto.Room),
		replyCh: make(chan frame, 1),
	}

	if err := s.dial(ctx); err != nil {
		cancel()
		return nil, err
	}
	go s.readLoop()

	if opts.RoomID != "" {
		if _, err := s.JoinByID(ctx, opts.RoomID, opts.Password); err != nil {
			var denied *DeniedError
			if errors.As(err, &denied) {
				return s, err
			}
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// dial opens the socket and consumes the snapshot that must arrive first.
func (s *Session) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial directory: %w", err)
	}

	var first frame
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		conn.Close(websocket.StatusProtocolError, "no snapshot")
		return fmt.Errorf("read snapshot: %w", err)
	}
	if first.Type != proto.OutboundTypeSnapshot {
		conn.Close(websocket.StatusProtocolError, "expected snapshot")
		return fmt.Errorf("expected snapshot, got %q", first.Type)
	}
	var snapshot proto.SnapshotData
	if err := json.Unmarshal(first.Data, &snapshot); err != nil {
		conn.Close(websocket.StatusProtocolError, "bad snapshot")
		return fmt.Errorf("decode snapshot: %w", err)
	}

	rooms := make(map[string]proto.Room, len(snapshot.Rooms))
	for _, room := range snapshot.Rooms {
		rooms[room.ID] = room
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.rooms = rooms
	s.mu.Unlock()
	return nil
}

func (s *Session) readLoop() {
	defer s.closeOnce.Do(func() { close(s.replyCh) })

	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		var f frame
		if err := wsjson.Read(s.ctx, conn, &f); err != nil {
			if s.isClosed() {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusGoingAway {
				// Dropped as a slow subscriber; the stream has holes, so
				// resubscribe for a fresh snapshot.
				if s.resubscribe() {
					continue
				}
			}
			s.markDisconnected()
			return
		}

		switch f.Type {
		case proto.OutboundTypeSnapshot:
			// Only expected during dial/resubscribe; ignore here.
		case proto.OutboundTypeEvent:
			s.applyDelta(f)
		default:
			// Reply to an in-flight request; drop it if nobody is waiting.
			select {
			case s.replyCh <- f:
			default:
				s.log.Debug().Str("type", f.Type).Msg("unsolicited reply dropped")
			}
		}
	}
}

func (s *Session) resubscribe() bool {
	const attempts = 3
	for i := 1; i <= attempts; i++ {
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(time.Duration(i) * 250 * time.Millisecond):
		}

		dialCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		err := s.dial(dialCtx)
		cancel()
		if err == nil {
			s.log.Info().Msg("resubscribed after overflow drop")
			if s.opts.OnResubscribed != nil {
				s.opts.OnResubscribed()
			}
			return true
		}
		s.log.Warn().Err(err).Int("attempt", i).Msg("resubscribe failed")
	}
	s.markDisconnected()
	return false
}

func (s *Session) applyDelta(f frame) {
	var delta proto.DeltaData
	if err := json.Unmarshal(f.Data, &delta); err != nil {
		s.log.Warn().Err(err).Msg("bad delta payload")
		return
	}

	s.mu.Lock()
	switch delta.Kind {
	case string(core.DeltaRoomAdded), string(core.DeltaRoomChanged):
		s.rooms[delta.Room.ID] = delta.Room
	case string(core.DeltaRoomRemoved):
		delete(s.rooms, delta.Room.ID)
	}
	s.mu.Unlock()

	if s.opts.OnDelta != nil {
		s.opts.OnDelta(delta)
	}
}

// Connected reports whether the directory stream is up.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// CurrentRoomID returns the joined room, if any.
func (s *Session) CurrentRoomID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRoomID, s.currentRoomID != ""
}

// Rooms returns the last-synced directory view, ordered by creation time.
func (s *Session) Rooms() []proto.Room {
	s.mu.RLock()
	out := make([]proto.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out
}

// JoinPublic requests entry into the always-open public room.
func (s *Session) JoinPublic(ctx context.Context) (*proto.GrantedData, error) {
	return s.join(ctx, proto.Inbound{Type: proto.InboundTypeJoinPublic})
}

// JoinByID requests entry into a specific room. A nil password means none
// was supplied; an empty string is sent as-is.
func (s *Session) JoinByID(ctx context.Context, roomID string, password *string) (*proto.GrantedData, error) {
	data, err := json.Marshal(proto.JoinRoomData{RoomID: roomID, Password: password})
	if err != nil {
		return nil, err
	}
	return s.join(ctx, proto.Inbound{Type: proto.InboundTypeJoinRoom, Data: data})
}

func (s *Session) join(ctx context.Context, in proto.Inbound) (*proto.GrantedData, error) {
	reply, err := s.request(ctx, in)
	if err != nil {
		return nil, err
	}

	switch reply.Type {
	case proto.OutboundTypeGranted:
		var granted proto.GrantedData
		if err := json.Unmarshal(reply.Data, &granted); err != nil {
			return nil, fmt.Errorf("decode grant: %w", err)
		}
		s.mu.Lock()
		s.currentRoomID = granted.Room.ID
		s.mu.Unlock()
		return &granted, nil
	case proto.OutboundTypeDenied:
		return nil, deniedFrom(reply)
	default:
		return nil, errorFrom(reply)
	}
}

// CreateRoom registers a new custom room. The creator is not joined
// automatically; follow up with JoinByID.
func (s *Session) CreateRoom(ctx context.Context, name, description string, password *string, maxClients int) (*proto.Room, error) {
	data, err := json.Marshal(proto.CreateRoomData{
		Name:        name,
		Description: description,
		Password:    password,
		MaxClients:  maxClients,
	})
	if err != nil {
		return nil, err
	}

	reply, err := s.request(ctx, proto.Inbound{Type: proto.InboundTypeCreateRoom, Data: data})
	if err != nil {
		return nil, err
	}
	if reply.Type != proto.OutboundTypeCreated {
		return nil, errorFrom(reply)
	}

	var room proto.Room
	if err := json.Unmarshal(reply.Data, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

// Leave releases the joined room.
func (s *Session) Leave(ctx context.Context) error {
	reply, err := s.request(ctx, proto.Inbound{Type: proto.InboundTypeLeave})
	if err != nil {
		return err
	}
	if reply.Type != proto.OutboundTypeLeft {
		return errorFrom(reply)
	}
	s.mu.Lock()
	s.currentRoomID = ""
	s.mu.Unlock()
	return nil
}

// request performs one inbound/reply exchange. Exchanges are serialized; the
// directory stream keeps flowing independently.
func (s *Session) request(ctx context.Context, in proto.Inbound) (frame, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.mu.RLock()
	conn := s.conn
	connected := s.connected
	s.mu.RUnlock()
	if !connected {
		return frame{}, ErrNotConnected
	}

	if err := wsjson.Write(ctx, conn, in); err != nil {
		return frame{}, fmt.Errorf("write request: %w", err)
	}

	select {
	case reply, ok := <-s.replyCh:
		if !ok {
			return frame{}, ErrNotConnected
		}
		return reply, nil
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-s.ctx.Done():
		return frame{}, ErrNotConnected
	}
}

// Close tears the session down.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) markDisconnected() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func deniedFrom(f frame) error {
	if f.Error == nil {
		return &DeniedError{Code: "unknown", Message: "join denied"}
	}
	return &DeniedError{Code: f.Error.Code, Message: f.Error.Msg}
}

func errorFrom(f frame) error {
	if f.Error != nil {
		return fmt.Errorf("directory error %s: %s", f.Error.Code, f.Error.Msg)
	}
	return fmt.Errorf("unexpected reply %q", f.Type)
}
