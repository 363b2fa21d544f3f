package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/config"
	"github.com/skygrid/roomdir-server/internal/core"
	"github.com/skygrid/roomdir-server/internal/proto"
	"github.com/skygrid/roomdir-server/internal/utils"
)

// errSubscriberOverflow marks a connection whose delta buffer overflowed.
// The socket is closed with StatusGoingAway so the client resubscribes for a
// fresh snapshot.
var errSubscriberOverflow = errors.New("subscriber overflow")

// WSHandler upgrades HTTP connections into directory subscriptions: a
// snapshot on connect, then the ordered delta stream, with join intents
// flowing the other way.
type WSHandler struct {
	reg *core.Registry
	neg *core.Negotiator
	cfg *config.Config
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(reg *core.Registry, neg *core.Negotiator, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{reg: reg, neg: neg, cfg: cfg, log: logger}
}

// wsSession tracks what one connection holds: its identity and, after a
// grant, the room slot it must give back on disconnect.
type wsSession struct {
	clientID string

	mu     sync.Mutex
	roomID string
}

func (s *wsSession) setJoined(roomID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()
}

// clearJoined returns the held room id and forgets it, so the compensating
// decrement runs at most once however leave and disconnect interleave.
func (s *wsSession) clearJoined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.roomID
	s.roomID = ""
	return id
}

func (s *wsSession) joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID != ""
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

	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	sess := &wsSession{clientID: utils.NewID()}
	// Give the reserved slot back exactly once, whatever ends the connection.
	defer func() {
		if roomID := sess.clearJoined(); roomID != "" {
			h.reg.DecrementClients(roomID)
		}
	}()

	snapshot, sub := h.reg.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := wsjson.Write(ctx, conn, snapshotToOutbound(snapshot)); err != nil {
		h.log.Warn().Err(err).Str("client_id", sess.clientID).Msg("write snapshot")
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	limiter := newRateLimiter(h.cfg.JoinRateLimit)
	limiter.startReset(stop)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sub)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if errors.Is(err, errSubscriberOverflow) {
		status = websocket.StatusGoingAway
		reason = core.ErrCodeSubscriberOverflow
		h.log.Warn().Str("client_id", sess.clientID).Msg("closing slow subscriber")
	} else if err != nil && !errors.Is(err, context.Canceled) {
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

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *wsSession, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		var reply *proto.Outbound
		switch inbound.Type {
		case proto.InboundTypeCreateRoom:
			out, err := h.handleCreate(inbound)
			if err != nil {
				return err
			}
			reply = out
		case proto.InboundTypeLeave:
			reply = h.handleLeave(sess)
		default:
			out, err := h.handleJoin(ctx, inbound, sess, limiter)
			if err != nil {
				return err
			}
			reply = out
		}

		if reply != nil {
			if err := wsjson.Write(ctx, conn, *reply); err != nil {
				return err
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *core.Subscription) error {
	for {
		select {
		case delta, ok := <-sub.Deltas():
			if !ok {
				return errSubscriberOverflow
			}
			if err := wsjson.Write(ctx, conn, deltaToOutbound(delta)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) handleCreate(inbound proto.Inbound) (*proto.Outbound, error) {
	var create proto.CreateRoomData
	if err := json.Unmarshal(inbound.Data, &create); err != nil {
		return nil, err
	}

	view, err := h.reg.Create(core.RoomTypeCustom, core.RoomOptions{
		Name:        create.Name,
		Description: create.Description,
		Password:    create.Password,
		MaxClients:  create.MaxClients,
		AutoDispose: true,
	})
	if err != nil {
		out := errorToOutbound(err)
		return &out, nil
	}

	room := roomToProto(view)
	return &proto.Outbound{Type: proto.OutboundTypeCreated, Data: room}, nil
}

func (h *WSHandler) handleLeave(sess *wsSession) *proto.Outbound {
	roomID := sess.clearJoined()
	if roomID == "" {
		return &proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: core.ErrCodeNotInRoom, Msg: "not in a room"},
		}
	}
	h.reg.DecrementClients(roomID)
	return &proto.Outbound{Type: proto.OutboundTypeLeft}
}

func (h *WSHandler) handleJoin(ctx context.Context, inbound proto.Inbound, sess *wsSession, limiter *rateLimiter) (*proto.Outbound, error) {
	intent, protoErr, err := inboundToIntent(inbound)
	if err != nil {
		return nil, err
	}
	if protoErr != nil {
		return &proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr}, nil
	}

	if !limiter.allow() {
		return &proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: "rate_limited", Msg: "too many join attempts"},
		}, nil
	}
	if sess.joined() {
		return &proto.Outbound{
			Type:  proto.OutboundTypeDenied,
			Error: &proto.Error{Code: core.ErrCodeAlreadyJoined, Msg: "already joined a room"},
		}, nil
	}

	grant, err := h.neg.Negotiate(ctx, *intent, sess.clientID)
	if err != nil {
		out := errorToOutbound(err)
		return &out, nil
	}

	// Record the slot before replying: if the write fails, teardown still
	// runs the compensating decrement.
	sess.setJoined(grant.Room.ID)
	out := grantToOutbound(grant)
	return &out, nil
}
