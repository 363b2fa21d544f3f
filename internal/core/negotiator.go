package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/auth"
	"github.com/skygrid/roomdir-server/internal/simengine"
)

// JoinIntent is a single join request: either a room type (only PUBLIC is
// valid for direct join) or an explicit room id, plus an optional secret.
// Consumed once, never stored.
type JoinIntent struct {
	Target RoomType
	RoomID string
	Secret *string
}

// Grant is the successful outcome of a negotiation. The caller owes the
// registry exactly one DecrementClients for Room.ID once the client leaves
// or the simulation session fails to come up on its side.
type Grant struct {
	Room    RoomView
	Session *simengine.SessionInfo
}

// Negotiator turns join intents into grants or typed denials. Every failure
// it returns is a *DomainError; nothing here is fatal to the process.
type Negotiator struct {
	reg    *Registry
	engine simengine.Engine
	log    zerolog.Logger
}

// NewNegotiator builds a negotiator over the given registry and simulation
// engine.
func NewNegotiator(reg *Registry, engine simengine.Engine, logger *zerolog.Logger) *Negotiator {
	return &Negotiator{
		reg:    reg,
		engine: engine,
		log:    logger.With().Str("component", "negotiator").Logger(),
	}
}

// Negotiate resolves the target room, checks the secret, reserves a client
// slot and establishes the simulation session. Identity names the client on
// the simulation side.
func (n *Negotiator) Negotiate(ctx context.Context, intent JoinIntent, identity string) (*Grant, error) {
	room, err := n.resolve(intent)
	if err != nil {
		return nil, err
	}

	if room.secretHash != "" {
		// bcrypt comparison happens on a copied record, outside any lock.
		if intent.Secret == nil || *intent.Secret == "" {
			n.log.Debug().Str("room_id", room.ID).Msg("join denied: password required")
			return nil, ErrPasswordRequired
		}
		if auth.CompareSecret(room.secretHash, *intent.Secret) != nil {
			n.log.Debug().Str("room_id", room.ID).Msg("join denied: incorrect password")
			return nil, ErrIncorrectPassword
		}
	}

	// The room may have vanished or filled up since resolution; the
	// increment re-checks under the registry lock.
	view, err := n.reg.IncrementClients(room.ID)
	if err != nil {
		return nil, err
	}

	session, err := n.engine.EstablishSession(ctx, view.ID, identity)
	if err != nil {
		// Roll the reservation back so the count stays consistent.
		n.reg.DecrementClients(view.ID)
		n.log.Error().Err(err).Str("room_id", view.ID).Msg("simulation session failed")
		return nil, NewConnectionError("simulation session unavailable")
	}

	n.log.Info().
		Str("room_id", view.ID).
		Str("identity", identity).
		Int("client_count", view.ClientCount).
		Msg("join granted")
	return &Grant{Room: view, Session: session}, nil
}

func (n *Negotiator) resolve(intent JoinIntent) (Room, error) {
	switch {
	case intent.RoomID != "":
		room, ok := n.reg.snapshotRoom(intent.RoomID)
		if !ok {
			return Room{}, ErrRoomNotFound
		}
		if room.Type == RoomTypeLobby {
			// The lobby is the directory itself, not a joinable room.
			return Room{}, ErrRoomNotFound
		}
		return room, nil
	case intent.Target == RoomTypePublic:
		view := n.reg.EnsurePublic()
		room, ok := n.reg.snapshotRoom(view.ID)
		if !ok {
			return Room{}, ErrRoomNotFound
		}
		return room, nil
	case intent.Target == RoomTypeCustom:
		return Room{}, NewValidationError("custom rooms are joined by explicit id")
	default:
		return Room{}, NewValidationError("join target is required")
	}
}
