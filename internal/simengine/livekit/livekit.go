package livekit

import (
	"context"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/skygrid/roomdir-server/internal/simengine"
)

// Engine implements simengine.Engine using LiveKit as the simulation
// backend. LiveKit creates rooms on demand when the first client joins, so
// the directory only mints access tokens.
type Engine struct {
	apiKey    string
	apiSecret string
	wsURL     string
}

// New creates a LiveKit-backed engine.
func New(apiKey, apiSecret, wsURL string) *Engine {
	return &Engine{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
	}
}

// EstablishSession creates a room-scoped LiveKit access token.
func (e *Engine) EstablishSession(_ context.Context, roomID, identity string) (*simengine.SessionInfo, error) {
	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomID,
	}
	at.AddGrant(grant).
		SetIdentity(identity).
		SetValidFor(time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		return nil, err
	}

	return &simengine.SessionInfo{
		URL:      e.wsURL,
		Token:    token,
		RoomName: roomID,
		Identity: identity,
	}, nil
}

// Ensure Engine implements simengine.Engine
var _ simengine.Engine = (*Engine)(nil)
