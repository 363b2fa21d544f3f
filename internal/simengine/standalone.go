package simengine

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const standaloneTokenTTL = time.Hour

// StandaloneEngine signs session tokens itself, for deployments where the
// simulation server shares an HMAC secret with the directory.
type StandaloneEngine struct {
	secret []byte
	wsURL  string
	issuer string
}

// NewStandalone creates a StandaloneEngine.
func NewStandalone(secret []byte, wsURL string) *StandaloneEngine {
	return &StandaloneEngine{
		secret: secret,
		wsURL:  wsURL,
		issuer: "roomdir",
	}
}

// EstablishSession mints an HS256 token with the room id as audience. The
// simulation server verifies the audience before admitting the client.
func (e *StandaloneEngine) EstablishSession(_ context.Context, roomID, identity string) (*SessionInfo, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    e.issuer,
		Subject:   identity,
		Audience:  jwt.ClaimStrings{roomID},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(standaloneTokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(e.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &SessionInfo{
		URL:      e.wsURL,
		Token:    signed,
		RoomName: roomID,
		Identity: identity,
	}, nil
}

// Ensure StandaloneEngine implements Engine
var _ Engine = (*StandaloneEngine)(nil)
