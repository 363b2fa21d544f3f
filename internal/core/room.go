package core

import "time"

// RoomType classifies rooms in the directory.
type RoomType string

const (
	// RoomTypeLobby is the directory room itself. It is never listed and
	// never joined through negotiation; clients sit in it implicitly while
	// browsing.
	RoomTypeLobby RoomType = "lobby"
	// RoomTypePublic is the single always-open public room. Created once,
	// never auto-disposed.
	RoomTypePublic RoomType = "public"
	// RoomTypeCustom is a player-created room, joined by explicit id.
	RoomTypeCustom RoomType = "custom"
)

// MaxRoomNameLen bounds user-supplied room names.
const MaxRoomNameLen = 64

// RoomOptions carries the user-supplied fields of a create request.
// Password distinguishes nil (open room) from a present value; an empty
// string is a valid, if weak, secret.
type RoomOptions struct {
	Name        string
	Description string
	Password    *string
	MaxClients  int
	AutoDispose bool
}

// Room is the registry-owned record of a live room. The secret hash never
// leaves this package; everything that crosses a process boundary goes
// through View.
type Room struct {
	ID          string
	Type        RoomType
	Name        string
	Description string
	MaxClients  int
	ClientCount int
	AutoDispose bool
	CreatedAt   time.Time

	secretHash string
}

// HasPassword reports whether entry to the room is gated by a secret.
func (r *Room) HasPassword() bool {
	return r.secretHash != ""
}

// View returns the public projection of the room: everything a directory
// subscriber may see, and nothing it may not.
func (r *Room) View() RoomView {
	return RoomView{
		ID:          r.ID,
		Type:        r.Type,
		Name:        r.Name,
		Description: r.Description,
		HasPassword: r.HasPassword(),
		MaxClients:  r.MaxClients,
		ClientCount: r.ClientCount,
		CreatedAt:   r.CreatedAt,
	}
}

// RoomView is the listing-safe projection of a Room. Metadata is visible to
// every subscriber regardless of password protection; only entry is gated.
type RoomView struct {
	ID          string    `json:"id"`
	Type        RoomType  `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	HasPassword bool      `json:"has_password"`
	MaxClients  int       `json:"max_clients,omitempty"`
	ClientCount int       `json:"client_count"`
	CreatedAt   time.Time `json:"created_at"`
}
