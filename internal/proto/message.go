package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoinPublic = "join_public"
	InboundTypeJoinRoom   = "join_room"
	InboundTypeCreateRoom = "create_room"
	InboundTypeLeave      = "leave"

	OutboundTypeSnapshot = "snapshot"
	OutboundTypeEvent    = "event"
	OutboundTypeCreated  = "created"
	OutboundTypeGranted  = "granted"
	OutboundTypeDenied   = "denied"
	OutboundTypeLeft     = "left"
	OutboundTypeError    = "error"
)

// JoinRoomData requests entry into a specific room. Password is nil when the
// client supplied none; the empty string is a deliberate (blank) secret.
type JoinRoomData struct {
	RoomID   string  `json:"room_id"`
	Password *string `json:"password,omitempty"`
}

// CreateRoomData requests creation of a custom room. Created rooms always
// auto-dispose once their last client leaves.
type CreateRoomData struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Password    *string `json:"password,omitempty"`
	MaxClients  int     `json:"max_clients,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Room is the listing-safe room projection on the wire. The secret itself
// never appears here, only its presence.
type Room struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	HasPassword bool   `json:"has_password"`
	MaxClients  int    `json:"max_clients,omitempty"`
	ClientCount int    `json:"client_count"`
	CreatedAt   int64  `json:"created_at"`
}

// SnapshotData carries the full listing sent right after subscription.
type SnapshotData struct {
	Rooms []Room `json:"rooms"`
}

// DeltaData is one incremental listing change. Seq orders all deltas a
// subscriber receives; applying them in order reproduces the live directory.
type DeltaData struct {
	Seq  uint64 `json:"seq"`
	Kind string `json:"kind"`
	Room Room   `json:"room"`
}

// SessionData carries the credentials for the room-simulation session.
type SessionData struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	RoomName string `json:"room_name"`
	Identity string `json:"identity"`
}

// GrantedData is the successful join response.
type GrantedData struct {
	Room    Room        `json:"room"`
	Session SessionData `json:"session"`
}

// Error describes a denied join or a protocol-level failure. Code is the
// contract; clients must not inspect Msg.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
