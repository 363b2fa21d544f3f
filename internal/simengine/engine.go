package simengine

import "context"

// SessionInfo contains everything a granted client needs to open its
// room-simulation session with the world server.
type SessionInfo struct {
	URL      string `json:"url"`       // simulation WebSocket URL
	Token    string `json:"token"`     // credential scoped to one room
	RoomName string `json:"room_name"` // room name on the simulation side
	Identity string `json:"identity"`  // client identity inside the room
}

// Engine abstracts the room-simulation backend. The directory only hands out
// entry credentials; movement, chat and world state live entirely behind
// this interface.
type Engine interface {
	// EstablishSession mints join credentials for one client and one room.
	EstablishSession(ctx context.Context, roomID, identity string) (*SessionInfo, error)
}
