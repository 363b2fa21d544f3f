package core

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/auth"
)

// PublicRoomInfo describes the singleton always-open public room the
// registry seeds and keeps alive.
type PublicRoomInfo struct {
	Name        string
	Description string
	MaxClients  int
}

// Registry is the single authoritative store of live rooms. All mutations
// are serialized by one mutex, which also gives every emitted delta a single
// total order; reads go through the read lock.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	seq    uint64
	pub    *Publisher
	public PublicRoomInfo
	log    zerolog.Logger
}

// NewRegistry builds an empty registry that publishes deltas through pub.
func NewRegistry(pub *Publisher, public PublicRoomInfo, logger *zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		pub:    pub,
		public: public,
		log:    logger.With().Str("component", "registry").Logger(),
	}
}

// Bootstrap seeds the rooms that exist for the whole process lifetime: the
// lobby record and the always-open public room. Idempotent.
func (r *Registry) Bootstrap() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findByTypeLocked(RoomTypeLobby) == nil {
		lobby := &Room{
			ID:        uuid.NewString(),
			Type:      RoomTypeLobby,
			Name:      "Lobby",
			CreatedAt: time.Now(),
		}
		r.rooms[lobby.ID] = lobby
		r.log.Info().Str("room_id", lobby.ID).Msg("lobby room seeded")
	}
	if r.findByTypeLocked(RoomTypePublic) == nil {
		r.createPublicLocked()
	}
	return nil
}

// Create registers a new room, generates its id and emits a room_added
// delta. The secret, when present, is hashed before the record is stored.
func (r *Registry) Create(typ RoomType, opts RoomOptions) (RoomView, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return RoomView{}, NewValidationError("room name is required")
	}
	if len(name) > MaxRoomNameLen {
		return RoomView{}, NewValidationError("room name too long")
	}
	if opts.MaxClients < 0 {
		return RoomView{}, NewValidationError("max clients cannot be negative")
	}

	var secretHash string
	if opts.Password != nil {
		// Hash outside the lock; bcrypt is deliberately slow.
		hash, err := auth.HashSecret(*opts.Password)
		if err != nil {
			return RoomView{}, err
		}
		secretHash = hash
	}

	room := &Room{
		ID:          uuid.NewString(),
		Type:        typ,
		Name:        name,
		Description: opts.Description,
		MaxClients:  opts.MaxClients,
		AutoDispose: opts.AutoDispose,
		CreatedAt:   time.Now(),
		secretHash:  secretHash,
	}

	r.mu.Lock()
	r.rooms[room.ID] = room
	view := room.View()
	r.emitLocked(DeltaRoomAdded, view)
	r.mu.Unlock()

	r.log.Info().
		Str("room_id", room.ID).
		Str("type", string(room.Type)).
		Str("name", room.Name).
		Bool("has_password", room.HasPassword()).
		Msg("room created")
	return view, nil
}

// EnsurePublic returns the singleton public room, creating it lazily when it
// is somehow absent.
func (r *Registry) EnsurePublic() RoomView {
	r.mu.RLock()
	if room := r.findByTypeLocked(RoomTypePublic); room != nil {
		view := room.View()
		r.mu.RUnlock()
		return view
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if room := r.findByTypeLocked(RoomTypePublic); room != nil {
		return room.View()
	}
	return r.createPublicLocked()
}

// Get looks up a room by id.
func (r *Registry) Get(roomID string) (RoomView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return RoomView{}, ErrRoomNotFound
	}
	return room.View(), nil
}

// IncrementClients records one more client inside the room and emits a
// room_changed delta. Fails with ErrRoomFull at capacity.
func (r *Registry) IncrementClients(roomID string) (RoomView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return RoomView{}, ErrRoomNotFound
	}
	if room.MaxClients > 0 && room.ClientCount >= room.MaxClients {
		return RoomView{}, ErrRoomFull
	}
	room.ClientCount++
	view := room.View()
	r.emitLocked(DeltaRoomChanged, view)
	return view, nil
}

// DecrementClients records one client leaving the room. Driving the count to
// zero disposes the room when AutoDispose is set. A missing room is a no-op:
// the compensating decrement on disconnect may race administrative disposal.
func (r *Registry) DecrementClients(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		r.log.Debug().Str("room_id", roomID).Msg("decrement on missing room ignored")
		return
	}
	if room.ClientCount > 0 {
		room.ClientCount--
	}
	if room.ClientCount == 0 && room.AutoDispose {
		r.disposeLocked(room)
		return
	}
	r.emitLocked(DeltaRoomChanged, room.View())
}

// Dispose removes a room regardless of occupancy and emits a room_removed
// delta. Disposing an unknown or already-disposed id is a no-op.
func (r *Registry) Dispose(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	r.disposeLocked(room)
}

// ListPublic returns the rooms exposed to directory subscribers: custom and
// public rooms, never the lobby. Ordered by creation time for stable output.
func (r *Registry) ListPublic() []RoomView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listPublicLocked()
}

// Subscribe registers a directory subscriber and snapshots the listing under
// the same lock that orders delta emission, so every change lands either in
// the snapshot or on the stream, never both and never neither.
func (r *Registry) Subscribe() ([]RoomView, *Subscription) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := r.listPublicLocked()
	sub := r.pub.subscribe()
	return snapshot, sub
}

// snapshotRoom returns a copy of the full record, secret hash included, for
// in-package negotiation.
func (r *Registry) snapshotRoom(roomID string) (Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return *room, true
}

func (r *Registry) findByTypeLocked(typ RoomType) *Room {
	for _, room := range r.rooms {
		if room.Type == typ {
			return room
		}
	}
	return nil
}

func (r *Registry) createPublicLocked() RoomView {
	room := &Room{
		ID:          uuid.NewString(),
		Type:        RoomTypePublic,
		Name:        r.public.Name,
		Description: r.public.Description,
		MaxClients:  r.public.MaxClients,
		AutoDispose: false,
		CreatedAt:   time.Now(),
	}
	r.rooms[room.ID] = room
	view := room.View()
	r.emitLocked(DeltaRoomAdded, view)
	r.log.Info().Str("room_id", room.ID).Str("name", room.Name).Msg("public room seeded")
	return view
}

func (r *Registry) disposeLocked(room *Room) {
	delete(r.rooms, room.ID)
	r.emitLocked(DeltaRoomRemoved, room.View())
	r.log.Info().Str("room_id", room.ID).Str("name", room.Name).Msg("room disposed")
}

func (r *Registry) listPublicLocked() []RoomView {
	out := make([]RoomView, 0, len(r.rooms))
	for _, room := range r.rooms {
		if room.Type == RoomTypeLobby {
			continue
		}
		out = append(out, room.View())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) emitLocked(kind DeltaKind, view RoomView) {
	r.seq++
	r.pub.publish(Delta{Seq: r.seq, Kind: kind, Room: view})
}
