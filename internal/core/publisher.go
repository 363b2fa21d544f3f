package core

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/skygrid/roomdir-server/internal/utils"
)

// DeltaKind names the three incremental changes a directory view can see.
type DeltaKind string

const (
	DeltaRoomAdded   DeltaKind = "room_added"
	DeltaRoomChanged DeltaKind = "room_changed"
	DeltaRoomRemoved DeltaKind = "room_removed"
)

// Delta is one incremental change to the directory. Seq is a process-wide
// sequence number; subscribers apply deltas strictly in Seq order.
type Delta struct {
	Seq  uint64    `json:"seq"`
	Kind DeltaKind `json:"kind"`
	Room RoomView  `json:"room"`
}

// Subscription is one subscriber's handle on the delta stream. The channel
// is closed when the subscriber is dropped for falling behind; a fresh
// Subscribe is required to recover, since dropped deltas are gone.
type Subscription struct {
	id  string
	pub *Publisher
	ch  chan Delta
}

// Deltas returns the ordered delta stream.
func (s *Subscription) Deltas() <-chan Delta {
	return s.ch
}

// Close unsubscribes and releases the buffer. Idempotent, also safe after an
// overflow drop.
func (s *Subscription) Close() {
	s.pub.unsubscribe(s.id)
}

// Publisher fans registry deltas out to subscribers. Each subscriber gets a
// bounded buffer; a full buffer means the subscriber is dropped rather than
// ever blocking delivery to the rest.
type Publisher struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	buffer int
	log    zerolog.Logger
}

// NewPublisher builds a publisher with the given per-subscriber buffer
// capacity.
func NewPublisher(buffer int, logger *zerolog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Publisher{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		log:    logger.With().Str("component", "publisher").Logger(),
	}
}

// SubscriberCount reports the number of live subscribers.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Publisher) subscribe() *Subscription {
	sub := &Subscription{
		id:  utils.NewID(),
		pub: p,
		ch:  make(chan Delta, p.buffer),
	}
	p.mu.Lock()
	p.subs[sub.id] = sub
	p.mu.Unlock()
	p.log.Debug().Str("subscriber_id", sub.id).Msg("subscriber added")
	return sub
}

func (p *Publisher) unsubscribe(id string) {
	p.mu.Lock()
	sub, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
		close(sub.ch)
	}
	p.mu.Unlock()
	if ok {
		p.log.Debug().Str("subscriber_id", id).Msg("subscriber removed")
	}
}

// publish delivers a delta to every subscriber without blocking. A
// subscriber whose buffer is full is dropped and its channel closed; it must
// resubscribe for a fresh snapshot instead of continuing a stream with holes.
func (p *Publisher) publish(d Delta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, sub := range p.subs {
		select {
		case sub.ch <- d:
		default:
			delete(p.subs, id)
			close(sub.ch)
			p.log.Warn().
				Str("subscriber_id", id).
				Uint64("seq", d.Seq).
				Msg("subscriber overflowed, dropped")
		}
	}
}
