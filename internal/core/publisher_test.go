package core

import (
	"testing"
	"time"
)

// replayView applies snapshot + deltas the way a subscriber would and
// returns the reconstructed listing keyed by room id.
func replayView(snapshot []RoomView, deltas []Delta) map[string]RoomView {
	view := make(map[string]RoomView, len(snapshot))
	for _, room := range snapshot {
		view[room.ID] = room
	}
	for _, d := range deltas {
		switch d.Kind {
		case DeltaRoomAdded, DeltaRoomChanged:
			view[d.Room.ID] = d.Room
		case DeltaRoomRemoved:
			delete(view, d.Room.ID)
		}
	}
	return view
}

func TestSnapshotPlusDeltasMatchesLiveRegistry(t *testing.T) {
	reg, _ := newTestRegistry(t, 64)

	// One room exists before subscription so the snapshot is non-trivial.
	before, err := reg.Create(RoomTypeCustom, RoomOptions{Name: "early", AutoDispose: true})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	snapshot, sub := reg.Subscribe()
	defer sub.Close()

	// 6 mutations after the snapshot: 2 adds, 2 changes, 2 auto-dispose removes.
	a, err := reg.Create(RoomTypeCustom, RoomOptions{Name: "alpha", AutoDispose: true})
	if err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	if _, err := reg.Create(RoomTypeCustom, RoomOptions{Name: "beta", AutoDispose: true}); err != nil {
		t.Fatalf("create beta: %v", err)
	}
	if _, err := reg.IncrementClients(a.ID); err != nil {
		t.Fatalf("increment alpha: %v", err)
	}
	if _, err := reg.IncrementClients(before.ID); err != nil {
		t.Fatalf("increment early: %v", err)
	}
	reg.DecrementClients(a.ID) // drives alpha to 0, auto-dispose emits remove
	reg.DecrementClients(before.ID)

	var deltas []Delta
	var lastSeq uint64
	for i := 0; i < 6; i++ {
		d := mustDelta(t, sub.Deltas())
		if d.Seq <= lastSeq {
			t.Fatalf("sequence not strictly increasing: %d after %d", d.Seq, lastSeq)
		}
		lastSeq = d.Seq
		deltas = append(deltas, d)
	}

	replayed := replayView(snapshot, deltas)
	live := reg.ListPublic()
	if len(replayed) != len(live) {
		t.Fatalf("replayed %d rooms, live registry has %d", len(replayed), len(live))
	}
	for _, room := range live {
		got, ok := replayed[room.ID]
		if !ok {
			t.Fatalf("room %s missing from replayed view", room.ID)
		}
		if got.ClientCount != room.ClientCount || got.Name != room.Name {
			t.Fatalf("replayed room diverged: got %+v want %+v", got, room)
		}
	}
}

func TestChangeBeforeSubscribeIsInSnapshotNotStream(t *testing.T) {
	reg, _ := newTestRegistry(t, 16)

	view, err := reg.Create(RoomTypeCustom, RoomOptions{Name: "solo", AutoDispose: true})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	snapshot, sub := reg.Subscribe()
	defer sub.Close()

	found := false
	for _, room := range snapshot {
		if room.ID == view.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("pre-subscribe room missing from snapshot")
	}

	select {
	case d := <-sub.Deltas():
		t.Fatalf("unexpected delta for pre-subscribe change: %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSlowSubscriberDroppedOthersUnaffected(t *testing.T) {
	reg, pub := newTestRegistry(t, 1)

	_, slow := reg.Subscribe()
	defer slow.Close()
	_, healthy := reg.Subscribe()
	defer healthy.Close()

	if pub.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", pub.SubscriberCount())
	}

	// Two changes against a buffer of one. The healthy subscriber drains
	// between them; the slow one overflows on the second and is dropped.
	if _, err := reg.Create(RoomTypeCustom, RoomOptions{Name: "one", AutoDispose: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	mustDeltaKind(t, healthy.Deltas(), DeltaRoomAdded)

	if _, err := reg.Create(RoomTypeCustom, RoomOptions{Name: "two", AutoDispose: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	mustDeltaKind(t, healthy.Deltas(), DeltaRoomAdded)

	if pub.SubscriberCount() != 1 {
		t.Fatalf("expected slow subscriber to be dropped, have %d", pub.SubscriberCount())
	}

	// The slow subscriber's channel delivers its buffered delta, then closes.
	mustDelta(t, slow.Deltas())
	select {
	case _, ok := <-slow.Deltas():
		if ok {
			t.Fatalf("expected slow subscriber channel to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("slow subscriber channel never closed")
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	reg, pub := newTestRegistry(t, 16)

	_, sub := reg.Subscribe()
	sub.Close()
	sub.Close()

	if pub.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", pub.SubscriberCount())
	}

	// Publishing after unsubscribe must not panic or block.
	if _, err := reg.Create(RoomTypeCustom, RoomOptions{Name: "after", AutoDispose: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
}
