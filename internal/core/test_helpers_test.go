package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// newTestRegistry builds a bootstrapped registry with its publisher.
func newTestRegistry(t *testing.T, buffer int) (*Registry, *Publisher) {
	t.Helper()

	logger := zerolog.New(nil)
	pub := NewPublisher(buffer, &logger)
	reg := NewRegistry(pub, PublicRoomInfo{
		Name:        "Public Lobby",
		Description: "test public room",
	}, &logger)
	if err := reg.Bootstrap(); err != nil {
		t.Fatalf("bootstrap registry: %v", err)
	}
	return reg, pub
}

// mustDelta reads the next delta or fails after a timeout.
func mustDelta(t *testing.T, ch <-chan Delta) Delta {
	t.Helper()

	select {
	case d, ok := <-ch:
		if !ok {
			t.Fatalf("delta stream closed unexpectedly")
		}
		return d
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delta")
		return Delta{}
	}
}

// mustDeltaKind reads the next delta and asserts its kind.
func mustDeltaKind(t *testing.T, ch <-chan Delta, kind DeltaKind) Delta {
	t.Helper()

	d := mustDelta(t, ch)
	if d.Kind != kind {
		t.Fatalf("expected delta kind %q, got %q (room %s)", kind, d.Kind, d.Room.ID)
	}
	return d
}

func strptr(s string) *string {
	return &s
}
