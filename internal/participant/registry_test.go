package participant

import (
	"testing"
	"time"

	"github.com/hightechgrace/media-streamer/internal/config"
	"github.com/hightechgrace/media-streamer/internal/decode"
)

func TestRegistry_GetCreatesOnFirstUse(t *testing.T) {
	cfg := config.Default()
	reg := NewRegistry(cfg, decode.NewRegistry(), nil, nil, nil)
	defer reg.StopReaper()

	p1 := reg.Get(42)
	if p1 == nil {
		t.Fatalf("expected a participant")
	}
	p2 := reg.Get(42)
	if p1 != p2 {
		t.Fatalf("expected Get to return the same participant for a repeated ssrc")
	}
}

func TestRegistry_ReaperRemovesTimedOutParticipants(t *testing.T) {
	cfg := config.Default()
	cfg.ParticipantTimeout = 20 * time.Millisecond
	reg := NewRegistry(cfg, decode.NewRegistry(), nil, nil, nil)

	reg.Get(7)
	reg.StartReaper(5 * time.Millisecond)
	defer reg.StopReaper()

	deadline := time.After(2 * time.Second)
	for {
		reg.mu.Lock()
		_, present := reg.table[7]
		reg.mu.Unlock()
		if !present {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for reaper to remove participant 7")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRegistry_RemoveStopsParticipant(t *testing.T) {
	cfg := config.Default()
	reg := NewRegistry(cfg, decode.NewRegistry(), nil, nil, nil)
	defer reg.StopReaper()

	reg.Get(9)
	reg.Remove(9)

	reg.mu.Lock()
	_, present := reg.table[9]
	reg.mu.Unlock()
	if present {
		t.Fatalf("expected participant 9 to be removed")
	}
}
