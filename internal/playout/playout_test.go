package playout

import (
	"testing"
	"time"

	"github.com/hightechgrace/media-streamer/internal/frame"
)

func completeUnit(ts uint32, created time.Time) *frame.FrameUnit {
	u := &frame.FrameUnit{
		Timestamp:              ts,
		ExpectedSubstreamCount: 1,
		Substreams:             map[int]*frame.SubstreamState{0: {ExpectedBytes: 1, ReceivedBytes: 1, MarkerSeen: true}},
		CreatedAt:              created,
	}
	return u
}

func TestBuffer_TryPopRespectsPlayoutDelay(t *testing.T) {
	base := time.Now()
	b := New(50*time.Millisecond, time.Second, 0)
	b.Put(completeUnit(100, base))

	if u := b.TryPop(base); u != nil {
		t.Fatalf("expected nothing ready before delay elapses")
	}
	if u := b.TryPop(base.Add(60 * time.Millisecond)); u == nil {
		t.Fatalf("expected unit ready after delay elapses")
	}
}

func TestBuffer_EmitsInIncreasingTimestampOrder(t *testing.T) {
	base := time.Now()
	b := New(0, time.Second, 0)
	b.Put(completeUnit(300, base))
	b.Put(completeUnit(100, base))
	b.Put(completeUnit(200, base))

	var got []uint32
	for {
		u := b.TryPop(base.Add(time.Hour))
		if u == nil {
			break
		}
		got = append(got, u.Timestamp)
	}
	want := []uint32{100, 200, 300}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBuffer_DepthCapDropsOldest(t *testing.T) {
	base := time.Now()
	b := New(0, time.Second, 2)
	b.Put(completeUnit(100, base))
	b.Put(completeUnit(200, base))
	b.Put(completeUnit(300, base))

	if b.Len() != 2 {
		t.Fatalf("expected depth cap of 2, got %d", b.Len())
	}
	if u := b.TryPop(base.Add(time.Hour)); u == nil || u.Timestamp != 200 {
		t.Fatalf("expected oldest (100) to have been dropped, first pop should be 200, got %+v", u)
	}
}

func TestBuffer_PruneDropsAgedUnits(t *testing.T) {
	base := time.Now()
	b := New(0, 10*time.Millisecond, 0)
	b.Put(completeUnit(100, base))

	dropped := b.Prune(base.Add(time.Second))
	if len(dropped) != 1 || dropped[0] != 100 {
		t.Fatalf("expected timestamp 100 pruned, got %v", dropped)
	}
	if b.Len() != 0 {
		t.Fatalf("expected buffer empty after prune, got %d", b.Len())
	}
}
