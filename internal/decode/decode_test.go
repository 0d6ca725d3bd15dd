package decode

import (
	"errors"
	"testing"

	"github.com/hightechgrace/media-streamer/internal/wire"
)

type failingDecompressor struct{}

func (failingDecompressor) Init(string) error                                      { return errors.New("boom") }
func (failingDecompressor) Reconfigure(wire.VideoDesc, Shifts, int, uint32) (int, error) { return 0, nil }
func (failingDecompressor) Decompress([]byte, []byte, int) (Status, error)          { return StatusFail, nil }
func (failingDecompressor) Query(string) (any, bool)                                { return nil, false }
func (failingDecompressor) Done()                                                   {}
func (failingDecompressor) AcceptsCorruptedFrame() bool                             { return false }

func TestRegistry_SelectDecompressorFallsBackOnInitFailure(t *testing.T) {
	r := NewRegistry()
	r.RegisterDecompressor(1, 2, 0, "bad", func() Decompressor { return failingDecompressor{} })
	r.RegisterDecompressor(1, 2, 1, "raw", NewRawDecompressor)

	d, err := r.SelectDecompressor(1, 2)
	if err != nil {
		t.Fatalf("SelectDecompressor: %v", err)
	}
	if magic, _ := d.Query("magic"); magic != "raw" {
		t.Fatalf("expected fallback to priority-1 entry, got magic=%v", magic)
	}
}

func TestRegistry_SelectLineDecoderPrefersNative(t *testing.T) {
	r := NewRegistry()
	r.RegisterLineDecoder(1, 2, func(dst, src []byte, _ Shifts) { copy(dst, src) })

	fn, ok := r.SelectLineDecoder(1, 1)
	if !ok {
		t.Fatalf("expected native line decoder for from==to")
	}
	dst := make([]byte, 3)
	fn(dst, []byte{1, 2, 3}, Shifts{})
	if dst[0] != 1 || dst[2] != 3 {
		t.Fatalf("native copy did not preserve bytes: %v", dst)
	}
}

func TestRawDecompressor_Lifecycle(t *testing.T) {
	d := NewRawDecompressor()
	if err := d.Init("raw"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	n, err := d.Reconfigure(wire.VideoDesc{Width: 4, Height: 2}, DefaultShifts, 4, 0)
	if err != nil || n != 8 {
		t.Fatalf("Reconfigure: n=%d err=%v", n, err)
	}
	out := make([]byte, 8)
	status, err := d.Decompress([]byte{1, 2, 3, 4, 5, 6, 7, 8}, out, 0)
	if err != nil || status != StatusOK {
		t.Fatalf("Decompress: status=%v err=%v", status, err)
	}
	d.Done()
}
