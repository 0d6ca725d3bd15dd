package fec

import (
	"bytes"
	"testing"

	"github.com/hightechgrace/media-streamer/internal/wire"
)

func TestReedSolomon_EncodeReconstructRoundTrip(t *testing.T) {
	rs, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	shards := make([][]byte, 6)
	for i := range shards {
		shards[i] = make([]byte, 16)
	}
	for i := 0; i < 4; i++ {
		for j := range shards[i] {
			shards[i][j] = byte(i*16 + j)
		}
	}

	if err := rs.Encode(shards); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	original := make([][]byte, 6)
	for i, s := range shards {
		original[i] = append([]byte(nil), s...)
	}

	// Drop two data shards - recoverable with 2 parity shards.
	present := []bool{false, true, false, true, true, true}
	shards[0] = nil
	shards[2] = nil

	if err := rs.Reconstruct(shards, present); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}

	for i := 0; i < 4; i++ {
		if !bytes.Equal(shards[i], original[i]) {
			t.Fatalf("shard %d not recovered correctly: got %v want %v", i, shards[i], original[i])
		}
	}
}

func TestReedSolomon_TooFewShardsFails(t *testing.T) {
	rs, err := New(4, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	shards := make([][]byte, 6)
	for i := range shards {
		shards[i] = make([]byte, 8)
	}
	rs.Encode(shards)

	present := []bool{false, false, false, true, true, false}
	if err := rs.Reconstruct(shards, present); err == nil {
		t.Fatalf("expected error with 3 missing data shards and only 1 parity shard available")
	}
}

func TestRecover_MissingShardReconstructed(t *testing.T) {
	params := wire.FECParams{K: 4, M: 2, C: 0, Seed: 0}
	shardSize := 8
	total := int(params.K) + int(params.M)

	rs, err := New(int(params.K), int(params.M))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	shards := make([][]byte, total)
	for i := range shards {
		shards[i] = make([]byte, shardSize)
		for j := range shards[i] {
			shards[i][j] = byte(i + j)
		}
	}
	if err := rs.Encode(shards); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	buf := make([]byte, total*shardSize)
	for i, s := range shards {
		copy(buf[i*shardSize:], s)
	}

	// Simulate losing shard index 1 entirely: no received range covers it.
	var received []Range
	for i := 0; i < total; i++ {
		if i == 1 {
			continue
		}
		received = append(received, Range{Offset: uint32(i * shardSize), Length: uint32(shardSize)})
	}

	recovered, err := Recover(buf, received, params)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(recovered) != int(params.K)*shardSize {
		t.Fatalf("unexpected recovered length: got %d want %d", len(recovered), int(params.K)*shardSize)
	}
	want := append([]byte(nil), shards[0]...)
	want = append(want, shards[1]...)
	want = append(want, shards[2]...)
	want = append(want, shards[3]...)
	if !bytes.Equal(recovered, want) {
		t.Fatalf("recovered data mismatch:\ngot  %v\nwant %v", recovered, want)
	}
}
