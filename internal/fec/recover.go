package fec

import "github.com/hightechgrace/media-streamer/internal/wire"

// Range is a received byte range within a substream's assembly buffer,
// matching internal/frame.Fragment's shape without importing that package
// (avoids a cycle, since internal/reassembly imports both).
type Range struct {
	Offset uint32
	Length uint32
}

// Recover applies Reed-Solomon reconstruction to buf, which is laid out as
// params.K+params.M equal-size shards (spec.md §4.4 step 2: "invoke the FEC
// recovery function with the substream buffer and the FEC parameters").
// received describes which byte ranges of buf actually arrived; a shard
// counts as present only if every byte in its range was received. On
// success, Recover returns the K data shards concatenated (FEC overhead
// stripped); on failure (too few shards to reconstruct) it returns an
// error and the caller drops the FrameUnit per spec.md §4.4.
//
// params.C and params.Seed identify the LDGM interleaving variant in the
// original protocol; this engine's recovery algorithm is systematic
// Reed-Solomon rather than LDGM (see DESIGN.md), so C and Seed are not
// consulted by the recovery math itself — only carried through for
// diagnostics and the within-frame-divergence check in internal/frame.
func Recover(buf []byte, received []Range, params wire.FECParams) ([]byte, error) {
	total := int(params.K) + int(params.M)
	if total <= 0 || int(params.K) <= 0 {
		return nil, ErrInvalidShardSize
	}

	shardSize := (len(buf) + total - 1) / total
	if shardSize == 0 {
		return nil, ErrInvalidShardSize
	}

	covered := coverageMask(len(buf), received)

	shards := make([][]byte, total)
	present := make([]bool, total)
	for i := 0; i < total; i++ {
		start := i * shardSize
		end := start + shardSize
		if end > len(buf) {
			end = len(buf)
		}
		shard := make([]byte, shardSize)
		if start < len(buf) {
			copy(shard, buf[start:end])
		}
		shards[i] = shard
		present[i] = start < len(buf) && rangeFullyCovered(covered, start, end)
	}

	rs, err := New(int(params.K), int(params.M))
	if err != nil {
		return nil, err
	}
	if err := rs.Reconstruct(shards, present); err != nil {
		return nil, err
	}

	out := make([]byte, int(params.K)*shardSize)
	for i := 0; i < int(params.K); i++ {
		copy(out[i*shardSize:(i+1)*shardSize], shards[i])
	}
	return out, nil
}

func coverageMask(size int, ranges []Range) []bool {
	mask := make([]bool, size)
	for _, r := range ranges {
		end := int(r.Offset + r.Length)
		if end > size {
			end = size
		}
		for i := int(r.Offset); i < end; i++ {
			mask[i] = true
		}
	}
	return mask
}

func rangeFullyCovered(mask []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if !mask[i] {
			return false
		}
	}
	return true
}
