// Package fec implements the forward-error-correction recovery step used by
// the reassembly stage (spec.md §4.4 step 2). The GF(2^8) Reed-Solomon
// codec below is a direct port of
// zalo-moonparty/moonlight-common-go/fec/fec.go's ReedSolomon type (itself
// a port of moonlight-common-c's reed-solomon code) — that file is a plain
// algorithm file inside a retrieved example repo, not a published module,
// so its logic is adapted here rather than imported.
package fec

import (
	"errors"
	"sync"
)

const (
	gfBits = 8
	gfPP   = "101110001"
	gfSize = (1 << gfBits) - 1

	// MaxShards is the largest (data+parity) shard count this codec
	// supports, matching the GF(2^8) field size.
	MaxShards = 255
)

var (
	// ErrTooManyShards is returned by New when dataShards+parityShards
	// exceeds MaxShards, or either count is non-positive.
	ErrTooManyShards = errors.New("fec: too many shards")
	// ErrNotEnoughShards is returned by Reconstruct when fewer shards are
	// present than are needed to recover the missing ones.
	ErrNotEnoughShards = errors.New("fec: not enough shards for reconstruction")
	// ErrInvalidShardSize is returned when shard slices disagree in length.
	ErrInvalidShardSize = errors.New("fec: invalid shard size")
)

type gf = uint8

var (
	gfExp     [2 * gfSize]gf
	gfLog     [gfSize + 1]int
	gfInverse [gfSize + 1]gf
	gfMulTab  [(gfSize + 1) * (gfSize + 1)]gf

	tablesOnce sync.Once
)

func initTables() {
	tablesOnce.Do(func() {
		generateGF()
		initMulTable()
	})
}

// ReedSolomon is a systematic Reed-Solomon codec over GF(2^8): the first
// dataShards rows of the encoding matrix are the identity (data shards pass
// through unmodified), the remaining parityShards rows are a Cauchy matrix.
type ReedSolomon struct {
	dataShards   int
	parityShards int
	totalShards  int
	matrix       []gf
	parity       []gf
}

// New creates a codec for the given shard counts.
func New(dataShards, parityShards int) (*ReedSolomon, error) {
	initTables()

	total := dataShards + parityShards
	if total > MaxShards || dataShards <= 0 || parityShards <= 0 {
		return nil, ErrTooManyShards
	}

	rs := &ReedSolomon{dataShards: dataShards, parityShards: parityShards, totalShards: total}

	vm := make([]gf, dataShards*total)
	for row := 0; row < total; row++ {
		for col := 0; col < dataShards; col++ {
			if row == col {
				vm[row*dataShards+col] = 1
			}
		}
	}

	top := subMatrix(vm, 0, 0, dataShards, dataShards, total, dataShards)
	if err := invertMatrix(top, dataShards); err != nil {
		return nil, err
	}
	rs.matrix = multiply(vm, total, dataShards, top, dataShards, dataShards)

	for j := 0; j < parityShards; j++ {
		for i := 0; i < dataShards; i++ {
			rs.matrix[(dataShards+j)*dataShards+i] = gfInverse[(parityShards+i)^j]
		}
	}
	rs.parity = subMatrix(rs.matrix, dataShards, 0, total, dataShards, total, dataShards)

	return rs, nil
}

func (rs *ReedSolomon) DataShards() int   { return rs.dataShards }
func (rs *ReedSolomon) ParityShards() int { return rs.parityShards }
func (rs *ReedSolomon) TotalShards() int  { return rs.totalShards }

// Encode fills the parity shards (indices [dataShards:totalShards)) from
// the data shards. All shards must be pre-sized to the same length.
func (rs *ReedSolomon) Encode(shards [][]byte) error {
	if len(shards) != rs.totalShards {
		return ErrInvalidShardSize
	}
	blockSize := len(shards[0])
	for _, s := range shards {
		if len(s) != blockSize {
			return ErrInvalidShardSize
		}
	}
	codeSomeShards(rs.parity, shards[:rs.dataShards], shards[rs.dataShards:], rs.dataShards, rs.parityShards, blockSize)
	return nil
}

// Reconstruct fills in missing shards (present[i] == false) in place, using
// whichever data and parity shards are present. Missing shard slices are
// allocated if nil. Returns ErrNotEnoughShards if too few shards survive.
func (rs *ReedSolomon) Reconstruct(shards [][]byte, present []bool) error {
	if len(shards) != rs.totalShards || len(present) != rs.totalShards {
		return ErrInvalidShardSize
	}

	blockSize := 0
	for i, s := range shards {
		if present[i] {
			if blockSize == 0 {
				blockSize = len(s)
			} else if len(s) != blockSize {
				return ErrInvalidShardSize
			}
		}
	}
	if blockSize == 0 {
		return ErrNotEnoughShards
	}

	var missingData []int
	for i := 0; i < rs.dataShards; i++ {
		if !present[i] {
			missingData = append(missingData, i)
		}
	}
	if len(missingData) == 0 {
		return nil
	}

	var availableParity []int
	var parityData [][]byte
	for i := rs.dataShards; i < rs.totalShards && len(availableParity) < len(missingData); i++ {
		if present[i] {
			availableParity = append(availableParity, i-rs.dataShards)
			parityData = append(parityData, shards[i])
		}
	}
	if len(availableParity) < len(missingData) {
		return ErrNotEnoughShards
	}

	decodeMatrix := make([]gf, rs.dataShards*rs.dataShards)
	subMatrixRow := 0
	subShards := make([][]byte, rs.dataShards)
	missingIdx := 0

	for i := 0; i < rs.dataShards; i++ {
		if missingIdx < len(missingData) && i == missingData[missingIdx] {
			missingIdx++
			continue
		}
		for c := 0; c < rs.dataShards; c++ {
			decodeMatrix[subMatrixRow*rs.dataShards+c] = rs.matrix[i*rs.dataShards+c]
		}
		subShards[subMatrixRow] = shards[i]
		subMatrixRow++
	}

	for i := 0; i < len(missingData) && subMatrixRow < rs.dataShards; i++ {
		j := rs.dataShards + availableParity[i]
		for c := 0; c < rs.dataShards; c++ {
			decodeMatrix[subMatrixRow*rs.dataShards+c] = rs.matrix[j*rs.dataShards+c]
		}
		subShards[subMatrixRow] = parityData[i]
		subMatrixRow++
	}

	if err := invertMatrix(decodeMatrix, rs.dataShards); err != nil {
		return err
	}

	outputs := make([][]byte, len(missingData))
	for i, idx := range missingData {
		if shards[idx] == nil {
			shards[idx] = make([]byte, blockSize)
		}
		outputs[i] = shards[idx]
		copy(decodeMatrix[i*rs.dataShards:], decodeMatrix[idx*rs.dataShards:(idx+1)*rs.dataShards])
	}

	codeSomeShards(decodeMatrix, subShards, outputs, rs.dataShards, len(missingData), blockSize)
	return nil
}

func modnn(x int) gf {
	for x >= gfSize {
		x -= gfSize
		x = (x >> gfBits) + (x & gfSize)
	}
	return gf(x)
}

func generateGF() {
	var mask gf = 1
	gfExp[gfBits] = 0
	for i := 0; i < gfBits; i++ {
		gfExp[i] = mask
		gfLog[gfExp[i]] = i
		if gfPP[i] == '1' {
			gfExp[gfBits] ^= mask
		}
		mask <<= 1
	}
	gfLog[gfExp[gfBits]] = gfBits
	mask = 1 << (gfBits - 1)
	for i := gfBits + 1; i < gfSize; i++ {
		if gfExp[i-1] >= mask {
			gfExp[i] = gfExp[gfBits] ^ ((gfExp[i-1] ^ mask) << 1)
		} else {
			gfExp[i] = gfExp[i-1] << 1
		}
		gfLog[gfExp[i]] = i
	}
	gfLog[0] = gfSize
	for i := 0; i < gfSize; i++ {
		gfExp[i+gfSize] = gfExp[i]
	}
	gfInverse[0] = 0
	gfInverse[1] = 1
	for i := 2; i <= gfSize; i++ {
		gfInverse[i] = gfExp[gfSize-gfLog[i]]
	}
}

func initMulTable() {
	for i := 0; i < gfSize+1; i++ {
		for j := 0; j < gfSize+1; j++ {
			gfMulTab[(i<<8)+j] = gfExp[modnn(gfLog[i]+gfLog[j])]
		}
	}
	for j := 0; j < gfSize+1; j++ {
		gfMulTab[j] = 0
		gfMulTab[j<<8] = 0
	}
}

func gfMul(x, y gf) gf { return gfMulTab[(int(x)<<8)+int(y)] }

func addmul(dst, src []gf, c gf) {
	if c == 0 {
		return
	}
	t := gfMulTab[int(c)<<8:]
	for i := range dst {
		dst[i] ^= t[src[i]]
	}
}

func mul(dst, src []gf, c gf) {
	if c == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	t := gfMulTab[int(c)<<8:]
	for i := range dst {
		dst[i] = t[src[i]]
	}
}

func invertMatrix(src []gf, k int) error {
	indxc := make([]int, k)
	indxr := make([]int, k)
	ipiv := make([]int, k)
	idRow := make([]gf, k)

	for col := 0; col < k; col++ {
		irow, icol := -1, -1
		if ipiv[col] != 1 && src[col*k+col] != 0 {
			irow, icol = col, col
		} else {
			for row := 0; row < k && icol == -1; row++ {
				if ipiv[row] != 1 {
					for ix := 0; ix < k; ix++ {
						if ipiv[ix] == 0 && src[row*k+ix] != 0 {
							irow, icol = row, ix
							break
						}
					}
				}
			}
		}
		if icol == -1 {
			return errors.New("fec: singular matrix")
		}
		ipiv[icol]++

		if irow != icol {
			for ix := 0; ix < k; ix++ {
				src[irow*k+ix], src[icol*k+ix] = src[icol*k+ix], src[irow*k+ix]
			}
		}
		indxr[col], indxc[col] = irow, icol

		pivotRow := src[icol*k : (icol+1)*k]
		c := pivotRow[icol]
		if c == 0 {
			return errors.New("fec: singular matrix")
		}
		if c != 1 {
			c = gfInverse[c]
			pivotRow[icol] = 1
			for ix := 0; ix < k; ix++ {
				pivotRow[ix] = gfMul(c, pivotRow[ix])
			}
		}

		idRow[icol] = 1
		pivotIsIdentity := true
		for ix := 0; ix < k; ix++ {
			if pivotRow[ix] != idRow[ix] {
				pivotIsIdentity = false
				break
			}
		}
		if !pivotIsIdentity {
			for ix := 0; ix < k; ix++ {
				if ix != icol {
					p := src[ix*k : (ix+1)*k]
					c := p[icol]
					p[icol] = 0
					addmul(p, pivotRow, c)
				}
			}
		}
		idRow[icol] = 0
	}

	for col := k - 1; col >= 0; col-- {
		if indxr[col] != indxc[col] {
			for row := 0; row < k; row++ {
				src[row*k+indxr[col]], src[row*k+indxc[col]] = src[row*k+indxc[col]], src[row*k+indxr[col]]
			}
		}
	}
	return nil
}

func subMatrix(m []gf, rmin, cmin, rmax, cmax, _, ncols int) []gf {
	out := make([]gf, (rmax-rmin)*(cmax-cmin))
	ptr := 0
	for i := rmin; i < rmax; i++ {
		for j := cmin; j < cmax; j++ {
			out[ptr] = m[i*ncols+j]
			ptr++
		}
	}
	return out
}

func multiply(a []gf, ar, ac int, b []gf, br, bc int) []gf {
	if ac != br {
		return nil
	}
	out := make([]gf, ar*bc)
	for r := 0; r < ar; r++ {
		for c := 0; c < bc; c++ {
			var acc gf
			for i := 0; i < ac; i++ {
				acc ^= gfMul(a[r*ac+i], b[i*bc+c])
			}
			out[r*bc+c] = acc
		}
	}
	return out
}

func codeSomeShards(matrixRows []gf, inputs, outputs [][]byte, dataShards, outputCount, byteCount int) {
	_ = byteCount
	for c := 0; c < dataShards; c++ {
		in := inputs[c]
		for iRow := 0; iRow < outputCount; iRow++ {
			if c == 0 {
				mul(outputs[iRow], in, matrixRows[iRow*dataShards+c])
			} else {
				addmul(outputs[iRow], in, matrixRows[iRow*dataShards+c])
			}
		}
	}
}
