// Copyright 2026 Pulsecast authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fec

import (
	"fmt"

	"github.com/pulsecast/pulsecast/pkg/packet"
)

const ldpcN1 = 3

// LDPCStaircaseCodec implements LDPC-Staircase (RFC 6816) block coding.
// The parity check matrix H = [H1|H2] has a pseudo-random left part with N1
// ones per source column (RFC 5170 PRNG) and a staircase double diagonal on
// the right. Decoding peels rows with a single unknown and falls back to
// Gaussian elimination over GF(2).
type LDPCStaircaseCodec struct {
	k, r int

	// rows[i] lists the symbol columns (0..k-1 source, k..k+r-1 repair)
	// participating in parity equation i.
	rows [][]int
}

func NewLDPCStaircaseCodec(k, r int) (*LDPCStaircaseCodec, error) {
	if k <= 0 || r <= 0 || k+r > 65535 {
		return nil, fmt.Errorf("fec: bad ldpc block shape k=%d r=%d", k, r)
	}
	c := &LDPCStaircaseCodec{k: k, r: r}
	c.buildMatrix()
	return c, nil
}

// pmms is the Park-Miller PRNG from RFC 5170.
type pmms struct {
	seed int64
}

func (p *pmms) rand(m int) int {
	p.seed = p.seed * 16807 % 2147483647
	return int(p.seed % int64(m))
}

func (c *LDPCStaircaseCodec) buildMatrix() {
	k, r := c.k, c.r

	set := make([]map[int]bool, r)
	for i := range set {
		set[i] = make(map[int]bool)
	}

	prng := pmms{seed: 1}

	// left part: N1 ones per source column (capped by the row count)
	n1 := ldpcN1
	if n1 > r {
		n1 = r
	}
	for col := 0; col < k; col++ {
		for h := 0; h < n1; h++ {
			row := prng.rand(r)
			for set[row][col] {
				row = prng.rand(r)
			}
			set[row][col] = true
		}
	}

	// no equation may be empty of source symbols
	for row := 0; row < r; row++ {
		if len(set[row]) == 0 {
			set[row][prng.rand(k)] = true
		}
	}

	// right part: staircase
	c.rows = make([][]int, r)
	for row := 0; row < r; row++ {
		cols := make([]int, 0, len(set[row])+2)
		for col := 0; col < k; col++ {
			if set[row][col] {
				cols = append(cols, col)
			}
		}
		cols = append(cols, k+row)
		if row > 0 {
			cols = append(cols, k+row-1)
		}
		c.rows[row] = cols
	}
}

func (c *LDPCStaircaseCodec) Scheme() packet.FECScheme {
	return packet.FECLDPCStaircase
}

func (c *LDPCStaircaseCodec) SBNBits() int {
	return 16
}

func (c *LDPCStaircaseCodec) Encode(source, repair [][]byte, k, r, symbolSize int) error {
	if k != c.k || r != c.r {
		return fmt.Errorf("fec: ldpc shape mismatch: got k=%d r=%d want k=%d r=%d", k, r, c.k, c.r)
	}
	for row := 0; row < r; row++ {
		out := repair[row]
		for i := range out {
			out[i] = 0
		}
		for _, col := range c.rows[row] {
			switch {
			case col < k:
				xorInto(out, source[col])
			case col == k+row:
				// the symbol being produced
			default:
				xorInto(out, repair[col-k])
			}
		}
	}
	return nil
}

func (c *LDPCStaircaseCodec) Decode(source, repair [][]byte, k, r, symbolSize int) (int, error) {
	if k != c.k || r != c.r {
		return 0, fmt.Errorf("fec: ldpc shape mismatch: got k=%d r=%d want k=%d r=%d", k, r, c.k, c.r)
	}

	// symbols[0:k] are source, [k:k+r] repair
	symbols := make([][]byte, k+r)
	copy(symbols, source)
	copy(symbols[k:], repair)

	// acc[i] is the XOR of all known symbols of equation i; unknown[i] the
	// still-unknown columns.
	acc := make([][]byte, r)
	unknown := make([][]int, r)
	for row := 0; row < r; row++ {
		acc[row] = make([]byte, symbolSize)
		for _, col := range c.rows[row] {
			if symbols[col] != nil {
				xorInto(acc[row], symbols[col])
			} else {
				unknown[row] = append(unknown[row], col)
			}
		}
	}

	// iterative peeling
	progress := true
	for progress {
		progress = false
		for row := 0; row < r; row++ {
			if len(unknown[row]) != 1 {
				continue
			}
			col := unknown[row][0]
			val := make([]byte, symbolSize)
			copy(val, acc[row])
			symbols[col] = val
			unknown[row] = nil
			for other := 0; other < r; other++ {
				for i, u := range unknown[other] {
					if u == col {
						xorInto(acc[other], val)
						unknown[other] = append(unknown[other][:i], unknown[other][i+1:]...)
						break
					}
				}
			}
			progress = true
		}
	}

	for col := 0; col < k; col++ {
		if symbols[col] == nil {
			if !c.eliminate(symbols, acc, unknown, symbolSize) {
				return 0, ErrNotEnough
			}
			break
		}
	}

	restored := 0
	for col := 0; col < k; col++ {
		if source[col] == nil {
			if symbols[col] == nil {
				return 0, ErrNotEnough
			}
			source[col] = symbols[col]
			restored++
		}
	}
	return restored, nil
}

// eliminate runs Gauss-Jordan elimination over the remaining unknowns when
// peeling stalls. Equation column sets are packed into bitset rows.
func (c *LDPCStaircaseCodec) eliminate(symbols [][]byte, acc [][]byte, unknown [][]int, symbolSize int) bool {
	// number the remaining unknown columns
	colID := make(map[int]int)
	var cols []int
	for row := range unknown {
		for _, col := range unknown[row] {
			if _, ok := colID[col]; !ok {
				colID[col] = len(cols)
				cols = append(cols, col)
			}
		}
	}
	m := len(cols)
	if m == 0 {
		return true
	}
	words := (m + 63) / 64

	type eq struct {
		bits []uint64
		rhs  []byte
	}
	var eqs []eq
	for row := range unknown {
		if len(unknown[row]) == 0 {
			continue
		}
		e := eq{bits: make([]uint64, words), rhs: append([]byte(nil), acc[row]...)}
		for _, col := range unknown[row] {
			id := colID[col]
			e.bits[id/64] |= 1 << (id % 64)
		}
		eqs = append(eqs, e)
	}

	hasBit := func(e eq, id int) bool {
		return e.bits[id/64]&(1<<(id%64)) != 0
	}

	pivotOf := make([]int, m) // unknown id -> equation index, -1 if none
	for id := range pivotOf {
		pivotOf[id] = -1
	}

	for id := 0; id < m; id++ {
		pivot := -1
		for i := range eqs {
			used := false
			for _, p := range pivotOf[:id] {
				if p == i {
					used = true
					break
				}
			}
			if !used && hasBit(eqs[i], id) {
				pivot = i
				break
			}
		}
		if pivot < 0 {
			continue
		}
		pivotOf[id] = pivot
		for i := range eqs {
			if i != pivot && hasBit(eqs[i], id) {
				for w := range eqs[i].bits {
					eqs[i].bits[w] ^= eqs[pivot].bits[w]
				}
				xorInto(eqs[i].rhs, eqs[pivot].rhs)
			}
		}
	}

	// a solved unknown's pivot equation must have exactly its own bit left
	oneBit := func(e eq, id int) bool {
		for w, b := range e.bits {
			want := uint64(0)
			if id/64 == w {
				want = 1 << (id % 64)
			}
			if b != want {
				return false
			}
		}
		return true
	}

	for id := 0; id < m; id++ {
		col := cols[id]
		if pivotOf[id] < 0 || !oneBit(eqs[pivotOf[id]], id) {
			if col < c.k {
				return false
			}
			continue
		}
		val := append([]byte(nil), eqs[pivotOf[id]].rhs...)
		symbols[col] = val
	}
	return true
}

func xorInto(dst, src []byte) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}
