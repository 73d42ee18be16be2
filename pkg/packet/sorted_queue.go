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

package packet

import (
	"github.com/gammazero/deque"
)

// Less orders packets within a sorted queue.
type Less func(a, b *Packet) bool

// SeqNumLess orders source packets by RTP sequence number, wrap-aware.
func SeqNumLess(a, b *Packet) bool {
	return SeqLess(a.RTP.SeqNum, b.RTP.SeqNum)
}

// BlockSymbolLess orders repair packets by (SBN, ESI), wrap-aware on SBN.
func BlockSymbolLess(a, b *Packet) bool {
	if a.FEC.BlockNumber != b.FEC.BlockNumber {
		return BlockLess(a.FEC.BlockNumber, b.FEC.BlockNumber)
	}
	return a.FEC.SymbolID < b.FEC.SymbolID
}

// SortedQueue buffers packets in a caller-defined order. Mostly-ordered
// arrival is the common case, so insertion scans from the back. Duplicates
// drop the later arrival. A maxLen of zero means unbounded.
type SortedQueue struct {
	less   Less
	maxLen int
	q      deque.Deque[*Packet]
}

func NewSortedQueue(less Less, maxLen int) *SortedQueue {
	return &SortedQueue{
		less:   less,
		maxLen: maxLen,
	}
}

// Push inserts p in order. Returns false if p was rejected as a duplicate
// or because the queue is full; the caller keeps ownership of rejected
// packets.
func (s *SortedQueue) Push(p *Packet) bool {
	if s.maxLen > 0 && s.q.Len() >= s.maxLen {
		return false
	}

	i := s.q.Len()
	for i > 0 {
		at := s.q.At(i - 1)
		if s.less(at, p) {
			break
		}
		if !s.less(p, at) {
			// equal keys: later arrival is the duplicate
			return false
		}
		i--
	}
	s.q.Insert(i, p)
	return true
}

// Pop removes and returns the first packet, or nil if empty.
func (s *SortedQueue) Pop() *Packet {
	if s.q.Len() == 0 {
		return nil
	}
	return s.q.PopFront()
}

// Head returns the first packet without removing it, or nil.
func (s *SortedQueue) Head() *Packet {
	if s.q.Len() == 0 {
		return nil
	}
	return s.q.Front()
}

func (s *SortedQueue) Len() int {
	return s.q.Len()
}

// ReadPacket implements Reader over the queue.
func (s *SortedQueue) ReadPacket() (*Packet, error) {
	p := s.Pop()
	if p == nil {
		return nil, ErrDrain
	}
	return p, nil
}

// WritePacket implements Writer over the queue. Rejected packets are
// released.
func (s *SortedQueue) WritePacket(p *Packet) error {
	if !s.Push(p) {
		p.Release()
	}
	return nil
}
