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
	"sync"
	"sync/atomic"
)

const nilSlot = uint32(0xffffffff)

// Buffer is a fixed-size slab slot with a reference count. The last DecRef
// returns the slot to the owning pool's free list.
type Buffer struct {
	pool *BufferPool
	slot uint32
	refs atomic.Int32
	data []byte
	size int
}

// Data returns the valid portion of the buffer.
func (b *Buffer) Data() []byte {
	return b.data[:b.size]
}

// Resize sets the valid length. n must not exceed the pool's buffer size.
func (b *Buffer) Resize(n int) {
	b.size = n
}

func (b *Buffer) Cap() int {
	return len(b.data)
}

func (b *Buffer) IncRef() {
	b.refs.Add(1)
}

func (b *Buffer) DecRef() {
	if n := b.refs.Add(-1); n == 0 {
		b.pool.put(b.slot)
	} else if n < 0 {
		panic("packet: buffer refcount underflow")
	}
}

// BufferPool is a lock-free fixed-size buffer arena. The free list is a
// Treiber stack whose head packs (tag:32, slot:32) into one CAS word; the
// tag increments on every pop and push, which keeps slot reuse ABA-safe
// within the 32-bit tag space.
type BufferPool struct {
	bufferSize int

	head atomic.Uint64

	growLock sync.Mutex
	buffers  atomic.Pointer[[]*Buffer]
	next     atomic.Pointer[[]uint32]
}

func NewBufferPool(bufferSize, numBuffers int) *BufferPool {
	p := &BufferPool{
		bufferSize: bufferSize,
	}

	buffers := make([]*Buffer, numBuffers)
	next := make([]uint32, numBuffers)
	slab := make([]byte, bufferSize*numBuffers)
	for i := range buffers {
		buffers[i] = &Buffer{
			pool: p,
			slot: uint32(i),
			data: slab[i*bufferSize : (i+1)*bufferSize],
		}
		next[i] = uint32(i) + 1
	}
	if numBuffers > 0 {
		next[numBuffers-1] = nilSlot
		p.head.Store(packHead(0, 0))
	} else {
		p.head.Store(packHead(0, nilSlot))
	}
	p.buffers.Store(&buffers)
	p.next.Store(&next)
	return p
}

func packHead(tag, slot uint32) uint64 {
	return uint64(tag)<<32 | uint64(slot)
}

func unpackHead(h uint64) (tag, slot uint32) {
	return uint32(h >> 32), uint32(h)
}

// Get pops a buffer from the free list, or returns nil when the pool is
// exhausted. The returned buffer has one reference.
func (p *BufferPool) Get() *Buffer {
	for {
		h := p.head.Load()
		tag, slot := unpackHead(h)
		if slot == nilSlot {
			return nil
		}
		next := (*p.next.Load())[slot]
		if p.head.CompareAndSwap(h, packHead(tag+1, next)) {
			b := (*p.buffers.Load())[slot]
			b.size = 0
			b.refs.Store(1)
			return b
		}
	}
}

func (p *BufferPool) put(slot uint32) {
	for {
		h := p.head.Load()
		tag, old := unpackHead(h)
		(*p.next.Load())[slot] = old
		if p.head.CompareAndSwap(h, packHead(tag+1, slot)) {
			return
		}
	}
}

// Grow appends n more buffers to the arena. Concurrent Grow calls are
// serialized; Get and put are not synchronized with Grow, so a put that
// runs while Grow copies the free-list links can be lost.
func (p *BufferPool) Grow(n int) {
	p.growLock.Lock()
	defer p.growLock.Unlock()

	oldBuffers := *p.buffers.Load()
	oldNext := *p.next.Load()
	base := len(oldBuffers)

	buffers := make([]*Buffer, base+n)
	next := make([]uint32, base+n)
	copy(buffers, oldBuffers)
	copy(next, oldNext)

	slab := make([]byte, p.bufferSize*n)
	for i := 0; i < n; i++ {
		buffers[base+i] = &Buffer{
			pool: p,
			slot: uint32(base + i),
			data: slab[i*p.bufferSize : (i+1)*p.bufferSize],
		}
	}
	p.buffers.Store(&buffers)
	p.next.Store(&next)

	for i := 0; i < n; i++ {
		p.put(uint32(base + i))
	}
}

// BufferSize returns the fixed per-buffer capacity.
func (p *BufferPool) BufferSize() int {
	return p.bufferSize
}

// PacketPool recycles Packet structs and attaches pooled buffers to them.
type PacketPool struct {
	buffers *BufferPool
	packets sync.Pool
}

func NewPacketPool(bufferSize, numBuffers int) *PacketPool {
	p := &PacketPool{
		buffers: NewBufferPool(bufferSize, numBuffers),
	}
	p.packets.New = func() interface{} {
		return &Packet{}
	}
	return p
}

// Get returns a fresh packet with one reference and an attached buffer, or
// nil when the buffer pool is exhausted.
func (p *PacketPool) Get() *Packet {
	b := p.buffers.Get()
	if b == nil {
		return nil
	}
	pkt := p.packets.Get().(*Packet)
	pkt.reset()
	pkt.buffer = b
	pkt.pool = p
	pkt.refs.Store(1)
	return pkt
}

// GetUnbuffered returns a packet without a backing buffer, for views over
// externally owned memory (used by tests).
func (p *PacketPool) GetUnbuffered() *Packet {
	pkt := p.packets.Get().(*Packet)
	pkt.reset()
	pkt.pool = p
	pkt.refs.Store(1)
	return pkt
}

func (p *PacketPool) put(pkt *Packet) {
	pkt.reset()
	p.packets.Put(pkt)
}

// Buffers exposes the underlying buffer pool.
func (p *PacketPool) Buffers() *BufferPool {
	return p.buffers
}
