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
	"github.com/pulsecast/pulsecast/pkg/logger"
	"github.com/pulsecast/pulsecast/pkg/packet"
	"github.com/pulsecast/pulsecast/pkg/rtp"
)

type BlockReaderConfig struct {
	// MaxSBNJump is the largest tolerated block number move. Bigger jumps
	// are a protocol violation and kill the reader.
	MaxSBNJump int

	// Block shape: source and repair packets per block. The shape is fixed
	// for the reader's lifetime and is not taken from packets; a repair
	// packet announcing a different shape kills the reader.
	SourcePackets int
	RepairPackets int
}

func DefaultBlockReaderConfig() BlockReaderConfig {
	return BlockReaderConfig{
		MaxSBNJump:    100,
		SourcePackets: 18,
		RepairPackets: 10,
	}
}

// BlockReader merges a source and a repair packet stream carrying a block
// code into an ordered stream of source packets, reconstructing missing
// ones when enough symbols of a block arrived.
//
// Reading drains both input queues, classifies packets by (SBN, ESI), and
// emits source packets in ESI order within each block. A block with
// unrecoverable holes is emitted with gaps; the depacketizer observes them
// as losses. Protocol violations (shape mismatch, oversized SBN jumps) mark
// the reader dead and abort the session.
type BlockReader struct {
	config BlockReaderConfig
	codec  Codec
	parser *rtp.Parser
	pool   *packet.PacketPool
	log    logger.Logger

	sourceReader packet.Reader
	repairReader packet.Reader

	sourceQueue *packet.SortedQueue
	repairQueue *packet.SortedQueue

	sourceBlock []*packet.Packet
	repairBlock []*packet.Packet

	curSBN      uint16
	payloadSize int
	headIndex   int

	started   bool
	alive     bool
	canRepair bool

	onRestored func(n int)
}

func NewBlockReader(
	config BlockReaderConfig,
	codec Codec,
	parser *rtp.Parser,
	pool *packet.PacketPool,
	sourceReader, repairReader packet.Reader,
	log logger.Logger,
) *BlockReader {
	return &BlockReader{
		config:       config,
		codec:        codec,
		parser:       parser,
		pool:         pool,
		log:          log.WithComponent("fec_reader"),
		sourceReader: sourceReader,
		repairReader: repairReader,
		sourceQueue:  packet.NewSortedQueue(packet.SeqNumLess, 0),
		repairQueue:  packet.NewSortedQueue(packet.BlockSymbolLess, 0),
		sourceBlock:  make([]*packet.Packet, config.SourcePackets),
		repairBlock:  make([]*packet.Packet, config.RepairPackets),
		alive:        true,
	}
}

// SetRestoredCallback registers a hook invoked with the count of packets
// restored per repair attempt.
func (r *BlockReader) SetRestoredCallback(fn func(n int)) {
	r.onRestored = fn
}

func (r *BlockReader) IsAlive() bool {
	return r.alive
}

func (r *BlockReader) IsStarted() bool {
	return r.started
}

// ReadPacket implements packet.Reader.
func (r *BlockReader) ReadPacket() (*packet.Packet, error) {
	if !r.alive {
		return nil, packet.ErrAbort
	}

	if err := r.fetchPackets(); err != nil {
		return nil, err
	}

	if !r.started {
		r.tryStart()
	}
	if !r.started {
		// Until a block head is seen, forward source packets as-is.
		return r.sourceQueue.ReadPacket()
	}

	p, err := r.nextPacket()
	if !r.alive {
		return nil, packet.ErrAbort
	}
	return p, err
}

func (r *BlockReader) fetchPackets() error {
	for {
		p, err := r.sourceReader.ReadPacket()
		if err == packet.ErrDrain {
			break
		}
		if err != nil {
			return err
		}
		r.sourceQueue.Push(p)
	}
	for {
		p, err := r.repairReader.ReadPacket()
		if err == packet.ErrDrain {
			break
		}
		if err != nil {
			return err
		}
		r.repairQueue.Push(p)
	}
	return nil
}

func (r *BlockReader) tryStart() {
	head := r.sourceQueue.Head()
	if head == nil || head.FEC == nil {
		return
	}

	// Wait for the first packet of a block (ESI=0) to begin decoding;
	// repair-only blocks never start the reader.
	if head.FEC.SymbolID != 0 {
		return
	}

	r.curSBN = head.FEC.BlockNumber
	r.commitShapeDefaults()
	r.dropStaleRepairPackets()
	r.started = true

	r.log.Debugw("got first packet in a block, start decoding",
		"sbn", r.curSBN)
}

func (r *BlockReader) commitShapeDefaults() {
	r.payloadSize = 0
	r.canRepair = false
	r.headIndex = 0
	for i := range r.sourceBlock {
		r.sourceBlock[i] = nil
	}
	for i := range r.repairBlock {
		r.repairBlock[i] = nil
	}
}

func (r *BlockReader) dropStaleRepairPackets() {
	for {
		head := r.repairQueue.Head()
		if head == nil {
			return
		}
		if sbnDiff(head.FEC.BlockNumber, r.curSBN, r.codec.SBNBits()) >= 0 {
			return
		}
		r.repairQueue.Pop().Release()
	}
}

func (r *BlockReader) nextPacket() (*packet.Packet, error) {
	for r.alive {
		r.fillBlock()

		if r.headIndex < len(r.sourceBlock) && r.sourceBlock[r.headIndex] == nil && r.canRepair {
			r.tryRepair()
		}

		for r.headIndex < len(r.sourceBlock) {
			p := r.sourceBlock[r.headIndex]
			if p != nil {
				// the block keeps its own reference so the symbol stays
				// available for repairing later holes
				p.IncRef()
				r.headIndex++
				return p, nil
			}
			// a hole: skip only if nothing more can arrive for this slot
			if !r.blockRetired() {
				return nil, packet.ErrDrain
			}
			r.headIndex++
		}

		if !r.haveNextBlockData() {
			return nil, packet.ErrDrain
		}
		r.nextBlock()
	}
	return nil, packet.ErrAbort
}

// blockRetired reports whether newer-block packets are queued, meaning no
// more symbols of the current block can arrive in order.
func (r *BlockReader) blockRetired() bool {
	return r.haveNextBlockData()
}

func (r *BlockReader) haveNextBlockData() bool {
	if head := r.sourceQueue.Head(); head != nil &&
		sbnDiff(head.FEC.BlockNumber, r.curSBN, r.codec.SBNBits()) > 0 {
		return true
	}
	if head := r.repairQueue.Head(); head != nil &&
		sbnDiff(head.FEC.BlockNumber, r.curSBN, r.codec.SBNBits()) > 0 {
		return true
	}
	return false
}

func (r *BlockReader) nextBlock() {
	// last chance to repair before abandoning the block
	if r.canRepair && r.hasHoles() {
		r.tryRepair()
		for r.headIndex < len(r.sourceBlock) {
			if p := r.sourceBlock[r.headIndex]; p != nil {
				// emitted on the next loop iteration
				return
			}
			r.headIndex++
		}
	}

	for _, p := range r.sourceBlock {
		if p != nil {
			p.Release()
		}
	}
	for _, p := range r.repairBlock {
		if p != nil {
			p.Release()
		}
	}

	next := r.curSBN + 1
	if r.codec.SBNBits() == 8 {
		next &= 0xff
	}

	// jump to the oldest queued block if it is further ahead
	if head := r.sourceQueue.Head(); head != nil {
		if d := sbnDiff(head.FEC.BlockNumber, next, r.codec.SBNBits()); d > 0 {
			if d > r.config.MaxSBNJump {
				r.log.Warnw("sbn jump exceeds limit, aborting",
					"cur", r.curSBN, "next", head.FEC.BlockNumber)
				r.alive = false
				return
			}
			next = head.FEC.BlockNumber
		}
	}

	r.curSBN = next
	r.commitShapeDefaults()
	r.dropStaleRepairPackets()
}

func (r *BlockReader) hasHoles() bool {
	for i := r.headIndex; i < len(r.sourceBlock); i++ {
		if r.sourceBlock[i] == nil {
			return true
		}
	}
	return false
}

func (r *BlockReader) fillBlock() {
	bits := r.codec.SBNBits()

	for {
		head := r.sourceQueue.Head()
		if head == nil {
			break
		}
		d := sbnDiff(head.FEC.BlockNumber, r.curSBN, bits)
		if d > 0 {
			break // future block, keep queued
		}
		p := r.sourceQueue.Pop()
		if d < 0 {
			if -d > r.config.MaxSBNJump {
				r.log.Warnw("stale sbn beyond jump limit, aborting",
					"sbn", p.FEC.BlockNumber, "cur", r.curSBN)
				p.Release()
				r.alive = false
				return
			}
			p.Release() // packet from an already retired block
			continue
		}
		if !r.acceptSourcePacket(p) {
			return
		}
	}

	for {
		head := r.repairQueue.Head()
		if head == nil {
			break
		}
		d := sbnDiff(head.FEC.BlockNumber, r.curSBN, bits)
		if d > 0 {
			break
		}
		p := r.repairQueue.Pop()
		if d < 0 {
			p.Release() // late repair for a retired block, dropped silently
			continue
		}
		if !r.acceptRepairPacket(p) {
			return
		}
	}

	r.updateCanRepair()
}

func (r *BlockReader) acceptSourcePacket(p *packet.Packet) bool {
	esi := int(p.FEC.SymbolID)
	if esi >= len(r.sourceBlock) {
		r.log.Warnw("source esi out of block bounds, aborting",
			"esi", esi, "k", len(r.sourceBlock))
		p.Release()
		r.alive = false
		return false
	}
	if !r.commitPayloadSize(len(p.FEC.Payload)) {
		p.Release()
		return false
	}
	if r.sourceBlock[esi] != nil {
		p.Release()
		return true
	}
	r.sourceBlock[esi] = p
	return true
}

func (r *BlockReader) acceptRepairPacket(p *packet.Packet) bool {
	if int(p.FEC.SourceBlockLength) != len(r.sourceBlock) ||
		int(p.FEC.BlockLength) != len(r.sourceBlock)+len(r.repairBlock) {
		r.log.Warnw("block shape mismatch, aborting",
			"sbl", p.FEC.SourceBlockLength, "blen", p.FEC.BlockLength,
			"k", len(r.sourceBlock), "n", len(r.sourceBlock)+len(r.repairBlock))
		p.Release()
		r.alive = false
		return false
	}
	ri := int(p.FEC.SymbolID) - len(r.sourceBlock)
	if ri < 0 || ri >= len(r.repairBlock) {
		r.log.Warnw("repair esi out of block bounds, aborting",
			"esi", p.FEC.SymbolID)
		p.Release()
		r.alive = false
		return false
	}
	if !r.commitPayloadSize(len(p.FEC.Payload)) {
		p.Release()
		return false
	}
	if r.repairBlock[ri] != nil {
		p.Release()
		return true
	}
	r.repairBlock[ri] = p
	return true
}

// commitPayloadSize fixes the symbol size at the first packet of a block;
// later packets must match exactly.
func (r *BlockReader) commitPayloadSize(size int) bool {
	if size == 0 {
		r.log.Warnw("zero payload size, aborting")
		r.alive = false
		return false
	}
	if r.payloadSize == 0 {
		r.payloadSize = size
		return true
	}
	if size != r.payloadSize {
		r.log.Warnw("payload size mismatch, aborting",
			"got", size, "committed", r.payloadSize)
		r.alive = false
		return false
	}
	return true
}

func (r *BlockReader) updateCanRepair() {
	nSource, nRepair := 0, 0
	for _, p := range r.sourceBlock {
		if p != nil {
			nSource++
		}
	}
	for _, p := range r.repairBlock {
		if p != nil {
			nRepair++
		}
	}
	r.canRepair = nRepair > 0 && nSource+nRepair >= len(r.sourceBlock)
}

func (r *BlockReader) tryRepair() {
	k := len(r.sourceBlock)
	rr := len(r.repairBlock)

	source := make([][]byte, k)
	repair := make([][]byte, rr)
	for i, p := range r.sourceBlock {
		if p != nil {
			source[i] = symbolOf(p, r.payloadSize)
		}
	}
	for i, p := range r.repairBlock {
		if p != nil {
			repair[i] = p.FEC.Payload
		}
	}

	_, err := r.codec.Decode(source, repair, k, rr, r.payloadSize)
	if err != nil {
		if err != ErrNotEnough {
			r.log.Warnw("codec error, aborting", "error", err)
			r.alive = false
		}
		return
	}

	n := 0
	for i := range r.sourceBlock {
		if r.sourceBlock[i] != nil || source[i] == nil {
			continue
		}
		p := r.restorePacket(source[i], uint16(i))
		if p == nil {
			continue
		}
		r.sourceBlock[i] = p
		n++
	}
	if n > 0 {
		r.canRepair = false
		if r.onRestored != nil {
			r.onRestored(n)
		}
	}
}

// symbolOf returns the FEC-protected bytes of a source packet.
func symbolOf(p *packet.Packet, size int) []byte {
	sym := p.FEC.Payload
	if len(sym) > size {
		sym = sym[:size]
	}
	return sym
}

// restorePacket re-parses a reconstructed symbol as an RTP packet and marks
// it restored.
func (r *BlockReader) restorePacket(symbol []byte, esi uint16) *packet.Packet {
	p := r.pool.Get()
	if p == nil {
		r.log.Warnw("packet pool exhausted, dropping restored packet")
		return nil
	}
	buf := p.Buffer()
	if buf.Cap() < len(symbol) {
		p.Release()
		r.log.Warnw("restored symbol exceeds buffer size, dropping")
		return nil
	}
	copy(buf.Data()[:len(symbol)], symbol)
	buf.Resize(len(symbol))

	body, err := ParseSourcePacket(r.codec.Scheme(), buf.Data(), p.EnableFEC(r.codec.Scheme()))
	if err != nil {
		p.Release()
		r.log.Warnw("restored symbol has bad payload id, dropping")
		return nil
	}
	if err := r.parser.Parse(p, body); err != nil {
		p.Release()
		r.log.Warnw("restored symbol is not valid rtp, dropping")
		return nil
	}
	p.SetFlags(packet.FlagRestored | packet.FlagAudio)
	p.FEC.BlockNumber = r.curSBN
	p.FEC.SymbolID = esi
	return p
}
