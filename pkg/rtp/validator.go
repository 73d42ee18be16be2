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

package rtp

import (
	"errors"
	"time"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/packet"
)

var (
	// ErrSeqJump means the seqnum moved further than the configured
	// threshold. The session, not the packet, is failed.
	ErrSeqJump = errors.New("rtp: seqnum jump exceeds limit")

	// ErrTimestampJump means the stream timestamp moved further than the
	// configured threshold.
	ErrTimestampJump = errors.New("rtp: timestamp jump exceeds limit")

	// ErrSSRCChange means the stream changed its SSRC mid-session.
	ErrSSRCChange = errors.New("rtp: ssrc changed")

	// ErrPayloadTypeChange means the stream changed its payload type.
	ErrPayloadTypeChange = errors.New("rtp: payload type changed")
)

type ValidatorConfig struct {
	// MaxSnJump is the largest allowed forward or backward seqnum move.
	MaxSnJump int

	// MaxTsJump is the largest allowed timestamp move, as a duration at
	// the stream rate.
	MaxTsJump time.Duration
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxSnJump: 100,
		MaxTsJump: time.Second,
	}
}

// Validator checks per-stream RTP header continuity. A failed check is a
// session-fatal condition: the caller tears down the session rather than
// dropping the packet.
type Validator struct {
	config ValidatorConfig
	spec   audio.SampleSpec

	hasPrev  bool
	prevSSRC uint32
	prevSeq  uint16
	prevTs   uint32
	prevPT   uint8
}

func NewValidator(config ValidatorConfig, spec audio.SampleSpec) *Validator {
	return &Validator{
		config: config,
		spec:   spec,
	}
}

// Validate checks view against the previously accepted packet and, on
// success, commits it as the new reference.
func (v *Validator) Validate(view *packet.RTP) error {
	if v.hasPrev {
		if view.SSRC != v.prevSSRC {
			return ErrSSRCChange
		}
		if view.PayloadType != v.prevPT {
			return ErrPayloadTypeChange
		}
		if jump := packet.SeqDiff(view.SeqNum, v.prevSeq); abs(jump) > v.config.MaxSnJump {
			return ErrSeqJump
		}
		maxTs := int(v.spec.NsToStreamTimestampDelta(v.config.MaxTsJump))
		if jump := packet.TimestampDiff(view.Timestamp, v.prevTs); abs(jump) > maxTs {
			return ErrTimestampJump
		}
	}

	v.hasPrev = true
	v.prevSSRC = view.SSRC
	v.prevSeq = view.SeqNum
	v.prevTs = view.Timestamp
	v.prevPT = view.PayloadType
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
