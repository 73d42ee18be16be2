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

package session

import (
	"errors"
	"time"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/logger"
)

var (
	// ErrNoPlayback is session-fatal: the stream produced no samples for
	// longer than the timeout.
	ErrNoPlayback = errors.New("session: no playback timeout")

	// ErrTooManyDrops is session-fatal: the stream kept dropping or
	// zero-filling for the whole detection window.
	ErrTooManyDrops = errors.New("session: persistent drops")
)

type WatchdogConfig struct {
	// NoPlaybackTimeout is how long the output may stay blank before the
	// session is declared dead.
	NoPlaybackTimeout time.Duration

	// DropDetectionWindow is the window over which persistent drops kill
	// the session; zero disables the check. Present in only one copy of
	// the original config; kept as part of the authoritative superset.
	DropDetectionWindow time.Duration
}

func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		NoPlaybackTimeout: 2 * time.Second,
	}
}

// Watchdog terminates sessions that stopped playing. Progress is measured
// on the stream clock: positions advance by frame length per read, so the
// checks stay deterministic under test.
type Watchdog struct {
	config WatchdogConfig
	spec   audio.SampleSpec
	log    logger.Logger

	inner audio.FrameReader

	pos             uint64 // stream position, per-channel samples
	lastNonBlankPos uint64
	lastCleanPos    uint64
	noPlaybackLimit uint64
	dropWindowLimit uint64
	sawNonBlankEver bool
	terminated      error
}

func NewWatchdog(config WatchdogConfig, spec audio.SampleSpec, inner audio.FrameReader, log logger.Logger) *Watchdog {
	w := &Watchdog{
		config:          config,
		spec:            spec,
		log:             log.WithComponent("watchdog"),
		inner:           inner,
		noPlaybackLimit: uint64(spec.NsToSamplesPerChan(config.NoPlaybackTimeout)),
	}
	if config.DropDetectionWindow > 0 {
		w.dropWindowLimit = uint64(spec.NsToSamplesPerChan(config.DropDetectionWindow))
	}
	return w
}

func (w *Watchdog) ReadFrame(f *audio.Frame) error {
	if w.terminated != nil {
		return w.terminated
	}

	if err := w.inner.ReadFrame(f); err != nil {
		w.terminated = err
		return err
	}

	w.pos += uint64(f.SamplesPerChan())

	if f.Flags&audio.FrameNonBlank != 0 {
		w.lastNonBlankPos = w.pos
		w.sawNonBlankEver = true
	}
	if f.Flags&(audio.FrameDrops|audio.FrameIncomplete) == 0 {
		w.lastCleanPos = w.pos
	}

	if w.noPlaybackLimit > 0 &&
		w.pos-w.lastNonBlankPos >= w.noPlaybackLimit {
		w.log.Warnw("no playback, terminating session",
			"silent_samples", w.pos-w.lastNonBlankPos)
		w.terminated = ErrNoPlayback
		return w.terminated
	}

	if w.dropWindowLimit > 0 && w.sawNonBlankEver &&
		w.pos-w.lastCleanPos >= w.dropWindowLimit {
		w.log.Warnw("persistent drops, terminating session",
			"dirty_samples", w.pos-w.lastCleanPos)
		w.terminated = ErrTooManyDrops
		return w.terminated
	}
	return nil
}
