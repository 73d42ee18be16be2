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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/logger"
)

type flagReader struct {
	flags []audio.FrameFlags
	pos   int
}

func (r *flagReader) ReadFrame(f *audio.Frame) error {
	if r.pos < len(r.flags) {
		f.Flags = r.flags[r.pos]
		r.pos++
	} else {
		f.Flags = 0
	}
	return nil
}

func TestWatchdogNoPlaybackTimeout(t *testing.T) {
	spec := monoSpec()
	config := WatchdogConfig{
		NoPlaybackTimeout: spec.SamplesPerChanToNs(441),
	}

	w := NewWatchdog(config, spec, &flagReader{}, logger.GetLogger())
	f := audio.NewFrame(spec, 100)

	for i := 0; i < 4; i++ {
		require.NoError(t, w.ReadFrame(f))
	}
	require.ErrorIs(t, w.ReadFrame(f), ErrNoPlayback)
	// dead stays dead
	require.ErrorIs(t, w.ReadFrame(f), ErrNoPlayback)
}

func TestWatchdogNonBlankResetsTimer(t *testing.T) {
	spec := monoSpec()
	config := WatchdogConfig{
		NoPlaybackTimeout: spec.SamplesPerChanToNs(441),
	}

	flags := make([]audio.FrameFlags, 100)
	for i := range flags {
		if i%3 == 0 {
			flags[i] = audio.FrameNonBlank
		}
	}
	w := NewWatchdog(config, spec, &flagReader{flags: flags}, logger.GetLogger())
	f := audio.NewFrame(spec, 100)

	for i := 0; i < 100; i++ {
		require.NoError(t, w.ReadFrame(f), "frame %d", i)
	}
}

func TestWatchdogDropWindow(t *testing.T) {
	spec := monoSpec()
	config := WatchdogConfig{
		NoPlaybackTimeout:   spec.SamplesPerChanToNs(44100),
		DropDetectionWindow: spec.SamplesPerChanToNs(300),
	}

	// every frame non-blank but always carrying drops
	flags := make([]audio.FrameFlags, 100)
	for i := range flags {
		flags[i] = audio.FrameNonBlank | audio.FrameDrops
	}
	w := NewWatchdog(config, spec, &flagReader{flags: flags}, logger.GetLogger())
	f := audio.NewFrame(spec, 100)

	require.NoError(t, w.ReadFrame(f))
	require.NoError(t, w.ReadFrame(f))
	require.ErrorIs(t, w.ReadFrame(f), ErrTooManyDrops)
}
