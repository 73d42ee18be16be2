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

package tuner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/logger"
)

// fakeResampler records the applied scaling and produces silence.
type fakeResampler struct {
	scaling float64
}

func (r *fakeResampler) ReadFrame(f *audio.Frame) error {
	for i := range f.Samples {
		f.Samples[i] = 0
	}
	return nil
}

func (r *fakeResampler) SetScaling(factor float64) error {
	r.scaling = factor
	return nil
}

func TestLatencyMonitorBounds(t *testing.T) {
	spec := audio.NewSampleSpec(44100, audio.MonoChannelSet())
	rs := &fakeResampler{scaling: 1}

	latency := 8000
	hasLatency := true
	source := func() (int, bool) { return latency, hasLatency }

	config := LatencyMonitorConfig{
		TargetLatency: spec.SamplesPerChanToNs(8000),
		MinLatency:    spec.SamplesPerChanToNs(1000),
		MaxLatency:    spec.SamplesPerChanToNs(16000),
		Profile:       ProfileIntact,
	}
	m, err := NewLatencyMonitor(config, spec, rs, source, logger.GetLogger())
	require.NoError(t, err)

	frame := audio.NewFrame(spec, 100)
	require.NoError(t, m.ReadFrame(frame))

	lat, ok := m.CurrentLatency()
	require.True(t, ok)
	require.Equal(t, spec.SamplesPerChanToNs(8000), lat)

	latency = 20000
	require.ErrorIs(t, m.ReadFrame(frame), ErrLatencyOutOfBounds)

	latency = 500
	m2, err := NewLatencyMonitor(config, spec, rs, source, logger.GetLogger())
	require.NoError(t, err)
	require.ErrorIs(t, m2.ReadFrame(frame), ErrLatencyOutOfBounds)
}

func TestLatencyMonitorIntactKeepsScaling(t *testing.T) {
	spec := audio.NewSampleSpec(44100, audio.MonoChannelSet())
	rs := &fakeResampler{scaling: 1}

	config := LatencyMonitorConfig{
		TargetLatency: spec.SamplesPerChanToNs(8000),
		Profile:       ProfileIntact,
	}
	m, err := NewLatencyMonitor(config, spec, rs, func() (int, bool) { return 12000, true }, logger.GetLogger())
	require.NoError(t, err)

	frame := audio.NewFrame(spec, 100)
	for i := 0; i < 100; i++ {
		require.NoError(t, m.ReadFrame(frame))
	}
	require.Equal(t, 1.0, rs.scaling, "intact profile never touches the resampler")
	require.True(t, m.IsStable())
}

// TestLatencyMonitorCompensatesClockDrift closes the loop over a modelled
// sender running 0.05 Hz fast relative to the receiver clock: the buffered
// latency integrates the rate mismatch, and the tuner must converge onto
// the target and report a stable estimator.
func TestLatencyMonitorCompensatesClockDrift(t *testing.T) {
	spec := audio.NewSampleSpec(44100, audio.MonoChannelSet())

	const (
		frameSamples = 100
		target       = 8000
		drift        = 44100.05 / 44100.0
		warmupFrames = 100000
		checkFrames  = 50000
	)

	rs := &fakeResampler{scaling: 1}

	latency := float64(target)
	source := func() (int, bool) { return int(latency), true }

	config := LatencyMonitorConfig{
		TargetLatency: spec.SamplesPerChanToNs(target),
		Profile:       ProfileResponsive,
		FreqEstimator: FreqEstimatorConfig{
			StabilityDuration: 100 * time.Millisecond,
		},
	}
	m, err := NewLatencyMonitor(config, spec, rs, source, logger.GetLogger())
	require.NoError(t, err)

	frame := audio.NewFrame(spec, frameSamples)
	step := func() {
		require.NoError(t, m.ReadFrame(frame))
		// sender produces at drift rate, resampler consumes at the
		// applied scaling
		latency += frameSamples * (drift - rs.scaling)
	}

	for i := 0; i < warmupFrames; i++ {
		step()
	}

	for i := 0; i < checkFrames; i++ {
		step()
		require.InDelta(t, target, latency, 0.05*target,
			"latency must stay within 5%% of target after warmup (frame %d)", i)
	}
	require.True(t, m.IsStable())
}
