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
	"errors"
	"fmt"
	"time"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/audio/resampler"
	"github.com/pulsecast/pulsecast/pkg/logger"
)

// ErrLatencyOutOfBounds is a session-fatal condition: observed latency left
// the configured hard bounds.
var ErrLatencyOutOfBounds = errors.New("tuner: latency out of bounds")

type LatencyMonitorConfig struct {
	// TargetLatency is the desired distance between the newest buffered
	// packet and the next emitted sample, on the source timeline.
	TargetLatency time.Duration

	// Hard bounds; leaving them kills the session. Zero values are
	// deduced from the target.
	MinLatency time.Duration
	MaxLatency time.Duration

	Profile Profile

	FreqEstimator FreqEstimatorConfig
}

func (c *LatencyMonitorConfig) DeduceDefaults() error {
	if c.TargetLatency <= 0 {
		return fmt.Errorf("tuner: target latency must be positive")
	}
	if c.MinLatency == 0 && c.MaxLatency == 0 {
		c.MinLatency = -c.TargetLatency
		c.MaxLatency = c.TargetLatency * 5
	}
	if c.MinLatency > c.TargetLatency || c.MaxLatency < c.TargetLatency {
		return fmt.Errorf("tuner: latency bounds do not contain target")
	}
	return c.FreqEstimator.DeduceDefaults(c.Profile)
}

// LatencySource reports the current number of buffered samples between the
// newest received packet and the next frame to emit, on the source
// timeline. ok is false before the first packet.
type LatencySource func() (samples int, ok bool)

// LatencyMonitor sits in the frame chain after the resampler. On every
// frame it observes niq latency, feeds the frequency estimator, applies the
// resulting coefficient to the resampler, and enforces the hard bounds.
type LatencyMonitor struct {
	config LatencyMonitorConfig
	spec   audio.SampleSpec
	log    logger.Logger

	inner     resampler.Resampler
	estimator *FreqEstimator
	source    LatencySource

	minSamples int
	maxSamples int

	streamPos uint64

	lastLatency int
	hasLatency  bool
}

func NewLatencyMonitor(
	config LatencyMonitorConfig,
	spec audio.SampleSpec,
	inner resampler.Resampler,
	source LatencySource,
	log logger.Logger,
) (*LatencyMonitor, error) {
	if err := config.DeduceDefaults(); err != nil {
		return nil, err
	}

	m := &LatencyMonitor{
		config:     config,
		spec:       spec,
		log:        log.WithComponent("latency_monitor"),
		inner:      inner,
		source:     source,
		minSamples: spec.NsToSamplesPerChan(config.MinLatency),
		maxSamples: spec.NsToSamplesPerChan(config.MaxLatency),
	}
	if config.MinLatency < 0 {
		m.minSamples = -spec.NsToSamplesPerChan(-config.MinLatency)
	}

	if config.Profile != ProfileIntact {
		est, err := NewFreqEstimator(
			config.FreqEstimator,
			spec.NsToSamplesPerChan(config.TargetLatency),
			spec, log)
		if err != nil {
			return nil, err
		}
		m.estimator = est
	}
	return m, nil
}

// IsStable reports the estimator state; always true for the intact profile.
func (m *LatencyMonitor) IsStable() bool {
	if m.estimator == nil {
		return true
	}
	return m.estimator.IsStable()
}

// CurrentLatency returns the last observed latency.
func (m *LatencyMonitor) CurrentLatency() (time.Duration, bool) {
	if !m.hasLatency {
		return 0, false
	}
	return m.spec.SamplesPerChanToNs(m.lastLatency), true
}

func (m *LatencyMonitor) ReadFrame(f *audio.Frame) error {
	if err := m.inner.ReadFrame(f); err != nil {
		return err
	}
	m.streamPos += uint64(f.SamplesPerChan())

	latency, ok := m.source()
	if !ok {
		return nil
	}
	m.lastLatency = latency
	m.hasLatency = true

	if latency < m.minSamples || latency > m.maxSamples {
		m.log.Warnw("latency out of bounds",
			"latency", latency, "min", m.minSamples, "max", m.maxSamples)
		return ErrLatencyOutOfBounds
	}

	if m.estimator != nil {
		m.estimator.UpdateStreamPosition(m.streamPos)
		m.estimator.UpdateCurrentLatency(latency)
		if err := m.inner.SetScaling(m.estimator.Coeff()); err != nil {
			return err
		}
	}
	return nil
}
