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
	"fmt"
	"math"
	"time"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/logger"
)

// Profile selects how aggressively the tuner chases the latency target.
type Profile int

const (
	// ProfileIntact disables latency tuning; scaling stays at one.
	ProfileIntact Profile = iota

	// ProfileResponsive settles quickly, for reliable links.
	ProfileResponsive

	// ProfileGradual resists jitter, for lossy or congested links.
	ProfileGradual
)

func (p Profile) String() string {
	switch p {
	case ProfileIntact:
		return "intact"
	case ProfileResponsive:
		return "responsive"
	case ProfileGradual:
		return "gradual"
	}
	return "unknown"
}

type FreqEstimatorConfig struct {
	P float64
	I float64

	// Decimation factors of the two cascaded FIR stages. Factor two of
	// zero disables the second stage; stability is then evaluated on the
	// first stage's output.
	DecimationFactor1 int
	DecimationFactor2 int

	// StableCriteria is the relative error below which the estimator
	// counts as converging.
	StableCriteria float64

	// StabilityDuration is how long the error must stay below
	// StableCriteria before the stable state is entered.
	StabilityDuration time.Duration

	// SaturationCap bounds |coeff - 1|.
	SaturationCap float64
}

// DeduceDefaults fills zero fields from the profile preset table.
func (c *FreqEstimatorConfig) DeduceDefaults(profile Profile) error {
	switch profile {
	case ProfileGradual:
		if c.P == 0 && c.I == 0 {
			c.P = 1e-6
			c.I = 5e-9
		}
		if c.DecimationFactor1 == 0 && c.DecimationFactor2 == 0 {
			c.DecimationFactor1 = feDecimFactorMax
			c.DecimationFactor2 = feDecimFactorMax
		}
		if c.StableCriteria == 0 {
			c.StableCriteria = 0.05
		}
	case ProfileResponsive:
		if c.P == 0 && c.I == 0 {
			c.P = 1e-6
			c.I = 1e-10
		}
		if c.DecimationFactor1 == 0 && c.DecimationFactor2 == 0 {
			c.DecimationFactor1 = feDecimFactorMax
			c.DecimationFactor2 = 0
		}
		if c.StableCriteria == 0 {
			c.StableCriteria = 0.1
		}
	case ProfileIntact:
	default:
		return fmt.Errorf("tuner: unexpected profile %s", profile)
	}

	if c.StabilityDuration == 0 {
		c.StabilityDuration = 15 * time.Second
	}
	if c.SaturationCap == 0 {
		c.SaturationCap = 1e-2
	}
	return nil
}

func (c FreqEstimatorConfig) Validate() error {
	if c.DecimationFactor1 < 1 || c.DecimationFactor1 > feDecimFactorMax {
		return fmt.Errorf("tuner: invalid decimation factor 1: %d", c.DecimationFactor1)
	}
	if c.DecimationFactor2 < 0 || c.DecimationFactor2 > feDecimFactorMax {
		return fmt.Errorf("tuner: invalid decimation factor 2: %d", c.DecimationFactor2)
	}
	return nil
}

// FreqEstimator is a PI controller that drives the resampler scaling so
// observed latency converges to the target. Input latency samples pass
// through one or two FIR decimator stages before the controller runs. In
// the stable state only the integral term acts, which avoids permanent
// twitching of the resampler control input; the unstable state uses only
// the proportional term.
type FreqEstimator struct {
	config FreqEstimatorConfig
	log    logger.Logger

	dec1Buf [feDecimLen]float64
	dec2Buf [feDecimLen]float64
	dec1Ind int
	dec2Ind int

	samplesCounter int
	accum          float64
	target         float64
	coeff          float64

	stable            bool
	lastUnstablePos   uint64
	stabilityCriteria uint64 // in stream samples
	streamPos         uint64
}

func NewFreqEstimator(
	config FreqEstimatorConfig,
	targetLatency int,
	spec audio.SampleSpec,
	log logger.Logger,
) (*FreqEstimator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	f := &FreqEstimator{
		config: config,
		log:    log.WithComponent("freq_estimator"),
		target: float64(targetLatency),
		coeff:  1,
		stabilityCriteria: uint64(
			spec.NsToSamplesPerChan(config.StabilityDuration)),
	}
	for i := 0; i < feDecimLen; i++ {
		f.dec1Buf[i] = f.target
		f.dec2Buf[i] = f.target
	}

	f.log.Debugw("initializing",
		"P", config.P, "I", config.I,
		"dc1", config.DecimationFactor1, "dc2", config.DecimationFactor2)
	return f, nil
}

// Coeff returns the current scaling coefficient, within
// [1-cap, 1+cap].
func (f *FreqEstimator) Coeff() float64 {
	return f.coeff
}

func (f *FreqEstimator) IsStable() bool {
	return f.stable
}

// UpdateTargetLatency changes the target without resetting filter state.
func (f *FreqEstimator) UpdateTargetLatency(targetLatency int) {
	f.target = float64(targetLatency)
}

// UpdateStreamPosition advances the monotonic stream clock used by the
// stability timer.
func (f *FreqEstimator) UpdateStreamPosition(pos uint64) {
	if pos > f.streamPos {
		f.streamPos = pos
	}
}

// UpdateCurrentLatency feeds one latency observation, in stream samples.
func (f *FreqEstimator) UpdateCurrentLatency(currentLatency int) {
	if filtered, ok := f.runDecimators(float64(currentLatency)); ok {
		f.coeff = f.runController(filtered)
	}
}

func (f *FreqEstimator) runDecimators(current float64) (float64, bool) {
	f.samplesCounter++

	f.dec1Buf[f.dec1Ind] = current

	if f.samplesCounter%f.config.DecimationFactor1 == 0 {
		f.dec2Buf[f.dec2Ind] = dotProd(&feDecimTaps, &f.dec1Buf, f.dec1Ind) / feDecimGain

		if f.config.DecimationFactor2 == 0 {
			return f.dec2Buf[f.dec2Ind], true
		}

		if f.samplesCounter%(f.config.DecimationFactor1*f.config.DecimationFactor2) == 0 {
			f.samplesCounter = 0
			return dotProd(&feDecimTaps, &f.dec2Buf, f.dec2Ind) / feDecimGain, true
		}

		f.dec2Ind = (f.dec2Ind + 1) & feDecimLenMask
	}

	f.dec1Ind = (f.dec1Ind + 1) & feDecimLenMask
	return 0, false
}

func (f *FreqEstimator) runController(current float64) float64 {
	err := current - f.target

	if math.Abs(err) > f.target*f.config.StableCriteria && f.stable {
		f.stable = false
		f.accum = 0
		f.lastUnstablePos = f.streamPos
		f.log.Debugw("unstable", "error", err, "target", f.target)
	} else if math.Abs(err) < f.target*f.config.StableCriteria && !f.stable &&
		f.streamPos-f.lastUnstablePos > f.stabilityCriteria {
		f.stable = true
		f.log.Debugw("stabilized")
	}

	var res float64
	if f.stable {
		f.accum += err
		res += f.config.I * f.accum
	} else {
		res += f.config.P * err
	}
	if math.Abs(res) > f.config.SaturationCap {
		res = res / math.Abs(res) * f.config.SaturationCap
	}
	return res + 1
}

// dotProd convolves the filter taps with the ring buffer, walking backwards
// from sampleInd.
func dotProd(coeff *[feDecimLen]float64, samples *[feDecimLen]float64, sampleInd int) float64 {
	var accum float64
	for i, j := sampleInd, 0; j < feDecimLen; i, j = (i-1)&feDecimLenMask, j+1 {
		accum += coeff[j] * samples[i]
	}
	return accum
}
