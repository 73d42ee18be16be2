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

func newTestEstimator(t *testing.T, profile Profile, target int) *FreqEstimator {
	t.Helper()
	var config FreqEstimatorConfig
	require.NoError(t, config.DeduceDefaults(profile))

	spec := audio.NewSampleSpec(44100, audio.StereoChannelSet())
	f, err := NewFreqEstimator(config, target, spec, logger.GetLogger())
	require.NoError(t, err)
	return f
}

func TestFreqEstimatorProfilePresets(t *testing.T) {
	t.Run("responsive disables second stage", func(t *testing.T) {
		var c FreqEstimatorConfig
		require.NoError(t, c.DeduceDefaults(ProfileResponsive))
		require.Equal(t, feDecimFactorMax, c.DecimationFactor1)
		require.Equal(t, 0, c.DecimationFactor2)
		require.Equal(t, 0.1, c.StableCriteria)
	})

	t.Run("gradual uses both stages", func(t *testing.T) {
		var c FreqEstimatorConfig
		require.NoError(t, c.DeduceDefaults(ProfileGradual))
		require.Equal(t, feDecimFactorMax, c.DecimationFactor1)
		require.Equal(t, feDecimFactorMax, c.DecimationFactor2)
		require.Equal(t, 0.05, c.StableCriteria)
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		c := FreqEstimatorConfig{P: 2e-6, I: 1e-9, DecimationFactor1: 5}
		require.NoError(t, c.DeduceDefaults(ProfileResponsive))
		require.Equal(t, 2e-6, c.P)
		require.Equal(t, 5, c.DecimationFactor1)
	})
}

func TestFreqEstimatorStartsAtUnity(t *testing.T) {
	f := newTestEstimator(t, ProfileResponsive, 8000)
	require.Equal(t, 1.0, f.Coeff())
	require.False(t, f.IsStable())
}

func TestFreqEstimatorCoeffBounded(t *testing.T) {
	f := newTestEstimator(t, ProfileResponsive, 8000)

	// wildly off-target inputs must still saturate within the cap
	for i := 0; i < 10000; i++ {
		f.UpdateStreamPosition(uint64(i) * 100)
		f.UpdateCurrentLatency(8000 * 100)
	}
	require.LessOrEqual(t, f.Coeff(), 1.01)
	require.GreaterOrEqual(t, f.Coeff(), 0.99)
	require.Greater(t, f.Coeff(), 1.0, "latency above target speeds consumption")

	for i := 0; i < 10000; i++ {
		f.UpdateCurrentLatency(0)
	}
	require.Less(t, f.Coeff(), 1.0, "latency below target slows consumption")
	require.GreaterOrEqual(t, f.Coeff(), 0.99)
}

func TestFreqEstimatorStability(t *testing.T) {
	config := FreqEstimatorConfig{
		StabilityDuration: 10 * time.Millisecond,
	}
	require.NoError(t, config.DeduceDefaults(ProfileResponsive))

	spec := audio.NewSampleSpec(44100, audio.StereoChannelSet())
	f, err := NewFreqEstimator(config, 8000, spec, logger.GetLogger())
	require.NoError(t, err)

	// on-target latency held past the stability duration
	pos := uint64(0)
	for i := 0; i < 1000; i++ {
		pos += 100
		f.UpdateStreamPosition(pos)
		f.UpdateCurrentLatency(8000)
	}
	require.True(t, f.IsStable())

	// a sustained excursion drops stability once it clears the decimators
	f.UpdateStreamPosition(pos + 100)
	for i := 0; i < 5000; i++ {
		f.UpdateCurrentLatency(16000)
	}
	require.False(t, f.IsStable())
}

func TestFreqEstimatorInvalidConfig(t *testing.T) {
	spec := audio.NewSampleSpec(44100, audio.StereoChannelSet())

	_, err := NewFreqEstimator(FreqEstimatorConfig{DecimationFactor1: 0}, 100, spec, logger.GetLogger())
	require.Error(t, err)

	_, err = NewFreqEstimator(FreqEstimatorConfig{DecimationFactor1: feDecimFactorMax + 1}, 100, spec, logger.GetLogger())
	require.Error(t, err)
}
