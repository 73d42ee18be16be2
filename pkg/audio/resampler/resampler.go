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

package resampler

import (
	"errors"
	"fmt"

	"github.com/pulsecast/pulsecast/pkg/audio"
)

var (
	ErrBadScaling     = errors.New("resampler: scaling out of range")
	ErrUnknownBackend = errors.New("resampler: unknown backend")
)

// Backend selects a resampler implementation.
type Backend int

const (
	// BackendBuiltin is the windowed-sinc reference implementation,
	// always available.
	BackendBuiltin Backend = iota

	// BackendCubic is a cheaper Catmull-Rom interpolator for
	// constrained targets.
	BackendCubic
)

func (b Backend) String() string {
	switch b {
	case BackendBuiltin:
		return "builtin"
	case BackendCubic:
		return "cubic"
	}
	return "unknown"
}

// Profile selects the quality/cost trade-off of a backend.
type Profile int

const (
	ProfileLow Profile = iota
	ProfileMedium
	ProfileHigh
)

type Config struct {
	Backend Backend
	Profile Profile
}

// Resampler is a pull-based fractional rate converter. SetScaling adjusts
// the input consumption rate with sub-sample precision and may be called
// between every frame; phase stays continuous across calls.
type Resampler interface {
	audio.FrameReader

	// SetScaling sets the ratio of input to output consumption. A factor
	// above one consumes input faster, draining buffered latency.
	SetScaling(factor float64) error
}

// Factory builds a resampler reading from upstream at the given spec.
type Factory func(config Config, upstream audio.FrameReader, spec audio.SampleSpec) (Resampler, error)

// Registry maps backends to factories. Injected at receiver construction
// instead of a process-wide default, so fakes are trivial in tests.
type Registry struct {
	factories map[Backend]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Backend]Factory)}
}

func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(BackendBuiltin, func(config Config, upstream audio.FrameReader, spec audio.SampleSpec) (Resampler, error) {
		return NewSincResampler(config.Profile, upstream, spec), nil
	})
	r.Register(BackendCubic, func(config Config, upstream audio.FrameReader, spec audio.SampleSpec) (Resampler, error) {
		return NewCubicResampler(upstream, spec), nil
	})
	return r
}

func (r *Registry) Register(b Backend, f Factory) {
	r.factories[b] = f
}

func (r *Registry) New(config Config, upstream audio.FrameReader, spec audio.SampleSpec) (Resampler, error) {
	f, ok := r.factories[config.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, config.Backend)
	}
	return f(config, upstream, spec)
}

// The envelope covers fixed rate conversion (e.g. 8 kHz G.711 into a
// 48 kHz output) multiplied by the tuner's few-percent adjustments.
const (
	minScaling = 1.0 / 64
	maxScaling = 64.0
)

func checkScaling(factor float64) error {
	if factor < minScaling || factor > maxScaling {
		return ErrBadScaling
	}
	return nil
}
