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

package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pulsecast/pulsecast/pkg/audio"
	"github.com/pulsecast/pulsecast/pkg/audio/resampler"
	"github.com/pulsecast/pulsecast/pkg/receiver"
	"github.com/pulsecast/pulsecast/pkg/tuner"
)

// Duration accepts either a bare nanosecond count or a Go duration string
// ("100ms") in yaml.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	// Endpoints to bind at startup.
	SourceEndpoint  string `yaml:"source_endpoint"`
	RepairEndpoint  string `yaml:"repair_endpoint"`
	ControlEndpoint string `yaml:"control_endpoint"`

	SampleRate uint32 `yaml:"sample_rate"`
	Channels   string `yaml:"channels"` // mono | stereo

	TargetLatency       Duration `yaml:"target_latency"`
	MinLatency          Duration `yaml:"min_latency"`
	MaxLatency          Duration `yaml:"max_latency"`
	LatencyTunerProfile string   `yaml:"latency_tuner_profile"` // intact | responsive | gradual

	NoPlaybackTimeout Duration `yaml:"no_playback_timeout"`
	DropWindow        Duration `yaml:"drop_window"`

	MaxSnJump  int      `yaml:"max_sn_jump"`
	MaxTsJump  Duration `yaml:"max_ts_jump"`
	MaxSbnJump int      `yaml:"max_sbn_jump"`

	FECBlockSourcePackets int `yaml:"fec_block_source_packets"`
	FECBlockRepairPackets int `yaml:"fec_block_repair_packets"`

	ResamplerBackend string `yaml:"resampler_backend"` // builtin | cubic
	ResamplerProfile string `yaml:"resampler_profile"` // low | medium | high

	SlidingStatWindowLength int `yaml:"sliding_stat_window_length"`

	EnableAutoReclock bool `yaml:"enable_auto_reclock"`

	LogLevel string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		SampleRate:          44100,
		Channels:            "stereo",
		TargetLatency:       Duration(200 * time.Millisecond),
		LatencyTunerProfile: "responsive",
		NoPlaybackTimeout:   Duration(2 * time.Second),
		MaxSnJump:           100,
		MaxTsJump:           Duration(time.Second),
		MaxSbnJump:          100,
		ResamplerBackend:    "builtin",
		ResamplerProfile:    "medium",
		LogLevel:            "info",
	}
}

// Load reads a yaml config file over the defaults.
func Load(path string) (Config, error) {
	conf := Default()
	if path == "" {
		return conf, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return conf, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return conf, errors.Wrap(err, "parsing config")
	}
	return conf, nil
}

func (c Config) Validate() error {
	if c.SampleRate == 0 {
		return errors.New("sample_rate must be positive")
	}
	if c.Channels != "mono" && c.Channels != "stereo" {
		return errors.Errorf("unknown channels %q", c.Channels)
	}
	if c.TargetLatency <= 0 {
		return errors.New("target_latency must be positive")
	}
	if c.MinLatency != 0 || c.MaxLatency != 0 {
		if c.MinLatency > c.TargetLatency || c.MaxLatency < c.TargetLatency {
			return errors.New("latency bounds must contain target_latency")
		}
	}
	if _, err := c.tunerProfile(); err != nil {
		return err
	}
	if _, err := c.resamplerConfig(); err != nil {
		return err
	}
	return nil
}

func (c Config) tunerProfile() (tuner.Profile, error) {
	switch c.LatencyTunerProfile {
	case "intact":
		return tuner.ProfileIntact, nil
	case "responsive", "":
		return tuner.ProfileResponsive, nil
	case "gradual":
		return tuner.ProfileGradual, nil
	}
	return 0, errors.Errorf("unknown latency_tuner_profile %q", c.LatencyTunerProfile)
}

func (c Config) resamplerConfig() (resampler.Config, error) {
	var rc resampler.Config
	switch c.ResamplerBackend {
	case "builtin", "":
		rc.Backend = resampler.BackendBuiltin
	case "cubic":
		rc.Backend = resampler.BackendCubic
	default:
		return rc, errors.Errorf("unknown resampler_backend %q", c.ResamplerBackend)
	}
	switch c.ResamplerProfile {
	case "low":
		rc.Profile = resampler.ProfileLow
	case "medium", "":
		rc.Profile = resampler.ProfileMedium
	case "high":
		rc.Profile = resampler.ProfileHigh
	default:
		return rc, errors.Errorf("unknown resampler_profile %q", c.ResamplerProfile)
	}
	return rc, nil
}

// ReceiverConfig maps the file config onto pipeline configuration.
func (c Config) ReceiverConfig() (receiver.Config, error) {
	if err := c.Validate(); err != nil {
		return receiver.Config{}, err
	}

	rc := receiver.DefaultConfig()

	channels := audio.StereoChannelSet()
	if c.Channels == "mono" {
		channels = audio.MonoChannelSet()
	}
	rc.OutSpec = audio.NewSampleSpec(c.SampleRate, channels)
	rc.EnableAutoReclock = c.EnableAutoReclock

	sc := &rc.Group.Session

	profile, _ := c.tunerProfile()
	sc.Latency.Profile = profile
	sc.Latency.TargetLatency = c.TargetLatency.Std()
	sc.Latency.MinLatency = c.MinLatency.Std()
	sc.Latency.MaxLatency = c.MaxLatency.Std()

	sc.Watchdog.NoPlaybackTimeout = c.NoPlaybackTimeout.Std()
	sc.Watchdog.DropDetectionWindow = c.DropWindow.Std()

	if c.MaxSnJump > 0 {
		sc.Validator.MaxSnJump = c.MaxSnJump
	}
	if c.MaxTsJump > 0 {
		sc.Validator.MaxTsJump = c.MaxTsJump.Std()
	}
	if c.MaxSbnJump > 0 {
		sc.FEC.MaxSBNJump = c.MaxSbnJump
	}
	if c.FECBlockSourcePackets > 0 {
		sc.FEC.SourcePackets = c.FECBlockSourcePackets
	}
	if c.FECBlockRepairPackets > 0 {
		sc.FEC.RepairPackets = c.FECBlockRepairPackets
	}
	if c.SlidingStatWindowLength > 0 {
		sc.LinkMeter.SlidingWindowLength = c.SlidingStatWindowLength
	}

	resamplerConf, _ := c.resamplerConfig()
	sc.Resampler = resamplerConf

	return rc, nil
}
