// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Experiment ExperimentConfig `toml:"experiment"`
}

// ExperimentConfig maps experiment settings. Unset keys stay nil so they
// never override flag defaults.
type ExperimentConfig struct {
	FPS                *int    `toml:"fps"`
	MaxSamplesOverall  *int    `toml:"max-samples-overall"`
	MaxSamplesPerTrial *int    `toml:"max-samples-per-trial"`
	DataDir            *string `toml:"data-dir"`
	TriggerPort        *string `toml:"trigger-port"`
	TriggerBaud        *int    `toml:"trigger-baud"`
	Seed               *int64  `toml:"seed"`
	ResponseTimeout    *string `toml:"response-timeout"`
	MessageFrames      *int    `toml:"message-frames"`
	MaskMinMs          *int    `toml:"mask-min-ms"`
	MaskMaxMs          *int    `toml:"mask-max-ms"`
	OutcomeFrames      *int    `toml:"outcome-frames"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// Template is written by `sp config` when no file exists yet.
const Template = `# sp experiment configuration
[experiment]
# fps = 60
# max-samples-overall = 10
# max-samples-per-trial = 5
# data-dir = ""
# trigger-port = "/dev/ttyUSB0"
# trigger-baud = 115200
# seed = 0
# response-timeout = "0s"
# message-frames = 120
# mask-min-ms = 1000
# mask-max-ms = 2000
# outcome-frames = 120
`
