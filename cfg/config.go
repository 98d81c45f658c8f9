// Copyright 2024 Google Inc. All Rights Reserved.
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

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved set of knobs envfs mounts with, bound by
// viper from both CLI flags and an optional YAML config file (see
// cmd/root.go's cobra.OnInitialize dance).
type Config struct {
	Foreground bool `yaml:"foreground" mapstructure:"foreground"`

	// Options holds every raw "-o key[=value]" fragment in the order
	// given on the command line; cmd/mount.go is responsible for
	// splitting out the recognized keys (fallback-path, bind-mount,
	// debug) from the ignored mount(8) passthroughs.
	Options []string `yaml:"options" mapstructure:"options"`

	// Concurrency is the number of FUSE worker goroutines; 0 means
	// perms.WorkerCount()'s CPU-derived default.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`

	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity" mapstructure:"severity"`
	Format   LogFormat   `yaml:"format" mapstructure:"format"`
	FilePath string      `yaml:"file-path" mapstructure:"file-path"`
}

type MetricsConfig struct {
	// PrometheusAddr is the "host:port" to serve /metrics on; empty
	// disables the HTTP listener entirely (counters are still tracked
	// in-process, they're just never exposed).
	PrometheusAddr string `yaml:"prometheus-addr" mapstructure:"prometheus-addr"`
}

// BindFlags registers envfs's CLI flags and binds each to its viper key,
// the same StringP/BindPFlag dance the teacher uses in cfg/config.go.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.BoolP("foreground", "f", false, "Run in the foreground instead of forking into the background.")
	if err := viper.BindPFlag("foreground", flagSet.Lookup("foreground")); err != nil {
		return err
	}

	flagSet.StringArrayP("option", "o", nil, "Mount option KEY[=VALUE], comma-separated, may be repeated "+
		"(fallback-path=DIR, bind-mount=DIR, debug; ro/rw/nofail/remount are accepted and ignored).")
	if err := viper.BindPFlag("options", flagSet.Lookup("option")); err != nil {
		return err
	}

	flagSet.IntP("concurrency", "", 0, "Number of FUSE worker goroutines; 0 picks a default from NumCPU.")
	if err := viper.BindPFlag("concurrency", flagSet.Lookup("concurrency")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "Log severity: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log format: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to a log file; empty logs to stderr.")
	if err := viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.StringP("prometheus-addr", "", "", "host:port to serve Prometheus metrics on; empty disables the listener.")
	if err := viper.BindPFlag("metrics.prometheus-addr", flagSet.Lookup("prometheus-addr")); err != nil {
		return err
	}

	return nil
}
