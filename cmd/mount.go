// Copyright 2024 Google LLC
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

package cmd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"

	"github.com/Mic92/envfs/cfg"
	"github.com/Mic92/envfs/internal/envfs"
	"github.com/Mic92/envfs/internal/logger"
	mountpkg "github.com/Mic92/envfs/internal/mount"
	"github.com/Mic92/envfs/internal/perms"
	"github.com/Mic92/envfs/internal/resolve"
	"github.com/Mic92/envfs/internal/syscallclass"
	"github.com/Mic92/envfs/metrics"
)

// parsedOptions is the result of splitting every "-o" fragment the CLI
// collected. Unlike internal/mount.ParseOptions' single-value map (which
// suits once-only keys like "debug"), fallback-path and bind-mount are
// explicitly repeatable (spec §6), so they accumulate into slices here.
type parsedOptions struct {
	debug         bool
	fallbackPaths []string
	bindMounts    []string
	fuseOptions   map[string]string
}

func parseMountOptions(raw []string) parsedOptions {
	out := parsedOptions{fuseOptions: map[string]string{}}

	for _, group := range raw {
		for _, option := range strings.Split(group, ",") {
			if option == "" {
				continue
			}
			key, value, hasValue := strings.Cut(option, "=")

			switch {
			case key == "debug":
				out.debug = true
			case key == "fallback-path" && hasValue:
				out.fallbackPaths = append(out.fallbackPaths, value)
			case key == "bind-mount" && hasValue:
				out.bindMounts = append(out.bindMounts, value)
			case mountpkg.IsIgnored(key):
				// Accepted for fstab/mount(8) compatibility; no effect.
			default:
				if hasValue {
					out.fuseOptions[key] = value
				} else {
					out.fuseOptions[key] = ""
				}
			}
		}
	}
	return out
}

// mount performs every step up to and including fuse.Mount, returning
// once the kernel has accepted the mount but before blocking on it -
// the hook point runForegroundOrDaemonize needs to signal a daemonized
// parent that startup succeeded.
func mount(cfgValue *cfg.Config, mountPoint string) (*fuse.MountedFileSystem, error) {
	opts := parseMountOptions(cfgValue.Options)
	if opts.debug {
		cfgValue.Logging.Severity = "TRACE"
	}

	if err := logger.Init(string(cfgValue.Logging.Format), cfgValue.Logging.Severity.Severity(), cfgValue.Logging.FilePath); err != nil {
		return nil, fmt.Errorf("logger.Init: %w", err)
	}
	if opts.debug {
		logger.Warnf("debug mount option forces TRACE log severity")
	}

	if err := perms.RaiseFileLimit(); err != nil {
		logger.Warnf("raising RLIMIT_NOFILE failed: %v", err)
	}

	mounts := mountpkg.NewSet(mountPoint)
	for _, dir := range opts.bindMounts {
		if err := mounts.BindMount(dir); err != nil {
			return nil, fmt.Errorf("bind-mount %s: %w", dir, err)
		}
		logger.Infof("bind-mounted %s onto %s", mountPoint, dir)
	}

	reg := metrics.NewRegistry()
	if cfg.IsMetricsEnabled(&cfgValue.Metrics) {
		go func() {
			logger.Infof("serving Prometheus metrics on %s", cfgValue.Metrics.PrometheusAddr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", reg.Handler())
			if err := http.ListenAndServe(cfgValue.Metrics.PrometheusAddr, mux); err != nil {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	engine := resolve.New(syscallclass.New())
	fs := envfs.New(engine, opts.fallbackPaths, mounts.Mountpoints(), timeutil.RealClock(), reg)

	workers := cfgValue.Concurrency
	server := envfs.NewServer(fs, workers, reg)

	mountCfg := &fuse.MountConfig{
		FSName:     cfg.FSName,
		Subtype:    cfg.FSSubtype,
		VolumeName: cfg.VolumeName,
		Options:    opts.fuseOptions,
	}

	logger.Infof("mounting envfs at %q", mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return nil, fmt.Errorf("fuse.Mount: %w", err)
	}

	return mfs, nil
}
