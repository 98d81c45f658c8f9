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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/kardianos/osext"

	"github.com/Mic92/envfs/cfg"
	"github.com/Mic92/envfs/internal/logger"
)

// SuccessfulMountMessage is what a background daemon prints to its
// parent's stdout once it has successfully mounted, matching the
// teacher's daemonize.SignalOutcome contract.
const SuccessfulMountMessage = "envfs has been successfully mounted."

// envfsDaemonChildVar distinguishes a daemonize-spawned child from a
// directly-invoked `envfs -f` run: only the former has a parent waiting
// on daemonize's outcome pipe.
const envfsDaemonChildVar = "ENVFS_DAEMON_CHILD"

// registerSIGINTHandler unmounts mountPoint on Ctrl-C, letting a user
// stop a foreground run cleanly instead of leaving a stale mount behind.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			logger.Info("received SIGINT, attempting to unmount...")
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("failed to unmount in response to SIGINT: %v", err)
				continue
			}
			logger.Infof("successfully unmounted in response to SIGINT")
			return
		}
	}()
}

// runForegroundOrDaemonize either mounts directly (cfgValue.Foreground)
// or re-executes the current binary in the background with --foreground
// prepended to its arguments, waiting on daemonize's outcome pipe the way the teacher's
// cmd/legacy_main.go does for gcsfuse.
func runForegroundOrDaemonize(cfgValue *cfg.Config, mountPoint string) error {
	if !cfgValue.Foreground {
		return daemonizeSelf(cfgValue, mountPoint)
	}

	mfs, err := mount(cfgValue, mountPoint)

	if os.Getenv(envfsDaemonChildVar) == "1" {
		if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
			logger.Errorf("failed to signal outcome to parent process: %v", sigErr)
		}
	}
	if err != nil {
		return err
	}

	logger.Info(SuccessfulMountMessage)
	registerSIGINTHandler(mountPoint)

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}
	return nil
}

func daemonizeSelf(cfgValue *cfg.Config, mountPoint string) error {
	path, err := osext.Executable()
	if err != nil {
		return fmt.Errorf("osext.Executable: %w", err)
	}

	args := append([]string{"--foreground"}, os.Args[1:]...)
	env := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		fmt.Sprintf("%s=1", envfsDaemonChildVar),
	}

	var output io.Writer = os.Stdout
	if cfgValue.Logging.FilePath != "" {
		output = &CrashWriter{fileName: cfgValue.Logging.FilePath}
	}

	if err := daemonize.Run(path, args, env, output); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	fmt.Fprintf(os.Stdout, "%s (mounted at %s)\n", SuccessfulMountMessage, mountPoint)
	return nil
}
