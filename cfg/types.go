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
	"fmt"
	"strings"

	"github.com/Mic92/envfs/internal/config"
)

// LogSeverity is the datatype for --log-severity; it accepts
// "TRACE"/"DEBUG"/"INFO"/"WARNING"/"ERROR"/"OFF", case-insensitively.
type LogSeverity string

func (l *LogSeverity) UnmarshalText(text []byte) error {
	sev := config.Severity(strings.ToUpper(string(text)))
	switch sev {
	case config.TRACE, config.DEBUG, config.INFO, config.WARNING, config.ERROR, config.OFF:
		*l = LogSeverity(sev)
		return nil
	default:
		return fmt.Errorf("invalid log severity %q: must be one of TRACE, DEBUG, INFO, WARNING, ERROR, OFF", text)
	}
}

// Severity converts to the internal/config type internal/logger expects.
func (l LogSeverity) Severity() config.Severity {
	return config.Severity(l)
}

// LogFormat is the datatype for --log-format; "text" or "json".
type LogFormat string

func (f *LogFormat) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	if v != "text" && v != "json" {
		return fmt.Errorf("invalid log format %q: must be \"text\" or \"json\"", text)
	}
	*f = LogFormat(v)
	return nil
}
