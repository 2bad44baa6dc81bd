// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package debuglog configures Logrus. It configures Logrus to print out file
// and line info, to use UTC timestamps with subsecond precision, and to log at
// a configurable level.
//
// This should be used from every main package. Importing this package runs
// Configure with default options; mains call Configure again once they have
// parsed their flags.
package debuglog

import (
	"io"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

func init() {
	Configure(Options{})
}

// Options are used to control the debug logger's behavior. The default Options
// are represented by the zero value.
type Options struct {
	// If true, the logger will highlight some output with ANSI colors. This
	// may be overridden by setting the environment variable "CLICOLOR_FORCE"
	// to "1".
	ForceColors bool

	// One of the Logrus level names ("debug", "info", "warning", ...). The
	// empty string means "info". An unknown name is reported and ignored.
	Level string

	// If not nil, log output is written here instead of the logger's current
	// output.
	Output io.Writer

	// If not nil, this will set up the given logger. If nil, it will set up the
	// default Logrus logger (see logrus.StandardLogger()). This is primarily
	// used for unit testing.
	Logger *logrus.Logger
}

// Configure sets up the debug logger. It's safe to call more than once. It
// should not be called concurrently.
func Configure(opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	}
	logger.SetReportCaller(true)
	logger.ReplaceHooks(make(logrus.LevelHooks))
	logger.AddHook(utcHook{})
	logger.AddHook(newFilenameHook())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:             true,
		TimestampFormat:           "2006-01-02 15:04:05.000000 MST",
		ForceColors:               opts.ForceColors,
		EnvironmentOverrideColors: true,
	})
	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			logger.WithError(err).Warn("Ignoring invalid log level")
		} else {
			level = parsed
		}
	}
	logger.SetLevel(level)
	logger.WithFields(logrus.Fields{
		"forceColors": opts.ForceColors,
		"logLevel":    level.String(),
	}).Info("Initialized Logrus")
}

// utcHook implements logrus.Hook. It converts the timestamp to UTC.
type utcHook struct{}

func (utcHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (utcHook) Fire(entry *logrus.Entry) error {
	entry.Time = entry.Time.UTC()
	return nil
}

// filenameHook implements logrus.Hook. It strips the file path up to the root
// of this module, which is otherwise repeated in just about every log message.
type filenameHook struct {
	prefix string
}

// thisFile is this file's path relative to the module root.
const thisFile = "util/debuglog/setup.go"

func newFilenameHook() filenameHook {
	_, file, _, ok := runtime.Caller(0)
	if !ok || !strings.HasSuffix(file, thisFile) {
		// Built with -trimpath or moved; leave file names alone.
		return filenameHook{}
	}
	return filenameHook{
		prefix: file[:len(file)-len(thisFile)],
	}
}

func (hook filenameHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook filenameHook) Fire(entry *logrus.Entry) error {
	if entry.HasCaller() && hook.prefix != "" {
		entry.Caller.File = strings.TrimPrefix(entry.Caller.File, hook.prefix)
	}
	return nil
}
