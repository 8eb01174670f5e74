/*
 * Copyright 2025 Herdworks, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger provides JSON structured logging using zerolog
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level      string `json:"level" yaml:"level"`
	Debug      bool   `json:"debug" yaml:"debug"`
	Output     string `json:"output" yaml:"output"`
	TimeFormat string `json:"time_format" yaml:"time_format"`
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

func build(config *Config) (zerolog.Logger, error) {
	var output io.Writer = os.Stdout

	if config.Output == "stderr" {
		output = os.Stderr
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return zerolog.Logger{}, err
		}
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger(), nil
}

// New creates a standalone logger instance that does not touch global state.
func New(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	logger, err := build(config)
	if err != nil {
		return nil, err
	}

	return &instance{logger: logger}, nil
}

type instance struct {
	logger zerolog.Logger
}

func (l *instance) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *instance) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *instance) Info() *zerolog.Event  { return l.logger.Info() }
func (l *instance) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *instance) Error() *zerolog.Event { return l.logger.Error() }
func (l *instance) Fatal() *zerolog.Event { return l.logger.Fatal() }
func (l *instance) Panic() *zerolog.Event { return l.logger.Panic() }
func (l *instance) With() zerolog.Context { return l.logger.With() }

func (l *instance) WithComponent(component string) zerolog.Logger {
	return l.logger.With().Str("component", component).Logger()
}

func (l *instance) WithFields(fields map[string]interface{}) zerolog.Logger {
	return l.logger.With().Fields(fields).Logger()
}

func (l *instance) SetLevel(level zerolog.Level) {
	l.logger = l.logger.Level(level)
}

func (l *instance) SetDebug(debug bool) {
	if debug {
		l.SetLevel(zerolog.DebugLevel)
	} else {
		l.SetLevel(zerolog.InfoLevel)
	}
}
