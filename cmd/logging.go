// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel overrides the default log level
const EnvLogLevel = "CMRISTAT_LOG_LEVEL"

func defaultLogLevel() string {
	if lvl := strings.TrimSpace(os.Getenv(EnvLogLevel)); lvl != "" {
		return lvl
	}
	return "info"
}

// parseLogLevel accepts zerolog level names plus "off"
func parseLogLevel(raw string) (zerolog.Level, error) {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "":
		return zerolog.InfoLevel, nil
	case "off", "none", "disabled":
		return zerolog.Disabled, nil
	case "warning":
		return zerolog.WarnLevel, nil
	default:
		lvl, err := zerolog.ParseLevel(s)
		if err != nil {
			return zerolog.NoLevel, fmt.Errorf("invalid log level %q", raw)
		}
		return lvl, nil
	}
}

// setupLogging points the global logger at a console writer on out.
// Diagnostics go to stderr so decoded frames on stdout stay clean.
func setupLogging(level string, out io.Writer) error {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return err
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05.000",
	}).Level(lvl).With().Timestamp().Logger()
	return nil
}
