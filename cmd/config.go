// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfig names a config file used when --config is not given
const EnvConfig = "CMRISTAT_CONFIG"

// settings holds every option that may come from a flag or the config file
type settings struct {
	Port         string
	BaudRate     int
	StopBits     int
	URL          string
	Username     string
	NoSSLVerify  bool
	LogLevel     string
	FrameTimeout time.Duration
}

func defaultSettings() settings {
	return settings{
		BaudRate: 9600,
		StopBits: 2,
		LogLevel: defaultLogLevel(),
	}
}

// config.toml key mapping. Keys match the long flag names with '_' for '-'.
type fileConfig struct {
	Port         string `toml:"port"`
	Baud         int    `toml:"baud"`
	StopBits     int    `toml:"stop_bits"`
	URL          string `toml:"url"`
	Username     string `toml:"username"`
	NoSSLVerify  bool   `toml:"no_ssl_verify"`
	LogLevel     string `toml:"log_level"`
	FrameTimeout string `toml:"frame_timeout"`
}

// configPath resolves the config file location; empty means none
func configPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(EnvConfig))
}

// loadConfigFile overlays values defined in the TOML file at path onto s.
// Keys whose flag was set on the command line (changed reports true) are
// left alone.
func loadConfigFile(path string, s *settings, changed func(flag string) bool) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	use := func(key, flag string) bool {
		return meta.IsDefined(key) && !changed(flag)
	}

	if use("port", "port") {
		s.Port = strings.TrimSpace(raw.Port)
	}
	if use("baud", "baud") {
		s.BaudRate = raw.Baud
	}
	if use("stop_bits", "stop-bits") {
		s.StopBits = raw.StopBits
	}
	if use("url", "url") {
		s.URL = strings.TrimSpace(raw.URL)
	}
	if use("username", "username") {
		s.Username = strings.TrimSpace(raw.Username)
	}
	if use("no_ssl_verify", "no-ssl-verify") {
		s.NoSSLVerify = raw.NoSSLVerify
	}
	if use("log_level", "log-level") {
		s.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if use("frame_timeout", "frame-timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.FrameTimeout))
		if err != nil {
			return fmt.Errorf("load config: frame_timeout: %w", err)
		}
		s.FrameTimeout = d
	}

	return s.validate()
}

func (s *settings) validate() error {
	if s.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", s.BaudRate)
	}
	if s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("invalid stop bits %d (use 1 or 2)", s.StopBits)
	}
	if s.FrameTimeout < 0 {
		return fmt.Errorf("invalid frame timeout %s", s.FrameTimeout)
	}
	return nil
}
