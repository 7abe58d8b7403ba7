// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	conf = defaultSettings()

	// Config file path
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "cmristat",
	Short: "C/MRI Serial Protocol Analyzer",
	Long: `cmristat - A CLI tool for monitoring and analyzing C/MRI serial frames.

Decodes the FF FF STX addr type [data] ETX framing used by C/MRI nodes
(SMINI, SUSIC, Arduino CMRI) and provides commands for raw frame logging,
link statistics, polling a node and replaying recorded sessions.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600] [--stop-bits 2]
  WebSocket: --url ws://host/path [--username user]

Options may also be read from a TOML file given by --config or the
CMRISTAT_CONFIG environment variable. Flags set on the command line win.

For WebSocket authentication, the password is read from the CMRI_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path := configPath(configFile); path != "" {
			if err := loadConfigFile(path, &conf, cmd.Flags().Changed); err != nil {
				return err
			}
		} else if err := conf.validate(); err != nil {
			return err
		}
		return setupLogging(conf.LogLevel, os.Stderr)
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&conf.Port, "port", "p", conf.Port, "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&conf.BaudRate, "baud", "b", conf.BaudRate, "Baud rate (serial only)")
	rootCmd.PersistentFlags().IntVar(&conf.StopBits, "stop-bits", conf.StopBits, "Stop bits, 1 or 2 (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&conf.URL, "url", "u", conf.URL, "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&conf.Username, "username", conf.Username, "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&conf.NoSSLVerify, "no-ssl-verify", conf.NoSSLVerify, "Skip TLS certificate verification (wss:// only)")

	// Decoder
	rootCmd.PersistentFlags().DurationVar(&conf.FrameTimeout, "frame-timeout", conf.FrameTimeout, "Abandon a partial frame after this long (0 disables)")

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML config file")
	rootCmd.PersistentFlags().StringVar(&conf.LogLevel, "log-level", conf.LogLevel, "Log level (trace, debug, info, warn, error, off)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
