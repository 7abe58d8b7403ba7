// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/cmristat/pkg/capture"
	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	rawLogRecord string
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display C/MRI frames as they arrive.

Each frame is printed with a timestamp, node address, message type and the
payload with escape bytes removed. Bytes outside a frame are skipped silently.

With --record the raw byte stream is also written to a capture file that the
replay command can feed back through the decoder.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Write the raw byte stream to a capture file")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("cmristat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var record io.Writer
	if rawLogRecord != "" {
		f, err := os.Create(rawLogRecord)
		if err != nil {
			return fmt.Errorf("create capture file: %w", err)
		}
		defer f.Close()

		w, err := capture.NewWriter(f, connInfo, conf.BaudRate)
		if err != nil {
			return err
		}
		record = w
		log.Info().Str("file", rawLogRecord).Msg("recording")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	err = decodeStream(ctx, conn, streamOptions{
		frameTimeout: conf.FrameTimeout,
		record:       record,
		onFrame: func(m cmri.Message, ts time.Time) {
			fmt.Print(cmri.FormatMessage(m, ts))
		},
		onError: func(err error) {
			fmt.Printf("[ERROR] %v\n", err)
		},
	})
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
		log.Info().Msg("connection closed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}
