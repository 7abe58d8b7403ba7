// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/spf13/cobra"
)

var (
	frameTestTimeout int
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test connection by waiting for a valid C/MRI frame",
	Long: `Wait for a valid C/MRI frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
complete frame (preamble, start, address, type, data, stop). Bytes outside a
frame are ignored.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking that a bus is alive before starting a longer session.`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("cmristat - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	fmt.Printf("Waiting for valid C/MRI frame...\n\n")

	timeout := time.Duration(frameTestTimeout) * time.Second
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var got *cmri.Message
	skipped := 0
	err = decodeStream(ctx, conn, streamOptions{
		frameTimeout: conf.FrameTimeout,
		onFrame: func(m cmri.Message, ts time.Time) {
			if got != nil {
				return
			}
			owned := copyMessage(m)
			got = &owned
			cancel()
		},
		onError: func(error) {
			skipped++
		},
	})

	switch {
	case got != nil:
		if skipped > 0 {
			fmt.Printf("(dropped %d overlong frames before sync)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", cmri.FormatMessageType(got.Type()), got.TypeByte())
		fmt.Printf("  Address: %s\n", cmri.FormatAddress(*got))
		fmt.Printf("  Data: %d bytes\n", got.DataLen())
		fmt.Printf("  Length: %d bytes on the wire\n", len(got.Raw()))
		os.Exit(0)

	case err != nil:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	default:
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)
	}

	return nil
}
