// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/cmristat/pkg/capture"
	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/spf13/cobra"
)

var (
	replayStats bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Decode a capture recorded with raw_log --record",
	Long: `Feed a capture file back through a fresh decoder and print every frame
with the time it was originally received.

Decoding is deterministic, so a replay shows exactly what the live session
decoded.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayStats, "stats", true, "Print statistics after the last frame")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	h, stats, err := replayCapture(f, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if replayStats {
		fmt.Fprintf(cmd.OutOrStdout(), "\nCapture: %s", h.Started().Format(time.RFC3339))
		if h.Source != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " from %s", h.Source)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s", stats.String())
	}
	return nil
}

// replayCapture decodes every chunk in r and writes formatted frames to out
func replayCapture(r io.Reader, out io.Writer) (capture.Header, *cmri.Statistics, error) {
	cr, err := capture.NewReader(r)
	if err != nil {
		return capture.Header{}, nil, err
	}
	h := cr.Header()

	d := cmri.NewDecoder()
	stats := cmri.NewStatistics()

	err = cr.ForEach(func(c capture.Chunk) error {
		ts := h.Started().Add(time.Duration(c.OffsetNs))
		for _, b := range c.Data {
			rx, err := stats.Process(d, b)
			if err != nil {
				fmt.Fprintf(out, "[ERROR] %v\n", err)
				continue
			}
			if rx != cmri.Complete {
				continue
			}
			m, err := d.Message()
			if err != nil {
				return err
			}
			fmt.Fprint(out, cmri.FormatMessage(m, ts))
		}
		return nil
	})
	if err != nil {
		return h, stats, err
	}

	stats.CalculateRates()
	return h, stats, nil
}
