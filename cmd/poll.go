// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	pollNode      int
	pollInit      bool
	pollInitDelay int
	pollOutputs   string
	pollCount     int
	pollInterval  time.Duration
	pollTimeout   time.Duration
)

// errPollTimeout is returned when a node does not answer a poll in time
var errPollTimeout = errors.New("no reply from node")

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll a C/MRI node and display its inputs",
	Long: `Act as the C/MRI host for a single node.

Sends a POLL frame to the node and waits for its RECEIVE reply, printing the
input bytes. Optionally initializes the node first (--init, SMINI node type)
and sets its outputs (--outputs, hex bytes).

Frames from other nodes and the echo of our own transmissions on a half
duplex bus are ignored.

Examples:
  cmristat poll -p /dev/ttyUSB0 --node 0
  cmristat poll -p /dev/ttyUSB0 --node 3 --init --outputs "00 FF 00 00 00 00"
  cmristat poll -p /dev/ttyUSB0 --node 0 --count 0 --interval 100ms

Supports both serial and WebSocket connections.`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().IntVarP(&pollNode, "node", "n", 0, "Node address (0-127)")
	pollCmd.Flags().BoolVar(&pollInit, "init", false, "Send an INIT frame before polling")
	pollCmd.Flags().IntVar(&pollInitDelay, "init-delay", 0, "Node transmit delay in microseconds (with --init)")
	pollCmd.Flags().StringVar(&pollOutputs, "outputs", "", "Output bytes to SET before polling, as hex")
	pollCmd.Flags().IntVar(&pollCount, "count", 1, "Number of polls (0 polls until interrupted)")
	pollCmd.Flags().DurationVar(&pollInterval, "interval", time.Second, "Delay between polls")
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", time.Second, "Time to wait for each reply")
}

func runPoll(cmd *cobra.Command, args []string) error {
	if pollNode < 0 || pollNode > cmri.MaxNodeAddress {
		return fmt.Errorf("invalid node address %d (use 0-%d)", pollNode, cmri.MaxNodeAddress)
	}
	addr := cmri.NodeAddressByte(uint8(pollNode))

	var outputs []byte
	if pollOutputs != "" {
		var err error
		outputs, err = parseHexBytes(pollOutputs)
		if err != nil {
			return fmt.Errorf("invalid --outputs: %w", err)
		}
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("cmristat - Poll\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Node: %d (0x%02X)\n\n", pollNode, addr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	src := cmri.ReaderSource(ctx, conn, 4096)
	d := cmri.NewDecoder()

	var tx []byte
	send := func(t cmri.MessageType, data []byte) error {
		var err error
		tx, err = cmri.AppendFrame(tx[:0], addr, t.Byte(), data)
		if err != nil {
			return err
		}
		if _, err := conn.Write(tx); err != nil {
			return fmt.Errorf("write %s: %w", t, err)
		}
		log.Debug().Str("type", t.String()).Hex("frame", tx).Msg("sent")
		return nil
	}

	if pollInit {
		payload, err := initPayload(pollInitDelay)
		if err != nil {
			return err
		}
		if err := send(cmri.MessageInit, payload); err != nil {
			return err
		}
	}

	if outputs != nil {
		if err := send(cmri.MessageSet, outputs); err != nil {
			return err
		}
	}

	missed := 0
	for i := 0; pollCount == 0 || i < pollCount; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollInterval):
			}
		}

		if err := send(cmri.MessagePoll, nil); err != nil {
			return err
		}

		reply, err := awaitReply(ctx, d, src, addr, pollTimeout)
		switch {
		case errors.Is(err, errPollTimeout):
			missed++
			log.Warn().Int("node", pollNode).Dur("timeout", pollTimeout).Msg("no reply")
			continue
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return fmt.Errorf("read: %w", err)
		}

		fmt.Print(cmri.FormatMessage(reply, time.Now()))
	}

	if missed > 0 {
		return fmt.Errorf("%d of %d polls unanswered", missed, pollCount)
	}
	return nil
}

// awaitReply drains src until the node at addr answers with a RECEIVE frame.
// Other frames are skipped. The returned message owns its bytes.
func awaitReply(ctx context.Context, d *cmri.Decoder, src *cmri.ChanSource, addr byte, timeout time.Duration) (cmri.Message, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	tick := time.NewTicker(2 * time.Millisecond)
	defer tick.Stop()

	for {
		m, ok, err := d.Drain(src)
		if err != nil {
			log.Warn().Err(err).Msg("frame dropped")
			continue
		}
		if ok {
			if m.Type() == cmri.MessageReceive && m.Address() == addr {
				return copyMessage(m), nil
			}
			log.Debug().
				Str("type", m.Type().String()).
				Str("address", cmri.FormatAddress(m)).
				Msg("skipping frame")
			continue
		}
		if err := src.Err(); err != nil {
			return cmri.Message{}, err
		}

		select {
		case <-ctx.Done():
			return cmri.Message{}, ctx.Err()
		case <-deadline.C:
			return cmri.Message{}, errPollTimeout
		case <-tick.C:
		}
	}
}

// initPayload builds an SMINI INIT payload: node type 'M', transmit delay
// in 10 us units (big endian) and no searchlight signals.
func initPayload(delayMicros int) ([]byte, error) {
	if delayMicros < 0 || delayMicros/10 > 0xFFFF {
		return nil, fmt.Errorf("invalid init delay %d us", delayMicros)
	}
	dl := delayMicros / 10
	return []byte{'M', byte(dl >> 8), byte(dl), 0}, nil
}

// parseHexBytes accepts "00FF10", "00 FF 10" or "00:ff:10"
func parseHexBytes(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("no bytes")
	}
	return b, nil
}
