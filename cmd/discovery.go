// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/spf13/cobra"
)

var (
	discoveryTimeout time.Duration
	discoveryFirst   int
	discoveryLast    int
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover nodes by polling every address",
	Long: `Send a POLL frame to each node address in turn and list the nodes that
answer with a RECEIVE frame.

C/MRI has no broadcast address, so every address in --first..--last is polled
once and given --timeout to reply. Nodes that have not been initialized may
still answer with their power-on input state.

Examples:
  cmristat discovery --port /dev/ttyUSB0
  cmristat discovery --port /dev/ttyUSB0 --first 0 --last 15 --timeout 50ms

Exit codes:
  0 - Discovery successful (at least one node found)
  1 - Discovery failed (no nodes replied)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryTimeout, "timeout", 100*time.Millisecond, "Time to wait for each node")
	discoveryCmd.Flags().IntVar(&discoveryFirst, "first", 0, "First node address to poll")
	discoveryCmd.Flags().IntVar(&discoveryLast, "last", cmri.MaxNodeAddress, "Last node address to poll")
}

// discoveredNode is a node that answered a poll
type discoveredNode struct {
	node   uint8
	inputs []byte
	rtt    time.Duration
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	if discoveryFirst < 0 || discoveryLast > cmri.MaxNodeAddress || discoveryFirst > discoveryLast {
		return fmt.Errorf("invalid address range %d..%d (use 0-%d)", discoveryFirst, discoveryLast, cmri.MaxNodeAddress)
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("cmristat - Node Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Addresses: %d..%d\n", discoveryFirst, discoveryLast)
	fmt.Printf("Timeout: %s per node\n\n", discoveryTimeout)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	src := cmri.ReaderSource(ctx, conn, 4096)
	d := cmri.NewDecoder()
	nodes := make([]discoveredNode, 0)
	var tx []byte

scan:
	for n := discoveryFirst; n <= discoveryLast; n++ {
		addr := cmri.NodeAddressByte(uint8(n))
		tx, err = cmri.AppendFrame(tx[:0], addr, cmri.MessagePoll.Byte(), nil)
		if err != nil {
			return err
		}

		sent := time.Now()
		if _, err := conn.Write(tx); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			os.Exit(2)
		}

		reply, err := awaitReply(ctx, d, src, addr, discoveryTimeout)
		switch {
		case errors.Is(err, errPollTimeout):
			continue
		case errors.Is(err, context.Canceled):
			fmt.Printf("\nInterrupted\n")
			break scan
		case err != nil:
			fmt.Printf("READ FAILED: %v\n", err)
			os.Exit(2)
		}

		found := discoveredNode{node: uint8(n), inputs: reply.Data(), rtt: time.Since(sent)}
		nodes = append(nodes, found)
		fmt.Printf("\nNode found:\n")
		fmt.Printf("  Address: %s\n", cmri.FormatAddress(reply))
		fmt.Printf("  Input bytes: %d\n", len(found.inputs))
		fmt.Printf("  Inputs: %s\n", cmri.FormatHex(found.inputs, 10))
		fmt.Printf("  Reply time: %s\n", found.rtt.Round(time.Millisecond))
	}

	// Summary
	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Nodes found: %d\n", len(nodes))
	for _, n := range nodes {
		fmt.Printf("  node %3d: %d input bytes\n", n.node, len(n.inputs))
	}

	if len(nodes) == 0 {
		fmt.Printf("No nodes replied. Check wiring, baud rate and node addresses.\n")
		os.Exit(1)
	}

	return nil
}
