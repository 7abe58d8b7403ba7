// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/Thermoquad/cmristat/pkg/cmri"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Track bus traffic, nodes and framing errors",
	Long: `Monitor a C/MRI bus with live statistics.

This command decodes every frame on the link and tracks:
  - Frame counts per message type (INIT, SET, POLL, RECEIVE, unknown)
  - Nodes seen on the bus with their latest inputs and outputs
  - Bytes discarded outside frames and partial frames dropped on resync
  - Buffer overflows
  - Frame rate and error rate

By default only errors and sync events are logged. Use --show-all to log every
frame too.

The terminal UI reconnects automatically when the link drops. Text mode
prints periodic statistics summaries at --stats-interval.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("invalid stats interval %d", statsInterval)
	}

	// Open connection (serial or WebSocket)
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	defer conn.Close()
	return runTextMode(cmd.Context(), conn, connInfo)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> FRAME DROPPED <<<\n\n")
}

// runTextMode prints frames and periodic statistics to stdout
func runTextMode(parent context.Context, conn Connection, connInfo string) error {
	fmt.Printf("cmristat - Bus Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	synchronized := false
	var last cmri.Statistics

	err := decodeStream(ctx, conn, streamOptions{
		frameTimeout:  conf.FrameTimeout,
		statsInterval: time.Duration(statsInterval) * time.Second,
		onStats: func(s cmri.Statistics) {
			last = s
			fmt.Println()
			fmt.Print(s.String())
			fmt.Println()
		},
		onFrame: func(m cmri.Message, ts time.Time) {
			if !synchronized {
				synchronized = true
				fmt.Printf("[SYNC] Synchronized\n\n")
			}
			if showAll {
				fmt.Print(cmri.FormatMessage(m, ts))
			}
		},
		onError: printDecodeError,
	})

	if last.TotalBytes > 0 {
		fmt.Println()
		fmt.Print(last.String())
	}
	return err
}

// runTUIMode runs the monitor in a bubbletea program
func runTUIMode(conn Connection, connInfo string) error {
	cm := &connectionManager{
		conn:     conn,
		connInfo: connInfo,
		done:     make(chan struct{}),
		stats:    cmri.NewStatistics(),
	}

	// The alt screen owns the terminal; events go to the TUI log instead
	log.Logger = zerolog.Nop()

	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	var g errgroup.Group
	g.Go(func() error {
		cm.readerLoop()
		return nil
	})

	_, err := p.Run()
	close(cm.done)
	cm.getConn().Close()
	g.Wait()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}

	// Owned by the reader goroutine
	stats *cmri.Statistics
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// readerLoop decodes the current connection and reconnects when it drops
func (cm *connectionManager) readerLoop() {
	for {
		err := cm.readFromConnection()

		select {
		case <-cm.done:
			return
		default:
		}

		cm.p.Send(connectionLostMsg{err: err})
		if !cm.reconnect() {
			return
		}
	}
}

// readFromConnection decodes frames until the link fails or shutdown is
// requested, forwarding batches to the TUI with each statistics snapshot.
func (cm *connectionManager) readFromConnection() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-cm.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var batch frameBatchMsg

	return decodeStream(ctx, cm.getConn(), streamOptions{
		frameTimeout:  conf.FrameTimeout,
		stats:         cm.stats,
		statsInterval: 250 * time.Millisecond,
		onStats: func(s cmri.Statistics) {
			batch.stats = s
			cm.p.Send(batch)
			batch = frameBatchMsg{}
		},
		onFrame: func(m cmri.Message, ts time.Time) {
			if len(batch.frames) < maxBatchFrames {
				batch.frames = append(batch.frames, newFrameEvent(m, ts))
			}
		},
		onError: func(err error) {
			if len(batch.errors) < maxBatchFrames {
				batch.errors = append(batch.errors, err)
			}
		},
	})
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	// Close old connection
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}
		log.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
