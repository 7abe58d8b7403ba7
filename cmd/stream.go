// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/rs/zerolog/log"
)

// streamOptions configures decodeStream
type streamOptions struct {
	// Abandon a partial frame after this long (0 disables)
	frameTimeout time.Duration

	// Raw bytes are copied here as they are read, if set
	record io.Writer

	// Counters to update, so they survive a reconnect (a fresh set if nil)
	stats *cmri.Statistics

	// Periodic statistics snapshots, delivered on the decode goroutine
	statsInterval time.Duration
	onStats       func(cmri.Statistics)

	// Called for every completed frame. The message aliases the decoder
	// buffer and must not be retained.
	onFrame func(m cmri.Message, ts time.Time)

	// Called for decoder errors (buffer overflow)
	onError func(err error)
}

// decodeStream reads conn until it fails or ctx is cancelled, feeding every
// byte through a single decoder. Returns nil when ctx ends the stream.
func decodeStream(ctx context.Context, conn io.Reader, opts streamOptions) error {
	var r io.Reader = conn
	if opts.record != nil {
		r = io.TeeReader(conn, opts.record)
	}

	src := cmri.ReaderSource(ctx, r, 4096)
	d := cmri.NewDecoder()
	stats := opts.stats
	if stats == nil {
		stats = cmri.NewStatistics()
	}

	var timeoutC <-chan time.Time
	if opts.frameTimeout > 0 {
		ticker := time.NewTicker(opts.frameTimeout / 2)
		defer ticker.Stop()
		timeoutC = ticker.C
	}

	var statsC <-chan time.Time
	if opts.statsInterval > 0 && opts.onStats != nil {
		ticker := time.NewTicker(opts.statsInterval)
		defer ticker.Stop()
		statsC = ticker.C
	}

	var frameStarted time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case b, ok := <-src.Chan():
			if !ok {
				if err := src.Err(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}

			wasInFrame := d.InFrame()
			rx, err := stats.Process(d, b)
			if err != nil {
				log.Warn().Err(err).Msg("frame dropped")
				if opts.onError != nil {
					opts.onError(err)
				}
				continue
			}
			if !wasInFrame && d.InFrame() {
				frameStarted = time.Now()
			}
			if rx == cmri.Complete && opts.onFrame != nil {
				m, err := d.Message()
				if err == nil {
					opts.onFrame(m, time.Now())
				}
			}

		case <-timeoutC:
			if d.InFrame() && time.Since(frameStarted) > opts.frameTimeout {
				log.Debug().
					Str("state", d.State().String()).
					Int("position", d.Position()).
					Dur("timeout", opts.frameTimeout).
					Msg("abandoning stalled frame")
				d.Reset()
			}

		case <-statsC:
			opts.onStats(*stats)
		}
	}
}

// copyMessage detaches m from the decoder buffer
func copyMessage(m cmri.Message) cmri.Message {
	owned, err := cmri.ParseMessage(append([]byte(nil), m.Raw()...))
	if err != nil {
		return m
	}
	return owned
}
