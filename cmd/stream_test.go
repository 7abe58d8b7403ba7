// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/stretchr/testify/require"
)

type seenFrame struct {
	address byte
	msgType cmri.MessageType
	data    []byte
}

func collectFrames(out *[]seenFrame) func(cmri.Message, time.Time) {
	return func(m cmri.Message, _ time.Time) {
		*out = append(*out, seenFrame{m.Address(), m.Type(), m.Data()})
	}
}

func TestDecodeStream(t *testing.T) {
	var in bytes.Buffer
	in.Write([]byte{0x00, 0xFF, 0x42})
	in.Write(mustFrame(t, 0, cmri.MessagePoll, nil))
	in.Write(mustFrame(t, 0, cmri.MessageReceive, []byte{0x02, 0x00}))
	wire := append([]byte(nil), in.Bytes()...)

	var frames []seenFrame
	var record bytes.Buffer
	err := decodeStream(context.Background(), &in, streamOptions{
		record:  &record,
		onFrame: collectFrames(&frames),
	})
	require.ErrorIs(t, err, io.EOF)

	require.Equal(t, []seenFrame{
		{cmri.NodeAddressByte(0), cmri.MessagePoll, []byte{}},
		{cmri.NodeAddressByte(0), cmri.MessageReceive, []byte{0x02, 0x00}},
	}, frames)
	require.Equal(t, wire, record.Bytes())
}

func TestDecodeStream_Overflow(t *testing.T) {
	var in bytes.Buffer
	in.Write([]byte{cmri.PreambleByte, cmri.PreambleByte, cmri.StartByte, 'A', 'T'})
	in.Write(bytes.Repeat([]byte{0x55}, cmri.BufferLen))
	in.Write(mustFrame(t, 1, cmri.MessageSet, []byte{0x0F}))

	var frames []seenFrame
	var errs []error
	stats := cmri.NewStatistics()
	err := decodeStream(context.Background(), &in, streamOptions{
		stats:   stats,
		onFrame: collectFrames(&frames),
		onError: func(err error) { errs = append(errs, err) },
	})
	require.ErrorIs(t, err, io.EOF)

	require.NotEmpty(t, errs)
	require.ErrorIs(t, errs[0], cmri.ErrBufferOverflow)
	require.Len(t, frames, 1)
	require.Equal(t, []byte{0x0F}, frames[0].data)
	require.Equal(t, uint64(1), stats.Frames)
	require.Equal(t, uint64(len(errs)), stats.Overflows)
}

func TestDecodeStream_Cancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- decodeStream(ctx, pr, streamOptions{})
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("decodeStream did not stop after cancel")
	}
}

func TestDecodeStream_FrameTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	poll := mustFrame(t, 1, cmri.MessagePoll, nil)

	go func() {
		// Stall mid-frame, then start over with a fresh frame
		pw.Write([]byte{cmri.PreambleByte, cmri.PreambleByte, cmri.StartByte, 'A'})
		time.Sleep(150 * time.Millisecond)
		pw.Write(poll)
		pw.Close()
	}()

	var frames []seenFrame
	err := decodeStream(context.Background(), pr, streamOptions{
		frameTimeout: 20 * time.Millisecond,
		onFrame:      collectFrames(&frames),
	})
	require.ErrorIs(t, err, io.EOF)

	require.Equal(t, []seenFrame{
		{cmri.NodeAddressByte(1), cmri.MessagePoll, []byte{}},
	}, frames)
}

func TestDecodeStream_Stats(t *testing.T) {
	pr, pw := io.Pipe()
	poll := mustFrame(t, 5, cmri.MessagePoll, nil)

	go func() {
		pw.Write(poll)
		time.Sleep(100 * time.Millisecond)
		pw.Close()
	}()

	var snaps []cmri.Statistics
	err := decodeStream(context.Background(), pr, streamOptions{
		statsInterval: 10 * time.Millisecond,
		onStats:       func(s cmri.Statistics) { snaps = append(snaps, s) },
	})
	require.ErrorIs(t, err, io.EOF)

	require.NotEmpty(t, snaps)
	require.Equal(t, uint64(1), snaps[len(snaps)-1].PollFrames)
}
