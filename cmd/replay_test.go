// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Thermoquad/cmristat/pkg/capture"
	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/stretchr/testify/require"
)

func TestReplayCapture(t *testing.T) {
	var file bytes.Buffer
	w, err := capture.NewWriter(&file, "Serial: /dev/ttyUSB0", 9600)
	require.NoError(t, err)

	poll := mustFrame(t, 0, cmri.MessagePoll, nil)
	reply := mustFrame(t, 0, cmri.MessageReceive, []byte{0x02, 0xFF})

	_, err = w.Write(append([]byte{0x00}, poll[:3]...))
	require.NoError(t, err)
	_, err = w.Write(append(poll[3:], reply...))
	require.NoError(t, err)

	var out bytes.Buffer
	h, stats, err := replayCapture(&file, &out)
	require.NoError(t, err)

	require.Equal(t, "Serial: /dev/ttyUSB0", h.Source)
	require.Equal(t, uint64(2), stats.Frames)
	require.Equal(t, uint64(1), stats.PollFrames)
	require.Equal(t, uint64(1), stats.ReceiveFrames)
	require.Equal(t, uint64(1), stats.DiscardedBytes())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "POLL (0x50) node=0 (0x41) len=0")
	require.Contains(t, lines[2], "RECEIVE (0x52) node=0 (0x41) len=2")
	require.Contains(t, lines[3], "Inputs:  02 FF")
}

func TestReplayCapture_BadFile(t *testing.T) {
	_, _, err := replayCapture(strings.NewReader("not a capture"), &bytes.Buffer{})
	require.ErrorIs(t, err, capture.ErrBadHeader)
}
