// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/stretchr/testify/require"
)

func mustFrame(t *testing.T, node uint8, mt cmri.MessageType, data []byte) []byte {
	t.Helper()
	b, err := cmri.EncodeFrame(cmri.NodeAddressByte(node), mt, data)
	require.NoError(t, err)
	return b
}

func chanSourceOf(chunks ...[]byte) *cmri.ChanSource {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	ch := make(chan byte, n)
	for _, c := range chunks {
		for _, b := range c {
			ch <- b
		}
	}
	return cmri.NewChanSource(ch)
}

func TestAwaitReply(t *testing.T) {
	// Our own poll echoed back, another node's reply, then the answer
	src := chanSourceOf(
		mustFrame(t, 3, cmri.MessagePoll, nil),
		mustFrame(t, 4, cmri.MessageReceive, []byte{0xAA}),
		[]byte{0x00, 0x55},
		mustFrame(t, 3, cmri.MessageReceive, []byte{0x01, 0x03, 0x10}),
	)

	reply, err := awaitReply(context.Background(), cmri.NewDecoder(), src, cmri.NodeAddressByte(3), time.Second)
	require.NoError(t, err)
	require.Equal(t, cmri.MessageReceive, reply.Type())
	require.Equal(t, []byte{0x01, 0x03, 0x10}, reply.Data())

	node, ok := reply.NodeAddress()
	require.True(t, ok)
	require.Equal(t, uint8(3), node)
}

func TestAwaitReply_Timeout(t *testing.T) {
	src := chanSourceOf(mustFrame(t, 1, cmri.MessageReceive, []byte{0x00}))

	start := time.Now()
	_, err := awaitReply(context.Background(), cmri.NewDecoder(), src, cmri.NodeAddressByte(2), 30*time.Millisecond)
	require.ErrorIs(t, err, errPollTimeout)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestAwaitReply_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := awaitReply(ctx, cmri.NewDecoder(), chanSourceOf(), cmri.NodeAddressByte(0), time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAwaitReply_ReplyOutlivesDecoder(t *testing.T) {
	d := cmri.NewDecoder()
	src := chanSourceOf(
		mustFrame(t, 0, cmri.MessageReceive, []byte{0x11, 0x22}),
		mustFrame(t, 9, cmri.MessageSet, []byte{0xEE, 0xEE, 0xEE, 0xEE}),
	)

	reply, err := awaitReply(context.Background(), d, src, cmri.NodeAddressByte(0), time.Second)
	require.NoError(t, err)

	// Keep decoding over the same buffer
	for {
		_, ok, err := d.Drain(src)
		require.NoError(t, err)
		if !ok {
			break
		}
	}

	require.Equal(t, []byte{0x11, 0x22}, reply.Data())
}

func TestInitPayload(t *testing.T) {
	p, err := initPayload(0)
	require.NoError(t, err)
	require.Equal(t, []byte{'M', 0x00, 0x00, 0x00}, p)

	p, err = initPayload(1500)
	require.NoError(t, err)
	require.Equal(t, []byte{'M', 0x00, 0x96, 0x00}, p)

	_, err = initPayload(-1)
	require.Error(t, err)
	_, err = initPayload(655360)
	require.Error(t, err)
}

func TestParseHexBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"00FF10", []byte{0x00, 0xFF, 0x10}, false},
		{"00 ff 10", []byte{0x00, 0xFF, 0x10}, false},
		{"00:FF:10", []byte{0x00, 0xFF, 0x10}, false},
		{"0x01 0x02", []byte{0x01, 0x02}, false},
		{"", nil, true},
		{"0", nil, true},
		{"zz", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseHexBytes(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
