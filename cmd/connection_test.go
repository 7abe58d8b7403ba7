// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/cmristat/pkg/cmri"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// bridgeServer is a websocket endpoint standing in for a serial bridge
func bridgeServer(t *testing.T, handle func(c *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if r.URL.Path == "/auth" && (!ok || user != "host" || pass != "secret") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handle(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketConnection_StreamAcrossMessages(t *testing.T) {
	frame := mustFrame(t, 0, cmri.MessageReceive, []byte{0x01, 0x02, 0x03})

	url := bridgeServer(t, func(c *websocket.Conn) {
		// Split a frame over two binary messages with a text message between
		c.WriteMessage(websocket.BinaryMessage, frame[:4])
		c.WriteMessage(websocket.TextMessage, []byte("status: ok"))
		c.WriteMessage(websocket.BinaryMessage, frame[4:])

		// Echo one binary message back, then hang up
		mt, data, err := c.ReadMessage()
		if err == nil && mt == websocket.BinaryMessage {
			c.WriteMessage(websocket.BinaryMessage, data)
		}
	})

	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	var frames []seenFrame
	done := make(chan error, 1)
	go func() {
		done <- decodeStream(context.Background(), conn, streamOptions{onFrame: collectFrames(&frames)})
	}()

	poll := mustFrame(t, 0, cmri.MessagePoll, nil)
	_, err = conn.Write(poll)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end when the bridge hung up")
	}

	require.Equal(t, []seenFrame{
		{cmri.NodeAddressByte(0), cmri.MessageReceive, []byte{0x01, 0x02, 0x03}},
		{cmri.NodeAddressByte(0), cmri.MessagePoll, []byte{}},
	}, frames)

	// Reads after failure report the closed connection
	_, err = conn.Read(make([]byte, 8))
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestWebSocketConnection_SmallReads(t *testing.T) {
	url := bridgeServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.BinaryMessage, []byte{0xFF, 0xFF, 0x02, 0x41, 0x50})
	})

	conn, err := OpenWebSocketConnection(url, "", "", false)
	require.NoError(t, err)
	defer conn.Close()

	var got []byte
	buf := make([]byte, 2)
	for len(got) < 5 {
		n, err := conn.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, []byte{0xFF, 0xFF, 0x02, 0x41, 0x50}, got)

	_, err = conn.Read(buf)
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
}

func TestOpenWebSocketConnection_Auth(t *testing.T) {
	url := bridgeServer(t, func(c *websocket.Conn) {})

	_, err := OpenWebSocketConnection(url+"/auth", "host", "wrong", false)
	require.ErrorContains(t, err, "HTTP 401")

	conn, err := OpenWebSocketConnection(url+"/auth", "host", "secret", false)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestOpenWebSocketConnection_BadURL(t *testing.T) {
	_, err := OpenWebSocketConnection("http://example.com/cmri", "", "", false)
	require.ErrorContains(t, err, "unsupported URL scheme")

	_, err = OpenWebSocketConnection("://nope", "", "", false)
	require.Error(t, err)
}

func TestOpenConnection_NoTarget(t *testing.T) {
	saved := conf
	t.Cleanup(func() { conf = saved })

	conf.Port = ""
	conf.URL = ""
	_, _, err := OpenConnection()
	require.Error(t, err)
}
