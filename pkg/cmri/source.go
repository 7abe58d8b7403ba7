// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"context"
	"io"
)

// ByteSource is a non-blocking byte receiver, such as a UART RX register.
type ByteSource interface {
	// TryReceive returns the next pending byte, or false if none is pending.
	TryReceive() (byte, bool)
}

// ChanSource adapts a byte channel to ByteSource.
type ChanSource struct {
	ch   <-chan byte
	done chan struct{}
	err  error
}

// NewChanSource wraps ch. A closed channel reads as empty.
func NewChanSource(ch <-chan byte) *ChanSource {
	return &ChanSource{ch: ch}
}

// TryReceive implements ByteSource.
func (s *ChanSource) TryReceive() (byte, bool) {
	select {
	case b, ok := <-s.ch:
		return b, ok
	default:
		return 0, false
	}
}

// Err returns the error that stopped the reader feeding this source, or nil
// while the reader is still running.
func (s *ChanSource) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Chan exposes the underlying channel so callers can wait for data instead
// of spinning on TryReceive.
func (s *ChanSource) Chan() <-chan byte {
	return s.ch
}

// ReaderSource starts a goroutine copying r into a buffered channel and
// returns a ByteSource over it. The channel is closed when r returns an
// error or ctx is cancelled.
func ReaderSource(ctx context.Context, r io.Reader, size int) *ChanSource {
	if size <= 0 {
		size = BufferLen
	}
	ch := make(chan byte, size)
	src := &ChanSource{ch: ch, done: make(chan struct{})}

	go func() {
		defer close(ch)
		defer close(src.done)
		buf := make([]byte, 128)
		for {
			n, err := r.Read(buf)
			for i := 0; i < n; i++ {
				select {
				case ch <- buf[i]:
				case <-ctx.Done():
					src.err = ctx.Err()
					return
				}
			}
			if err != nil {
				src.err = err
				return
			}
		}
	}()

	return src
}

// Drain feeds bytes from src while they are available and stops at the
// first completed frame, so the caller can act on it before more input
// overwrites the buffer. It returns false when src ran dry first.
//
// On ErrBufferOverflow the offending byte has been consumed and the decoder
// is idle again; calling Drain again continues with the next byte.
func (d *Decoder) Drain(src ByteSource) (Message, bool, error) {
	for {
		b, ok := src.TryReceive()
		if !ok {
			return Message{}, false, nil
		}
		rx, err := d.Process(b)
		if err != nil {
			return Message{}, false, err
		}
		if rx == Complete {
			m, err := d.Message()
			return m, err == nil, err
		}
	}
}
