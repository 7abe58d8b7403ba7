// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw C/MRI byte streams to disk so a session can be
// replayed through a fresh decoder later.
//
// A capture file is a CBOR sequence: one Header item followed by any number
// of Chunk items, each holding bytes exactly as they were read from the link.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a capture file.
const Magic = "CMRICAP"

// Version is the current capture format version.
const Version = 1

// ErrBadHeader is returned when a file does not start with a valid header.
var ErrBadHeader = errors.New("capture: bad header")

// Header describes the link a capture was taken from.
type Header struct {
	Magic      string `cbor:"0,keyasint"`
	Version    uint   `cbor:"1,keyasint"`
	Source     string `cbor:"2,keyasint,omitempty"`
	BaudRate   int    `cbor:"3,keyasint,omitempty"`
	StartedNs  int64  `cbor:"4,keyasint"`
	Annotation string `cbor:"5,keyasint,omitempty"`
}

// Started returns the capture start time.
func (h Header) Started() time.Time {
	return time.Unix(0, h.StartedNs)
}

// Chunk is one read from the link.
type Chunk struct {
	OffsetNs int64  `cbor:"0,keyasint"` // since Header.StartedNs
	Data     []byte `cbor:"1,keyasint"`
}

// Writer appends chunks to a capture file.
type Writer struct {
	enc     *cbor.Encoder
	started time.Time
	now     func() time.Time
}

// NewWriter writes the header to w and returns a Writer for the chunks.
func NewWriter(w io.Writer, source string, baudRate int) (*Writer, error) {
	return newWriter(w, source, baudRate, time.Now)
}

func newWriter(w io.Writer, source string, baudRate int, now func() time.Time) (*Writer, error) {
	started := now()
	enc := cbor.NewEncoder(w)
	h := Header{
		Magic:     Magic,
		Version:   Version,
		Source:    source,
		BaudRate:  baudRate,
		StartedNs: started.UnixNano(),
	}
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &Writer{enc: enc, started: started, now: now}, nil
}

// Write records p as one chunk. It implements io.Writer so a Writer can sit
// behind an io.TeeReader on the link.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c := Chunk{
		OffsetNs: w.now().Sub(w.started).Nanoseconds(),
		Data:     p,
	}
	if err := w.enc.Encode(c); err != nil {
		return 0, fmt.Errorf("write capture chunk: %w", err)
	}
	return len(p), nil
}

// Reader reads a capture file.
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and validates the header from r.
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)
	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadHeader, h.Magic)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, h.Version)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Header returns the capture header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next chunk, or io.EOF at the end of the file.
func (r *Reader) Next() (Chunk, error) {
	var c Chunk
	if err := r.dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("read capture chunk: %w", err)
	}
	return c, nil
}

// ForEach calls fn for every remaining chunk.
func (r *Reader) ForEach(fn func(Chunk) error) error {
	for {
		c, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
}
