// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import "fmt"

// State is the decoder's position in the framing protocol.
type State uint8

// Decoder states
const (
	StateIdle   State = iota // waiting for the first PREAMBLE
	StateAttn                // one PREAMBLE seen
	StateStart               // two PREAMBLEs seen, waiting for START
	StateAddr                // waiting for the address byte
	StateType                // waiting for the type byte
	StateData                // accumulating data until STOP
	StateEscape              // next byte is literal data
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAttn:
		return "ATTN"
	case StateStart:
		return "START"
	case StateAddr:
		return "ADDR"
	case StateType:
		return "TYPE"
	case StateData:
		return "DATA"
	case StateEscape:
		return "ESCAPE"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// RxState is the result of feeding one byte to the decoder.
type RxState uint8

const (
	// Listening means no frame was completed by this byte.
	Listening RxState = iota
	// Complete means this byte was the STOP of a valid frame.
	Complete
)

func (r RxState) String() string {
	if r == Complete {
		return "COMPLETE"
	}
	return "LISTENING"
}

// Decoder implements the C/MRI receive state machine.
//
// A Decoder has a single owner and is not safe for concurrent use. Process
// does constant work per byte and never allocates.
type Decoder struct {
	state    State
	buffer   [BufferLen]byte
	position int
	complete bool
}

// NewDecoder creates a decoder in the idle state.
func NewDecoder() *Decoder {
	return &Decoder{state: StateIdle}
}

// State returns the current framing state.
func (d *Decoder) State() State {
	return d.state
}

// Position returns the number of bytes accumulated in the buffer.
func (d *Decoder) Position() int {
	return d.position
}

// InFrame reports whether a frame is partially assembled.
func (d *Decoder) InFrame() bool {
	return d.state != StateIdle
}

// Raw returns the accumulated raw bytes. The slice aliases the decoder's
// buffer and is only valid until the next call to Process.
func (d *Decoder) Raw() []byte {
	return d.buffer[:d.position]
}

// Reset discards any partial frame and returns to idle.
func (d *Decoder) Reset() {
	d.state = StateIdle
	d.complete = false
	d.clear()
}

// Message returns a view over the frame completed by the last Process call.
// The view aliases the decoder's buffer and must be consumed before the next
// byte is processed.
func (d *Decoder) Message() (Message, error) {
	if !d.complete {
		return Message{}, ErrNoMessage
	}
	return Message{raw: d.buffer[:d.position]}, nil
}

func (d *Decoder) push(b byte) error {
	if d.position >= BufferLen {
		return ErrBufferOverflow
	}
	d.buffer[d.position] = b
	d.position++
	return nil
}

// clear drops the buffer contents. Bytes past position are never read, so
// only the cursor moves.
func (d *Decoder) clear() {
	d.position = 0
}

// accept appends b and moves to next. On overflow the partial frame is
// discarded so the decoder cannot get stuck.
func (d *Decoder) accept(b byte, next State) error {
	if err := d.push(b); err != nil {
		d.Reset()
		return err
	}
	d.state = next
	return nil
}

// resync discards the partial frame after a framing violation.
func (d *Decoder) resync() {
	d.clear()
	d.state = StateIdle
}

// Process feeds one byte through the state machine. It returns Complete on
// the STOP byte that ends a frame, after which Message is valid and the
// decoder is idle again. The only error is ErrBufferOverflow.
func (d *Decoder) Process(b byte) (RxState, error) {
	d.complete = false

	switch d.state {
	case StateIdle:
		if b == PreambleByte {
			d.clear()
			return Listening, d.accept(b, StateAttn)
		}
		// Anything else is line noise between frames

	case StateAttn:
		if b != PreambleByte {
			d.resync()
			return Listening, nil
		}
		return Listening, d.accept(b, StateStart)

	case StateStart:
		if b != StartByte {
			d.resync()
			return Listening, nil
		}
		return Listening, d.accept(b, StateAddr)

	case StateAddr:
		// No reserved values in the address
		return Listening, d.accept(b, StateType)

	case StateType:
		return Listening, d.accept(b, StateData)

	case StateData:
		switch b {
		case EscapeByte:
			return Listening, d.accept(b, StateEscape)
		case StopByte:
			if err := d.accept(b, StateIdle); err != nil {
				return Listening, err
			}
			d.complete = true
			return Complete, nil
		default:
			return Listening, d.accept(b, StateData)
		}

	case StateEscape:
		// Literal byte regardless of value
		return Listening, d.accept(b, StateData)
	}

	return Listening, nil
}
