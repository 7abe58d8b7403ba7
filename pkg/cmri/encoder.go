// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import "fmt"

// Encoder builds wire frames that a Decoder on the other end accepts.
type Encoder struct{}

// NewEncoder creates a new C/MRI frame encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode re-encodes a decoded message from its collapsed payload.
func (e *Encoder) Encode(m Message) ([]byte, error) {
	return AppendFrame(nil, m.Address(), m.TypeByte(), m.Data())
}

// EncodeFrame creates a complete frame for the given address and type.
func EncodeFrame(address byte, t MessageType, data []byte) ([]byte, error) {
	if !t.Known() {
		return nil, fmt.Errorf("cannot encode message type %s", t)
	}
	return AppendFrame(make([]byte, 0, EncodedLen(data)), address, t.Byte(), data)
}

// AppendFrame appends PREAMBLE PREAMBLE START address typeByte <data> STOP
// to dst. Data bytes that collide with a framing byte are preceded by
// ESCAPE. Returns ErrPayloadTooLarge if the frame exceeds BufferLen.
func AppendFrame(dst []byte, address, typeByte byte, data []byte) ([]byte, error) {
	if n := EncodedLen(data); n > BufferLen {
		return dst, fmt.Errorf("%w: %d bytes encoded (max %d)", ErrPayloadTooLarge, n, BufferLen)
	}

	dst = append(dst, PreambleByte, PreambleByte, StartByte, address, typeByte)
	for _, b := range data {
		if needsEscape(b) {
			dst = append(dst, EscapeByte)
		}
		dst = append(dst, b)
	}
	return append(dst, StopByte), nil
}

// EncodedLen returns the raw frame length for a payload, including framing
// and escape bytes.
func EncodedLen(data []byte) int {
	n := minFrameLen + len(data)
	for _, b := range data {
		if needsEscape(b) {
			n++
		}
	}
	return n
}

// NodeAddressByte returns the address byte for a C/MRI node number.
func NodeAddressByte(node uint8) byte {
	return nodeAddressBase + node
}

// START is escaped too; ArduinoCMRI does so and the decoder accepts it.
func needsEscape(b byte) bool {
	switch b {
	case PreambleByte, StartByte, StopByte, EscapeByte:
		return true
	}
	return false
}
