// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

// Message is a read-only view over a complete raw frame.
//
// A Message taken from a Decoder aliases its buffer and is only valid until
// the decoder processes another byte. Copy what you need with Data or
// AppendData before feeding the next byte.
type Message struct {
	raw []byte
}

// ParseMessage builds a view over a raw frame, checking its framing:
// two preambles, start, address, type, data and a final unescaped stop.
func ParseMessage(raw []byte) (Message, error) {
	if len(raw) < minFrameLen || len(raw) > BufferLen {
		return Message{}, ErrMalformedFrame
	}
	if raw[0] != PreambleByte || raw[1] != PreambleByte || raw[2] != StartByte {
		return Message{}, ErrMalformedFrame
	}

	// Walk the data region so an escaped STOP is not mistaken for the end
	// and an unescaped STOP before the end is rejected.
	last := len(raw) - 1
	i := dataOffset
	for i < last {
		switch raw[i] {
		case EscapeByte:
			i += 2
			continue
		case StopByte:
			return Message{}, ErrMalformedFrame
		}
		i++
	}
	if i != last || raw[last] != StopByte {
		return Message{}, ErrMalformedFrame
	}

	return Message{raw: raw}, nil
}

// Address returns the raw address byte.
func (m Message) Address() byte {
	return m.raw[addressOffset]
}

// NodeAddress returns the C/MRI unit address encoded as 'A' + node.
// The second result is false when the address byte is outside that range.
func (m Message) NodeAddress() (uint8, bool) {
	a := m.Address()
	if a < nodeAddressBase || a > nodeAddressBase+MaxNodeAddress {
		return 0, false
	}
	return a - nodeAddressBase, true
}

// TypeByte returns the raw message type byte.
func (m Message) TypeByte() byte {
	return m.raw[typeOffset]
}

// Type returns the decoded message type.
func (m Message) Type() MessageType {
	return ParseMessageType(m.TypeByte())
}

// RawData returns the data region with escape bytes still in place.
func (m Message) RawData() []byte {
	return m.raw[dataOffset : len(m.raw)-1]
}

// Raw returns the whole frame as received.
func (m Message) Raw() []byte {
	return m.raw
}

// Data returns the payload with escape sequences collapsed, in a new slice.
func (m Message) Data() []byte {
	return m.AppendData(make([]byte, 0, len(m.RawData())))
}

// AppendData appends the collapsed payload to dst. It does not allocate
// when dst has room for the payload.
func (m Message) AppendData(dst []byte) []byte {
	escaped := false
	for _, b := range m.RawData() {
		if !escaped && b == EscapeByte {
			escaped = true
			continue
		}
		escaped = false
		dst = append(dst, b)
	}
	return dst
}

// DataLen returns the length of the collapsed payload.
func (m Message) DataLen() int {
	n := 0
	escaped := false
	for _, b := range m.RawData() {
		if !escaped && b == EscapeByte {
			escaped = true
			continue
		}
		escaped = false
		n++
	}
	return n
}
