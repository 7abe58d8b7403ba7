// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cmri decodes the C/MRI (Computer/Model Railroad Interface) serial
// protocol used between a host and remote I/O nodes on a model railroad.
//
// A frame on the wire is
//
//	PREAMBLE PREAMBLE START ADDR TYPE [DATA...] STOP
//
// and any reserved byte inside DATA is preceded by ESCAPE. The Decoder
// consumes one byte at a time into a fixed buffer and never allocates.
package cmri

// Protocol framing bytes
const (
	PreambleByte = 0xFF
	StartByte    = 0x02
	StopByte     = 0x03
	EscapeByte   = 0x10
)

// BufferLen is the longest raw frame accepted, matching ArduinoCMRI's
// receive buffer: 2 preamble + start + address + type + escaped data + stop.
const BufferLen = 258

// Field offsets inside a raw frame
const (
	addressOffset = 3
	typeOffset    = 4
	dataOffset    = 5

	// PREAMBLE PREAMBLE START ADDR TYPE STOP
	minFrameLen = 6
)

// Unit addresses are transmitted as 'A' + node number.
const (
	nodeAddressBase = 'A'
	MaxNodeAddress  = 127
)

// MessageType identifies the purpose of a frame.
type MessageType uint8

// Message types
const (
	MessageUnknown MessageType = iota
	MessageInit                // 'I' host initialises a node
	MessageSet                 // 'T' host transmits output data to a node
	MessagePoll                // 'P' host polls a node for its inputs
	MessageReceive             // 'R' node replies to a poll with input data
)

// Type bytes as they appear on the wire
const (
	typeByteInit    = 'I'
	typeByteSet     = 'T'
	typeBytePoll    = 'P'
	typeByteReceive = 'R'
)

// ParseMessageType maps a type byte onto a MessageType.
// Unrecognised bytes yield MessageUnknown.
func ParseMessageType(b byte) MessageType {
	switch b {
	case typeByteInit:
		return MessageInit
	case typeByteSet:
		return MessageSet
	case typeBytePoll:
		return MessagePoll
	case typeByteReceive:
		return MessageReceive
	default:
		return MessageUnknown
	}
}

// Byte returns the wire byte for t, or 0 for MessageUnknown.
func (t MessageType) Byte() byte {
	switch t {
	case MessageInit:
		return typeByteInit
	case MessageSet:
		return typeByteSet
	case MessagePoll:
		return typeBytePoll
	case MessageReceive:
		return typeByteReceive
	default:
		return 0
	}
}

// Known reports whether t is a recognised message type.
func (t MessageType) Known() bool {
	return t != MessageUnknown && t <= MessageReceive
}

func (t MessageType) String() string {
	return FormatMessageType(t)
}
