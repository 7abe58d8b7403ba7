// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m Message, ts time.Time) string {
	timestamp := ts.Format("15:04:05.000")
	data := m.Data()

	result := fmt.Sprintf("[%s] %s (0x%02X) %s len=%d\n",
		timestamp, FormatMessageType(m.Type()), m.TypeByte(), FormatAddress(m), len(data))

	switch m.Type() {
	case MessagePoll:
		result += "  (no payload)\n"
	case MessageInit:
		result += formatInit(data)
	case MessageSet:
		result += "  Outputs: " + FormatHex(data, 11) + "\n"
	case MessageReceive:
		result += "  Inputs:  " + FormatHex(data, 11) + "\n"
	default:
		if len(data) > 0 {
			result += "  Payload: " + FormatHex(data, 11) + "\n"
		}
	}

	return result
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(t MessageType) string {
	switch t {
	case MessageInit:
		return "INIT"
	case MessageSet:
		return "SET"
	case MessagePoll:
		return "POLL"
	case MessageReceive:
		return "RECEIVE"
	default:
		return "UNKNOWN"
	}
}

// FormatAddress renders the address byte, with the node number when the
// byte is a valid unit address.
func FormatAddress(m Message) string {
	return FormatAddressByte(m.Address())
}

// FormatAddressByte is FormatAddress for a bare address byte
func FormatAddressByte(a byte) string {
	if a >= nodeAddressBase && a <= nodeAddressBase+MaxNodeAddress {
		return fmt.Sprintf("node=%d (0x%02X)", a-nodeAddressBase, a)
	}
	return fmt.Sprintf("addr=0x%02X", a)
}

// FormatHex renders bytes as a hex dump with 16 bytes per line, continuation
// lines indented by indent spaces.
func FormatHex(data []byte, indent int) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			if i%16 == 0 {
				sb.WriteString("\n")
				sb.WriteString(strings.Repeat(" ", indent))
			} else {
				sb.WriteString(" ")
			}
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// formatInit decodes an INIT payload: node definition parameter (NDP),
// transmit delay in 10us units, then node-specific configuration bytes.
func formatInit(data []byte) string {
	if len(data) < 3 {
		return "  Payload: " + FormatHex(data, 11) + "\n"
	}
	result := fmt.Sprintf("  NDP: %s, Delay: %d us\n", formatNodeType(data[0]), (uint32(data[1])<<8|uint32(data[2]))*10)
	if len(data) > 3 {
		result += "  Config:  " + FormatHex(data[3:], 11) + "\n"
	}
	return result
}

func formatNodeType(ndp byte) string {
	switch ndp {
	case 'M':
		return "SMINI"
	case 'N':
		return "USIC (24-bit cards)"
	case 'X':
		return "SUSIC (32-bit cards)"
	default:
		return fmt.Sprintf("UNKNOWN (%q)", rune(ndp))
	}
}
