// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import "errors"

var (
	// ErrBufferOverflow is returned by Decoder.Process when accepting a byte
	// would exceed BufferLen. The byte is dropped and the decoder returns
	// to idle.
	ErrBufferOverflow = errors.New("cmri: buffer overflow")

	// ErrNoMessage is returned by Decoder.Message when the last processed
	// byte did not complete a frame.
	ErrNoMessage = errors.New("cmri: no completed message")

	// ErrMalformedFrame is returned by ParseMessage for bytes that are not
	// a complete raw frame.
	ErrMalformedFrame = errors.New("cmri: malformed frame")

	// ErrPayloadTooLarge is returned by the encoder when the escaped frame
	// would not fit in a receiver's buffer.
	ErrPayloadTooLarge = errors.New("cmri: payload too large")
)
