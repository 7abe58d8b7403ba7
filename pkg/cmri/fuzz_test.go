// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomData returns a payload biased towards reserved byte values
func randomData(rng *rand.Rand, maxLen int) []byte {
	reserved := []byte{PreambleByte, StartByte, StopByte, EscapeByte}
	data := make([]byte, rng.Intn(maxLen+1))
	for i := range data {
		if rng.Intn(4) == 0 {
			data[i] = reserved[rng.Intn(len(reserved))]
		} else {
			data[i] = byte(rng.Intn(256))
		}
	}
	return data
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

// TestFuzzDecoder_RandomBytes feeds random bytes and checks the buffer
// invariants hold after every byte
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()
		data := make([]byte, rng.Intn(1024)+1)
		rng.Read(data)

		for _, b := range data {
			rx, err := d.Process(b)
			if err != nil && !errors.Is(err, ErrBufferOverflow) {
				t.Fatalf("round %d: unexpected error %v", i, err)
			}
			if d.Position() < 0 || d.Position() > BufferLen {
				t.Fatalf("round %d: position %d out of bounds", i, d.Position())
			}
			if rx == Complete {
				m, err := d.Message()
				if err != nil {
					t.Fatalf("round %d: Complete without message: %v", i, err)
				}
				if _, err := ParseMessage(m.Raw()); err != nil {
					t.Fatalf("round %d: decoder produced malformed frame % X", i, m.Raw())
				}
			}
		}
	}
}

// TestFuzzDecoder_EncodedFrames encodes random payloads, surrounds them with
// noise and checks each one decodes back
func TestFuzzDecoder_EncodedFrames(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	types := []MessageType{MessageInit, MessageSet, MessagePoll, MessageReceive}

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		addr := byte(rng.Intn(256))
		msgType := types[rng.Intn(len(types))]
		data := randomData(rng, (BufferLen-minFrameLen)/2)

		wire, err := EncodeFrame(addr, msgType, data)
		if err != nil {
			t.Fatalf("round %d: EncodeFrame error: %v", i, err)
		}

		// Noise without a preamble can never start a frame
		noise := make([]byte, rng.Intn(16))
		for j := range noise {
			noise[j] = byte(rng.Intn(PreambleByte))
		}

		stream := append(noise, wire...)
		var got []byte
		var gotType MessageType
		var gotAddr byte
		completes := 0
		for _, b := range stream {
			rx, err := d.Process(b)
			if err != nil {
				t.Fatalf("round %d: Process error: %v", i, err)
			}
			if rx == Complete {
				completes++
				m, _ := d.Message()
				got = m.Data()
				gotType = m.Type()
				gotAddr = m.Address()
			}
		}

		if completes != 1 {
			t.Fatalf("round %d: %d completions for % X", i, completes, stream)
		}
		if gotAddr != addr || gotType != msgType {
			t.Errorf("round %d: addr/type = 0x%02X/%s, want 0x%02X/%s", i, gotAddr, gotType, addr, msgType)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("round %d: data = % X, want % X", i, got, data)
		}
	}
}

// TestFuzzDecoder_Deterministic replays random streams on fresh decoders
func TestFuzzDecoder_Deterministic(t *testing.T) {
	rounds := getFuzzRounds() / 10
	if rounds == 0 {
		rounds = 1
	}
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		var stream []byte
		for j := 0; j < 8; j++ {
			if rng.Intn(2) == 0 {
				wire, _ := EncodeFrame(byte(rng.Intn(256)), MessageSet, randomData(rng, 64))
				stream = append(stream, wire...)
			} else {
				stream = append(stream, randomData(rng, 64)...)
			}
		}

		first, second := replay(stream), replay(stream)
		for j := range first {
			if first[j] != second[j] {
				t.Fatalf("round %d: result %d differs: %v vs %v", i, j, first[j], second[j])
			}
		}
	}
}
