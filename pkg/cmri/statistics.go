// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame counts and error rates for a byte stream
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalBytes    uint64
	FrameBytes    uint64 // bytes that ended up in a completed frame
	Frames        uint64
	InitFrames    uint64
	SetFrames     uint64
	PollFrames    uint64
	ReceiveFrames uint64
	UnknownTypes  uint64
	Overflows     uint64
	Resyncs       uint64 // partial frames dropped by framing violations

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Process feeds b through d and records the outcome.
func (s *Statistics) Process(d *Decoder, b byte) (RxState, error) {
	wasInFrame := d.InFrame()
	rx, err := d.Process(b)

	s.TotalBytes++
	s.LastUpdateTime = time.Now()

	switch {
	case errors.Is(err, ErrBufferOverflow):
		s.Overflows++
	case rx == Complete:
		if m, merr := d.Message(); merr == nil {
			s.recordFrame(m)
		}
	case wasInFrame && !d.InFrame():
		s.Resyncs++
	}

	return rx, err
}

func (s *Statistics) recordFrame(m Message) {
	s.Frames++
	s.FrameBytes += uint64(len(m.Raw()))
	switch m.Type() {
	case MessageInit:
		s.InitFrames++
	case MessageSet:
		s.SetFrames++
	case MessagePoll:
		s.PollFrames++
	case MessageReceive:
		s.ReceiveFrames++
	default:
		s.UnknownTypes++
	}
}

// DiscardedBytes returns the number of bytes that did not become part of a
// completed frame. Bytes of a frame still being assembled count as discarded
// until it completes.
func (s *Statistics) DiscardedBytes() uint64 {
	if s.FrameBytes > s.TotalBytes {
		return 0
	}
	return s.TotalBytes - s.FrameBytes
}

// Errors returns the total number of reported errors.
func (s *Statistics) Errors() uint64 {
	return s.Overflows
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.Frames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var unknownPercent, discardedPercent float64
	if s.Frames > 0 {
		unknownPercent = float64(s.UnknownTypes) * 100.0 / float64(s.Frames)
	}
	if s.TotalBytes > 0 {
		discardedPercent = float64(s.DiscardedBytes()) * 100.0 / float64(s.TotalBytes)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Bytes:     %8d\n", s.TotalBytes)
	result += fmt.Sprintf("Frames:          %8d\n", s.Frames)
	result += fmt.Sprintf("  Init:             %5d\n", s.InitFrames)
	result += fmt.Sprintf("  Set:              %5d\n", s.SetFrames)
	result += fmt.Sprintf("  Poll:             %5d\n", s.PollFrames)
	result += fmt.Sprintf("  Receive:          %5d\n", s.ReceiveFrames)

	if s.UnknownTypes > 0 {
		result += fmt.Sprintf("Unknown Types:   %8d (%.1f%%)\n", s.UnknownTypes, unknownPercent)
	}
	if s.DiscardedBytes() > 0 {
		result += fmt.Sprintf("Discarded Bytes: %8d (%.1f%%)\n", s.DiscardedBytes(), discardedPercent)
	}
	if s.Resyncs > 0 {
		result += fmt.Sprintf("Resyncs:         %8d\n", s.Resyncs)
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf("Overflows:       %8d\n", s.Overflows)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
