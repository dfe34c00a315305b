package player

import (
	"context"
	"sync"
	"time"
)

// NullSink discards written audio, used for headless deployments and tests
// where the Sink contract must be fakeable without real audio hardware. It
// still advances a realistic wall-clock read
// pointer so PlayerReadTimeMonotonic-style assertions exercise the same
// timing code a real backend would.
type NullSink struct {
	mu         sync.Mutex
	started    bool
	startedAt  time.Time
	writeBytes int64
	onCanWrite func(n int)

	// canWriteBytes caps how much a single Write call accepts, modeling a
	// backend with a fixed internal buffer rather than unlimited capacity.
	canWriteBytes int
}

// NewNullSink returns a NullSink with a 64KiB simulated internal buffer.
func NewNullSink() *NullSink {
	return &NullSink{canWriteBytes: 64 * 1024}
}

func (s *NullSink) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.startedAt = time.Now()
	s.writeBytes = 0
	return nil
}

func (s *NullSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *NullSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeBytes = durationToBytes(s.elapsedLocked())
	return nil
}

func (s *NullSink) SetOnCanWriteCallback(cb func(n int)) {
	s.mu.Lock()
	s.onCanWrite = cb
	s.mu.Unlock()
	if cb != nil {
		cb(s.GetCanWriteBytes())
	}
}

func (s *NullSink) GetCanWriteBytes() int {
	return s.canWriteBytes
}

func (s *NullSink) Write(buf []byte, at *time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(buf)
	if n > s.canWriteBytes {
		n = s.canWriteBytes
	}
	n -= n % frameBytes

	if at != nil {
		s.writeBytes = durationToBytes(*at) + int64(n)
	} else {
		s.writeBytes += int64(n)
	}
	return n, nil
}

func (s *NullSink) GetCurrentWriteTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytesToDuration(s.writeBytes)
}

func (s *NullSink) GetCurrentReadTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeTime := bytesToDuration(s.writeBytes)
	elapsed := s.elapsedLocked()
	if elapsed < writeTime {
		return elapsed
	}
	return writeTime
}

func (s *NullSink) elapsedLocked() time.Duration {
	if !s.started {
		return 0
	}
	return time.Since(s.startedAt)
}
