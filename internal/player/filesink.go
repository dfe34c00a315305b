package player

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileSink writes raw PCM to a file on disk instead of a real audio device,
// useful for inspecting what the transcoder produced (pipe the result
// through ffplay or sox to listen back) without a PulseAudio server
// available.
type FileSink struct {
	path string

	mu         sync.Mutex
	f          *os.File
	startedAt  time.Time
	writeBytes int64
	onCanWrite func(n int)
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("filesink: create %s: %w", s.path, err)
	}
	s.f = f
	s.startedAt = time.Now()
	s.writeBytes = 0
	return nil
}

func (s *FileSink) Stop() error {
	s.mu.Lock()
	f := s.f
	s.f = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

// Flush is a no-op: a plain file has no internal buffer to discard, and
// bytes already written stay in the file.
func (s *FileSink) Flush() error {
	return nil
}

func (s *FileSink) SetOnCanWriteCallback(cb func(n int)) {
	s.mu.Lock()
	s.onCanWrite = cb
	s.mu.Unlock()
	if cb != nil {
		cb(s.GetCanWriteBytes())
	}
}

func (s *FileSink) GetCanWriteBytes() int {
	return 64 * 1024
}

func (s *FileSink) Write(buf []byte, at *time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, fmt.Errorf("filesink: not started")
	}

	n := len(buf) - len(buf)%frameBytes
	offset := s.writeBytes
	if at != nil {
		offset = durationToBytes(*at)
	}
	written, err := s.f.WriteAt(buf[:n], offset)
	if err != nil {
		return written, err
	}
	s.writeBytes = offset + int64(written)
	return written, nil
}

func (s *FileSink) GetCurrentWriteTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytesToDuration(s.writeBytes)
}

// GetCurrentReadTime has no real output device to lag behind, so a file
// sink reports the write pointer directly.
func (s *FileSink) GetCurrentReadTime() time.Duration {
	return s.GetCurrentWriteTime()
}
