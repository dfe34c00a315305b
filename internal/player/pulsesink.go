package player

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// PulseSink drives real playback by shelling out to pacat, PulseAudio's
// command-line raw-PCM player. No pure-Go PulseAudio binding is available
// without CGO, and pacat is the genuine external tool PulseAudio ships for
// exactly this, so this is the closest faithful substitute without
// fabricating a library dependency.
type PulseSink struct {
	binPath string

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	startedAt  time.Time
	writeBytes int64
	onCanWrite func(n int)
}

// NewPulseSink returns a PulseSink that invokes binPath (normally "pacat"
// resolved from $PATH) to play audio.
func NewPulseSink(binPath string) *PulseSink {
	if binPath == "" {
		binPath = "pacat"
	}
	return &PulseSink{binPath: binPath}
}

func (s *PulseSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := exec.CommandContext(ctx, s.binPath,
		"--playback",
		"--format=s16le",
		fmt.Sprintf("--rate=%d", sampleRate),
		fmt.Sprintf("--channels=%d", channels),
		"--raw",
		"--client-name=lms",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("pulsesink: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("pulsesink: start pacat: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.startedAt = time.Now()
	s.writeBytes = 0
	return nil
}

func (s *PulseSink) Stop() error {
	s.mu.Lock()
	cmd, stdin := s.cmd, s.stdin
	s.cmd, s.stdin = nil, nil
	s.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cmd == nil {
		return nil
	}
	return cmd.Wait()
}

// Flush restarts the pacat subprocess. pacat exposes no seek or discard
// primitive over its stdin pipe, so a seek's stale-audio discard is
// implemented as a full backend restart rather than a true in-place flush.
func (s *PulseSink) Flush() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start(context.Background())
}

func (s *PulseSink) SetOnCanWriteCallback(cb func(n int)) {
	s.mu.Lock()
	s.onCanWrite = cb
	s.mu.Unlock()
	if cb != nil {
		cb(s.GetCanWriteBytes())
	}
}

// GetCanWriteBytes has no true hardware-buffer query available over a pipe
// to pacat, so it reports a fixed chunk size; the player feeds the sink in
// these increments regardless of real backend backpressure, relying on the
// pipe's own blocking Write to apply flow control.
func (s *PulseSink) GetCanWriteBytes() int {
	return 16 * 1024
}

func (s *PulseSink) Write(buf []byte, at *time.Duration) (int, error) {
	s.mu.Lock()
	stdin := s.stdin
	s.mu.Unlock()
	if stdin == nil {
		return 0, fmt.Errorf("pulsesink: not started")
	}

	n := len(buf) - len(buf)%frameBytes
	written, err := stdin.Write(buf[:n])
	if err != nil {
		return written, err
	}

	s.mu.Lock()
	if at != nil {
		s.writeBytes = durationToBytes(*at) + int64(written)
	} else {
		s.writeBytes += int64(written)
	}
	s.mu.Unlock()
	return written, nil
}

func (s *PulseSink) GetCurrentWriteTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytesToDuration(s.writeBytes)
}

// GetCurrentReadTime approximates the hardware read pointer as wall-clock
// elapsed time since Start, capped at the write pointer; pacat's verbose
// stderr latency stats could give a truer figure but aren't worth parsing
// for this approximation.
func (s *PulseSink) GetCurrentReadTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeTime := bytesToDuration(s.writeBytes)
	elapsed := time.Since(s.startedAt)
	if elapsed < writeTime {
		return elapsed
	}
	return writeTime
}
