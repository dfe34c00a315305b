package player

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Transcoder pulls decoded PCM from a single track, from an optional
// starting offset. ReadSome returns io.EOF once the track is
// exhausted; AsyncWaitForData lets the player avoid busy-polling for the
// first bytes to become available after a seek or track change.
type Transcoder interface {
	ReadSome(buf []byte) (int, error)
	AsyncWaitForData(cb func())
	Close() error
}

// FFmpegTranscoder decodes path to raw PCM (S16LE, 44100Hz, stereo) by
// shelling out to ffmpeg (dhowden/tag is read-only tag extraction; ffmpeg
// here does the actual audio decode, which no available Go library
// provides for arbitrary lossy/lossless formats alike).
type FFmpegTranscoder struct {
	cmd    *exec.Cmd
	stdout *bufio.Reader
	mu     sync.Mutex
}

// NewFFmpegTranscoder starts ffmpegPath decoding path starting at offset.
func NewFFmpegTranscoder(ctx context.Context, ffmpegPath, path string, offset time.Duration) (*FFmpegTranscoder, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if offset > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", offset.Seconds()))
	}
	args = append(args,
		"-i", path,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-",
	)

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg transcoder: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg transcoder: start: %w", err)
	}

	return &FFmpegTranscoder{cmd: cmd, stdout: bufio.NewReaderSize(stdout, 64*1024)}, nil
}

func (t *FFmpegTranscoder) ReadSome(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stdout.Read(buf)
}

// AsyncWaitForData spawns a goroutine that blocks on Peek until ffmpeg has
// produced at least one byte (or hit EOF), then invokes cb. The caller is
// responsible for re-entering the player's strand from within cb.
func (t *FFmpegTranscoder) AsyncWaitForData(cb func()) {
	go func() {
		t.mu.Lock()
		_, _ = t.stdout.Peek(1)
		t.mu.Unlock()
		cb()
	}()
}

func (t *FFmpegTranscoder) Close() error {
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	_ = t.cmd.Wait()
	return nil
}

var _ io.Closer = (*FFmpegTranscoder)(nil)
