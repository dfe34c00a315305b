package player

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeTranscoder serves fixed PCM bytes from memory, so tests exercise the
// player's state machine and timing model without shelling out to ffmpeg.
type fakeTranscoder struct {
	mu     sync.Mutex
	data   []byte
	offset int
	closed bool
}

func newFakeTranscoder(durationMs int) *fakeTranscoder {
	n := durationToBytes(time.Duration(durationMs) * time.Millisecond)
	return &fakeTranscoder{data: make([]byte, n)}
}

func (f *fakeTranscoder) ReadSome(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offset >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(buf, f.data[f.offset:])
	f.offset += n
	return n, nil
}

func (f *fakeTranscoder) AsyncWaitForData(cb func()) {
	go cb()
}

func (f *fakeTranscoder) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func newTestPlayer(t *testing.T, entries ...Entry) (*Player, *NullSink) {
	t.Helper()
	sink := NewNullSink()
	p := New(sink, func(_ context.Context, e Entry, offset time.Duration) (Transcoder, error) {
		remainMs := e.Duration.Milliseconds() - offset.Milliseconds()
		if remainMs < 0 {
			remainMs = 0
		}
		return newFakeTranscoder(int(remainMs)), nil
	})
	if err := p.SetQueue(context.Background(), entries); err != nil {
		t.Fatalf("SetQueue: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, sink
}

func TestPlayTransitionsToPlaying(t *testing.T) {
	p, _ := newTestPlayer(t, Entry{Path: "a.flac", Duration: 5 * time.Second})

	if err := p.Play(context.Background(), 0, 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	st, err := p.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.State != Playing {
		t.Fatalf("expected Playing, got %v", st.State)
	}
}

func TestPauseStopsAdvancingWithoutFlushingSink(t *testing.T) {
	p, _ := newTestPlayer(t, Entry{Path: "a.flac", Duration: 5 * time.Second})

	if err := p.Play(context.Background(), 0, 0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := p.Pause(context.Background()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	st, err := p.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.State != Paused {
		t.Fatalf("expected Paused, got %v", st.State)
	}
}

func TestStopReturnsToStoppedState(t *testing.T) {
	p, _ := newTestPlayer(t, Entry{Path: "a.flac", Duration: 5 * time.Second})

	_ = p.Play(context.Background(), 0, 0)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	st, err := p.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.State != Stopped {
		t.Fatalf("expected Stopped, got %v", st.State)
	}
}

func TestSeekMovesReportedOffsetForward(t *testing.T) {
	p, _ := newTestPlayer(t, Entry{Path: "a.flac", Duration: 30 * time.Second})

	_ = p.Play(context.Background(), 0, 0)
	if err := p.Seek(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	st, err := p.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.CurrentOffset < 10*time.Second {
		t.Fatalf("expected offset at or past the seek target, got %v", st.CurrentOffset)
	}
}

func TestQueueAdvancesPastExhaustedEntry(t *testing.T) {
	p, _ := newTestPlayer(t,
		Entry{Path: "a.flac", Duration: 30 * time.Millisecond},
		Entry{Path: "b.flac", Duration: 5 * time.Second},
	)

	_ = p.Play(context.Background(), 0, 0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := p.GetStatus(context.Background())
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if st.State == Stopped || st.EntryIndex == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue never advanced past the first entry")
}

func TestRingBufferWriteReadRoundTrip(t *testing.T) {
	rb := newRingBuffer(8)
	n := rb.Write([]byte{1, 2, 3, 4})
	if n != 4 {
		t.Fatalf("expected 4 bytes accepted, got %d", n)
	}

	out := make([]byte, 2)
	n = rb.Read(out)
	if n != 2 || !bytes.Equal(out, []byte{1, 2}) {
		t.Fatalf("unexpected read: n=%d out=%v", n, out)
	}

	n = rb.Write([]byte{5, 6, 7, 8, 9, 10})
	if n != 6 {
		t.Fatalf("expected wraparound write to accept 6 bytes, got %d", n)
	}
	if rb.Len() != 8 {
		t.Fatalf("expected full buffer, got len=%d", rb.Len())
	}

	full := make([]byte, 8)
	n = rb.Read(full)
	if n != 8 {
		t.Fatalf("expected to read back all 8 bytes, got %d", n)
	}
	want := []byte{3, 4, 5, 6, 7, 8, 9, 10}
	if !bytes.Equal(full, want) {
		t.Fatalf("unexpected wraparound contents: got %v want %v", full, want)
	}
}

func TestRingBufferResetDiscardsBufferedBytes(t *testing.T) {
	rb := newRingBuffer(4)
	rb.Write([]byte{1, 2, 3})
	rb.Reset()
	if rb.Len() != 0 {
		t.Fatalf("expected empty buffer after Reset, got len=%d", rb.Len())
	}
}
