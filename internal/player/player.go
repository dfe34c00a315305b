package player

import (
	"context"
	"fmt"
	"time"

	"lms/internal/dbtypes"
)

// State is the player's playback state.
type State string

const (
	Stopped State = "stopped"
	Playing State = "playing"
	Paused  State = "paused"
)

// Entry is one queued track, enough of store.Track to transcode and report
// progress for without the player package depending on *store.Tx.
type Entry struct {
	TrackID  dbtypes.TrackID
	Path     string
	Duration time.Duration
}

// anchor maps a point on the sink's read-time axis to a (entry, offset)
// position, letting getStatus translate "bytes read so far" back into
// "which queued track, and how far into it" across any number of prior
// seeks and track changes.
type anchor struct {
	readTimeAtAnchor time.Duration
	entryIndex       int
	trackOffset      time.Duration
}

// Status is the snapshot returned by GetStatus.
type Status struct {
	State         State
	EntryIndex    int
	CurrentOffset time.Duration
}

// TranscoderFactory opens a Transcoder for an entry starting at offset;
// Player calls it fresh on every Play/Seek/track-advance.
type TranscoderFactory func(ctx context.Context, e Entry, offset time.Duration) (Transcoder, error)

// Player drives one Sink through the queue/transcode/seek state machine via
// Status/Play/Pause/Stop/onCanWrite methods. Every exported method submits
// its work to the internal strand so sink callbacks (which arrive on the
// sink's own goroutine) and caller-driven commands never race each other.
type Player struct {
	sink      Sink
	newTrans  TranscoderFactory
	strand    *Executor
	ring      *ringBuffer
	chunkSize int

	state      State
	queue      []Entry
	entryIndex int
	trans      Transcoder
	feeding    bool
	anchors    []anchor
	playCtx    context.Context
	playCancel context.CancelFunc
}

// New builds a Player around sink and newTrans, with a 256KiB ring buffer
// between the transcoder and the sink.
func New(sink Sink, newTrans TranscoderFactory) *Player {
	p := &Player{
		sink:      sink,
		newTrans:  newTrans,
		strand:    NewExecutor(),
		ring:      newRingBuffer(256 * 1024),
		chunkSize: 32 * 1024,
		state:     Stopped,
	}
	sink.SetOnCanWriteCallback(func(n int) {
		p.strand.Go(func() { p.onCanWrite(n) })
	})
	return p
}

// Close tears down the strand and stops the sink. The Player is unusable
// afterwards.
func (p *Player) Close() error {
	_ = p.strand.Call(context.Background(), func() error {
		p.stopLocked()
		return nil
	})
	p.strand.Close()
	return nil
}

// SetQueue replaces the play queue. Has no effect on the currently playing
// entry; takes effect on the next track advance.
func (p *Player) SetQueue(ctx context.Context, entries []Entry) error {
	return p.strand.Call(ctx, func() error {
		p.queue = entries
		return nil
	})
}

// Play starts playback at entryIndex, seeking to offset. A negative
// entryIndex resumes the current entry when Paused and otherwise starts
// at entry 0.
func (p *Player) Play(ctx context.Context, entryIndex int, offset time.Duration) error {
	return p.strand.Call(ctx, func() error {
		return p.playLocked(entryIndex, offset)
	})
}

func (p *Player) playLocked(entryIndex int, offset time.Duration) error {
	if entryIndex < 0 {
		if p.state == Paused {
			p.state = Playing
			return nil
		}
		entryIndex = 0
	}
	if entryIndex >= len(p.queue) {
		return fmt.Errorf("player: entry index %d out of range (queue length %d)", entryIndex, len(p.queue))
	}

	immediate := p.state == Playing
	if immediate {
		if err := p.sink.Flush(); err != nil {
			return err
		}
		p.ring.Reset()
		if p.trans != nil {
			p.trans.Close()
			p.trans = nil
		}
	}
	if p.state == Stopped {
		playCtx, cancel := context.WithCancel(context.Background())
		p.playCtx, p.playCancel = playCtx, cancel
		if err := p.sink.Start(playCtx); err != nil {
			cancel()
			return err
		}
	}

	entry := p.queue[entryIndex]
	trans, err := p.newTrans(p.playCtx, entry, offset)
	if err != nil {
		return err
	}

	p.trans = trans
	p.entryIndex = entryIndex
	p.anchors = append(p.anchors, anchor{
		readTimeAtAnchor: p.sink.GetCurrentReadTime(),
		entryIndex:       entryIndex,
		trackOffset:      offset,
	})
	p.state = Playing
	p.feeding = false
	p.feedMore()
	return nil
}

// Pause stops pulling from the transcoder but leaves the sink running, so
// already-buffered audio keeps draining until it's exhausted (matching the
// original implementation's onPause, which does not flush).
func (p *Player) Pause(ctx context.Context) error {
	return p.strand.Call(ctx, func() error {
		if p.state != Playing {
			return nil
		}
		p.state = Paused
		return nil
	})
}

// Stop tears down the transcoder and sink and returns to Stopped.
func (p *Player) Stop(ctx context.Context) error {
	return p.strand.Call(ctx, func() error {
		p.stopLocked()
		return nil
	})
}

func (p *Player) stopLocked() {
	if p.trans != nil {
		p.trans.Close()
		p.trans = nil
	}
	if p.playCancel != nil {
		p.playCancel()
		p.playCancel = nil
	}
	if p.state != Stopped {
		_ = p.sink.Stop()
	}
	p.ring.Reset()
	p.anchors = nil
	p.feeding = false
	p.state = Stopped
}

// Seek jumps playback of the current entry to offset.
func (p *Player) Seek(ctx context.Context, offset time.Duration) error {
	return p.strand.Call(ctx, func() error {
		if p.state == Stopped {
			return fmt.Errorf("player: cannot seek while stopped")
		}
		return p.playLocked(p.entryIndex, offset)
	})
}

// GetStatus reports the current playback state and, while playing or
// paused, which entry and offset the sink is currently emitting.
func (p *Player) GetStatus(ctx context.Context) (Status, error) {
	var st Status
	err := p.strand.Call(ctx, func() error {
		st.State = p.state
		if p.state == Stopped {
			return nil
		}
		st.EntryIndex, st.CurrentOffset = p.currentPositionLocked()
		return nil
	})
	return st, err
}

// currentPositionLocked maps the sink's current read time back to
// (entryIndex, trackOffset) using the most recent anchor at or before that
// read time:
// currentPlayTime = entry.trackOffset + (readTime - entry.audioOutputStartTime).
func (p *Player) currentPositionLocked() (int, time.Duration) {
	readTime := p.sink.GetCurrentReadTime()
	a := p.anchors[len(p.anchors)-1]
	for i := len(p.anchors) - 1; i >= 0; i-- {
		if p.anchors[i].readTimeAtAnchor <= readTime {
			a = p.anchors[i]
			break
		}
	}
	return a.entryIndex, a.trackOffset + (readTime - a.readTimeAtAnchor)
}

// feedMore arms the transcoder's async data-ready notification if the ring
// buffer has room and a feed isn't already in flight. Only one
// AsyncWaitForData registration is ever outstanding per transcoder, so
// onDataReady's ReadSome call always has data immediately available and
// never blocks the strand.
func (p *Player) feedMore() {
	if p.state != Playing || p.trans == nil || p.feeding {
		return
	}
	if p.ring.Len() >= p.ring.Cap() {
		return
	}
	p.feeding = true
	trans := p.trans
	trans.AsyncWaitForData(func() {
		p.strand.Go(func() { p.onDataReady(trans) })
	})
}

// onDataReady runs once the transcoder passed to feedMore has signalled
// data (or EOF) available. trans is captured at registration time so a
// stale callback from a transcoder that Play/Seek/Stop has since replaced
// is ignored instead of corrupting the new transcoder's state.
func (p *Player) onDataReady(trans Transcoder) {
	if p.trans != trans {
		return
	}
	p.feeding = false

	room := p.ring.Cap() - p.ring.Len()
	if room > p.chunkSize {
		room = p.chunkSize
	}
	if room > 0 {
		chunk := make([]byte, room)
		n, err := trans.ReadSome(chunk)
		if n > 0 {
			p.ring.Write(chunk[:n])
		}
		p.drainToSink()
		if err != nil {
			if p.ring.Len() == 0 {
				p.advance()
			}
			return
		}
	}
	p.feedMore()
}

// onCanWrite is the sink's can-write callback, re-entered on the strand: it
// drains any buffered bytes into the newly freed sink capacity and resumes
// pulling from the transcoder if feedMore had stopped because the ring
// buffer was full.
func (p *Player) onCanWrite(_ int) {
	if p.state != Playing {
		return
	}
	p.drainToSink()
	p.feedMore()
}

func (p *Player) drainToSink() {
	can := p.sink.GetCanWriteBytes()
	can -= can % frameBytes
	for can > 0 && p.ring.Len() > 0 {
		chunkLen := can
		if chunkLen > p.chunkSize {
			chunkLen = p.chunkSize
		}
		buf := make([]byte, chunkLen)
		n := p.ring.Read(buf)
		if n == 0 {
			break
		}
		written, err := p.sink.Write(buf[:n], nil)
		if err != nil || written == 0 {
			break
		}
		can -= written
	}
}

// advance moves to the next queue entry, or stops if the queue is
// exhausted, mirroring onCanWrite's track-boundary handling in the
// original implementation.
func (p *Player) advance() {
	next := p.entryIndex + 1
	if next >= len(p.queue) {
		p.stopLocked()
		return
	}
	if err := p.playLocked(next, 0); err != nil {
		p.stopLocked()
	}
}
