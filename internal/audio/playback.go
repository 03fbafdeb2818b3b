package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned when scheduling on a closed playback queue.
var ErrClosed = errors.New("audio: playback closed")

// Stopper cancels one scheduled segment.
type Stopper interface {
	Stop()
}

// Player renders scheduled sample buffers against its own clock.
type Player interface {
	// CurrentTime is the playback clock: how much audio has been rendered.
	CurrentTime() time.Duration
	// Start schedules samples to begin at the given clock time. done is
	// called once the last sample has been rendered.
	Start(samples []float32, at time.Duration, done func()) (Stopper, error)
}

// Segment describes where a buffer landed on the playback clock.
type Segment struct {
	ID    uint64
	Start time.Duration
	End   time.Duration
}

// Playback sequences decoded chunks back to back on a Player. Each chunk
// starts at max(now, end of previous chunk) so arrivals never overlap.
type Playback struct {
	player Player
	rate   int

	mu      sync.Mutex
	next    time.Duration
	seq     uint64
	playing map[uint64]Stopper
	closed  bool
}

// NewPlayback builds a queue for samples at rate on p.
func NewPlayback(p Player, rate int) *Playback {
	if rate <= 0 {
		rate = PlaybackRate
	}
	return &Playback{player: p, rate: rate, playing: make(map[uint64]Stopper)}
}

// EnqueuePCM decodes little-endian PCM16 and schedules it.
func (q *Playback) EnqueuePCM(b []byte) (Segment, error) {
	return q.Enqueue(DecodePCM16(b))
}

// Enqueue schedules samples immediately after everything already queued.
func (q *Playback) Enqueue(samples []float32) (Segment, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Segment{}, ErrClosed
	}
	start := q.player.CurrentTime()
	if q.next > start {
		start = q.next
	}
	q.seq++
	seg := Segment{ID: q.seq, Start: start, End: start + Duration(len(samples), q.rate)}
	id := seg.ID
	stop, err := q.player.Start(samples, seg.Start, func() { q.finished(id) })
	if err != nil {
		return Segment{}, err
	}
	q.playing[id] = stop
	q.next = seg.End
	return seg, nil
}

func (q *Playback) finished(id uint64) {
	q.mu.Lock()
	delete(q.playing, id)
	q.mu.Unlock()
}

// Interrupt stops and discards every scheduled segment and moves the cursor
// to the current clock time.
func (q *Playback) Interrupt() {
	q.mu.Lock()
	stops := make([]Stopper, 0, len(q.playing))
	for id, s := range q.playing {
		stops = append(stops, s)
		delete(q.playing, id)
	}
	q.next = q.player.CurrentTime()
	q.mu.Unlock()

	for _, s := range stops {
		s.Stop()
	}
}

// Pending is the number of segments scheduled or playing.
func (q *Playback) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.playing)
}

// NextStart is where the next chunk would be scheduled.
func (q *Playback) NextStart() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.player.CurrentTime()
	if q.next > now {
		return q.next
	}
	return now
}

// Close interrupts playback and rejects further chunks. It is idempotent.
func (q *Playback) Close() {
	q.Interrupt()
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
