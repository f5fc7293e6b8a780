package streamer

import (
	"sync"
)

// VideoPacketReader yields compressed video packets. NextVideoPacket returns
// nil when no packet is available.
type VideoPacketReader interface {
	NextVideoPacket() *VideoPacket
}

// AudioPacketReader yields compressed audio packets.
type AudioPacketReader interface {
	NextAudioPacket() *AudioPacket
}

// SubtitlePacketReader yields encoded subtitle packets.
type SubtitlePacketReader interface {
	NextSubtitlePacket() *SubtitlePacket
}

// Demuxer splits a container or transport into per-kind packet sequences.
// Each sequence is finite and ends with nil.
type Demuxer interface {
	VideoPacketReader
	AudioPacketReader
	SubtitlePacketReader
}

// Drainer is implemented by demuxers fed asynchronously, where nil from a
// Next method may only mean "not yet". Drained reports whether the sequence
// of kind has really ended.
type Drainer interface {
	Drained(kind MediaKind) bool
}

// drained reports whether r, having just returned nil, has ended.
func drained(r any, kind MediaKind) bool {
	if d, ok := r.(Drainer); ok {
		return d.Drained(kind)
	}
	return true
}

// PacketQueueStats provides queue counters.
type PacketQueueStats struct {
	Video    uint64
	Audio    uint64
	Subtitle uint64
	Dropped  uint64
}

// PacketQueue is an in-memory Demuxer fed by a producer goroutine, such as a
// network reader. It is safe for concurrent use.
type PacketQueue struct {
	mu       sync.Mutex
	limit    int
	video    []*VideoPacket
	audio    []*AudioPacket
	subtitle []*SubtitlePacket
	closed   bool
	stats    PacketQueueStats
}

// NewPacketQueue creates a queue keeping at most limit packets per kind;
// past the limit the oldest packet is dropped. Zero means unbounded.
func NewPacketQueue(limit int) *PacketQueue {
	return &PacketQueue{limit: limit}
}

func enqueue[P any](q []P, p P, limit int, dropped *uint64) []P {
	if limit > 0 && len(q) >= limit {
		var zero P
		q[0] = zero
		q = q[1:]
		*dropped++
	}
	return append(q, p)
}

func dequeue[P any](q []P) (P, []P, bool) {
	var zero P
	if len(q) == 0 {
		return zero, q, false
	}
	p := q[0]
	q[0] = zero
	return p, q[1:], true
}

// PushVideo appends a video packet. Packets pushed after Close are ignored.
func (q *PacketQueue) PushVideo(p *VideoPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.video = enqueue(q.video, p, q.limit, &q.stats.Dropped)
	q.stats.Video++
}

// PushAudio appends an audio packet.
func (q *PacketQueue) PushAudio(p *AudioPacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.audio = enqueue(q.audio, p, q.limit, &q.stats.Dropped)
	q.stats.Audio++
}

// PushSubtitle appends a subtitle packet.
func (q *PacketQueue) PushSubtitle(p *SubtitlePacket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.subtitle = enqueue(q.subtitle, p, q.limit, &q.stats.Dropped)
	q.stats.Subtitle++
}

func (q *PacketQueue) NextVideoPacket() *VideoPacket {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, rest, _ := dequeue(q.video)
	q.video = rest
	return p
}

func (q *PacketQueue) NextAudioPacket() *AudioPacket {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, rest, _ := dequeue(q.audio)
	q.audio = rest
	return p
}

func (q *PacketQueue) NextSubtitlePacket() *SubtitlePacket {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, rest, _ := dequeue(q.subtitle)
	q.subtitle = rest
	return p
}

// Close marks the end of every sequence. Queued packets stay readable.
func (q *PacketQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}

// Drained reports whether the queue is closed and the kind's packets have
// all been read.
func (q *PacketQueue) Drained(kind MediaKind) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		return false
	}
	switch kind {
	case KindVideo:
		return len(q.video) == 0
	case KindAudio:
		return len(q.audio) == 0
	default:
		return len(q.subtitle) == 0
	}
}

// Stats returns the queue counters.
func (q *PacketQueue) Stats() PacketQueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
