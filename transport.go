package streamer

import (
	"context"
	"sync"
)

// TransportConfig configures the frame transports created by a build.
type TransportConfig struct {
	// Capacity bounds each reader queue. A push into a full queue blocks
	// while the lifecycle is Ready or Play and drops the oldest queued frame
	// while it is paused.
	Capacity int
}

// DefaultTransportConfig returns the default transport configuration.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{Capacity: 8}
}

// TransportStats provides transport counters.
type TransportStats struct {
	Pushed  uint64
	Pulled  uint64
	Dropped uint64
}

// Transport is the bounded FIFO carrying one element's output frames of one
// kind. Every downstream link reads from its own queue, so each pushed frame
// is delivered to all linked sinks in push order. An element without
// downstream links gets a single tap queue for the application.
//
// Pulls never block. Pushes block on a full queue until a reader makes room,
// the lifecycle leaves Ready/Play, or the transport is closed. A push into a
// full queue while paused drops that queue's oldest frame instead.
type Transport[F any] struct {
	kind     MediaKind
	lc       *Lifecycle
	capacity int

	mu     sync.Mutex
	cond   *sync.Cond
	queues [][]F
	ended  bool
	stats  TransportStats
}

func newTransport[F any](kind MediaKind, lc *Lifecycle, cfg TransportConfig, readers int) *Transport[F] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultTransportConfig().Capacity
	}
	if readers < 1 {
		readers = 1
	}
	t := &Transport[F]{
		kind:     kind,
		lc:       lc,
		capacity: cfg.Capacity,
		queues:   make([][]F, readers),
	}
	t.cond = sync.NewCond(&t.mu)
	lc.onChange(func(State) {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	return t
}

// Kind returns the media kind carried by the transport.
func (t *Transport[F]) Kind() MediaKind { return t.kind }

// Readers returns the number of reader queues.
func (t *Transport[F]) Readers() int { return len(t.queues) }

func (t *Transport[F]) push(ctx context.Context, f F) error {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		if t.ended {
			return ErrTransportClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		state := t.lc.State()
		if state == StateNull {
			return ErrTransportClosed
		}
		if !t.fullLocked() {
			break
		}
		if state == StatePause {
			t.dropOldestLocked()
			break
		}
		t.cond.Wait()
	}

	for i := range t.queues {
		t.queues[i] = append(t.queues[i], f)
	}
	t.stats.Pushed++
	t.cond.Broadcast()
	return nil
}

// offer enqueues f without blocking. A full queue loses its oldest frame,
// whatever the lifecycle state.
func (t *Transport[F]) offer(f F) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ended || t.lc.State() == StateNull {
		return ErrTransportClosed
	}
	t.dropOldestLocked()
	for i := range t.queues {
		t.queues[i] = append(t.queues[i], f)
	}
	t.stats.Pushed++
	t.cond.Broadcast()
	return nil
}

func (t *Transport[F]) fullLocked() bool {
	for _, q := range t.queues {
		if len(q) >= t.capacity {
			return true
		}
	}
	return false
}

func (t *Transport[F]) dropOldestLocked() {
	var zero F
	for i, q := range t.queues {
		if len(q) >= t.capacity {
			q[0] = zero
			t.queues[i] = q[1:]
			t.stats.Dropped++
		}
	}
}

func (t *Transport[F]) pull(reader int) (F, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero F
	if reader < 0 || reader >= len(t.queues) {
		return zero, false
	}
	q := t.queues[reader]
	if len(q) == 0 {
		return zero, false
	}
	f := q[0]
	q[0] = zero
	t.queues[reader] = q[1:]
	t.stats.Pulled++
	t.cond.Broadcast()
	return f, true
}

func (t *Transport[F]) pending(reader int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if reader < 0 || reader >= len(t.queues) {
		return 0
	}
	return len(t.queues[reader])
}

func (t *Transport[F]) endOfStream() {
	t.mu.Lock()
	t.ended = true
	t.cond.Broadcast()
	t.mu.Unlock()
}

func (t *Transport[F]) closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

func (t *Transport[F]) exhausted(reader int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ended {
		return false
	}
	return reader < 0 || reader >= len(t.queues) || len(t.queues[reader]) == 0
}

// Stats returns a snapshot of the transport counters.
func (t *Transport[F]) Stats() TransportStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Handle is the per-kind pipeline handle elements receive in OnPush and
// OnPull calls. All handles of one build share the same Lifecycle; each is
// bound to one transport and, for reading, to one reader queue of it.
type Handle[F any] struct {
	lc        *Lifecycle
	transport *Transport[F]
	reader    int
}

// VideoPipeline is the video branch handle.
type VideoPipeline = Handle[*VideoFrame]

// AudioPipeline is the audio branch handle.
type AudioPipeline = Handle[*AudioFrame]

// SubtitlePipeline is the subtitle branch handle.
type SubtitlePipeline = Handle[*SubtitleFrame]

// NewHandle creates a handle over a fresh lifecycle in StateReady and a
// transport with a single reader. It is meant for driving an element outside
// of a built pipeline, e.g. in tests.
func NewHandle[F any](kind MediaKind, cfg TransportConfig) *Handle[F] {
	lc := newLifecycle()
	lc.ready()
	return &Handle[F]{lc: lc, transport: newTransport[F](kind, lc, cfg, 1)}
}

// NewVideoPipeline returns a standalone video handle. See NewHandle.
func NewVideoPipeline(cfg TransportConfig) *VideoPipeline {
	return NewHandle[*VideoFrame](KindVideo, cfg)
}

// NewAudioPipeline returns a standalone audio handle. See NewHandle.
func NewAudioPipeline(cfg TransportConfig) *AudioPipeline {
	return NewHandle[*AudioFrame](KindAudio, cfg)
}

// NewSubtitlePipeline returns a standalone subtitle handle. See NewHandle.
func NewSubtitlePipeline(cfg TransportConfig) *SubtitlePipeline {
	return NewHandle[*SubtitleFrame](KindSubtitle, cfg)
}

// detachedHandle is handed to root sources: it has no upstream transport,
// so pulls report nothing and pushes fail.
func detachedHandle[F any](lc *Lifecycle) *Handle[F] {
	return &Handle[F]{lc: lc}
}

// Play moves the shared lifecycle to StatePlay.
func (h *Handle[F]) Play() { h.lc.Play() }

// Pause moves the shared lifecycle to StatePause.
func (h *Handle[F]) Pause() { h.lc.Pause() }

// IsPlaying reports whether the shared lifecycle is in StatePlay.
func (h *Handle[F]) IsPlaying() bool { return h.lc.IsPlaying() }

// IsPaused reports whether the shared lifecycle is in StatePause.
func (h *Handle[F]) IsPaused() bool { return h.lc.IsPaused() }

// State returns the shared lifecycle state.
func (h *Handle[F]) State() State { return h.lc.State() }

// Lifecycle returns the lifecycle shared with every other handle of the build.
func (h *Handle[F]) Lifecycle() *Lifecycle { return h.lc }

// PushFrame enqueues f for every downstream reader. See Transport for the
// blocking rules.
func (h *Handle[F]) PushFrame(f F) error {
	return h.PushFrameContext(context.Background(), f)
}

// PushFrameContext is PushFrame that also gives up when ctx is done.
func (h *Handle[F]) PushFrameContext(ctx context.Context, f F) error {
	if h.transport == nil {
		return ErrTransportClosed
	}
	return h.transport.push(ctx, f)
}

// PullFrame dequeues the next frame of this handle's reader queue. It never
// blocks: ok is false when the queue is empty. Use Exhausted to tell "not
// yet" from end of stream.
func (h *Handle[F]) PullFrame() (f F, ok bool) {
	if h.transport == nil {
		return f, false
	}
	return h.transport.pull(h.reader)
}

// Pending returns the number of frames queued for this handle's reader.
func (h *Handle[F]) Pending() int {
	if h.transport == nil {
		return 0
	}
	return h.transport.pending(h.reader)
}

// EndOfStream signals that no more frames will be pushed. Queued frames
// stay readable.
func (h *Handle[F]) EndOfStream() {
	if h.transport != nil {
		h.transport.endOfStream()
	}
}

// Exhausted reports whether end of stream was signaled and this handle's
// reader queue is drained. Once true it stays true.
func (h *Handle[F]) Exhausted() bool {
	if h.transport == nil {
		return true
	}
	return h.transport.exhausted(h.reader)
}

// Transport returns the underlying transport, nil for detached handles.
func (h *Handle[F]) Transport() *Transport[F] { return h.transport }

// reading returns a handle over the same transport bound to another reader.
func (h *Handle[F]) reading(reader int) *Handle[F] {
	return &Handle[F]{lc: h.lc, transport: h.transport, reader: reader}
}
