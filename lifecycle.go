package streamer

import (
	"sync"
	"sync/atomic"
)

// State is the lifecycle state shared by every pipeline of one build.
type State int32

const (
	StateNull  State = iota // Not built, or torn down
	StateReady              // Built and negotiated, not yet playing
	StatePause              // Paused
	StatePlay               // Data should flow
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePause:
		return "pause"
	case StatePlay:
		return "play"
	default:
		return "unknown"
	}
}

// stateFromInt maps a stored value back onto a State. Values outside the
// known range map to StateNull.
func stateFromInt(v int32) State {
	switch v {
	case int32(StateReady):
		return StateReady
	case int32(StatePause):
		return StatePause
	case int32(StatePlay):
		return StatePlay
	default:
		return StateNull
	}
}

// Lifecycle is the play/pause state shared by reference between every
// per-kind pipeline handle of one build. Reads and writes are sequentially
// consistent atomics; no further locking is needed to observe a change made
// on another goroutine.
type Lifecycle struct {
	state atomic.Int32

	mu        sync.Mutex
	listeners []func(State)
}

func newLifecycle() *Lifecycle {
	l := &Lifecycle{}
	l.state.Store(int32(StateNull))
	return l
}

// Play moves the lifecycle to StatePlay. It has no effect once torn down.
func (l *Lifecycle) Play() { l.transition(StatePlay) }

// Pause moves the lifecycle to StatePause. It has no effect once torn down.
func (l *Lifecycle) Pause() { l.transition(StatePause) }

// IsPlaying reports whether the lifecycle is in StatePlay.
func (l *Lifecycle) IsPlaying() bool { return l.State() == StatePlay }

// IsPaused reports whether the lifecycle is in StatePause.
func (l *Lifecycle) IsPaused() bool { return l.State() == StatePause }

// State returns the current state.
func (l *Lifecycle) State() State { return stateFromInt(l.state.Load()) }

// ready performs the Null -> Ready transition after a successful build.
func (l *Lifecycle) ready() {
	if l.state.CompareAndSwap(int32(StateNull), int32(StateReady)) {
		l.notify(StateReady)
	}
}

// teardown returns the lifecycle to StateNull permanently.
func (l *Lifecycle) teardown() {
	l.state.Store(int32(StateNull))
	l.notify(StateNull)
}

func (l *Lifecycle) transition(to State) {
	for {
		cur := l.state.Load()
		if cur == int32(StateNull) {
			return
		}
		if l.state.CompareAndSwap(cur, int32(to)) {
			break
		}
	}
	l.notify(to)
}

// onChange registers fn to be called after every state change.
func (l *Lifecycle) onChange(fn func(State)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *Lifecycle) notify(s State) {
	l.mu.Lock()
	listeners := l.listeners
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}
