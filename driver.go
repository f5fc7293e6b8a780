package streamer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

// DriverConfig configures a push driver.
type DriverConfig struct {
	// PollInterval is how long a root waits before asking its source again
	// when the lifecycle is not playing or the source had nothing to offer.
	PollInterval time.Duration

	// OnError receives element failures. It is called on its own goroutine.
	OnError func(error)
}

// DefaultDriverConfig returns the default driver configuration.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{PollInterval: 5 * time.Millisecond}
}

// DriverStats provides driver statistics.
type DriverStats struct {
	FramesProduced uint64 // Frames pulled from root sources
	RootsFinished  uint64
	Errors         uint64
}

// Driver runs a built Graph in push mode: one goroutine per root source pulls
// frames while the lifecycle is playing and pushes each one through the
// links of its component, calling every sink's OnPush with the sink's own
// output handle. Failures are reported, never retried.
//
// A graph should be driven either by a Driver or by Pipeline.Pull walks, not
// both at once.
type Driver struct {
	graph *Graph
	cfg   DriverConfig
	log   logging.LeveledLogger

	running atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	stats   DriverStats
	statsMu sync.Mutex

	onError func(error)
	mu      sync.Mutex
}

// NewDriver creates a push driver for g.
func NewDriver(g *Graph, cfg DriverConfig) *Driver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultDriverConfig().PollInterval
	}
	return &Driver{
		graph:   g,
		cfg:     cfg,
		log:     g.loggerFactory.NewLogger("driver"),
		onError: cfg.OnError,
	}
}

// Start spawns the root goroutines. It returns immediately; use Wait to
// block until every root has finished or ctx is done.
func (d *Driver) Start(ctx context.Context) error {
	if d.graph.State() == StateNull {
		return ErrPipelineClosed
	}
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, d.cancel = context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	d.group = group

	roots := 0
	for _, p := range d.graph.video {
		roots += startRoots(gctx, d, p)
	}
	for _, p := range d.graph.audio {
		roots += startRoots(gctx, d, p)
	}
	for _, p := range d.graph.subtitle {
		roots += startRoots(gctx, d, p)
	}
	d.log.Infof("driving %s with %d roots", d.graph.id, roots)
	return nil
}

// Wait blocks until every root goroutine has returned.
func (d *Driver) Wait() error {
	if d.group == nil {
		return nil
	}
	err := d.group.Wait()
	d.running.Store(false)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop cancels the root goroutines and waits for them. A goroutine blocked
// inside an element's own push into a full tap returns once the tap is
// drained, the graph is paused, or the graph is closed.
func (d *Driver) Stop() error {
	if !d.running.Load() {
		return nil
	}
	d.cancel()
	return d.Wait()
}

// Stats returns driver statistics.
func (d *Driver) Stats() DriverStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Driver) handleError(err error) {
	d.statsMu.Lock()
	d.stats.Errors++
	d.statsMu.Unlock()

	d.log.Warnf("%v", err)

	d.mu.Lock()
	cb := d.onError
	d.mu.Unlock()

	if cb != nil {
		go cb(err)
	}
}

func startRoots[F any](ctx context.Context, d *Driver, p *Pipeline[F]) int {
	for _, root := range p.roots {
		d.group.Go(func() error {
			return runRoot(ctx, d, p, root)
		})
	}
	return len(p.roots)
}

func runRoot[F any](ctx context.Context, d *Driver, p *Pipeline[F], root ElementID) error {
	n := p.graph.nodes[root]
	out := p.outputs[root]
	lc := p.graph.lc

	idle := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d.cfg.PollInterval):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		switch lc.State() {
		case StateNull:
			return nil
		case StatePlay:
		default:
			if !idle() {
				return nil
			}
			continue
		}

		f, ok, err := p.ops.pull(n, p.detached)
		if err != nil {
			p.count(0, 0, 1)
			d.handleError(WrapElementError(n.name, "on_pull", err))
			if !idle() {
				return nil
			}
			continue
		}
		if !ok {
			if p.sourceDone(root, p.detached) {
				out.EndOfStream()
				if err := p.forward(root); err != nil {
					d.handleError(err)
				}
				d.statsMu.Lock()
				d.stats.RootsFinished++
				d.statsMu.Unlock()
				d.log.Debugf("%s: root %q finished", p.ID(), n.name)
				return nil
			}
			if !idle() {
				return nil
			}
			continue
		}

		p.count(1, 0, 0)
		d.statsMu.Lock()
		d.stats.FramesProduced++
		d.statsMu.Unlock()

		if err := out.PushFrameContext(ctx, f); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrPipelineClosed) || errors.Is(err, ErrTransportClosed) {
				return nil
			}
			d.handleError(WrapElementError(n.name, "push", err))
			continue
		}
		p.count(0, 1, 0)

		if err := p.forward(root); err != nil {
			d.handleError(err)
		}
	}
}
