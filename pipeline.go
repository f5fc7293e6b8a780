package streamer

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pion/logging"
)

// kindOps binds the per-kind element contracts to a frame type.
type kindOps[F any] struct {
	kind MediaKind
	pull func(n *node, p *Handle[F]) (F, bool, error)
	push func(n *node, p *Handle[F], f F) error
}

var videoOps = kindOps[*VideoFrame]{
	kind: KindVideo,
	pull: func(n *node, p *VideoPipeline) (*VideoFrame, bool, error) {
		f, err := n.videoSource.OnPullVideo(p)
		return f, f != nil, err
	},
	push: func(n *node, p *VideoPipeline, f *VideoFrame) error {
		return n.videoSink.OnPushVideo(p, f)
	},
}

var audioOps = kindOps[*AudioFrame]{
	kind: KindAudio,
	pull: func(n *node, p *AudioPipeline) (*AudioFrame, bool, error) {
		f, err := n.audioSource.OnPullAudio(p)
		return f, f != nil, err
	},
	push: func(n *node, p *AudioPipeline, f *AudioFrame) error {
		return n.audioSink.OnPushAudio(p, f)
	},
}

var subtitleOps = kindOps[*SubtitleFrame]{
	kind: KindSubtitle,
	pull: func(n *node, p *SubtitlePipeline) (*SubtitleFrame, bool, error) {
		f, err := n.subtitleSource.OnPullSubtitle(p)
		return f, f != nil, err
	},
	push: func(n *node, p *SubtitlePipeline, f *SubtitleFrame) error {
		return n.subtitleSink.OnPushSubtitle(p, f)
	},
}

// Finisher is implemented by sources that can tell "no frame yet" apart from
// end of stream. Drivers signal end of stream downstream once a source that
// returned no frame reports Finished.
type Finisher interface {
	Finished() bool
}

// PipelineStats provides pipeline statistics.
type PipelineStats struct {
	FramesPulled uint64
	FramesPushed uint64
	Errors       uint64
}

// Pipeline is the runtime form of one connected component of one media kind.
// Every source in the component owns an output transport; each link reads
// from its own queue of the upstream transport. Sources without downstream
// links expose their single queue as a tap for the application.
type Pipeline[F any] struct {
	graph *Graph
	ops   kindOps[F]
	index int

	elements []ElementID
	links    []Link
	roots    []ElementID
	outputs  map[ElementID]*Handle[F]
	taps     map[ElementID]*Handle[F]
	inputs   map[ElementID]*Handle[F] // by sink
	upstream map[ElementID]ElementID  // sink -> source
	down     map[ElementID][]ElementID

	// Sinks without an output transport still get a handle sharing the
	// lifecycle; pushes through it fail.
	detached *Handle[F]

	pullMu  sync.Mutex
	stats   PipelineStats
	statsMu sync.Mutex
}

// VideoBranch is the runtime pipeline of one video component.
type VideoBranch = Pipeline[*VideoFrame]

// AudioBranch is the runtime pipeline of one audio component.
type AudioBranch = Pipeline[*AudioFrame]

// SubtitleBranch is the runtime pipeline of one subtitle component.
type SubtitleBranch = Pipeline[*SubtitleFrame]

func buildComponents[F any](g *Graph, ops kindOps[F], cfg TransportConfig, links []Link) []*Pipeline[F] {
	var out []*Pipeline[F]
	for i, ids := range components(g.nodes, ops.kind, links) {
		p := &Pipeline[F]{
			graph:    g,
			ops:      ops,
			index:    i,
			elements: ids,
			outputs:  make(map[ElementID]*Handle[F]),
			taps:     make(map[ElementID]*Handle[F]),
			inputs:   make(map[ElementID]*Handle[F]),
			upstream: make(map[ElementID]ElementID),
			down:     make(map[ElementID][]ElementID),
			detached: detachedHandle[F](g.lc),
		}
		inComponent := make(map[ElementID]bool, len(ids))
		for _, id := range ids {
			inComponent[id] = true
		}
		for _, l := range links {
			if l.Kind != ops.kind || !inComponent[l.Source] {
				continue
			}
			p.links = append(p.links, l)
			p.down[l.Source] = append(p.down[l.Source], l.Sink)
			// A third-party sink may accept several upstreams. The first link
			// feeds pull walks; pushes reach it from every source.
			if _, fed := p.upstream[l.Sink]; !fed {
				p.upstream[l.Sink] = l.Source
			}
		}
		for _, id := range ids {
			if !g.nodes[id].isSource(ops.kind) {
				continue
			}
			sinks := p.down[id]
			h := &Handle[F]{lc: g.lc, transport: newTransport[F](ops.kind, g.lc, cfg, len(sinks))}
			p.outputs[id] = h
			if len(sinks) == 0 {
				p.taps[id] = h
			}
			for r, sink := range sinks {
				if p.upstream[sink] == id {
					p.inputs[sink] = h.reading(r)
				}
			}
			if _, fed := p.upstream[id]; !fed {
				p.roots = append(p.roots, id)
			}
		}
		out = append(out, p)
	}
	return out
}

// ID returns the pipeline's identifier, derived from the graph ID.
func (p *Pipeline[F]) ID() string {
	return fmt.Sprintf("%s/%s/%d", p.graph.id, p.ops.kind, p.index)
}

func (p *Pipeline[F]) String() string {
	return fmt.Sprintf("%s pipeline %s (%d elements)", p.ops.kind, p.ID(), len(p.elements))
}

// Kind returns the media kind of the pipeline.
func (p *Pipeline[F]) Kind() MediaKind { return p.ops.kind }

// Elements returns the IDs of the elements in the component, ascending.
func (p *Pipeline[F]) Elements() []ElementID {
	out := make([]ElementID, len(p.elements))
	copy(out, p.elements)
	return out
}

// Links returns the links of the component.
func (p *Pipeline[F]) Links() []Link {
	out := make([]Link, len(p.links))
	copy(out, p.links)
	return out
}

// Roots returns the sources in the component that have no upstream link.
func (p *Pipeline[F]) Roots() []ElementID {
	out := make([]ElementID, len(p.roots))
	copy(out, p.roots)
	return out
}

// Contains reports whether id belongs to the component.
func (p *Pipeline[F]) Contains(id ElementID) bool {
	for _, e := range p.elements {
		if e == id {
			return true
		}
	}
	return false
}

// Output returns the output handle of source id: the handle the element
// receives in OnPush to forward frames.
func (p *Pipeline[F]) Output(id ElementID) (*Handle[F], bool) {
	h, ok := p.outputs[id]
	return h, ok
}

// Tap returns the application-facing handle of a source with no downstream
// links. Frames the driver pushes through such a source collect there.
func (p *Pipeline[F]) Tap(id ElementID) (*Handle[F], bool) {
	h, ok := p.taps[id]
	return h, ok
}

// Input returns the reader handle a sink receives in OnPull.
func (p *Pipeline[F]) Input(id ElementID) (*Handle[F], bool) {
	h, ok := p.inputs[id]
	return h, ok
}

// Play moves the lifecycle shared by the whole graph to StatePlay.
func (p *Pipeline[F]) Play() { p.graph.lc.Play() }

// Pause moves the lifecycle shared by the whole graph to StatePause.
func (p *Pipeline[F]) Pause() { p.graph.lc.Pause() }

// IsPlaying reports whether the graph is playing.
func (p *Pipeline[F]) IsPlaying() bool { return p.graph.lc.IsPlaying() }

// IsPaused reports whether the graph is paused.
func (p *Pipeline[F]) IsPaused() bool { return p.graph.lc.IsPaused() }

// State returns the graph's lifecycle state.
func (p *Pipeline[F]) State() State { return p.graph.lc.State() }

// Stats returns pipeline statistics.
func (p *Pipeline[F]) Stats() PipelineStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Pipeline[F]) count(pulled, pushed, errs uint64) {
	p.statsMu.Lock()
	p.stats.FramesPulled += pulled
	p.stats.FramesPushed += pushed
	p.stats.Errors += errs
	p.statsMu.Unlock()
}

// Pull drives the component from its demand side: it returns the next frame
// produced by element id, walking upstream to refill empty input queues.
// It never blocks on an empty pipeline; ok is false when nothing is
// available yet, and Finished(id) tells whether the branch has ended.
// Nothing flows unless the lifecycle is in StatePlay.
//
// Frames a walk takes from a source with several downstream links also reach
// the readers of the other links. Those queues are never waited on: when full
// they drop their oldest frame, keeping the latest Capacity frames.
func (p *Pipeline[F]) Pull(id ElementID) (f F, ok bool, err error) {
	if p.graph.lc.State() == StateNull {
		return f, false, ErrPipelineClosed
	}
	if !p.graph.lc.IsPlaying() {
		return f, false, nil
	}
	if !p.Contains(id) {
		return f, false, fmt.Errorf("%w: %d in %s", ErrElementNotFound, id, p.ID())
	}
	n := p.graph.nodes[id]
	if !n.isSource(p.ops.kind) {
		return f, false, fmt.Errorf("%w: %s is not a %s source", ErrIncompatibleCapability, n.name, p.ops.kind)
	}

	p.pullMu.Lock()
	defer p.pullMu.Unlock()
	return p.pullLocked(id)
}

func (p *Pipeline[F]) pullLocked(id ElementID) (f F, ok bool, err error) {
	n := p.graph.nodes[id]
	out := p.outputs[id]
	if out.transport.closed() {
		return f, false, nil
	}

	in := p.detached
	if up, fed := p.upstream[id]; fed {
		in = p.inputs[id]
		if in.Pending() == 0 && !in.Exhausted() {
			uf, uok, uerr := p.pullLocked(up)
			if uerr != nil {
				return f, false, uerr
			}
			if uok {
				// Readers of sibling branches are not drained by this walk.
				if perr := p.outputs[up].transport.offer(uf); perr != nil {
					return f, false, perr
				}
				p.count(0, 1, 0)
			}
		}
	}

	f, ok, err = p.ops.pull(n, in)
	if err != nil {
		p.count(0, 0, 1)
		return f, false, err
	}
	if ok {
		p.count(1, 0, 0)
		return f, true, nil
	}
	if p.sourceDone(id, in) {
		out.EndOfStream()
	}
	return f, false, nil
}

// sourceDone reports whether element id, having just produced nothing, has
// reached the end of its stream.
func (p *Pipeline[F]) sourceDone(id ElementID, in *Handle[F]) bool {
	if fin, ok := p.graph.nodes[id].elem.(Finisher); ok {
		return fin.Finished()
	}
	if _, fed := p.upstream[id]; fed {
		return in.Exhausted()
	}
	return false
}

// Finished reports whether source id has signaled end of stream.
func (p *Pipeline[F]) Finished(id ElementID) bool {
	out, ok := p.outputs[id]
	return ok && out.transport.closed()
}

// forward delivers every frame queued on the links leaving id to the linked
// sinks, then recurses into sinks that are themselves sources. When the
// upstream of a sink is exhausted, end of stream propagates to the sink's
// output.
func (p *Pipeline[F]) forward(id ElementID) error {
	var errs error
	for _, sink := range p.down[id] {
		in := p.readerFor(id, sink)
		sn := p.graph.nodes[sink]
		target := p.detached
		if out, ok := p.outputs[sink]; ok {
			target = out
		}
		for {
			f, ok := in.PullFrame()
			if !ok {
				break
			}
			if err := p.ops.push(sn, target, f); err != nil {
				p.count(0, 0, 1)
				errs = multierror.Append(errs, WrapElementError(sn.name, "on_push", err))
				continue
			}
			p.count(0, 1, 0)
		}
		if _, ok := p.outputs[sink]; ok {
			if err := p.forward(sink); err != nil {
				errs = multierror.Append(errs, err)
			}
			if in.Exhausted() {
				target.EndOfStream()
			}
		}
	}
	return errs
}

// readerFor returns the reader handle of the link source -> sink.
func (p *Pipeline[F]) readerFor(source, sink ElementID) *Handle[F] {
	for r, s := range p.down[source] {
		if s == sink {
			return p.outputs[source].reading(r)
		}
	}
	return p.detached
}

func (p *Pipeline[F]) endOfStream() {
	for _, out := range p.outputs {
		out.EndOfStream()
	}
}

// Graph is the result of a successful build: the element set and the
// runtime pipelines of every media kind, all sharing one Lifecycle.
type Graph struct {
	id    uuid.UUID
	lc    *Lifecycle
	nodes []*node
	log   logging.LeveledLogger

	loggerFactory logging.LoggerFactory

	video    []*VideoBranch
	audio    []*AudioBranch
	subtitle []*SubtitleBranch

	closed atomic.Bool
}

func newGraph(nodes []*node, lf logging.LoggerFactory) *Graph {
	return &Graph{
		id:            uuid.New(),
		lc:            newLifecycle(),
		nodes:         nodes,
		log:           lf.NewLogger("pipeline"),
		loggerFactory: lf,
	}
}

// ID returns the unique ID of this build.
func (g *Graph) ID() uuid.UUID { return g.id }

func (g *Graph) String() string {
	return fmt.Sprintf("graph %s (%d elements)", g.id, len(g.nodes))
}

// Lifecycle returns the lifecycle shared by every pipeline of the graph.
func (g *Graph) Lifecycle() *Lifecycle { return g.lc }

// Play starts data flow in every pipeline of the graph.
func (g *Graph) Play() { g.lc.Play(); g.log.Debugf("%s: %s", g.id, g.lc.State()) }

// Pause suspends data flow in every pipeline of the graph.
func (g *Graph) Pause() { g.lc.Pause(); g.log.Debugf("%s: %s", g.id, g.lc.State()) }

// IsPlaying reports whether the graph is playing.
func (g *Graph) IsPlaying() bool { return g.lc.IsPlaying() }

// IsPaused reports whether the graph is paused.
func (g *Graph) IsPaused() bool { return g.lc.IsPaused() }

// State returns the graph's lifecycle state.
func (g *Graph) State() State { return g.lc.State() }

// Video returns the video pipelines, one per connected component.
func (g *Graph) Video() []*VideoBranch { return g.video }

// Audio returns the audio pipelines, one per connected component.
func (g *Graph) Audio() []*AudioBranch { return g.audio }

// Subtitle returns the subtitle pipelines, one per connected component.
func (g *Graph) Subtitle() []*SubtitleBranch { return g.subtitle }

// Element returns the element registered under id.
func (g *Graph) Element(id ElementID) (Element, bool) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, false
	}
	return g.nodes[id].elem, true
}

// VideoFor returns the video pipeline containing id.
func (g *Graph) VideoFor(id ElementID) (*VideoBranch, bool) { return branchFor(g.video, id) }

// AudioFor returns the audio pipeline containing id.
func (g *Graph) AudioFor(id ElementID) (*AudioBranch, bool) { return branchFor(g.audio, id) }

// SubtitleFor returns the subtitle pipeline containing id.
func (g *Graph) SubtitleFor(id ElementID) (*SubtitleBranch, bool) { return branchFor(g.subtitle, id) }

func branchFor[F any](branches []*Pipeline[F], id ElementID) (*Pipeline[F], bool) {
	for _, p := range branches {
		if p.Contains(id) {
			return p, true
		}
	}
	return nil, false
}

// Close tears the graph down: the lifecycle returns to StateNull, every
// transport is closed, and every element implementing io.Closer is closed.
// Close is idempotent.
func (g *Graph) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	g.lc.teardown()
	for _, p := range g.video {
		p.endOfStream()
	}
	for _, p := range g.audio {
		p.endOfStream()
	}
	for _, p := range g.subtitle {
		p.endOfStream()
	}

	var result error
	for _, n := range g.nodes {
		c, ok := n.elem.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, WrapElementError(n.name, "close", err))
		}
	}
	g.log.Infof("closed %s", g.id)
	return result
}
