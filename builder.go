package streamer

import (
	"fmt"

	"github.com/pion/logging"
)

// ElementID identifies an element inside one Builder. IDs are assigned in
// registration order starting at zero and are never reused.
type ElementID int

// ElementRef is a handle to a registered element. It carries the element's
// concrete type so the Link functions can check capabilities at compile time:
// LinkVideo only accepts refs whose type implements VideoSource and VideoSink.
type ElementRef[T Element] struct {
	id   ElementID
	elem T
}

// ID returns the element's ID.
func (r ElementRef[T]) ID() ElementID { return r.id }

// Element returns the registered element.
func (r ElementRef[T]) Element() T { return r.elem }

// Link is a directed, kind-tagged edge between two elements.
type Link struct {
	Kind   MediaKind
	Source ElementID
	Sink   ElementID
}

func (l Link) String() string {
	return fmt.Sprintf("%s:%d->%d", l.Kind, l.Source, l.Sink)
}

// node is the builder's record of one registered element with its
// capabilities resolved once.
type node struct {
	id   ElementID
	elem Element
	name string
	caps Capabilities

	videoSource    VideoSource
	videoSink      VideoSink
	audioSource    AudioSource
	audioSink      AudioSink
	subtitleSource SubtitleSource
	subtitleSink   SubtitleSink
}

func newNode(id ElementID, e Element) *node {
	n := &node{id: id, elem: e, name: ElementName(e)}
	if d, ok := e.AsVideoDecoder(); ok {
		n.videoSource = d
	} else if s, ok := e.AsVideoSource(); ok {
		n.videoSource = s
	}
	if d, ok := e.AsAudioDecoder(); ok {
		n.audioSource = d
	} else if s, ok := e.AsAudioSource(); ok {
		n.audioSource = s
	}
	if d, ok := e.AsSubtitleDecoder(); ok {
		n.subtitleSource = d
	} else if s, ok := e.AsSubtitleSource(); ok {
		n.subtitleSource = s
	}
	n.videoSink, _ = e.AsVideoSink()
	n.audioSink, _ = e.AsAudioSink()
	n.subtitleSink, _ = e.AsSubtitleSink()
	n.caps = CapabilitiesOf(e)
	return n
}

func (n *node) isSource(kind MediaKind) bool {
	switch kind {
	case KindVideo:
		return n.videoSource != nil
	case KindAudio:
		return n.audioSource != nil
	case KindSubtitle:
		return n.subtitleSource != nil
	}
	return false
}

func (n *node) isSink(kind MediaKind) bool {
	switch kind {
	case KindVideo:
		return n.videoSink != nil
	case KindAudio:
		return n.audioSink != nil
	case KindSubtitle:
		return n.subtitleSink != nil
	}
	return false
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLoggerFactory sets the logger factory used by the builder and by
// everything it builds.
func WithLoggerFactory(f logging.LoggerFactory) BuilderOption {
	return func(b *Builder) {
		if f != nil {
			b.loggerFactory = f
		}
	}
}

// WithTransportConfig sets the configuration of every transport created by
// Build.
func WithTransportConfig(cfg TransportConfig) BuilderOption {
	return func(b *Builder) { b.transport = cfg }
}

// Builder assembles a pipeline graph. It performs no I/O and spawns no
// goroutines; every operation validates synchronously and a rejected link
// leaves the graph unchanged. A Builder is not safe for concurrent use.
type Builder struct {
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
	transport     TransportConfig

	nodes   []*node
	links   []Link
	linkSet map[Link]struct{}
	built   bool
}

// NewBuilder creates an empty builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		loggerFactory: logging.NewDefaultLoggerFactory(),
		transport:     DefaultTransportConfig(),
		linkSet:       make(map[Link]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.loggerFactory.NewLogger("builder")
	return b
}

// AddElement registers elem with b and returns a typed handle to it.
func AddElement[T Element](b *Builder, elem T) ElementRef[T] {
	return ElementRef[T]{id: b.Add(elem), elem: elem}
}

// Add registers e and returns its ID. Use AddElement to keep the static
// capability check; Add is for elements only known as Element, e.g. those
// created through the registry.
func (b *Builder) Add(e Element) ElementID {
	id := ElementID(len(b.nodes))
	n := newNode(id, e)
	b.nodes = append(b.nodes, n)
	b.log.Debugf("added element %d %q (%s)", id, n.name, n.caps)
	return id
}

// Len returns the number of registered elements.
func (b *Builder) Len() int { return len(b.nodes) }

// Links returns a copy of the link set in insertion order.
func (b *Builder) Links() []Link {
	out := make([]Link, len(b.links))
	copy(out, b.links)
	return out
}

// Element returns the element registered under id.
func (b *Builder) Element(id ElementID) (Element, bool) {
	n, ok := b.node(id)
	if !ok {
		return nil, false
	}
	return n.elem, true
}

func (b *Builder) node(id ElementID) (*node, bool) {
	if id < 0 || int(id) >= len(b.nodes) {
		return nil, false
	}
	return b.nodes[id], true
}

// LinkVideo links a video source to a video sink and negotiates the sink's
// input format from the source's current output format.
func LinkVideo[S VideoSource, K VideoSink](b *Builder, src ElementRef[S], sink ElementRef[K]) error {
	return b.link(Link{Kind: KindVideo, Source: src.id, Sink: sink.id}, func(s, k *node) error {
		if err := sink.elem.AddVideoSource(src.elem.VideoFormat()); err != nil {
			return err
		}
		if s.videoSource == nil {
			s.videoSource = src.elem
			s.caps |= CapVideoSource
		}
		if k.videoSink == nil {
			k.videoSink = sink.elem
			k.caps |= CapVideoSink
		}
		return nil
	})
}

// LinkAudio links an audio source to an audio sink. See LinkVideo.
func LinkAudio[S AudioSource, K AudioSink](b *Builder, src ElementRef[S], sink ElementRef[K]) error {
	return b.link(Link{Kind: KindAudio, Source: src.id, Sink: sink.id}, func(s, k *node) error {
		if err := sink.elem.AddAudioSource(src.elem.AudioFormat()); err != nil {
			return err
		}
		if s.audioSource == nil {
			s.audioSource = src.elem
			s.caps |= CapAudioSource
		}
		if k.audioSink == nil {
			k.audioSink = sink.elem
			k.caps |= CapAudioSink
		}
		return nil
	})
}

// LinkSubtitle links a subtitle source to a subtitle sink. See LinkVideo.
func LinkSubtitle[S SubtitleSource, K SubtitleSink](b *Builder, src ElementRef[S], sink ElementRef[K]) error {
	return b.link(Link{Kind: KindSubtitle, Source: src.id, Sink: sink.id}, func(s, k *node) error {
		if err := sink.elem.AddSubtitleSource(src.elem.SubtitleFormat()); err != nil {
			return err
		}
		if s.subtitleSource == nil {
			s.subtitleSource = src.elem
			s.caps |= CapSubtitleSource
		}
		if k.subtitleSink == nil {
			k.subtitleSink = sink.elem
			k.caps |= CapSubtitleSink
		}
		return nil
	})
}

// Link links two elements known only by ID. Capabilities are resolved through
// the element accessors; a missing capability fails with
// ErrIncompatibleCapability.
func (b *Builder) Link(kind MediaKind, source, sink ElementID) error {
	return b.link(Link{Kind: kind, Source: source, Sink: sink}, func(s, k *node) error {
		if !s.isSource(kind) || !k.isSink(kind) {
			return fmt.Errorf("%w: %s cannot feed %s with %s",
				ErrIncompatibleCapability, s.name, k.name, kind)
		}
		switch kind {
		case KindVideo:
			return k.videoSink.AddVideoSource(s.videoSource.VideoFormat())
		case KindAudio:
			return k.audioSink.AddAudioSource(s.audioSource.AudioFormat())
		default:
			return k.subtitleSink.AddSubtitleSource(s.subtitleSource.SubtitleFormat())
		}
	})
}

func (b *Builder) link(l Link, negotiate func(src, sink *node) error) error {
	if b.built {
		return ErrAlreadyBuilt
	}
	s, ok := b.node(l.Source)
	if !ok {
		return fmt.Errorf("%w: source %d", ErrUnknownElement, l.Source)
	}
	k, ok := b.node(l.Sink)
	if !ok {
		return fmt.Errorf("%w: sink %d", ErrUnknownElement, l.Sink)
	}
	if l.Source == l.Sink {
		return fmt.Errorf("%w: %s cannot link to itself", ErrIncompatibleCapability, s.name)
	}
	if _, exists := b.linkSet[l]; exists {
		return ErrDuplicatedLink
	}
	if err := negotiate(s, k); err != nil {
		b.log.Debugf("link %s rejected: %v", l, err)
		return err
	}
	b.linkSet[l] = struct{}{}
	b.links = append(b.links, l)
	b.log.Debugf("linked %s (%s -> %s)", l, s.name, k.name)
	return nil
}

// Build partitions the graph into connected components per media kind and
// returns the runtime Graph. Every component shares one Lifecycle, which
// moves from StateNull to StateReady. A Builder can be built once.
func (b *Builder) Build() (*Graph, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	b.built = true

	g := newGraph(b.nodes, b.loggerFactory)
	g.video = buildComponents(g, videoOps, b.transport, b.links)
	g.audio = buildComponents(g, audioOps, b.transport, b.links)
	g.subtitle = buildComponents(g, subtitleOps, b.transport, b.links)
	g.lc.ready()

	b.log.Infof("built %s: %d elements, %d links, %d/%d/%d video/audio/subtitle pipelines",
		g.id, len(b.nodes), len(b.links), len(g.video), len(g.audio), len(g.subtitle))
	return g, nil
}

// components groups the elements touching kind into connected components,
// ordered by their smallest element ID.
func components(nodes []*node, kind MediaKind, links []Link) [][]ElementID {
	parent := make([]int, len(nodes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	member := make([]bool, len(nodes))
	for _, n := range nodes {
		member[n.id] = n.isSource(kind) || n.isSink(kind)
	}
	for _, l := range links {
		if l.Kind != kind {
			continue
		}
		member[l.Source], member[l.Sink] = true, true
		a, c := find(int(l.Source)), find(int(l.Sink))
		if a == c {
			continue
		}
		if a < c {
			parent[c] = a
		} else {
			parent[a] = c
		}
	}

	index := make(map[int]int)
	var out [][]ElementID
	for i := range nodes {
		if !member[i] {
			continue
		}
		root := find(i)
		j, ok := index[root]
		if !ok {
			j = len(out)
			index[root] = j
			out = append(out, nil)
		}
		out[j] = append(out[j], ElementID(i))
	}
	return out
}
