package streamer

import (
	"fmt"
	"strings"
)

// Element is the base unit of a pipeline. Every element exposes a name and
// nine capability accessors; each accessor reports whether the element
// implements that per-kind contract. Embed BaseElement to get "absent" for
// every accessor and override only the ones the element implements:
//
//	type Scale struct{ streamer.BaseElement; ... }
//
//	func (s *Scale) AsVideoSink() (streamer.VideoSink, bool)     { return s, true }
//	func (s *Scale) AsVideoSource() (streamer.VideoSource, bool) { return s, true }
//
// Method names on the capability contracts are qualified by kind so that a
// single element can implement, say, both a video sink and an audio sink.
type Element interface {
	// Name returns a human-readable element name. An empty name is replaced
	// by the element's Go type at registration.
	Name() string

	AsVideoDecoder() (VideoDecoder, bool)
	AsAudioDecoder() (AudioDecoder, bool)
	AsSubtitleDecoder() (SubtitleDecoder, bool)

	AsVideoSource() (VideoSource, bool)
	AsAudioSource() (AudioSource, bool)
	AsSubtitleSource() (SubtitleSource, bool)

	AsVideoSink() (VideoSink, bool)
	AsAudioSink() (AudioSink, bool)
	AsSubtitleSink() (SubtitleSink, bool)
}

// VideoSource produces decoded video frames.
type VideoSource interface {
	Element

	// VideoFormat returns the current output format. It must be a concrete,
	// non-vendor format once the element is linked.
	VideoFormat() VideoFrameFormat

	// OnPullVideo returns the next available frame, or nil when no frame is
	// currently available or the stream has ended. p is the upstream
	// transport the element may read one frame from. An error aborts this
	// pull attempt only.
	OnPullVideo(p *VideoPipeline) (*VideoFrame, error)
}

// VideoSink consumes decoded video frames.
type VideoSink interface {
	Element

	// AddVideoSource negotiates the upstream format. It succeeds at most once
	// per instance; later calls fail with ErrDuplicatedSource.
	AddVideoSource(format VideoFrameFormat) error

	// OnPushVideo consumes one frame. p is the element's own output
	// transport, used by filters to forward results.
	OnPushVideo(p *VideoPipeline, frame *VideoFrame) error
}

// VideoDecoder is a VideoSource fed by compressed packets.
type VideoDecoder interface {
	VideoSource

	// ConfigureVideo fixes the codec parameters. It must be called exactly once
	// before the first OnPullVideo.
	ConfigureVideo(format VideoPacketFormat) error
}

// AudioSource produces decoded audio frames.
type AudioSource interface {
	Element
	AudioFormat() AudioFrameFormat
	OnPullAudio(p *AudioPipeline) (*AudioFrame, error)
}

// AudioSink consumes decoded audio frames.
type AudioSink interface {
	Element
	AddAudioSource(format AudioFrameFormat) error
	OnPushAudio(p *AudioPipeline, frame *AudioFrame) error
}

// AudioDecoder is an AudioSource fed by compressed packets.
type AudioDecoder interface {
	AudioSource
	ConfigureAudio(format AudioPacketFormat) error
}

// SubtitleSource produces decoded subtitle cues.
type SubtitleSource interface {
	Element
	SubtitleFormat() SubtitleFrameFormat
	OnPullSubtitle(p *SubtitlePipeline) (*SubtitleFrame, error)
}

// SubtitleSink consumes decoded subtitle cues.
type SubtitleSink interface {
	Element
	AddSubtitleSource(format SubtitleFrameFormat) error
	OnPushSubtitle(p *SubtitlePipeline, frame *SubtitleFrame) error
}

// SubtitleDecoder is a SubtitleSource fed by encoded packets.
type SubtitleDecoder interface {
	SubtitleSource
	ConfigureSubtitle(format SubtitlePacketFormat) error
}

// BaseElement provides the default "capability absent" accessors.
type BaseElement struct {
	name string
}

// NewBaseElement returns a BaseElement reporting the given name.
func NewBaseElement(name string) BaseElement {
	return BaseElement{name: name}
}

func (b BaseElement) Name() string { return b.name }

func (BaseElement) AsVideoDecoder() (VideoDecoder, bool)       { return nil, false }
func (BaseElement) AsAudioDecoder() (AudioDecoder, bool)       { return nil, false }
func (BaseElement) AsSubtitleDecoder() (SubtitleDecoder, bool) { return nil, false }
func (BaseElement) AsVideoSource() (VideoSource, bool)         { return nil, false }
func (BaseElement) AsAudioSource() (AudioSource, bool)         { return nil, false }
func (BaseElement) AsSubtitleSource() (SubtitleSource, bool)   { return nil, false }
func (BaseElement) AsVideoSink() (VideoSink, bool)             { return nil, false }
func (BaseElement) AsAudioSink() (AudioSink, bool)             { return nil, false }
func (BaseElement) AsSubtitleSink() (SubtitleSink, bool)       { return nil, false }

// ElementName returns e.Name(), falling back to the element's Go type.
func ElementName(e Element) string {
	if n := e.Name(); n != "" {
		return n
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", e), "*")
}

// Capabilities is a bitmask of the contracts an element implements.
type Capabilities uint16

const (
	CapVideoSource Capabilities = 1 << iota
	CapAudioSource
	CapSubtitleSource
	CapVideoSink
	CapAudioSink
	CapSubtitleSink
	CapVideoDecoder
	CapAudioDecoder
	CapSubtitleDecoder
)

// Has returns true if all specified capabilities are present.
func (c Capabilities) Has(want Capabilities) bool { return c&want == want }

// SourceCapability returns the source capability bit for kind.
func SourceCapability(kind MediaKind) Capabilities {
	switch kind {
	case KindVideo:
		return CapVideoSource
	case KindAudio:
		return CapAudioSource
	case KindSubtitle:
		return CapSubtitleSource
	default:
		return 0
	}
}

// SinkCapability returns the sink capability bit for kind.
func SinkCapability(kind MediaKind) Capabilities {
	switch kind {
	case KindVideo:
		return CapVideoSink
	case KindAudio:
		return CapAudioSink
	case KindSubtitle:
		return CapSubtitleSink
	default:
		return 0
	}
}

var capabilityNames = [...]string{
	"video-source", "audio-source", "subtitle-source",
	"video-sink", "audio-sink", "subtitle-sink",
	"video-decoder", "audio-decoder", "subtitle-decoder",
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for i, name := range capabilityNames {
		if c&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// CapabilitiesOf queries every accessor of e once.
func CapabilitiesOf(e Element) Capabilities {
	var c Capabilities
	if _, ok := e.AsVideoSource(); ok {
		c |= CapVideoSource
	}
	if _, ok := e.AsAudioSource(); ok {
		c |= CapAudioSource
	}
	if _, ok := e.AsSubtitleSource(); ok {
		c |= CapSubtitleSource
	}
	if _, ok := e.AsVideoSink(); ok {
		c |= CapVideoSink
	}
	if _, ok := e.AsAudioSink(); ok {
		c |= CapAudioSink
	}
	if _, ok := e.AsSubtitleSink(); ok {
		c |= CapSubtitleSink
	}
	if _, ok := e.AsVideoDecoder(); ok {
		c |= CapVideoDecoder | CapVideoSource
	}
	if _, ok := e.AsAudioDecoder(); ok {
		c |= CapAudioDecoder | CapAudioSource
	}
	if _, ok := e.AsSubtitleDecoder(); ok {
		c |= CapSubtitleDecoder | CapSubtitleSource
	}
	return c
}
