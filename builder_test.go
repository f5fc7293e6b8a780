package streamer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_DuplicatedLink(t *testing.T) {
	b := NewBuilder()
	src := AddElement(b, newMockVideoSource(rgb1080p30))
	sink := AddElement(b, newMockVideoSink("sink"))

	require.NoError(t, LinkVideo(b, src, sink))
	err := LinkVideo(b, src, sink)
	assert.ErrorIs(t, err, ErrDuplicatedLink)
	assert.Len(t, b.Links(), 1)

	// The runtime path sees the same key.
	assert.ErrorIs(t, b.Link(KindVideo, src.ID(), sink.ID()), ErrDuplicatedLink)
	assert.Len(t, b.Links(), 1)
}

func TestBuilder_DuplicatedSource(t *testing.T) {
	b := NewBuilder()
	a := AddElement(b, newMockVideoSource(rgb1080p30))
	c := AddElement(b, newMockVideoSource(VideoFrameFormat{ImageFormat: ImageFormatLuma8, Resolution: Dimensions{64, 64}, FPS: 10}))
	sink := AddElement(b, newMockVideoSink("sink"))

	require.NoError(t, LinkVideo(b, a, sink))
	err := LinkVideo(b, c, sink)
	assert.ErrorIs(t, err, ErrDuplicatedSource)
	assert.Len(t, b.Links(), 1)
	require.NotNil(t, sink.Element().format)
	assert.True(t, sink.Element().format.Equal(rgb1080p30), "first negotiated format is kept")
}

func TestBuilder_VendorFormatLeavesSinkUnconfigured(t *testing.T) {
	vendor := VideoFrameFormat{ImageFormat: VendorImageFormat("nv12"), Resolution: Dimensions{640, 480}, FPS: 30}

	b := NewBuilder()
	src := AddElement(b, newMockVideoSource(vendor))
	scale := AddElement(b, NewScale(ScaleConfig{Width: 320, Height: 240}))

	err := LinkVideo(b, src, scale)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, b.Links())

	_, err = scale.Element().Scale(&VideoFrame{Data: make([]byte, 10)})
	assert.ErrorIs(t, err, ErrUnconfigured)

	// A later valid source still negotiates.
	good := AddElement(b, newMockVideoSource(VideoFrameFormat{ImageFormat: ImageFormatRGB8, Resolution: Dimensions{640, 480}, FPS: 30}))
	assert.NoError(t, LinkVideo(b, good, scale))
}

// rejectingVideoSink implements VideoSink without advertising it through
// AsVideoSink, so only typed links can reach it.
type rejectingVideoSink struct {
	BaseElement
}

func (rejectingVideoSink) AddVideoSource(VideoFrameFormat) error {
	return ErrUnsupportedFormat
}

func (rejectingVideoSink) OnPushVideo(*VideoPipeline, *VideoFrame) error { return nil }

func TestBuilder_RejectedLinkLeavesGraphUnchanged(t *testing.T) {
	b := NewBuilder()
	src := AddElement(b, newMockVideoSource(rgb1080p30))
	sink := AddElement(b, &rejectingVideoSink{BaseElement: NewBaseElement("rejecting")})

	require.ErrorIs(t, LinkVideo(b, src, sink), ErrUnsupportedFormat)
	assert.Empty(t, b.Links())

	g, err := b.Build()
	require.NoError(t, err)
	defer g.Close()

	_, ok := g.VideoFor(sink.ID())
	assert.False(t, ok, "rejected sink joined a video pipeline")
	p, ok := g.VideoFor(src.ID())
	require.True(t, ok)
	assert.Equal(t, []ElementID{src.ID()}, p.Elements())
}

func TestBuilder_RuntimeLink(t *testing.T) {
	b := NewBuilder()
	src := b.Add(newMockVideoSource(rgb1080p30))
	sink := b.Add(newMockVideoSink("sink"))
	audio := b.Add(&mockAudioSource{left: 1})

	tests := []struct {
		name string
		kind MediaKind
		from ElementID
		to   ElementID
		want error
	}{
		{"sink as source", KindVideo, sink, src, ErrIncompatibleCapability},
		{"wrong kind", KindAudio, src, sink, ErrIncompatibleCapability},
		{"audio into video sink", KindAudio, audio, sink, ErrIncompatibleCapability},
		{"self link", KindVideo, src, src, ErrIncompatibleCapability},
		{"unknown source", KindVideo, 42, sink, ErrUnknownElement},
		{"unknown sink", KindVideo, src, -1, ErrUnknownElement},
		{"ok", KindVideo, src, sink, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Link(tt.kind, tt.from, tt.to)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, []Link{{Kind: KindVideo, Source: src, Sink: sink}}, b.Links())
}

func TestBuilder_SelfLinkFilter(t *testing.T) {
	b := NewBuilder()
	f := AddElement(b, newMockVideoFilter())
	assert.ErrorIs(t, LinkVideo(b, f, f), ErrIncompatibleCapability)
}

func TestBuilder_FanOut(t *testing.T) {
	b := NewBuilder()
	src := AddElement(b, newMockVideoSource(rgb1080p30))
	s1 := AddElement(b, newMockVideoSink("a"))
	s2 := AddElement(b, newMockVideoSink("b"))

	require.NoError(t, LinkVideo(b, src, s1))
	require.NoError(t, LinkVideo(b, src, s2))
	assert.Len(t, b.Links(), 2)
}

func TestBuilder_BuildOnce(t *testing.T) {
	b := NewBuilder()
	src := AddElement(b, newMockVideoSource(rgb1080p30))
	sink := AddElement(b, newMockVideoSink("sink"))

	g, err := b.Build()
	require.NoError(t, err)
	defer g.Close()

	_, err = b.Build()
	assert.ErrorIs(t, err, ErrAlreadyBuilt)
	assert.ErrorIs(t, LinkVideo(b, src, sink), ErrAlreadyBuilt)
}

func TestBuilder_Components(t *testing.T) {
	b := NewBuilder()
	vsrc := AddElement(b, newMockVideoSource(rgb1080p30))
	vsink := AddElement(b, newMockVideoSink("vsink"))
	asrc := AddElement(b, &mockAudioSource{left: 1})
	av := AddElement(b, &mockAVSink{})
	vsrc2 := AddElement(b, newMockVideoSource(rgb1080p30))
	filter := AddElement(b, newMockVideoFilter())

	require.NoError(t, LinkVideo(b, vsrc, vsink))
	require.NoError(t, LinkAudio(b, asrc, av))
	require.NoError(t, LinkVideo(b, vsrc2, filter))
	require.NoError(t, LinkVideo(b, filter, av))

	assert.Equal(t, 6, b.Len())
	e, ok := b.Element(asrc.ID())
	require.True(t, ok)
	assert.Same(t, asrc.Element(), e)

	g, err := b.Build()
	require.NoError(t, err)
	defer g.Close()

	require.Len(t, g.Video(), 2)
	assert.Equal(t, []ElementID{vsrc.ID(), vsink.ID()}, g.Video()[0].Elements())
	assert.Equal(t, []ElementID{av.ID(), vsrc2.ID(), filter.ID()}, g.Video()[1].Elements())
	assert.Equal(t, []ElementID{vsrc2.ID()}, g.Video()[1].Roots())

	require.Len(t, g.Audio(), 1)
	assert.Equal(t, []ElementID{asrc.ID(), av.ID()}, g.Audio()[0].Elements())
	assert.Empty(t, g.Subtitle())

	p, ok := g.VideoFor(filter.ID())
	require.True(t, ok)
	assert.Same(t, g.Video()[1], p)
	_, ok = g.SubtitleFor(filter.ID())
	assert.False(t, ok)

	_, ok = p.Tap(filter.ID())
	assert.False(t, ok, "filter feeds a sink")
	_, ok = g.Video()[0].Tap(vsrc.ID())
	assert.False(t, ok)
}

func TestBuilder_TypedAudioAndSubtitleLinks(t *testing.T) {
	b := NewBuilder()
	q := NewPacketQueue(0)
	dec := AddElement(b, NewTextSubtitleDecoder(q))
	require.NoError(t, dec.Element().ConfigureSubtitle(SubtitlePacketFormat{Encoding: SubtitleEncodingUTF8}))
	sink := AddElement(b, &recordingSubtitleSink{BaseElement: NewBaseElement("subs")})

	require.NoError(t, LinkSubtitle(b, dec, sink))
	assert.Equal(t, SubtitleText, sink.Element().format.Kind)

	err := LinkSubtitle(b, dec, sink)
	assert.True(t, errors.Is(err, ErrDuplicatedLink))
}

type recordingSubtitleSink struct {
	BaseElement
	format SubtitleFrameFormat
	cues   []*SubtitleFrame
}

func (s *recordingSubtitleSink) AsSubtitleSink() (SubtitleSink, bool) { return s, true }

func (s *recordingSubtitleSink) AddSubtitleSource(f SubtitleFrameFormat) error {
	s.format = f
	return nil
}

func (s *recordingSubtitleSink) OnPushSubtitle(_ *SubtitlePipeline, f *SubtitleFrame) error {
	s.cues = append(s.cues, f)
	return nil
}
