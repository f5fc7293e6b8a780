package streamer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainTap(t *testing.T, tap *VideoPipeline, timeout time.Duration) []*VideoFrame {
	t.Helper()
	var got []*VideoFrame
	deadline := time.Now().Add(timeout)
	for !tap.Exhausted() {
		if time.Now().After(deadline) {
			t.Fatalf("tap not exhausted after %v (%d frames)", timeout, len(got))
		}
		f, ok := tap.PullFrame()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		got = append(got, f)
	}
	return got
}

func TestDriver_PatternThroughScale(t *testing.T) {
	b := NewBuilder()
	src := AddElement(b, NewTestPatternSource(TestPatternConfig{Width: 32, Height: 24, FPS: 30, Frames: 12}))
	scale := AddElement(b, NewScale(ScaleConfig{Width: 16, Height: 12}))
	require.NoError(t, LinkVideo(b, src, scale))

	g, err := b.Build()
	require.NoError(t, err)
	defer g.Close()

	p, ok := g.VideoFor(scale.ID())
	require.True(t, ok)
	tap, ok := p.Tap(scale.ID())
	require.True(t, ok)

	d := NewDriver(g, DefaultDriverConfig())
	g.Play()
	require.NoError(t, d.Start(context.Background()))

	got := drainTap(t, tap, 5*time.Second)
	require.NoError(t, d.Wait())

	require.Len(t, got, 12)
	step := TimestampFromDuration(time.Second / 30)
	for i, f := range got {
		assert.Len(t, f.Data, 16*12*3)
		assert.Equal(t, Timestamp(i)*step, f.Timestamp)
	}
	assert.Equal(t, uint64(12), scale.Element().Scaled())

	st := d.Stats()
	assert.Equal(t, uint64(12), st.FramesProduced)
	assert.Equal(t, uint64(1), st.RootsFinished)
	assert.Zero(t, st.Errors)
}

func TestDriver_FanOutAndMultipleKinds(t *testing.T) {
	b := NewBuilder()
	vsrc := AddElement(b, newMockVideoSource(rgb1080p30, frameAt(1), frameAt(2), frameAt(3)))
	s1 := AddElement(b, newMockVideoSink("a"))
	s2 := AddElement(b, newMockVideoSink("b"))
	asrc := AddElement(b, &mockAudioSource{BaseElement: NewBaseElement("tone"), left: 4})
	av := AddElement(b, &mockAVSink{})
	require.NoError(t, LinkVideo(b, vsrc, s1))
	require.NoError(t, LinkVideo(b, vsrc, s2))
	require.NoError(t, LinkAudio(b, asrc, av))

	g, err := b.Build()
	require.NoError(t, err)
	defer g.Close()

	d := NewDriver(g, DriverConfig{PollInterval: time.Millisecond})
	g.Play()
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Wait())

	for _, s := range []*mockVideoSink{s1.Element(), s2.Element()} {
		got := s.Received()
		require.Len(t, got, 3, s.Name())
		for i, f := range got {
			assert.Equal(t, Timestamp(i+1), f.Timestamp)
		}
	}
	assert.Equal(t, 4, av.Element().audio)
	assert.Equal(t, uint64(2), d.Stats().RootsFinished)
}

func TestDriver_ReportsErrors(t *testing.T) {
	b := NewBuilder()
	src := AddElement(b, newMockVideoSource(rgb1080p30, frameAt(1)))
	sink := newMockVideoSink("broken")
	sink.pushErr = errors.New("write failed")
	AddElement(b, sink)
	require.NoError(t, b.Link(KindVideo, src.ID(), 1))

	g, err := b.Build()
	require.NoError(t, err)
	defer g.Close()

	errs := make(chan error, 4)
	d := NewDriver(g, DriverConfig{OnError: func(err error) { errs <- err }})
	g.Play()
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Wait())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, sink.pushErr)
		var ee *ElementError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, "broken", ee.Element)
		assert.Equal(t, "on_push", ee.Op)
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
	assert.Equal(t, uint64(1), d.Stats().Errors)
	assert.Equal(t, uint64(1), g.Video()[0].Stats().Errors)
}

func TestDriver_PullErrorDoesNotStop(t *testing.T) {
	b := NewBuilder()
	m := newMockVideoSource(rgb1080p30)
	m.err = errors.New("device busy")
	m.done = false
	AddElement(b, m)
	g, err := b.Build()
	require.NoError(t, err)

	errs := make(chan error, 64)
	d := NewDriver(g, DriverConfig{PollInterval: time.Millisecond, OnError: func(err error) {
		select {
		case errs <- err:
		default:
		}
	}})
	g.Play()
	require.NoError(t, d.Start(context.Background()))

	err = <-errs
	assert.ErrorIs(t, err, m.err)
	var ee *ElementError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "on_pull", ee.Op)

	require.NoError(t, d.Stop())
	require.NoError(t, g.Close())
}

func TestDriver_IdlesUntilPlay(t *testing.T) {
	b := NewBuilder()
	src := AddElement(b, newMockVideoSource(rgb1080p30, frameAt(1)))
	g, err := b.Build()
	require.NoError(t, err)
	defer g.Close()

	d := NewDriver(g, DriverConfig{PollInterval: time.Millisecond})
	require.NoError(t, d.Start(context.Background()))
	assert.ErrorIs(t, d.Start(context.Background()), ErrAlreadyRunning)

	time.Sleep(20 * time.Millisecond)
	src.Element().mu.Lock()
	assert.Zero(t, src.Element().pulls)
	src.Element().mu.Unlock()

	g.Play()
	tap, _ := g.Video()[0].Tap(src.ID())
	got := drainTap(t, tap, time.Second)
	assert.Len(t, got, 1)
	require.NoError(t, d.Wait())
}

func TestDriver_StartAfterClose(t *testing.T) {
	g, _, _, _ := buildChain(t, 1)
	require.NoError(t, g.Close())
	d := NewDriver(g, DefaultDriverConfig())
	assert.ErrorIs(t, d.Start(context.Background()), ErrPipelineClosed)
}

func TestDriver_StopReleasesBlockedPush(t *testing.T) {
	b := NewBuilder()
	src := AddElement(b, NewTestPatternSource(TestPatternConfig{Width: 8, Height: 8}))
	g, err := b.Build()
	require.NoError(t, err)

	d := NewDriver(g, DefaultDriverConfig())
	g.Play()
	require.NoError(t, d.Start(context.Background()))

	// Nobody drains the tap: the root blocks on a full transport.
	tap, _ := g.Video()[0].Tap(src.ID())
	require.Eventually(t, func() bool { return tap.Pending() == DefaultTransportConfig().Capacity },
		time.Second, time.Millisecond)

	require.NoError(t, d.Stop())
	require.NoError(t, g.Close())
}
