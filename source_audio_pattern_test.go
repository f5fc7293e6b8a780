package streamer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioTestPatternSource_Defaults(t *testing.T) {
	s := NewAudioTestPatternSource(AudioTestPatternConfig{})

	assert.Equal(t, AudioFrameFormat{Channels: 2, SampleRate: 48000}, s.AudioFormat())
	assert.Equal(t, 20*time.Millisecond, s.FrameDuration())
	assert.Equal(t, "audiotestpattern", s.Name())
	assert.True(t, CapabilitiesOf(s).Has(CapAudioSource))
}

func TestAudioTestPatternSource_FrameCountAndTimestamps(t *testing.T) {
	s := NewAudioTestPatternSource(AudioTestPatternConfig{SampleRate: 8000, Channels: 1, FrameSize: 80, Frames: 3})

	for i := 0; i < 3; i++ {
		f, err := s.OnPullAudio(nil)
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Len(t, f.Samples, 80)
		assert.Equal(t, time.Duration(i)*10*time.Millisecond, f.Timestamp.Duration())
	}
	assert.True(t, s.Finished())

	f, err := s.OnPullAudio(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, uint64(3), s.FrameCount())
}

func TestAudioTestPatternSource_Patterns(t *testing.T) {
	peak := func(samples []int16) int {
		m := 0
		for _, v := range samples {
			m = max(m, int(math.Abs(float64(v))))
		}
		return m
	}

	tests := []struct {
		pattern AudioPatternType
		silent  bool
	}{
		{AudioPatternSilence, true},
		{AudioPatternSineWave, false},
		{AudioPatternSquareWave, false},
		{AudioPatternWhiteNoise, false},
		{AudioPatternSweep, false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern.String(), func(t *testing.T) {
			s := NewAudioTestPatternSource(AudioTestPatternConfig{Pattern: tt.pattern, Amplitude: 0.5})
			f, err := s.OnPullAudio(nil)
			require.NoError(t, err)
			require.Len(t, f.Samples, 960*2)

			p := peak(f.Samples)
			if tt.silent {
				assert.Zero(t, p)
				return
			}
			assert.Positive(t, p)
			assert.LessOrEqual(t, p, 16384)
			for i := 0; i < len(f.Samples); i += 2 {
				require.Equal(t, f.Samples[i], f.Samples[i+1], "channels differ at %d", i)
			}
		})
	}
}

func TestAudioTestPatternSource_SineIsContinuous(t *testing.T) {
	// 1kHz at 48kHz, 960 samples per frame is a whole number of periods.
	s := NewAudioTestPatternSource(AudioTestPatternConfig{Channels: 1, Frequency: 1000, Amplitude: 1})
	a, err := s.OnPullAudio(nil)
	require.NoError(t, err)
	b, err := s.OnPullAudio(nil)
	require.NoError(t, err)

	assert.Zero(t, a.Samples[0])
	assert.InDelta(t, a.Samples[12], 32767, 1)
	assert.InDelta(t, a.Samples[0], b.Samples[0], 2)
}

func TestAudioTestPatternSource_Realtime(t *testing.T) {
	s := NewAudioTestPatternSource(AudioTestPatternConfig{Realtime: true})

	f, err := s.OnPullAudio(nil)
	require.NoError(t, err)
	require.NotNil(t, f)

	f, err = s.OnPullAudio(nil)
	require.NoError(t, err)
	assert.Nil(t, f, "second frame is not due yet")
}

func TestAudioTestPatternSource_InDriver(t *testing.T) {
	b := NewBuilder()
	src := AddElement(b, NewAudioTestPatternSource(AudioTestPatternConfig{Frames: 5}))
	g, err := b.Build()
	require.NoError(t, err)
	defer g.Close()

	branch, ok := g.AudioFor(src.ID())
	require.True(t, ok)
	tap, ok := branch.Tap(src.ID())
	require.True(t, ok)

	d := NewDriver(g, DefaultDriverConfig())
	g.Play()
	require.NoError(t, d.Start(context.Background()))

	var got []*AudioFrame
	deadline := time.Now().Add(2 * time.Second)
	for !tap.Exhausted() && time.Now().Before(deadline) {
		f, ok := tap.PullFrame()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		got = append(got, f)
	}
	require.NoError(t, d.Wait())

	require.Len(t, got, 5)
	assert.Equal(t, 80*time.Millisecond, got[4].Timestamp.Duration())
}

func TestAudioPatternType_String(t *testing.T) {
	assert.Equal(t, "Sweep", AudioPatternSweep.String())
	assert.Equal(t, "Unknown", AudioPatternType(99).String())
}

func BenchmarkAudioTestPatternSource_SineWave(b *testing.B) {
	s := NewAudioTestPatternSource(AudioTestPatternConfig{Pattern: AudioPatternSineWave})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = s.OnPullAudio(nil)
	}
}
