package streamer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configuredScale(t testing.TB, src VideoFrameFormat, cfg ScaleConfig) *Scale {
	t.Helper()
	s := NewScale(cfg)
	require.NoError(t, s.AddVideoSource(src))
	return s
}

func solidFrame(format ImageFormat, d Dimensions, px ...byte) *VideoFrame {
	data := make([]byte, format.FrameSize(d))
	for i := 0; i < len(data); i += len(px) {
		copy(data[i:], px)
	}
	return &VideoFrame{Data: data}
}

func TestScale_ResizeScenario(t *testing.T) {
	s := NewScale(ScaleConfig{Width: 640, Height: 480})
	require.NoError(t, s.AddVideoSource(rgb1080p30))

	assert.ErrorIs(t, s.AddVideoSource(rgb1080p30), ErrDuplicatedSource)
	assert.ErrorIs(t, s.AddVideoSource(VideoFrameFormat{ImageFormat: ImageFormatLuma8, Resolution: Dimensions{8, 8}}), ErrDuplicatedSource)

	out := s.VideoFormat()
	assert.Equal(t, ImageFormatRGB8, out.ImageFormat)
	assert.Equal(t, Dimensions{640, 480}, out.Resolution)
	assert.Equal(t, 30.0, out.FPS)

	p := NewVideoPipeline(DefaultTransportConfig())
	in := &VideoFrame{Data: make([]byte, 1920*1080*3), Timestamp: 123456789}
	require.NoError(t, s.OnPushVideo(p, in))

	f, ok := p.PullFrame()
	require.True(t, ok)
	assert.Len(t, f.Data, 640*480*3)
	assert.Equal(t, in.Timestamp, f.Timestamp)
	_, ok = p.PullFrame()
	assert.False(t, ok, "exactly one frame")
}

func TestScale_OnPull(t *testing.T) {
	s := configuredScale(t, VideoFrameFormat{ImageFormat: ImageFormatLuma8, Resolution: Dimensions{4, 4}, FPS: 25}, ScaleConfig{Width: 2, Height: 2})
	p := NewVideoPipeline(DefaultTransportConfig())

	f, err := s.OnPullVideo(p)
	require.NoError(t, err)
	assert.Nil(t, f)

	require.NoError(t, p.PushFrame(solidFrame(ImageFormatLuma8, Dimensions{4, 4}, 200)))
	f, err = s.OnPullVideo(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{200, 200, 200, 200}, f.Data)
}

func TestScale_Errors(t *testing.T) {
	s := NewScale(ScaleConfig{Width: 8, Height: 8})
	assert.True(t, s.VideoFormat().IsStatic())

	_, err := s.Scale(&VideoFrame{})
	assert.ErrorIs(t, err, ErrUnconfigured)

	err = s.AddVideoSource(VideoFrameFormat{ImageFormat: VendorImageFormat("nv12"), Resolution: Dimensions{8, 8}})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	err = s.AddVideoSource(VideoFrameFormat{Resolution: Dimensions{8, 8}})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	require.NoError(t, s.AddVideoSource(VideoFrameFormat{ImageFormat: ImageFormatRGB8, Resolution: Dimensions{16, 16}}))
	_, err = s.Scale(&VideoFrame{Data: make([]byte, 10)})
	var ee *ElementError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "resize", ee.Op)
	assert.Zero(t, s.Scaled())
}

func TestScale_ZeroDestination(t *testing.T) {
	s := configuredScale(t, rgb1080p30, ScaleConfig{Width: 0, Height: 480})
	f, err := s.Scale(&VideoFrame{Data: make([]byte, 3), Timestamp: 5})
	require.NoError(t, err)
	assert.Empty(t, f.Data)
	assert.Equal(t, Timestamp(5), f.Timestamp)
}

func TestScale_SolidColorAllFormats(t *testing.T) {
	src := Dimensions{20, 10}
	dst := Dimensions{7, 5}
	samplers := []ScaleSampler{ScaleSamplerNearest, ScaleSamplerBilinear, ScaleSamplerCatmullRom, ScaleSamplerLanczos}

	for _, format := range standardImageFormats {
		px := make([]byte, format.BytesPerPixel())
		for i := range px {
			px[i] = byte(0x40 + 0x20*i)
		}
		if format.HasAlpha() {
			for i := 1; i <= format.BytesPerChannel(); i++ {
				px[len(px)-i] = 0xff
			}
		}
		for _, sampler := range samplers {
			t.Run(fmt.Sprintf("%s/%s", format, sampler), func(t *testing.T) {
				s := configuredScale(t, VideoFrameFormat{ImageFormat: format, Resolution: src, FPS: 30}, ScaleConfig{Width: dst.Width, Height: dst.Height, Sampler: sampler})
				out, err := s.Scale(solidFrame(format, src, px...))
				require.NoError(t, err)
				require.Len(t, out.Data, format.FrameSize(dst))
				for i := 0; i < len(out.Data); i += len(px) {
					for c := range px {
						// 16-bit low bytes may be off by rounding.
						if format.BytesPerChannel() == 2 && c%2 == 1 {
							continue
						}
						assert.InDelta(t, px[c], out.Data[i+c], 1, "pixel %d channel %d", i/len(px), c)
					}
				}
			})
		}
	}
}

func TestScale_AlphaDoesNotBleed(t *testing.T) {
	src := Dimensions{8, 2}
	data := make([]byte, ImageFormatRGBA8.FrameSize(src))
	for y := 0; y < 2; y++ {
		for x := 0; x < 8; x++ {
			i := (y*8 + x) * 4
			if x < 4 {
				copy(data[i:], []byte{255, 0, 0, 255}) // opaque red
			} else {
				copy(data[i:], []byte{0, 255, 0, 0}) // transparent green
			}
		}
	}

	s := configuredScale(t, VideoFrameFormat{ImageFormat: ImageFormatRGBA8, Resolution: src}, ScaleConfig{Width: 3, Height: 1})
	out, err := s.Scale(&VideoFrame{Data: data})
	require.NoError(t, err)
	for i := 0; i < len(out.Data); i += 4 {
		if out.Data[i+3] == 0 {
			continue
		}
		assert.Zero(t, out.Data[i+1], "green leaked into pixel %d: %v", i/4, out.Data[i:i+4])
	}
}

func TestScale_Modes(t *testing.T) {
	src := Dimensions{200, 100}

	t.Run("fit letterboxes", func(t *testing.T) {
		s := configuredScale(t, VideoFrameFormat{ImageFormat: ImageFormatLuma8, Resolution: src},
			ScaleConfig{Width: 100, Height: 100, Mode: ScaleModeFit, Sampler: ScaleSamplerNearest})
		out, err := s.Scale(solidFrame(ImageFormatLuma8, src, 255))
		require.NoError(t, err)
		assert.Equal(t, byte(0), out.Data[0*100+50], "top bar")
		assert.Equal(t, byte(255), out.Data[50*100+50], "picture")
		assert.Equal(t, byte(0), out.Data[99*100+50], "bottom bar")
	})

	t.Run("fill crops", func(t *testing.T) {
		data := make([]byte, 200*100)
		for y := 0; y < 100; y++ {
			for x := 0; x < 200; x++ {
				if x < 50 || x >= 150 {
					data[y*200+x] = 255
				}
			}
		}
		s := configuredScale(t, VideoFrameFormat{ImageFormat: ImageFormatLuma8, Resolution: src},
			ScaleConfig{Width: 100, Height: 100, Mode: ScaleModeFill, Sampler: ScaleSamplerNearest})
		out, err := s.Scale(&VideoFrame{Data: data})
		require.NoError(t, err)
		for _, v := range out.Data {
			require.Equal(t, byte(0), v, "cropped columns must not appear")
		}
	})

	t.Run("stretch", func(t *testing.T) {
		s := configuredScale(t, VideoFrameFormat{ImageFormat: ImageFormatLuma8, Resolution: src},
			ScaleConfig{Width: 100, Height: 100})
		out, err := s.Scale(solidFrame(ImageFormatLuma8, src, 77))
		require.NoError(t, err)
		assert.Equal(t, byte(77), out.Data[0])
		assert.Equal(t, byte(77), out.Data[len(out.Data)-1])
	})
}

func TestParseScaleSampler(t *testing.T) {
	for _, s := range []ScaleSampler{ScaleSamplerNearest, ScaleSamplerBilinear, ScaleSamplerCatmullRom, ScaleSamplerLanczos} {
		got, err := ParseScaleSampler(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := ParseScaleSampler("Bicubic")
	require.NoError(t, err)
	assert.Equal(t, ScaleSamplerCatmullRom, got)
	_, err = ParseScaleSampler("sinc")
	assert.Error(t, err)
}

func BenchmarkScale_720pTo480p(b *testing.B) {
	src := VideoFrameFormat{ImageFormat: ImageFormatRGB8, Resolution: Dimensions{1280, 720}, FPS: 30}
	s := configuredScale(b, src, ScaleConfig{Width: 854, Height: 480})
	frame := solidFrame(ImageFormatRGB8, src.Resolution, 10, 20, 30)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Scale(frame); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkScale_1080pTo720pLanczos(b *testing.B) {
	s := configuredScale(b, rgb1080p30, ScaleConfig{Width: 1280, Height: 720, Sampler: ScaleSamplerLanczos})
	frame := solidFrame(ImageFormatRGB8, rgb1080p30.Resolution, 10, 20, 30)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Scale(frame); err != nil {
			b.Fatal(err)
		}
	}
}
