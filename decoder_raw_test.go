package streamer

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestRawVideoDecoder(t *testing.T) {
	q := NewPacketQueue(0)
	d := NewRawVideoDecoder(q)

	_, err := d.OnPullVideo(nil)
	assert.ErrorIs(t, err, ErrUnconfigured)

	assert.ErrorIs(t, d.ConfigureVideo(VideoPacketFormat{Encoding: VideoEncodingH264}), ErrUnsupportedFormat)
	assert.ErrorIs(t, d.ConfigureVideo(VideoPacketFormat{Encoding: VendorVideoEncoding("x")}), ErrUnsupportedFormat)
	assert.ErrorIs(t, d.ConfigureVideo(VideoPacketFormat{Encoding: RawVideoEncoding(VendorImageFormat("nv12"))}), ErrUnsupportedFormat)

	pf := VideoPacketFormat{Encoding: RawVideoEncoding(ImageFormatLuma8), Resolution: Dimensions{2, 2}, FPS: 10}
	require.NoError(t, d.ConfigureVideo(pf))
	assert.ErrorIs(t, d.ConfigureVideo(pf), ErrAlreadyConfigured)
	assert.Equal(t, VideoFrameFormat{ImageFormat: ImageFormatLuma8, Resolution: Dimensions{2, 2}, FPS: 10}, d.VideoFormat())

	q.PushVideo(&VideoPacket{Data: []byte{1, 2, 3, 4}, Timestamp: 100})
	q.PushVideo(&VideoPacket{Data: []byte{1, 2, 3}, Timestamp: 200})

	f, err := d.OnPullVideo(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, f.Data)
	assert.Equal(t, Timestamp(100), f.Timestamp)

	_, err = d.OnPullVideo(nil)
	var ee *ElementError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "decode", ee.Op)

	// An open queue only means "not yet".
	f, err = d.OnPullVideo(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.False(t, d.Finished())

	require.NoError(t, q.Close())
	_, _ = d.OnPullVideo(nil)
	assert.True(t, d.Finished())
}

func TestPCMDecoder(t *testing.T) {
	q := NewPacketQueue(0)
	d := NewPCMDecoder(q)

	_, err := d.OnPullAudio(nil)
	assert.ErrorIs(t, err, ErrUnconfigured)
	assert.ErrorIs(t, d.ConfigureAudio(AudioPacketFormat{Encoding: AudioEncodingOpus, Channels: 2, SampleRate: 48000}), ErrUnsupportedFormat)
	assert.ErrorIs(t, d.ConfigureAudio(AudioPacketFormat{Encoding: AudioEncodingRaw, SampleRate: 48000}), ErrUnsupportedFormat)

	require.NoError(t, d.ConfigureAudio(AudioPacketFormat{Encoding: AudioEncodingRaw, Channels: 2, SampleRate: 48000}))
	assert.ErrorIs(t, d.ConfigureAudio(AudioPacketFormat{Encoding: AudioEncodingRaw, Channels: 1, SampleRate: 8000}), ErrAlreadyConfigured)
	assert.Equal(t, AudioFrameFormat{Channels: 2, SampleRate: 48000}, d.AudioFormat())

	want := []int16{1, -1, 32767, -32768}
	data := make([]byte, 2*len(want))
	for i, v := range want {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(v))
	}
	q.PushAudio(&AudioPacket{Data: data, Timestamp: 20})
	q.PushAudio(&AudioPacket{Data: data[:6]}) // one and a half sample frames

	f, err := d.OnPullAudio(nil)
	require.NoError(t, err)
	assert.Equal(t, want, f.Samples)
	assert.Equal(t, 2, f.SampleCount(2))

	_, err = d.OnPullAudio(nil)
	assert.Error(t, err)

	require.NoError(t, q.Close())
	f, err = d.OnPullAudio(nil)
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.True(t, d.Finished())
}

func TestTextSubtitleDecoder(t *testing.T) {
	tests := []struct {
		name     string
		encoding SubtitleEncoding
		data     []byte
		want     string
	}{
		{"utf8", SubtitleEncodingUTF8, []byte("héllo"), "héllo"},
		{"utf16le", SubtitleEncodingUTF16, []byte{'h', 0, 'i', 0}, "hi"},
		{"utf16be bom", SubtitleEncodingUTF16, []byte{0xfe, 0xff, 0, 'o', 0, 'k'}, "ok"},
		{"invalid utf8", SubtitleEncodingUTF8, []byte{'a', 0xff}, "a�"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewPacketQueue(0)
			d := NewTextSubtitleDecoder(q)
			require.NoError(t, d.ConfigureSubtitle(SubtitlePacketFormat{Encoding: tt.encoding, Language: language.German}))
			assert.Equal(t, language.German, d.SubtitleFormat().Language)

			q.PushSubtitle(&SubtitlePacket{Data: tt.data, Timestamp: 9, Duration: time.Second})
			f, err := d.OnPullSubtitle(nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Text)
			assert.Equal(t, SubtitleText, f.Kind)
			assert.Equal(t, time.Second, f.Duration)
			assert.Equal(t, Timestamp(9), f.Timestamp)
		})
	}
}

func TestTextSubtitleDecoder_Rejects(t *testing.T) {
	d := NewTextSubtitleDecoder(NewPacketQueue(0))
	_, err := d.OnPullSubtitle(nil)
	assert.ErrorIs(t, err, ErrUnconfigured)

	for _, enc := range []SubtitleEncoding{SubtitleEncodingDVB, SubtitleEncodingARIB, VendorSubtitleEncoding("ttml")} {
		assert.ErrorIs(t, d.ConfigureSubtitle(SubtitlePacketFormat{Encoding: enc}), ErrUnsupportedFormat, enc.String())
	}
	require.NoError(t, d.ConfigureSubtitle(SubtitlePacketFormat{Encoding: SubtitleEncodingUTF8}))
	assert.ErrorIs(t, d.ConfigureSubtitle(SubtitlePacketFormat{Encoding: SubtitleEncodingUTF8}), ErrAlreadyConfigured)
}

func TestDecoder_InPipeline(t *testing.T) {
	q := NewPacketQueue(0)
	for i := 0; i < 3; i++ {
		q.PushVideo(&VideoPacket{Data: make([]byte, 4*4*3), Timestamp: Timestamp(i)})
	}
	require.NoError(t, q.Close())

	dec := NewRawVideoDecoder(q)
	require.NoError(t, dec.ConfigureVideo(VideoPacketFormat{Encoding: RawVideoEncoding(ImageFormatRGB8), Resolution: Dimensions{4, 4}, FPS: 30}))

	b := NewBuilder()
	src := AddElement(b, dec)
	scale := AddElement(b, NewScale(ScaleConfig{Width: 2, Height: 2}))
	require.NoError(t, LinkVideo(b, src, scale))
	g, err := b.Build()
	require.NoError(t, err)
	defer g.Close()

	p := g.Video()[0]
	p.Play()
	var n int
	for {
		f, ok, err := p.Pull(scale.ID())
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Len(t, f.Data, 2*2*3)
		n++
	}
	assert.Equal(t, 3, n)
	assert.True(t, p.Finished(scale.ID()))
}
