package streamer

import (
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// decoderState tracks the one-time configuration and end of stream shared by
// the packet decoders below.
type decoderState struct {
	mu         sync.Mutex
	configured bool
	finished   bool
}

func (s *decoderState) configure(apply func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return ErrAlreadyConfigured
	}
	if err := apply(); err != nil {
		return err
	}
	s.configured = true
	return nil
}

func (s *decoderState) isConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

func (s *decoderState) finish(done bool) {
	s.mu.Lock()
	s.finished = done
	s.mu.Unlock()
}

// Finished reports whether the packet reader has been drained.
func (s *decoderState) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// RawVideoDecoder turns raw video packets into frames. Each packet must hold
// exactly one frame in the configured image format.
type RawVideoDecoder struct {
	BaseElement
	decoderState

	reader VideoPacketReader
	format VideoFrameFormat
}

// NewRawVideoDecoder creates a decoder reading packets from r.
func NewRawVideoDecoder(r VideoPacketReader) *RawVideoDecoder {
	return &RawVideoDecoder{BaseElement: NewBaseElement("rawvideodec"), reader: r}
}

func (d *RawVideoDecoder) AsVideoDecoder() (VideoDecoder, bool) { return d, true }
func (d *RawVideoDecoder) AsVideoSource() (VideoSource, bool)   { return d, true }

// ConfigureVideo accepts RawVideoEncoding of any standard image format.
func (d *RawVideoDecoder) ConfigureVideo(pf VideoPacketFormat) error {
	return d.configure(func() error {
		img, ok := pf.Encoding.Raw()
		if !ok || img.IsVendor() {
			return fmt.Errorf("%w: %s is not raw video", ErrUnsupportedFormat, pf.Encoding)
		}
		d.format = VideoFrameFormat{ImageFormat: img, Resolution: pf.Resolution, FPS: pf.FPS}
		return nil
	})
}

func (d *RawVideoDecoder) VideoFormat() VideoFrameFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

func (d *RawVideoDecoder) OnPullVideo(_ *VideoPipeline) (*VideoFrame, error) {
	if !d.isConfigured() {
		return nil, ErrUnconfigured
	}
	pkt := d.reader.NextVideoPacket()
	if pkt == nil {
		d.finish(drained(d.reader, KindVideo))
		return nil, nil
	}
	if want := d.VideoFormat().FrameSize(); len(pkt.Data) != want {
		return nil, WrapElementError(d.Name(), "decode",
			fmt.Errorf("packet holds %d bytes, want %d", len(pkt.Data), want))
	}
	return &VideoFrame{Data: pkt.Data, Timestamp: pkt.Timestamp}, nil
}

// PCMDecoder turns signed 16-bit little-endian PCM packets into frames.
type PCMDecoder struct {
	BaseElement
	decoderState

	reader AudioPacketReader
	format AudioFrameFormat
}

// NewPCMDecoder creates a decoder reading packets from r.
func NewPCMDecoder(r AudioPacketReader) *PCMDecoder {
	return &PCMDecoder{BaseElement: NewBaseElement("pcmdec"), reader: r}
}

func (d *PCMDecoder) AsAudioDecoder() (AudioDecoder, bool) { return d, true }
func (d *PCMDecoder) AsAudioSource() (AudioSource, bool)   { return d, true }

// ConfigureAudio accepts AudioEncodingRaw with at least one channel.
func (d *PCMDecoder) ConfigureAudio(pf AudioPacketFormat) error {
	return d.configure(func() error {
		if pf.Encoding != AudioEncodingRaw {
			return fmt.Errorf("%w: %s is not PCM", ErrUnsupportedFormat, pf.Encoding)
		}
		if pf.Channels == 0 || pf.SampleRate <= 0 {
			return fmt.Errorf("%w: %d channels at %gHz", ErrUnsupportedFormat, pf.Channels, pf.SampleRate)
		}
		d.format = AudioFrameFormat{Channels: pf.Channels, SampleRate: pf.SampleRate}
		return nil
	})
}

func (d *PCMDecoder) AudioFormat() AudioFrameFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

func (d *PCMDecoder) OnPullAudio(_ *AudioPipeline) (*AudioFrame, error) {
	if !d.isConfigured() {
		return nil, ErrUnconfigured
	}
	pkt := d.reader.NextAudioPacket()
	if pkt == nil {
		d.finish(drained(d.reader, KindAudio))
		return nil, nil
	}
	frameBytes := 2 * int(d.AudioFormat().Channels)
	if len(pkt.Data)%frameBytes != 0 {
		return nil, WrapElementError(d.Name(), "decode",
			fmt.Errorf("packet of %d bytes is not a whole number of %d-byte sample frames", len(pkt.Data), frameBytes))
	}
	samples := make([]int16, len(pkt.Data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pkt.Data[2*i:]))
	}
	return &AudioFrame{Samples: samples, Timestamp: pkt.Timestamp}, nil
}

// TextSubtitleDecoder turns UTF-8 or UTF-16 subtitle packets into text cues.
// Invalid byte sequences are replaced with U+FFFD.
type TextSubtitleDecoder struct {
	BaseElement
	decoderState

	reader  SubtitlePacketReader
	format  SubtitleFrameFormat
	charset encoding.Encoding
}

// NewTextSubtitleDecoder creates a decoder reading packets from r.
func NewTextSubtitleDecoder(r SubtitlePacketReader) *TextSubtitleDecoder {
	return &TextSubtitleDecoder{BaseElement: NewBaseElement("textsubdec"), reader: r}
}

func (d *TextSubtitleDecoder) AsSubtitleDecoder() (SubtitleDecoder, bool) { return d, true }
func (d *TextSubtitleDecoder) AsSubtitleSource() (SubtitleSource, bool)   { return d, true }

// ConfigureSubtitle accepts the UTF-8 and UTF-16 encodings.
func (d *TextSubtitleDecoder) ConfigureSubtitle(pf SubtitlePacketFormat) error {
	return d.configure(func() error {
		switch pf.Encoding {
		case SubtitleEncodingUTF8:
			d.charset = unicode.UTF8
		case SubtitleEncodingUTF16:
			d.charset = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
		default:
			return fmt.Errorf("%w: %s is not a text subtitle encoding", ErrUnsupportedFormat, pf.Encoding)
		}
		d.format = SubtitleFrameFormat{Kind: SubtitleText, Language: pf.Language}
		return nil
	})
}

func (d *TextSubtitleDecoder) SubtitleFormat() SubtitleFrameFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

func (d *TextSubtitleDecoder) OnPullSubtitle(_ *SubtitlePipeline) (*SubtitleFrame, error) {
	if !d.isConfigured() {
		return nil, ErrUnconfigured
	}
	pkt := d.reader.NextSubtitlePacket()
	if pkt == nil {
		d.finish(drained(d.reader, KindSubtitle))
		return nil, nil
	}
	d.mu.Lock()
	dec := d.charset.NewDecoder()
	d.mu.Unlock()
	text, err := dec.Bytes(pkt.Data)
	if err != nil {
		return nil, WrapElementError(d.Name(), "decode", err)
	}
	return NewTextCue(string(text), pkt.Duration, pkt.Timestamp), nil
}
