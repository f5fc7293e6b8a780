package streamer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

// RTPStreamConfig describes one RTP stream carried to an RTPDemuxer.
type RTPStreamConfig struct {
	PayloadType uint8
	MimeType    string // webrtc.MimeTypeH264, webrtc.MimeTypeOpus, ...
	ClockRate   uint32
	Channels    uint32 // Audio only
}

// RTPDemuxerConfig configures an RTPDemuxer. At least one of Video and Audio
// must be set.
type RTPDemuxerConfig struct {
	Video *RTPStreamConfig
	Audio *RTPStreamConfig

	// MaxLate is the number of packets the sample builder waits for a
	// missing packet before dropping it.
	MaxLate uint16

	QueueLimit    int
	LoggerFactory logging.LoggerFactory
}

// DefaultRTPDemuxerConfig returns the default configuration without streams.
func DefaultRTPDemuxerConfig() RTPDemuxerConfig {
	return RTPDemuxerConfig{MaxLate: 128, QueueLimit: 256}
}

type rtpStream struct {
	cfg      RTPStreamConfig
	builder  *samplebuilder.SampleBuilder
	first    uint32
	started  bool
	isVideo  bool
	keyframe func([]byte) bool
}

// RTPDemuxer reassembles RTP packets into compressed packets with pion's
// sample builder. Packets are fed with Push or Consume; the demuxer is a
// Drainer, so readers wait for Close before treating nil as the end.
type RTPDemuxer struct {
	*PacketQueue

	log   logging.LeveledLogger
	mu    sync.Mutex
	video *rtpStream
	audio *rtpStream

	videoFormat VideoPacketFormat
	audioFormat AudioPacketFormat
	unknown     uint64
}

// NewRTPDemuxer creates a demuxer for the configured streams.
func NewRTPDemuxer(cfg RTPDemuxerConfig) (*RTPDemuxer, error) {
	def := DefaultRTPDemuxerConfig()
	if cfg.MaxLate == 0 {
		cfg.MaxLate = def.MaxLate
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = def.QueueLimit
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
	if cfg.Video == nil && cfg.Audio == nil {
		return nil, errors.New("no rtp stream configured")
	}

	d := &RTPDemuxer{
		PacketQueue: NewPacketQueue(cfg.QueueLimit),
		log:         cfg.LoggerFactory.NewLogger("demux"),
	}
	if cfg.Video != nil {
		enc, depack, keyframe, err := videoDepacketizer(cfg.Video.MimeType)
		if err != nil {
			return nil, err
		}
		d.video = newRTPStream(*cfg.Video, cfg.MaxLate, depack, true)
		d.video.keyframe = keyframe
		d.videoFormat = VideoPacketFormat{Encoding: enc, FPS: StaticFPS}
	}
	if cfg.Audio != nil {
		if !strings.EqualFold(cfg.Audio.MimeType, webrtc.MimeTypeOpus) {
			return nil, fmt.Errorf("%w: rtp audio %s", ErrUnsupportedFormat, cfg.Audio.MimeType)
		}
		d.audio = newRTPStream(*cfg.Audio, cfg.MaxLate, &codecs.OpusPacket{}, false)
		channels := cfg.Audio.Channels
		if channels == 0 {
			channels = 2
		}
		d.audioFormat = AudioPacketFormat{Encoding: AudioEncodingOpus, Channels: channels, SampleRate: float64(d.audio.cfg.ClockRate)}
	}
	return d, nil
}

func newRTPStream(cfg RTPStreamConfig, maxLate uint16, depack rtp.Depacketizer, video bool) *rtpStream {
	if cfg.ClockRate == 0 {
		cfg.ClockRate = 90000
		if !video {
			cfg.ClockRate = 48000
		}
	}
	return &rtpStream{
		cfg:     cfg,
		builder: samplebuilder.New(maxLate, depack, cfg.ClockRate),
		isVideo: video,
	}
}

func videoDepacketizer(mime string) (VideoEncoding, rtp.Depacketizer, func([]byte) bool, error) {
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeH264):
		return VideoEncodingH264, &codecs.H264Packet{}, annexBKeyframe, nil
	case strings.EqualFold(mime, webrtc.MimeTypeVP8):
		return VideoEncodingVP8, &codecs.VP8Packet{}, vp8Keyframe, nil
	case strings.EqualFold(mime, webrtc.MimeTypeVP9):
		return VideoEncodingVP9, &codecs.VP9Packet{}, nil, nil
	}
	return VideoEncoding{}, nil, nil, fmt.Errorf("%w: rtp video %s", ErrUnsupportedFormat, mime)
}

func annexBKeyframe(data []byte) bool {
	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return false
	}
	return h264.IsRandomAccess(au)
}

// vp8Keyframe reads the P bit of the VP8 frame tag.
func vp8Keyframe(data []byte) bool {
	return len(data) > 0 && data[0]&0x01 == 0
}

// VideoPacketFormat returns the configured video packet format.
func (d *RTPDemuxer) VideoPacketFormat() (VideoPacketFormat, bool) {
	return d.videoFormat, d.video != nil
}

// AudioPacketFormat returns the configured audio packet format.
func (d *RTPDemuxer) AudioPacketFormat() (AudioPacketFormat, bool) {
	return d.audioFormat, d.audio != nil
}

// Push feeds one RTP packet. Packets of unknown payload types are counted
// and ignored.
func (d *RTPDemuxer) Push(pkt *rtp.Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var s *rtpStream
	switch {
	case d.video != nil && pkt.PayloadType == d.video.cfg.PayloadType:
		s = d.video
	case d.audio != nil && pkt.PayloadType == d.audio.cfg.PayloadType:
		s = d.audio
	default:
		d.unknown++
		return
	}

	s.builder.Push(pkt)
	for sample := s.builder.Pop(); sample != nil; sample = s.builder.Pop() {
		if !s.started {
			s.first = sample.PacketTimestamp
			s.started = true
		}
		ticks := int64(sample.PacketTimestamp - s.first)
		ts := Timestamp(ticks * 1_000_000_000 / int64(s.cfg.ClockRate))
		if s.isVideo {
			keyframe := s.keyframe == nil || s.keyframe(sample.Data)
			d.PushVideo(&VideoPacket{Data: sample.Data, Timestamp: ts, Keyframe: keyframe})
		} else {
			d.PushAudio(&AudioPacket{Data: sample.Data, Timestamp: ts})
		}
	}
}

// Consume reads RTP packets from r until it fails or ctx is done. The
// demuxer is closed when r reaches io.EOF.
func (d *RTPDemuxer) Consume(ctx context.Context, r interceptor.RTPReader) error {
	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, _, err := r.Read(buf, interceptor.Attributes{})
		if err != nil {
			if errors.Is(err, io.EOF) {
				return d.Close()
			}
			return err
		}
		// Unmarshal aliases its input, and the sample builder keeps packets.
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(cloneBytes(buf[:n])); err != nil {
			d.log.Debugf("dropping malformed rtp packet: %v", err)
			continue
		}
		d.Push(pkt)
	}
}

// Unknown returns the number of packets with an unconfigured payload type.
func (d *RTPDemuxer) Unknown() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unknown
}

var (
	_ Demuxer = (*RTPDemuxer)(nil)
	_ Drainer = (*RTPDemuxer)(nil)
)
