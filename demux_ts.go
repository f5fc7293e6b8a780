package streamer

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"
	"github.com/pion/logging"
)

// TSDemuxerConfig configures a TSDemuxer.
type TSDemuxerConfig struct {
	// QueueLimit bounds the packets buffered per kind while another kind is
	// being read. The oldest packets are dropped past the limit.
	QueueLimit int

	LoggerFactory logging.LoggerFactory
}

// DefaultTSDemuxerConfig returns the default TS demuxer configuration.
func DefaultTSDemuxerConfig() TSDemuxerConfig {
	return TSDemuxerConfig{QueueLimit: 256}
}

// TSDemuxer reads an MPEG-TS stream lazily: every Next call reads TS packets
// only until a packet of the requested kind is available. H.264 and H.265
// access units are emitted in Annex-B form; AAC, Opus and AC-3 frames are
// emitted one per packet. Subtitles are not carried.
type TSDemuxer struct {
	log    logging.LeveledLogger
	reader *mpegts.Reader
	queue  *PacketQueue

	mu    sync.Mutex
	eof   bool
	err   error
	video VideoPacketFormat
	audio AudioPacketFormat

	hasVideo, hasAudio bool
}

// NewTSDemuxer reads the stream header (PAT/PMT) from r and selects the first
// supported video track and the first supported audio track.
func NewTSDemuxer(r io.Reader, cfg TSDemuxerConfig) (*TSDemuxer, error) {
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultTSDemuxerConfig().QueueLimit
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	d := &TSDemuxer{
		log:    cfg.LoggerFactory.NewLogger("demux"),
		reader: &mpegts.Reader{R: r},
		queue:  NewPacketQueue(cfg.QueueLimit),
		video:  VideoPacketFormat{FPS: StaticFPS},
	}
	if err := d.reader.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing mpegts reader: %w", err)
	}
	for _, track := range d.reader.Tracks() {
		d.setupTrack(track)
	}
	if !d.hasVideo && !d.hasAudio {
		return nil, fmt.Errorf("%w: no supported track", ErrUnsupportedFormat)
	}
	d.reader.OnDecodeError(func(err error) {
		d.log.Debugf("mpegts decode error: %v", err)
	})
	return d, nil
}

func (d *TSDemuxer) setupTrack(track *mpegts.Track) {
	switch codec := track.Codec.(type) {
	case *mpegts.CodecH264:
		if d.hasVideo {
			return
		}
		d.hasVideo = true
		d.video.Encoding = VideoEncodingH264
		d.reader.OnDataH264(track, func(pts, _ int64, au [][]byte) error {
			return d.pushVideo(pts, au, h264.IsRandomAccess(au))
		})
		d.log.Debugf("video track pid %d: h264", track.PID)

	case *mpegts.CodecH265:
		if d.hasVideo {
			return
		}
		d.hasVideo = true
		d.video.Encoding = VideoEncodingH265
		d.reader.OnDataH265(track, func(pts, _ int64, au [][]byte) error {
			return d.pushVideo(pts, au, h265.IsRandomAccess(au))
		})
		d.log.Debugf("video track pid %d: h265", track.PID)

	case *mpegts.CodecMPEG4Audio:
		if d.hasAudio {
			return
		}
		d.hasAudio = true
		rate := codec.Config.SampleRate
		if rate <= 0 {
			rate = 48000
		}
		d.audio = AudioPacketFormat{Encoding: AudioEncodingAAC, Channels: uint32(codec.Config.ChannelCount), SampleRate: float64(rate)}
		d.reader.OnDataMPEG4Audio(track, func(pts int64, aus [][]byte) error {
			d.pushAudio(pts, aus, 1024*90000/int64(rate))
			return nil
		})
		d.log.Debugf("audio track pid %d: aac %dHz", track.PID, rate)

	case *mpegts.CodecOpus:
		if d.hasAudio {
			return
		}
		d.hasAudio = true
		d.audio = AudioPacketFormat{Encoding: AudioEncodingOpus, Channels: uint32(codec.ChannelCount), SampleRate: 48000}
		d.reader.OnDataOpus(track, func(pts int64, packets [][]byte) error {
			d.pushAudio(pts, packets, 960*90000/48000)
			return nil
		})
		d.log.Debugf("audio track pid %d: opus", track.PID)

	case *mpegts.CodecAC3:
		if d.hasAudio {
			return
		}
		d.hasAudio = true
		d.audio = AudioPacketFormat{Encoding: AudioEncodingAC3, Channels: uint32(codec.ChannelCount), SampleRate: float64(codec.SampleRate)}
		d.reader.OnDataAC3(track, func(pts int64, frame []byte) error {
			d.pushAudio(pts, [][]byte{frame}, 0)
			return nil
		})
		d.log.Debugf("audio track pid %d: ac3", track.PID)

	default:
		d.log.Debugf("ignoring track pid %d (%T)", track.PID, track.Codec)
	}
}

// tsTimestamp converts a 90kHz timestamp.
func tsTimestamp(pts int64) Timestamp {
	return Timestamp(pts * 100000 / 9)
}

func (d *TSDemuxer) pushVideo(pts int64, au [][]byte, keyframe bool) error {
	if len(au) == 0 {
		return nil
	}
	data, err := h264.AnnexB(au).Marshal()
	if err != nil {
		return err
	}
	d.queue.PushVideo(&VideoPacket{Data: data, Timestamp: tsTimestamp(pts), Keyframe: keyframe})
	return nil
}

func (d *TSDemuxer) pushAudio(pts int64, frames [][]byte, frameTicks int64) {
	for i, f := range frames {
		d.queue.PushAudio(&AudioPacket{Data: f, Timestamp: tsTimestamp(pts + int64(i)*frameTicks)})
	}
}

// VideoPacketFormat returns the format of the selected video track.
func (d *TSDemuxer) VideoPacketFormat() (VideoPacketFormat, bool) {
	return d.video, d.hasVideo
}

// AudioPacketFormat returns the format of the selected audio track.
func (d *TSDemuxer) AudioPacketFormat() (AudioPacketFormat, bool) {
	return d.audio, d.hasAudio
}

// fill reads until ready reports a packet or the stream ends.
func (d *TSDemuxer) fill(ready func() bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for !ready() && !d.eof {
		if err := d.reader.Read(); err != nil {
			d.eof = true
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				d.err = err
				d.log.Warnf("mpegts read: %v", err)
			}
			d.queue.Close()
		}
	}
}

func (d *TSDemuxer) NextVideoPacket() *VideoPacket {
	if !d.hasVideo {
		return nil
	}
	var p *VideoPacket
	d.fill(func() bool {
		p = d.queue.NextVideoPacket()
		return p != nil
	})
	return p
}

func (d *TSDemuxer) NextAudioPacket() *AudioPacket {
	if !d.hasAudio {
		return nil
	}
	var p *AudioPacket
	d.fill(func() bool {
		p = d.queue.NextAudioPacket()
		return p != nil
	})
	return p
}

// NextSubtitlePacket always returns nil.
func (d *TSDemuxer) NextSubtitlePacket() *SubtitlePacket { return nil }

// Err returns the first non-EOF read error.
func (d *TSDemuxer) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Stats returns the packet counters.
func (d *TSDemuxer) Stats() PacketQueueStats { return d.queue.Stats() }

// TSWriter writes packets of one video and one audio track into an MPEG-TS
// stream. It is the inverse of TSDemuxer and is used to produce test inputs
// and recordings.
type TSWriter struct {
	w          *mpegts.Writer
	videoTrack *mpegts.Track
	audioTrack *mpegts.Track
}

// NewTSWriter creates a writer for H.264 video plus, when audioChannels is
// positive, an Opus track with that many channels.
func NewTSWriter(w io.Writer, audioChannels int) (*TSWriter, error) {
	tw := &TSWriter{videoTrack: &mpegts.Track{PID: 256, Codec: &mpegts.CodecH264{}}}
	tracks := []*mpegts.Track{tw.videoTrack}
	if audioChannels > 0 {
		tw.audioTrack = &mpegts.Track{PID: 257, Codec: &mpegts.CodecOpus{ChannelCount: audioChannels}}
		tracks = append(tracks, tw.audioTrack)
	}
	tw.w = &mpegts.Writer{W: w, Tracks: tracks}
	if err := tw.w.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing mpegts writer: %w", err)
	}
	return tw, nil
}

// WriteVideo writes one Annex-B access unit.
func (tw *TSWriter) WriteVideo(p *VideoPacket) error {
	var au h264.AnnexB
	if err := au.Unmarshal(p.Data); err != nil {
		return err
	}
	pts := int64(p.Timestamp) * 9 / 100000
	return tw.w.WriteH264(tw.videoTrack, pts, pts, au)
}

// WriteAudio writes one Opus packet.
func (tw *TSWriter) WriteAudio(p *AudioPacket) error {
	if tw.audioTrack == nil {
		return fmt.Errorf("%w: writer has no audio track", ErrUnsupportedFormat)
	}
	pts := int64(p.Timestamp) * 9 / 100000
	return tw.w.WriteOpus(tw.audioTrack, pts, [][]byte{p.Data})
}

var _ Demuxer = (*TSDemuxer)(nil)
