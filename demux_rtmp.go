package streamer

import (
	"bytes"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pion/logging"
	rtmp "github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

// FLV tag constants.
const (
	flvCodecAVC   = 7
	flvSoundAAC   = 10
	flvFrameKey   = 1
	flvAVCSeqHdr  = 0
	flvAVCNALU    = 1
	flvAACSeqHdr  = 0
	flvAACRawData = 1
)

// RTMPDemuxer turns one published RTMP stream into packets. H.264 video is
// emitted as Annex-B access units with SPS/PPS prepended to keyframes; AAC
// audio as raw access units. The stream ends when the publisher disconnects.
type RTMPDemuxer struct {
	*PacketQueue

	log logging.LeveledLogger

	mu         sync.Mutex
	streamName string
	sps, pps   []byte
	aac        *mpeg4audio.AudioSpecificConfig
	ready      chan struct{}
	readyOnce  sync.Once
}

// NewRTMPDemuxer creates a demuxer keeping at most queueLimit packets per
// kind.
func NewRTMPDemuxer(queueLimit int, lf logging.LoggerFactory) *RTMPDemuxer {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &RTMPDemuxer{
		PacketQueue: NewPacketQueue(queueLimit),
		log:         lf.NewLogger("demux"),
		ready:       make(chan struct{}),
	}
}

// ConnConfig returns the go-rtmp connection configuration routing a
// connection's media to d.
func (d *RTMPDemuxer) ConnConfig() *rtmp.ConnConfig {
	return &rtmp.ConnConfig{
		Handler: &rtmpHandler{d: d},
		ControlState: rtmp.StreamControlStateConfig{
			DefaultBandwidthWindowSize: 6 * 1024 * 1024,
		},
	}
}

// Ready is closed once the first video sequence header has been received.
func (d *RTMPDemuxer) Ready() <-chan struct{} { return d.ready }

// StreamName returns the name the publisher used.
func (d *RTMPDemuxer) StreamName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamName
}

// VideoPacketFormat returns the H.264 packet format.
func (d *RTMPDemuxer) VideoPacketFormat() VideoPacketFormat {
	return VideoPacketFormat{Encoding: VideoEncodingH264, FPS: StaticFPS}
}

// AudioPacketFormat returns the AAC packet format once the audio sequence
// header has been received.
func (d *RTMPDemuxer) AudioPacketFormat() (AudioPacketFormat, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.aac == nil {
		return AudioPacketFormat{}, false
	}
	return AudioPacketFormat{
		Encoding:   AudioEncodingAAC,
		Channels:   uint32(d.aac.ChannelCount),
		SampleRate: float64(d.aac.SampleRate),
	}, true
}

// rtmpTimestamp converts an RTMP millisecond timestamp.
func rtmpTimestamp(ms uint32) Timestamp {
	return Timestamp(int64(ms) * 1_000_000)
}

// handleVideo processes one FLV video tag body.
func (d *RTMPDemuxer) handleVideo(timestamp uint32, data []byte) error {
	if len(data) < 5 {
		return nil
	}
	frameType := data[0] >> 4
	if data[0]&0x0f != flvCodecAVC {
		return nil
	}
	body := data[5:]

	switch data[1] {
	case flvAVCSeqHdr:
		sps, pps := extractSPSPPS(body)
		if sps == nil {
			return nil
		}
		d.mu.Lock()
		d.sps, d.pps = sps, pps
		d.mu.Unlock()
		d.readyOnce.Do(func() { close(d.ready) })
		d.log.Debugf("rtmp: avc sequence header, sps %d bytes", len(sps))

	case flvAVCNALU:
		d.mu.Lock()
		sps, pps := d.sps, d.pps
		d.mu.Unlock()
		if sps == nil {
			return nil
		}

		var au h264.AVCC
		if err := au.Unmarshal(body); err != nil || len(au) == 0 {
			return nil
		}
		keyframe := frameType == flvFrameKey
		nalus := [][]byte(au)
		if keyframe {
			nalus = append([][]byte{sps, pps}, nalus...)
		}
		annexB, err := h264.AnnexB(nalus).Marshal()
		if err != nil {
			return err
		}
		d.PushVideo(&VideoPacket{Data: annexB, Timestamp: rtmpTimestamp(timestamp), Keyframe: keyframe})
	}
	return nil
}

// handleAudio processes one FLV audio tag body.
func (d *RTMPDemuxer) handleAudio(timestamp uint32, data []byte) error {
	if len(data) < 2 || data[0]>>4 != flvSoundAAC {
		return nil
	}
	switch data[1] {
	case flvAACSeqHdr:
		conf := &mpeg4audio.AudioSpecificConfig{}
		if err := conf.Unmarshal(data[2:]); err != nil {
			d.log.Debugf("rtmp: bad aac config: %v", err)
			return nil
		}
		d.mu.Lock()
		d.aac = conf
		d.mu.Unlock()
	case flvAACRawData:
		d.PushAudio(&AudioPacket{Data: cloneBytes(data[2:]), Timestamp: rtmpTimestamp(timestamp)})
	}
	return nil
}

// extractSPSPPS reads the first SPS and PPS of an AVCDecoderConfigurationRecord.
func extractSPSPPS(data []byte) (sps, pps []byte) {
	if len(data) < 8 {
		return
	}
	offset := 5
	numSPS := int(data[offset] & 0x1F)
	offset++

	for i := 0; i < numSPS && offset+2 <= len(data); i++ {
		length := int(data[offset])<<8 | int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			return nil, nil
		}
		if sps == nil {
			sps = cloneBytes(data[offset : offset+length])
		}
		offset += length
	}
	if offset >= len(data) {
		return sps, nil
	}

	numPPS := int(data[offset])
	offset++
	for i := 0; i < numPPS && offset+2 <= len(data); i++ {
		length := int(data[offset])<<8 | int(data[offset+1])
		offset += 2
		if offset+length > len(data) {
			break
		}
		if pps == nil {
			pps = cloneBytes(data[offset : offset+length])
		}
		offset += length
	}
	return sps, pps
}

type rtmpHandler struct {
	rtmp.DefaultHandler
	d *RTMPDemuxer
}

func (h *rtmpHandler) OnPublish(_ *rtmp.StreamContext, _ uint32, cmd *rtmpmsg.NetStreamPublish) error {
	h.d.mu.Lock()
	h.d.streamName = cmd.PublishingName
	h.d.mu.Unlock()
	h.d.log.Infof("rtmp: publishing %s", cmd.PublishingName)
	return nil
}

func (h *rtmpHandler) OnVideo(timestamp uint32, payload io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, payload); err != nil {
		return err
	}
	return h.d.handleVideo(timestamp, buf.Bytes())
}

func (h *rtmpHandler) OnAudio(timestamp uint32, payload io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, payload); err != nil {
		return err
	}
	return h.d.handleAudio(timestamp, buf.Bytes())
}

func (h *rtmpHandler) OnClose() {
	h.d.log.Infof("rtmp: publisher disconnected")
	h.d.Close()
}

var (
	_ Demuxer      = (*RTMPDemuxer)(nil)
	_ Drainer      = (*RTMPDemuxer)(nil)
	_ rtmp.Handler = (*rtmpHandler)(nil)
)
