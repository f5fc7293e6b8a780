// Core packet and frame types exchanged between elements.
package streamer

import (
	"time"
)

// Timestamp is a presentation time in nanoseconds relative to the start of
// the stream.
type Timestamp int64

// Duration converts the timestamp to a time.Duration.
func (t Timestamp) Duration() time.Duration { return time.Duration(t) }

// TimestampFromDuration converts a time.Duration to a Timestamp.
func TimestampFromDuration(d time.Duration) Timestamp { return Timestamp(d) }

// VideoPacket holds one compressed video access unit.
type VideoPacket struct {
	Data      []byte
	Timestamp Timestamp
	Keyframe  bool // Decodable without previous packets
}

// AudioPacket holds one compressed audio frame.
type AudioPacket struct {
	Data      []byte
	Timestamp Timestamp
}

// SubtitlePacket holds one encoded subtitle cue.
type SubtitlePacket struct {
	Data      []byte
	Timestamp Timestamp
	Duration  time.Duration // Display duration when the container carries one
}

// Clone creates a deep copy of the packet.
func (p *VideoPacket) Clone() *VideoPacket {
	return &VideoPacket{Data: cloneBytes(p.Data), Timestamp: p.Timestamp, Keyframe: p.Keyframe}
}

// Clone creates a deep copy of the packet.
func (p *AudioPacket) Clone() *AudioPacket {
	return &AudioPacket{Data: cloneBytes(p.Data), Timestamp: p.Timestamp}
}

// Clone creates a deep copy of the packet.
func (p *SubtitlePacket) Clone() *SubtitlePacket {
	return &SubtitlePacket{Data: cloneBytes(p.Data), Timestamp: p.Timestamp, Duration: p.Duration}
}

// VideoFrame is one decoded picture. Data is packed in the layout of the
// producing source's VideoFrameFormat.
type VideoFrame struct {
	Data      []byte
	Timestamp Timestamp
}

// Clone creates a deep copy of the video frame.
// Use this when you need to keep the frame data beyond its original lifetime.
func (f *VideoFrame) Clone() *VideoFrame {
	return &VideoFrame{Data: cloneBytes(f.Data), Timestamp: f.Timestamp}
}

// AudioFrame is a block of decoded interleaved signed 16-bit samples.
type AudioFrame struct {
	Samples   []int16
	Timestamp Timestamp
}

// SampleCount returns the number of samples per channel.
func (f *AudioFrame) SampleCount(channels int) int {
	if channels <= 0 {
		return 0
	}
	return len(f.Samples) / channels
}

// Clone creates a deep copy of the audio frame.
func (f *AudioFrame) Clone() *AudioFrame {
	clone := &AudioFrame{Timestamp: f.Timestamp}
	if f.Samples != nil {
		clone.Samples = make([]int16, len(f.Samples))
		copy(clone.Samples, f.Samples)
	}
	return clone
}

// SubtitleFrame is one decoded subtitle cue. Text cues carry Text and
// Duration; image cues carry the bitmap payload in Image.
type SubtitleFrame struct {
	Kind      SubtitleKind
	Text      string
	Duration  time.Duration
	Image     []byte
	Timestamp Timestamp
}

// NewTextCue returns a text subtitle frame.
func NewTextCue(text string, duration time.Duration, ts Timestamp) *SubtitleFrame {
	return &SubtitleFrame{Kind: SubtitleText, Text: text, Duration: duration, Timestamp: ts}
}

// NewImageCue returns an image subtitle frame.
func NewImageCue(image []byte, ts Timestamp) *SubtitleFrame {
	return &SubtitleFrame{Kind: SubtitleImage, Image: image, Timestamp: ts}
}

// Clone creates a deep copy of the subtitle frame.
func (f *SubtitleFrame) Clone() *SubtitleFrame {
	clone := *f
	clone.Image = cloneBytes(f.Image)
	return &clone
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
