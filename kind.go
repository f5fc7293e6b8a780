package streamer

import (
	"github.com/pion/webrtc/v4"
)

// MediaKind identifies which of the three per-kind contracts a link or
// transport belongs to.
type MediaKind int

const (
	KindVideo MediaKind = iota
	KindAudio
	KindSubtitle
)

// Kinds lists every media kind in a stable order.
var Kinds = [...]MediaKind{KindVideo, KindAudio, KindSubtitle}

func (k MediaKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// RTPCodecType maps the kind onto pion's track kind.
// Subtitles have no RTP counterpart and map to RTPCodecTypeUnknown.
func (k MediaKind) RTPCodecType() webrtc.RTPCodecType {
	switch k {
	case KindVideo:
		return webrtc.RTPCodecTypeVideo
	case KindAudio:
		return webrtc.RTPCodecTypeAudio
	default:
		return webrtc.RTPCodecTypeUnknown
	}
}

// KindFromRTPCodecType is the inverse of MediaKind.RTPCodecType.
func KindFromRTPCodecType(t webrtc.RTPCodecType) (MediaKind, bool) {
	switch t {
	case webrtc.RTPCodecTypeVideo:
		return KindVideo, true
	case webrtc.RTPCodecTypeAudio:
		return KindAudio, true
	default:
		return 0, false
	}
}
