package streamer

import (
	"github.com/pion/webrtc/v4"
)

type videoCode uint8

const (
	videoUnknown videoCode = iota
	videoRaw
	videoJPEG
	videoPNG
	videoWEBP
	videoAV1
	videoAVS2
	videoH264
	videoH265
	videoVP8
	videoVP9
	videoTheora
	videoVendor
)

// VideoEncoding identifies how video packets are compressed.
// Values are comparable with ==.
type VideoEncoding struct {
	code   videoCode
	raw    ImageFormat
	vendor string
}

// Standard video encodings.
var (
	VideoEncodingJPEG   = VideoEncoding{code: videoJPEG}
	VideoEncodingPNG    = VideoEncoding{code: videoPNG}
	VideoEncodingWEBP   = VideoEncoding{code: videoWEBP}
	VideoEncodingAV1    = VideoEncoding{code: videoAV1}
	VideoEncodingAVS2   = VideoEncoding{code: videoAVS2}
	VideoEncodingH264   = VideoEncoding{code: videoH264}
	VideoEncodingH265   = VideoEncoding{code: videoH265}
	VideoEncodingVP8    = VideoEncoding{code: videoVP8}
	VideoEncodingVP9    = VideoEncoding{code: videoVP9}
	VideoEncodingTheora = VideoEncoding{code: videoTheora}
)

// RawVideoEncoding returns the encoding for uncompressed frames of the given layout.
func RawVideoEncoding(format ImageFormat) VideoEncoding {
	return VideoEncoding{code: videoRaw, raw: format}
}

// VendorVideoEncoding returns an encoding unknown to this package, tagged by name.
func VendorVideoEncoding(name string) VideoEncoding {
	return VideoEncoding{code: videoVendor, vendor: name}
}

// Raw returns the pixel layout of a raw encoding.
func (e VideoEncoding) Raw() (ImageFormat, bool) {
	return e.raw, e.code == videoRaw
}

// IsVendor reports whether e is a vendor extension encoding.
func (e VideoEncoding) IsVendor() bool { return e.code == videoVendor }

// VendorName returns the vendor tag, or "" for standard encodings.
func (e VideoEncoding) VendorName() string { return e.vendor }

// MimeType returns the MIME type for this encoding, "" when there is none.
func (e VideoEncoding) MimeType() string {
	switch e.code {
	case videoH264:
		return webrtc.MimeTypeH264
	case videoH265:
		return webrtc.MimeTypeH265
	case videoVP8:
		return webrtc.MimeTypeVP8
	case videoVP9:
		return webrtc.MimeTypeVP9
	case videoAV1:
		return webrtc.MimeTypeAV1
	case videoJPEG:
		return "image/jpeg"
	case videoPNG:
		return "image/png"
	case videoWEBP:
		return "image/webp"
	default:
		return ""
	}
}

func (e VideoEncoding) String() string {
	switch e.code {
	case videoRaw:
		return "Raw(" + e.raw.String() + ")"
	case videoJPEG:
		return "JPEG"
	case videoPNG:
		return "PNG"
	case videoWEBP:
		return "WEBP"
	case videoAV1:
		return "AV1"
	case videoAVS2:
		return "AVS2"
	case videoH264:
		return "H264"
	case videoH265:
		return "H265"
	case videoVP8:
		return "VP8"
	case videoVP9:
		return "VP9"
	case videoTheora:
		return "Theora"
	case videoVendor:
		return "Vendor(" + e.vendor + ")"
	default:
		return "Unknown"
	}
}

// AudioEncoding identifies how audio packets are compressed.
type AudioEncoding struct {
	code   uint8
	vendor string
}

const (
	audioUnknown uint8 = iota
	audioRaw
	audioAAC
	audioAC3
	audioFLAC
	audioOpus
	audioOpenCore
	audioVisualOn
	audioVorbis
	audioWavPack
	audioVendor
)

// Standard audio encodings.
var (
	AudioEncodingRaw      = AudioEncoding{code: audioRaw} // Signed 16-bit little-endian PCM
	AudioEncodingAAC      = AudioEncoding{code: audioAAC}
	AudioEncodingAC3      = AudioEncoding{code: audioAC3}
	AudioEncodingFLAC     = AudioEncoding{code: audioFLAC}
	AudioEncodingOpus     = AudioEncoding{code: audioOpus}
	AudioEncodingOpenCore = AudioEncoding{code: audioOpenCore} // AMR via opencore
	AudioEncodingVisualOn = AudioEncoding{code: audioVisualOn} // AMR-WB via VisualOn
	AudioEncodingVorbis   = AudioEncoding{code: audioVorbis}
	AudioEncodingWavPack  = AudioEncoding{code: audioWavPack}
)

// VendorAudioEncoding returns an encoding unknown to this package, tagged by name.
func VendorAudioEncoding(name string) AudioEncoding {
	return AudioEncoding{code: audioVendor, vendor: name}
}

// IsVendor reports whether e is a vendor extension encoding.
func (e AudioEncoding) IsVendor() bool { return e.code == audioVendor }

// VendorName returns the vendor tag, or "" for standard encodings.
func (e AudioEncoding) VendorName() string { return e.vendor }

// MimeType returns the MIME type for this encoding, "" when there is none.
func (e AudioEncoding) MimeType() string {
	switch e.code {
	case audioOpus:
		return webrtc.MimeTypeOpus
	case audioAAC:
		return "audio/aac"
	case audioFLAC:
		return "audio/flac"
	case audioVorbis:
		return "audio/vorbis"
	case audioAC3:
		return "audio/ac3"
	default:
		return ""
	}
}

func (e AudioEncoding) String() string {
	switch e.code {
	case audioRaw:
		return "Raw"
	case audioAAC:
		return "AAC"
	case audioAC3:
		return "AC3"
	case audioFLAC:
		return "FLAC"
	case audioOpus:
		return "Opus"
	case audioOpenCore:
		return "OpenCore"
	case audioVisualOn:
		return "VisualOn"
	case audioVorbis:
		return "Vorbis"
	case audioWavPack:
		return "WavPack"
	case audioVendor:
		return "Vendor(" + e.vendor + ")"
	default:
		return "Unknown"
	}
}

// SubtitleEncoding identifies how subtitle packets are encoded.
type SubtitleEncoding struct {
	code   uint8
	vendor string
}

const (
	subtitleUnknown uint8 = iota
	subtitleUTF8
	subtitleUTF16
	subtitleARIB
	subtitleDVDSub
	subtitleDVB
	subtitleVendor
)

// Standard subtitle encodings.
var (
	SubtitleEncodingUTF8   = SubtitleEncoding{code: subtitleUTF8}
	SubtitleEncodingUTF16  = SubtitleEncoding{code: subtitleUTF16} // Little-endian unless a BOM says otherwise
	SubtitleEncodingARIB   = SubtitleEncoding{code: subtitleARIB}
	SubtitleEncodingDVDSub = SubtitleEncoding{code: subtitleDVDSub}
	SubtitleEncodingDVB    = SubtitleEncoding{code: subtitleDVB}
)

// VendorSubtitleEncoding returns an encoding unknown to this package, tagged by name.
func VendorSubtitleEncoding(name string) SubtitleEncoding {
	return SubtitleEncoding{code: subtitleVendor, vendor: name}
}

// IsVendor reports whether e is a vendor extension encoding.
func (e SubtitleEncoding) IsVendor() bool { return e.code == subtitleVendor }

// VendorName returns the vendor tag, or "" for standard encodings.
func (e SubtitleEncoding) VendorName() string { return e.vendor }

// IsText reports whether packets carry character data rather than bitmaps.
func (e SubtitleEncoding) IsText() bool {
	return e.code == subtitleUTF8 || e.code == subtitleUTF16
}

func (e SubtitleEncoding) String() string {
	switch e.code {
	case subtitleUTF8:
		return "UTF8"
	case subtitleUTF16:
		return "UTF16"
	case subtitleARIB:
		return "ARIB"
	case subtitleDVDSub:
		return "DVDSub"
	case subtitleDVB:
		return "DVB"
	case subtitleVendor:
		return "Vendor(" + e.vendor + ")"
	default:
		return "Unknown"
	}
}
