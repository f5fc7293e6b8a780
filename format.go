// Raw frame shape descriptors negotiated between linked elements.
package streamer

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
)

type imageCode uint8

const (
	imageUnknown imageCode = iota
	imageLuma8
	imageLumaA8
	imageLuma16
	imageLumaA16
	imageRGB8
	imageRGBA8
	imageRGB16
	imageRGBA16
	imageCMYK8
	imageCMYK16
	imageVendor
)

// ImageFormat describes the pixel layout of a raw video frame.
// The zero value is not a valid format. Values are comparable with ==.
//
// Samples are packed and interleaved. 16-bit samples are stored big-endian,
// matching the layout of the image package.
type ImageFormat struct {
	code   imageCode
	vendor string
}

// Standard image formats.
var (
	ImageFormatLuma8   = ImageFormat{code: imageLuma8}   // 8-bit grayscale
	ImageFormatLumaA8  = ImageFormat{code: imageLumaA8}  // 8-bit grayscale + alpha
	ImageFormatLuma16  = ImageFormat{code: imageLuma16}  // 16-bit grayscale
	ImageFormatLumaA16 = ImageFormat{code: imageLumaA16} // 16-bit grayscale + alpha
	ImageFormatRGB8    = ImageFormat{code: imageRGB8}    // Packed RGB, 3 bytes per pixel
	ImageFormatRGBA8   = ImageFormat{code: imageRGBA8}   // Packed RGBA, 4 bytes per pixel
	ImageFormatRGB16   = ImageFormat{code: imageRGB16}   // Packed RGB, 6 bytes per pixel
	ImageFormatRGBA16  = ImageFormat{code: imageRGBA16}  // Packed RGBA, 8 bytes per pixel
	ImageFormatCMYK8   = ImageFormat{code: imageCMYK8}   // Packed CMYK, 4 bytes per pixel
	ImageFormatCMYK16  = ImageFormat{code: imageCMYK16}  // Packed CMYK, 8 bytes per pixel
)

// VendorImageFormat returns an image format unknown to this package, tagged by name.
// Vendor formats carry no layout information; elements that need one must
// reject them with ErrUnsupportedFormat.
func VendorImageFormat(name string) ImageFormat {
	return ImageFormat{code: imageVendor, vendor: name}
}

// IsValid reports whether f is a standard or vendor format.
func (f ImageFormat) IsValid() bool {
	return f.code != imageUnknown && f.code <= imageVendor
}

// IsVendor reports whether f is a vendor extension format.
func (f ImageFormat) IsVendor() bool { return f.code == imageVendor }

// VendorName returns the vendor tag, or "" for standard formats.
func (f ImageFormat) VendorName() string { return f.vendor }

// HasAlpha reports whether the format carries an alpha channel.
// Vendor formats always report false.
func (f ImageFormat) HasAlpha() bool {
	switch f.code {
	case imageLumaA8, imageLumaA16, imageRGBA8, imageRGBA16:
		return true
	default:
		return false
	}
}

// Channels returns the number of interleaved channels per pixel, 0 for vendor formats.
func (f ImageFormat) Channels() int {
	switch f.code {
	case imageLuma8, imageLuma16:
		return 1
	case imageLumaA8, imageLumaA16:
		return 2
	case imageRGB8, imageRGB16:
		return 3
	case imageRGBA8, imageRGBA16, imageCMYK8, imageCMYK16:
		return 4
	default:
		return 0
	}
}

// BytesPerChannel returns 1 or 2 for standard formats and 0 for vendor formats.
func (f ImageFormat) BytesPerChannel() int {
	switch f.code {
	case imageLuma8, imageLumaA8, imageRGB8, imageRGBA8, imageCMYK8:
		return 1
	case imageLuma16, imageLumaA16, imageRGB16, imageRGBA16, imageCMYK16:
		return 2
	default:
		return 0
	}
}

// BytesPerPixel returns the packed pixel size in bytes.
func (f ImageFormat) BytesPerPixel() int {
	return f.Channels() * f.BytesPerChannel()
}

// FrameSize returns the payload size of one frame of the given dimensions.
func (f ImageFormat) FrameSize(d Dimensions) int {
	return int(d.Width) * int(d.Height) * f.BytesPerPixel()
}

func (f ImageFormat) String() string {
	switch f.code {
	case imageLuma8:
		return "Luma8"
	case imageLumaA8:
		return "LumaA8"
	case imageLuma16:
		return "Luma16"
	case imageLumaA16:
		return "LumaA16"
	case imageRGB8:
		return "RGB8"
	case imageRGBA8:
		return "RGBA8"
	case imageRGB16:
		return "RGB16"
	case imageRGBA16:
		return "RGBA16"
	case imageCMYK8:
		return "CMYK8"
	case imageCMYK16:
		return "CMYK16"
	case imageVendor:
		return "Vendor(" + f.vendor + ")"
	default:
		return "Unknown"
	}
}

// Dimensions is a frame size in pixels.
type Dimensions struct {
	Width  uint32
	Height uint32
}

// Compare orders dimensions by width, then height. It is a convenience
// ordering only and does not mean one size fits within the other.
func (d Dimensions) Compare(o Dimensions) int {
	switch {
	case d.Width < o.Width:
		return -1
	case d.Width > o.Width:
		return 1
	case d.Height < o.Height:
		return -1
	case d.Height > o.Height:
		return 1
	default:
		return 0
	}
}

// Less reports whether d orders before o.
func (d Dimensions) Less(o Dimensions) bool { return d.Compare(o) < 0 }

// IsZero reports whether either side is zero.
func (d Dimensions) IsZero() bool { return d.Width == 0 || d.Height == 0 }

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// StaticFPS marks a video format whose frame rate is static or unknown.
var StaticFPS = math.NaN()

// VideoFrameFormat describes the frames a video source produces.
type VideoFrameFormat struct {
	ImageFormat ImageFormat
	Resolution  Dimensions
	FPS         float64 // NaN (StaticFPS) if static
}

// IsStatic reports whether the frame rate is static or unknown.
func (f VideoFrameFormat) IsStatic() bool { return math.IsNaN(f.FPS) }

// Equal compares two formats field by field, treating two NaN frame rates as equal.
func (f VideoFrameFormat) Equal(o VideoFrameFormat) bool {
	if f.ImageFormat != o.ImageFormat || f.Resolution != o.Resolution {
		return false
	}
	if f.IsStatic() || o.IsStatic() {
		return f.IsStatic() == o.IsStatic()
	}
	return f.FPS == o.FPS
}

// FrameSize returns the payload size of one frame in this format.
func (f VideoFrameFormat) FrameSize() int {
	return f.ImageFormat.FrameSize(f.Resolution)
}

func (f VideoFrameFormat) String() string {
	if f.IsStatic() {
		return fmt.Sprintf("%s %s static", f.ImageFormat, f.Resolution)
	}
	return fmt.Sprintf("%s %s @%.3gfps", f.ImageFormat, f.Resolution, f.FPS)
}

// AudioFrameFormat describes the samples an audio source produces.
// Samples are interleaved signed 16-bit.
type AudioFrameFormat struct {
	Channels   uint32
	SampleRate float64
}

func (f AudioFrameFormat) String() string {
	return fmt.Sprintf("%dch %gHz", f.Channels, f.SampleRate)
}

// SubtitleKind distinguishes text cues from bitmap subtitles.
type SubtitleKind int

const (
	SubtitleText  SubtitleKind = iota // Text cue with a display duration
	SubtitleImage                     // Bitmap subtitle
)

func (k SubtitleKind) String() string {
	switch k {
	case SubtitleText:
		return "Text"
	case SubtitleImage:
		return "Image"
	default:
		return "Unknown"
	}
}

// SubtitleFrameFormat describes the cues a subtitle source produces.
type SubtitleFrameFormat struct {
	Kind     SubtitleKind
	Language language.Tag // language.Und when unknown
}

func (f SubtitleFrameFormat) String() string {
	return fmt.Sprintf("%s (%s)", f.Kind, f.Language)
}

// VideoPacketFormat describes compressed video handed to a decoder.
type VideoPacketFormat struct {
	Encoding   VideoEncoding
	Resolution Dimensions // Coded size, zero if carried in-band
	FPS        float64    // NaN if unknown
}

// AudioPacketFormat describes compressed audio handed to a decoder.
type AudioPacketFormat struct {
	Encoding   AudioEncoding
	Channels   uint32
	SampleRate float64
}

// SubtitlePacketFormat describes compressed subtitles handed to a decoder.
type SubtitlePacketFormat struct {
	Encoding SubtitleEncoding
	Language language.Tag
}
