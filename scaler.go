package streamer

import (
	"fmt"
	"image"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/draw"
)

// ScaleSampler selects the resampling filter of a Scale element.
type ScaleSampler int

const (
	ScaleSamplerBilinear   ScaleSampler = iota // Default
	ScaleSamplerNearest                        // Fastest
	ScaleSamplerCatmullRom                     // Bicubic
	ScaleSamplerLanczos                        // Lanczos3
)

func (s ScaleSampler) String() string {
	switch s {
	case ScaleSamplerBilinear:
		return "bilinear"
	case ScaleSamplerNearest:
		return "nearest"
	case ScaleSamplerCatmullRom:
		return "catmullrom"
	case ScaleSamplerLanczos:
		return "lanczos"
	default:
		return "unknown"
	}
}

// ParseScaleSampler parses a sampler name as printed by String.
func ParseScaleSampler(name string) (ScaleSampler, error) {
	switch strings.ToLower(name) {
	case "", "bilinear":
		return ScaleSamplerBilinear, nil
	case "nearest":
		return ScaleSamplerNearest, nil
	case "catmullrom", "bicubic":
		return ScaleSamplerCatmullRom, nil
	case "lanczos", "lanczos3":
		return ScaleSamplerLanczos, nil
	}
	return 0, fmt.Errorf("unknown sampler %q", name)
}

// lanczos3 is the Lanczos kernel with a = 3.
var lanczos3 = &draw.Kernel{Support: 3, At: func(t float64) float64 {
	if t == 0 {
		return 1
	}
	if t >= 3 {
		return 0
	}
	pt := math.Pi * t
	return 3 * math.Sin(pt) * math.Sin(pt/3) / (pt * pt)
}}

func (s ScaleSampler) interpolator() draw.Interpolator {
	switch s {
	case ScaleSamplerNearest:
		return draw.NearestNeighbor
	case ScaleSamplerCatmullRom:
		return draw.CatmullRom
	case ScaleSamplerLanczos:
		return lanczos3
	default:
		return draw.BiLinear
	}
}

// ScaleMode defines how scaling should handle aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch ScaleMode = iota
	// ScaleModeFit scales to fit within target dimensions, preserving aspect ratio (letterboxed with zeros).
	ScaleModeFit
	// ScaleModeFill scales to fill target dimensions, preserving aspect ratio (may crop).
	ScaleModeFill
)

// ScaleConfig configures a Scale element.
type ScaleConfig struct {
	Width   uint32
	Height  uint32
	Sampler ScaleSampler
	Mode    ScaleMode
}

// Scale is a video filter resizing frames to a fixed resolution. It keeps the
// pixel format and frame rate of its source and the timestamp of every frame.
// Every standard image format is supported; formats with alpha are resampled
// premultiplied unless the sampler is nearest neighbor.
type Scale struct {
	BaseElement

	cfg    ScaleConfig
	interp draw.Interpolator

	mu         sync.Mutex
	configured bool
	src        VideoFrameFormat
	scaled     uint64
}

// NewScale creates a scale filter.
func NewScale(cfg ScaleConfig) *Scale {
	return &Scale{
		BaseElement: NewBaseElement("scale"),
		cfg:         cfg,
		interp:      cfg.Sampler.interpolator(),
	}
}

func (s *Scale) AsVideoSink() (VideoSink, bool)     { return s, true }
func (s *Scale) AsVideoSource() (VideoSource, bool) { return s, true }

// AddVideoSource accepts any standard image format, once.
func (s *Scale) AddVideoSource(format VideoFrameFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configured {
		return ErrDuplicatedSource
	}
	if !format.ImageFormat.IsValid() || format.ImageFormat.IsVendor() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format.ImageFormat)
	}
	s.src = format
	s.configured = true
	return nil
}

// VideoFormat returns the source format at the destination resolution.
func (s *Scale) VideoFormat() VideoFrameFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	fps := StaticFPS
	if s.configured {
		fps = s.src.FPS
	}
	return VideoFrameFormat{
		ImageFormat: s.src.ImageFormat,
		Resolution:  Dimensions{Width: s.cfg.Width, Height: s.cfg.Height},
		FPS:         fps,
	}
}

func (s *Scale) OnPushVideo(p *VideoPipeline, frame *VideoFrame) error {
	out, err := s.Scale(frame)
	if err != nil {
		return err
	}
	return p.PushFrame(out)
}

func (s *Scale) OnPullVideo(p *VideoPipeline) (*VideoFrame, error) {
	frame, ok := p.PullFrame()
	if !ok {
		return nil, nil
	}
	return s.Scale(frame)
}

// Scaled returns the number of frames scaled so far.
func (s *Scale) Scaled() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scaled
}

// Scale resizes one frame in the negotiated source format.
func (s *Scale) Scale(frame *VideoFrame) (*VideoFrame, error) {
	s.mu.Lock()
	configured, src := s.configured, s.src
	s.mu.Unlock()

	if !configured {
		return nil, ErrUnconfigured
	}
	dst := Dimensions{Width: s.cfg.Width, Height: s.cfg.Height}
	if dst.IsZero() {
		return &VideoFrame{Data: []byte{}, Timestamp: frame.Timestamp}, nil
	}
	if want := src.FrameSize(); len(frame.Data) != want {
		return nil, WrapElementError(s.Name(), "resize",
			fmt.Errorf("frame holds %d bytes, want %d for %s", len(frame.Data), want, src))
	}

	data := resample(frame.Data, src.ImageFormat, src.Resolution, dst, s.cfg.Mode, s.cfg.Sampler, s.interp)

	s.mu.Lock()
	s.scaled++
	s.mu.Unlock()
	return &VideoFrame{Data: data, Timestamp: frame.Timestamp}, nil
}

// regions returns the source and destination rectangles for mode.
func regions(src, dst Dimensions, mode ScaleMode) (sr, dr image.Rectangle) {
	sw, sh := int(src.Width), int(src.Height)
	dw, dh := int(dst.Width), int(dst.Height)
	sr = image.Rect(0, 0, sw, sh)
	dr = image.Rect(0, 0, dw, dh)
	if sw == 0 || sh == 0 {
		return sr, dr
	}

	srcAspect := float64(sw) / float64(sh)
	dstAspect := float64(dw) / float64(dh)
	switch mode {
	case ScaleModeFit:
		if srcAspect > dstAspect {
			h := max(1, int(float64(dw)/srcAspect))
			dr = image.Rect(0, (dh-h)/2, dw, (dh-h)/2+h)
		} else if srcAspect < dstAspect {
			w := max(1, int(float64(dh)*srcAspect))
			dr = image.Rect((dw-w)/2, 0, (dw-w)/2+w, dh)
		}
	case ScaleModeFill:
		if srcAspect > dstAspect {
			w := max(1, int(float64(sh)*dstAspect))
			sr = image.Rect((sw-w)/2, 0, (sw-w)/2+w, sh)
		} else if srcAspect < dstAspect {
			h := max(1, int(float64(sw)/dstAspect))
			sr = image.Rect(0, (sh-h)/2, sw, (sh-h)/2+h)
		}
	}
	return sr, dr
}

// resample scales packed interleaved pixels channel by channel. Each channel
// becomes a grayscale plane so that every layout, CMYK included, goes
// through the same filter.
func resample(data []byte, format ImageFormat, src, dst Dimensions, mode ScaleMode, sampler ScaleSampler, interp draw.Interpolator) []byte {
	channels := format.Channels()
	wide := format.BytesPerChannel() == 2
	sw, sh := int(src.Width), int(src.Height)
	dw, dh := int(dst.Width), int(dst.Height)
	premul := format.HasAlpha() && sampler != ScaleSamplerNearest

	samples := deinterleave(data, channels, wide, sw*sh)
	if premul {
		premultiply(samples, wide)
	}

	sr, dr := regions(src, dst, mode)
	out := make([][]uint16, channels)
	for c := range samples {
		out[c] = scalePlane(samples[c], sw, sh, dw, dh, sr, dr, wide, interp)
	}

	if premul {
		unpremultiply(out, wide)
	}
	return interleave(out, wide, dw*dh)
}

func deinterleave(data []byte, channels int, wide bool, pixels int) [][]uint16 {
	planes := make([][]uint16, channels)
	for c := range planes {
		planes[c] = make([]uint16, pixels)
	}
	bpc := 1
	if wide {
		bpc = 2
	}
	for i := 0; i < pixels; i++ {
		base := i * channels * bpc
		for c := 0; c < channels; c++ {
			if wide {
				off := base + 2*c
				planes[c][i] = uint16(data[off])<<8 | uint16(data[off+1])
			} else {
				planes[c][i] = uint16(data[base+c])
			}
		}
	}
	return planes
}

func interleave(planes [][]uint16, wide bool, pixels int) []byte {
	channels := len(planes)
	bpc := 1
	if wide {
		bpc = 2
	}
	out := make([]byte, pixels*channels*bpc)
	for i := 0; i < pixels; i++ {
		base := i * channels * bpc
		for c := 0; c < channels; c++ {
			v := planes[c][i]
			if wide {
				out[base+2*c] = byte(v >> 8)
				out[base+2*c+1] = byte(v)
			} else {
				out[base+c] = byte(v)
			}
		}
	}
	return out
}

// premultiply scales every color plane by the last (alpha) plane.
func premultiply(planes [][]uint16, wide bool) {
	maxv := uint32(0xff)
	if wide {
		maxv = 0xffff
	}
	alpha := planes[len(planes)-1]
	for _, plane := range planes[:len(planes)-1] {
		for i, a := range alpha {
			plane[i] = uint16((uint32(plane[i])*uint32(a) + maxv/2) / maxv)
		}
	}
}

func unpremultiply(planes [][]uint16, wide bool) {
	maxv := uint32(0xff)
	if wide {
		maxv = 0xffff
	}
	alpha := planes[len(planes)-1]
	for _, plane := range planes[:len(planes)-1] {
		for i, a := range alpha {
			if a == 0 {
				plane[i] = 0
				continue
			}
			v := (uint32(plane[i])*maxv + uint32(a)/2) / uint32(a)
			plane[i] = uint16(min(v, maxv))
		}
	}
}

func scalePlane(samples []uint16, sw, sh, dw, dh int, sr, dr image.Rectangle, wide bool, interp draw.Interpolator) []uint16 {
	out := make([]uint16, dw*dh)
	if wide {
		src := image.NewGray16(image.Rect(0, 0, sw, sh))
		for i, v := range samples {
			src.Pix[2*i], src.Pix[2*i+1] = byte(v>>8), byte(v)
		}
		dst := image.NewGray16(image.Rect(0, 0, dw, dh))
		interp.Scale(dst, dr, src, sr, draw.Src, nil)
		for i := range out {
			out[i] = uint16(dst.Pix[2*i])<<8 | uint16(dst.Pix[2*i+1])
		}
		return out
	}

	src := image.NewGray(image.Rect(0, 0, sw, sh))
	for i, v := range samples {
		src.Pix[i] = byte(v)
	}
	dst := image.NewGray(image.Rect(0, 0, dw, dh))
	interp.Scale(dst, dr, src, sr, draw.Src, nil)
	for i, v := range dst.Pix {
		out[i] = uint16(v)
	}
	return out
}
