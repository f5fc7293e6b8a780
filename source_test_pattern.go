package streamer

import (
	"math"
	"sync"
	"time"
)

// PatternType defines the type of test pattern to generate.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternNoise                           // Random noise
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternNoise:
		return "Noise"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// TestPatternConfig configures a test pattern source.
type TestPatternConfig struct {
	Width   uint32      // Frame width (default: 1280)
	Height  uint32      // Frame height (default: 720)
	FPS     float64     // Frames per second (default: 30)
	Pattern PatternType // Pattern type (default: ColorBars)
	Frames  uint64      // Number of frames to produce, 0 for unbounded

	// Realtime paces frames at FPS; otherwise every pull yields a frame.
	Realtime bool

	// For SolidColor pattern
	SolidR, SolidG, SolidB uint8

	// For Checkerboard pattern
	CheckerSize int // Size of each checker square (default: 32)
}

// DefaultTestPatternConfig returns a default test pattern configuration.
func DefaultTestPatternConfig() TestPatternConfig {
	return TestPatternConfig{
		Width:       1280,
		Height:      720,
		FPS:         30,
		Pattern:     PatternColorBars,
		CheckerSize: 32,
	}
}

// TestPatternSource generates synthetic RGB8 video frames. Timestamps advance
// by one frame duration per frame starting at zero.
type TestPatternSource struct {
	BaseElement

	config        TestPatternConfig
	frameDuration time.Duration

	mu         sync.Mutex
	frameCount uint64
	startTime  time.Time
	rngState   uint64
	pattern    []byte // static patterns are rendered once
}

// NewTestPatternSource creates a new test pattern video source.
func NewTestPatternSource(config TestPatternConfig) *TestPatternSource {
	def := DefaultTestPatternConfig()
	if config.Width == 0 {
		config.Width = def.Width
	}
	if config.Height == 0 {
		config.Height = def.Height
	}
	if config.FPS <= 0 || math.IsNaN(config.FPS) {
		config.FPS = def.FPS
	}
	if config.CheckerSize <= 0 {
		config.CheckerSize = def.CheckerSize
	}

	return &TestPatternSource{
		BaseElement:   NewBaseElement("testpattern"),
		config:        config,
		frameDuration: time.Duration(float64(time.Second) / config.FPS),
		rngState:      0x9e3779b97f4a7c15,
	}
}

func (s *TestPatternSource) AsVideoSource() (VideoSource, bool) { return s, true }

func (s *TestPatternSource) VideoFormat() VideoFrameFormat {
	return VideoFrameFormat{
		ImageFormat: ImageFormatRGB8,
		Resolution:  Dimensions{Width: s.config.Width, Height: s.config.Height},
		FPS:         s.config.FPS,
	}
}

// OnPullVideo renders the next frame. It returns nil once Frames frames have
// been produced, or, in realtime mode, while the next frame is not yet due.
func (s *TestPatternSource) OnPullVideo(_ *VideoPipeline) (*VideoFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Frames > 0 && s.frameCount >= s.config.Frames {
		return nil, nil
	}
	ts := time.Duration(s.frameCount) * s.frameDuration
	if s.config.Realtime {
		if s.startTime.IsZero() {
			s.startTime = time.Now()
		}
		if time.Since(s.startTime) < ts {
			return nil, nil
		}
	}

	frame := &VideoFrame{Data: s.render(s.frameCount), Timestamp: TimestampFromDuration(ts)}
	s.frameCount++
	return frame, nil
}

// Finished reports whether the configured number of frames was produced.
func (s *TestPatternSource) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Frames > 0 && s.frameCount >= s.config.Frames
}

// FrameCount returns the number of frames produced so far.
func (s *TestPatternSource) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCount
}

// Config returns the source configuration.
func (s *TestPatternSource) Config() TestPatternConfig { return s.config }

func (s *TestPatternSource) render(frameNum uint64) []byte {
	switch s.config.Pattern {
	case PatternNoise:
		return s.generateNoise()
	case PatternMovingBox:
		return s.generateMovingBox(frameNum)
	}
	if s.pattern == nil {
		switch s.config.Pattern {
		case PatternGradient:
			s.pattern = s.generateGradient()
		case PatternCheckerboard:
			s.pattern = s.generateCheckerboard()
		case PatternSolidColor:
			s.pattern = s.generateSolidColor(s.config.SolidR, s.config.SolidG, s.config.SolidB)
		default:
			s.pattern = s.generateColorBars()
		}
	}
	return cloneBytes(s.pattern)
}

func (s *TestPatternSource) newFrame() ([]byte, int, int) {
	w, h := int(s.config.Width), int(s.config.Height)
	return make([]byte, w*h*3), w, h
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (s *TestPatternSource) generateColorBars() []byte {
	buf, w, h := s.newFrame()
	barWidth := max(1, w/8)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			barIdx := min(x/barWidth, 7)
			copy(buf[(y*w+x)*3:], colorBarsRGB[barIdx][:])
		}
	}
	return buf
}

func (s *TestPatternSource) generateGradient() []byte {
	buf, w, h := s.newFrame()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Horizontal gradient from black to white
			v := uint8((x * 255) / max(1, w-1))
			i := (y*w + x) * 3
			buf[i], buf[i+1], buf[i+2] = v, v, v
		}
	}
	return buf
}

func (s *TestPatternSource) generateCheckerboard() []byte {
	buf, w, h := s.newFrame()
	size := s.config.CheckerSize

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v uint8 = 16
			if ((x/size)+(y/size))%2 == 0 {
				v = 235
			}
			i := (y*w + x) * 3
			buf[i], buf[i+1], buf[i+2] = v, v, v
		}
	}
	return buf
}

func (s *TestPatternSource) generateSolidColor(r, g, b uint8) []byte {
	buf, _, _ := s.newFrame()
	for i := 0; i < len(buf); i += 3 {
		buf[i], buf[i+1], buf[i+2] = r, g, b
	}
	return buf
}

func (s *TestPatternSource) generateNoise() []byte {
	buf, _, _ := s.newFrame()
	// Simple xorshift64 PRNG for fast noise
	for i := 0; i < len(buf); i += 3 {
		s.rngState ^= s.rngState << 13
		s.rngState ^= s.rngState >> 7
		s.rngState ^= s.rngState << 17
		v := uint8(s.rngState)
		buf[i], buf[i+1], buf[i+2] = v, v, v
	}
	return buf
}

func (s *TestPatternSource) generateMovingBox(frameNum uint64) []byte {
	buf, w, h := s.newFrame()
	for i := range buf {
		buf[i] = 16
	}

	// Calculate box position (moves in a circle)
	boxSize := max(1, min(w, h)/8)
	centerX := w / 2
	centerY := h / 2
	radius := float64(min(w, h)) / 4

	angle := float64(frameNum) * 0.05 // Radians per frame
	boxX := centerX + int(radius*math.Cos(angle)) - boxSize/2
	boxY := centerY + int(radius*math.Sin(angle)) - boxSize/2

	for y := max(boxY, 0); y < boxY+boxSize && y < h; y++ {
		for x := max(boxX, 0); x < boxX+boxSize && x < w; x++ {
			i := (y*w + x) * 3
			buf[i], buf[i+1], buf[i+2] = 235, 235, 235
		}
	}
	return buf
}
