package streamer

import (
	"math"
	"sync"
	"time"
)

// AudioPatternType defines the type of audio test pattern.
type AudioPatternType int

const (
	AudioPatternSilence    AudioPatternType = iota // Silence
	AudioPatternSineWave                           // Sine wave tone
	AudioPatternSquareWave                         // Square wave tone
	AudioPatternWhiteNoise                         // White noise
	AudioPatternSweep                              // Frequency sweep
)

func (p AudioPatternType) String() string {
	switch p {
	case AudioPatternSilence:
		return "Silence"
	case AudioPatternSineWave:
		return "SineWave"
	case AudioPatternSquareWave:
		return "SquareWave"
	case AudioPatternWhiteNoise:
		return "WhiteNoise"
	case AudioPatternSweep:
		return "Sweep"
	default:
		return "Unknown"
	}
}

// AudioTestPatternConfig configures an audio test pattern source.
type AudioTestPatternConfig struct {
	SampleRate int              // Sample rate (default: 48000)
	Channels   int              // Number of channels (default: 2)
	FrameSize  int              // Samples per channel per frame (default: 960)
	Pattern    AudioPatternType // Pattern type
	Frequency  float64          // Tone frequency in Hz (default: 440)
	Amplitude  float64          // Amplitude 0.0-1.0 (default: 0.5)
	Frames     uint64           // Number of frames to produce, 0 for unbounded

	// Realtime paces frames at their duration.
	Realtime bool

	// For sweep pattern
	SweepStartHz  float64
	SweepEndHz    float64
	SweepDuration time.Duration
}

// DefaultAudioTestPatternConfig returns a default audio test configuration.
func DefaultAudioTestPatternConfig() AudioTestPatternConfig {
	return AudioTestPatternConfig{
		SampleRate:    48000,
		Channels:      2,
		FrameSize:     960, // 20ms at 48kHz
		Pattern:       AudioPatternSineWave,
		Frequency:     440.0, // A4
		Amplitude:     0.5,
		SweepStartHz:  200,
		SweepEndHz:    2000,
		SweepDuration: 2 * time.Second,
	}
}

// AudioTestPatternSource generates synthetic audio frames. Timestamps advance
// by FrameSize samples per frame starting at zero.
type AudioTestPatternSource struct {
	BaseElement

	config        AudioTestPatternConfig
	frameDuration time.Duration

	mu          sync.Mutex
	frameCount  uint64
	sampleCount uint64
	startTime   time.Time
	phase       float64
	rngState    uint64
}

// NewAudioTestPatternSource creates a new audio test pattern source.
func NewAudioTestPatternSource(config AudioTestPatternConfig) *AudioTestPatternSource {
	def := DefaultAudioTestPatternConfig()
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.Channels <= 0 {
		config.Channels = def.Channels
	}
	if config.FrameSize <= 0 {
		config.FrameSize = def.FrameSize
	}
	if config.Frequency <= 0 {
		config.Frequency = def.Frequency
	}
	if config.Amplitude <= 0 {
		config.Amplitude = def.Amplitude
	}
	config.Amplitude = min(config.Amplitude, 1.0)
	if config.SweepStartHz <= 0 {
		config.SweepStartHz = def.SweepStartHz
	}
	if config.SweepEndHz <= 0 {
		config.SweepEndHz = def.SweepEndHz
	}
	if config.SweepDuration <= 0 {
		config.SweepDuration = def.SweepDuration
	}

	return &AudioTestPatternSource{
		BaseElement:   NewBaseElement("audiotestpattern"),
		config:        config,
		frameDuration: time.Duration(config.FrameSize) * time.Second / time.Duration(config.SampleRate),
		rngState:      0x9e3779b97f4a7c15,
	}
}

func (s *AudioTestPatternSource) AsAudioSource() (AudioSource, bool) { return s, true }

func (s *AudioTestPatternSource) AudioFormat() AudioFrameFormat {
	return AudioFrameFormat{Channels: uint32(s.config.Channels), SampleRate: float64(s.config.SampleRate)}
}

// OnPullAudio renders the next frame. It returns nil once Frames frames have
// been produced, or, in realtime mode, while the next frame is not yet due.
func (s *AudioTestPatternSource) OnPullAudio(_ *AudioPipeline) (*AudioFrame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Frames > 0 && s.frameCount >= s.config.Frames {
		return nil, nil
	}
	ts := time.Duration(s.sampleCount) * time.Second / time.Duration(s.config.SampleRate)
	if s.config.Realtime {
		if s.startTime.IsZero() {
			s.startTime = time.Now()
		}
		if time.Since(s.startTime) < ts {
			return nil, nil
		}
	}

	frame := &AudioFrame{
		Samples:   make([]int16, s.config.FrameSize*s.config.Channels),
		Timestamp: TimestampFromDuration(ts),
	}
	s.generate(frame.Samples)
	s.frameCount++
	s.sampleCount += uint64(s.config.FrameSize)
	return frame, nil
}

// Finished reports whether the configured number of frames was produced.
func (s *AudioTestPatternSource) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Frames > 0 && s.frameCount >= s.config.Frames
}

// FrameCount returns the number of frames produced so far.
func (s *AudioTestPatternSource) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCount
}

// FrameDuration returns the duration of one frame.
func (s *AudioTestPatternSource) FrameDuration() time.Duration { return s.frameDuration }

func (s *AudioTestPatternSource) generate(out []int16) {
	amplitude := s.config.Amplitude * 32767.0
	rate := float64(s.config.SampleRate)

	var next func() float64
	switch s.config.Pattern {
	case AudioPatternSilence:
		return
	case AudioPatternSineWave:
		inc := 2 * math.Pi * s.config.Frequency / rate
		next = func() float64 { return s.advance(inc, math.Sin(s.phase)) }
	case AudioPatternSquareWave:
		inc := 2 * math.Pi * s.config.Frequency / rate
		next = func() float64 {
			v := -1.0
			if math.Sin(s.phase) >= 0 {
				v = 1.0
			}
			return s.advance(inc, v)
		}
	case AudioPatternWhiteNoise:
		next = func() float64 {
			// xorshift64
			s.rngState ^= s.rngState << 13
			s.rngState ^= s.rngState >> 7
			s.rngState ^= s.rngState << 17
			return (float64(s.rngState)/float64(^uint64(0)))*2.0 - 1.0
		}
	case AudioPatternSweep:
		// Logarithmic sweep, frequency fixed per frame.
		sweepSamples := rate * s.config.SweepDuration.Seconds()
		progress := math.Mod(float64(s.sampleCount), sweepSamples) / sweepSamples
		logStart := math.Log(s.config.SweepStartHz)
		logEnd := math.Log(s.config.SweepEndHz)
		inc := 2 * math.Pi * math.Exp(logStart+progress*(logEnd-logStart)) / rate
		next = func() float64 { return s.advance(inc, math.Sin(s.phase)) }
	default:
		return
	}

	channels := s.config.Channels
	for i := 0; i < len(out); i += channels {
		v := int16(amplitude * next())
		for c := 0; c < channels; c++ {
			out[i+c] = v
		}
	}
}

// advance steps the oscillator phase and returns v.
func (s *AudioTestPatternSource) advance(inc, v float64) float64 {
	s.phase += inc
	if s.phase > 2*math.Pi {
		s.phase -= 2 * math.Pi
	}
	return v
}
