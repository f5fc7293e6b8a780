package streamer

import (
	"fmt"
	"sort"
	"sync"
)

// ElementFactory creates an element from an element-specific configuration.
// A nil config selects the element's defaults where it has any.
type ElementFactory func(config any) (Element, error)

// elementRegistry holds registered element factories.
type elementRegistry struct {
	factories map[string]ElementFactory
	mu        sync.RWMutex
}

var globalElementRegistry = &elementRegistry{
	factories: make(map[string]ElementFactory),
}

// RegisterElement registers an element factory under name, replacing any
// previous registration.
func RegisterElement(name string, factory ElementFactory) {
	globalElementRegistry.mu.Lock()
	defer globalElementRegistry.mu.Unlock()
	globalElementRegistry.factories[name] = factory
}

// NewElement creates an element of the named type.
func NewElement(name string, config any) (Element, error) {
	globalElementRegistry.mu.RLock()
	factory, ok := globalElementRegistry.factories[name]
	globalElementRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownElement, name)
	}
	return factory(config)
}

// IsElementAvailable checks if an element type is registered.
func IsElementAvailable(name string) bool {
	globalElementRegistry.mu.RLock()
	defer globalElementRegistry.mu.RUnlock()
	_, ok := globalElementRegistry.factories[name]
	return ok
}

// AvailableElements returns the registered element names, sorted.
func AvailableElements() []string {
	globalElementRegistry.mu.RLock()
	defer globalElementRegistry.mu.RUnlock()

	names := make([]string, 0, len(globalElementRegistry.factories))
	for name := range globalElementRegistry.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// configAs accepts either T or *T as an element configuration.
func configAs[T any](config any, def T) (T, error) {
	switch c := config.(type) {
	case nil:
		return def, nil
	case T:
		return c, nil
	case *T:
		if c == nil {
			return def, nil
		}
		return *c, nil
	default:
		var zero T
		return zero, fmt.Errorf("config %T, want %T", config, zero)
	}
}

// Register built-in element factories
func init() {
	RegisterElement("testpattern", func(config any) (Element, error) {
		cfg, err := configAs(config, DefaultTestPatternConfig())
		if err != nil {
			return nil, err
		}
		return NewTestPatternSource(cfg), nil
	})
	RegisterElement("audiotestpattern", func(config any) (Element, error) {
		cfg, err := configAs(config, DefaultAudioTestPatternConfig())
		if err != nil {
			return nil, err
		}
		return NewAudioTestPatternSource(cfg), nil
	})
	RegisterElement("scale", func(config any) (Element, error) {
		cfg, err := configAs(config, ScaleConfig{})
		if err != nil {
			return nil, err
		}
		return NewScale(cfg), nil
	})
	RegisterElement("rawvideodec", func(config any) (Element, error) {
		r, ok := config.(VideoPacketReader)
		if !ok {
			return nil, fmt.Errorf("config %T, want a VideoPacketReader", config)
		}
		return NewRawVideoDecoder(r), nil
	})
	RegisterElement("pcmdec", func(config any) (Element, error) {
		r, ok := config.(AudioPacketReader)
		if !ok {
			return nil, fmt.Errorf("config %T, want an AudioPacketReader", config)
		}
		return NewPCMDecoder(r), nil
	})
	RegisterElement("textsubdec", func(config any) (Element, error) {
		r, ok := config.(SubtitlePacketReader)
		if !ok {
			return nil, fmt.Errorf("config %T, want a SubtitlePacketReader", config)
		}
		return NewTextSubtitleDecoder(r), nil
	})
}
