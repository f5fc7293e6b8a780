package streamer

import (
	"errors"
	"fmt"
)

// Link and negotiation errors.
var (
	ErrDuplicatedLink         = errors.New("link already exists")
	ErrDuplicatedSource       = errors.New("sink already has a source")
	ErrUnsupportedFormat      = errors.New("unsupported format")
	ErrIncompatibleCapability = errors.New("element lacks the required capability")
	ErrUnknownElement         = errors.New("unknown element")
	ErrAlreadyBuilt           = errors.New("builder already built")
)

// Element state errors.
var (
	ErrUnconfigured      = errors.New("element used before configuration")
	ErrAlreadyConfigured = errors.New("element already configured")
)

// Runtime errors.
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrPipelineClosed  = errors.New("pipeline closed")
	ErrAlreadyRunning  = errors.New("driver already running")
	ErrElementNotFound = errors.New("element not found")
)

// ElementError wraps a failure raised by a backend or library while an
// element processes data. The underlying error is available via Unwrap.
type ElementError struct {
	Element string // Element name
	Op      string // Operation, e.g. "on_push" or "resize"
	Err     error
}

// WrapElementError wraps err with element context. It returns nil if err is nil.
func WrapElementError(element, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ElementError{Element: element, Op: op, Err: err}
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Element, e.Op, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }
