package protocol

import (
	"errors"
	"fmt"

	"github.com/omochice/realm-paint/pkg/codec"
)

var (
	// ErrTruncatedBuffer is the codec error, re-exported for callers that only
	// import protocol.
	ErrTruncatedBuffer    = codec.ErrTruncatedBuffer
	ErrUnknownMessageType = errors.New("protocol: unknown message type")
	ErrOutOfRangeTarget   = errors.New("protocol: target layer out of range")
	ErrImageSize          = errors.New("protocol: image data size does not match geometry")
	ErrNilMessage         = errors.New("protocol: nil message")
)

// ValidateTarget reports whether target addresses one of layerCount layers.
func ValidateTarget(target uint8, layerCount int) error {
	if int(target) >= layerCount {
		return fmt.Errorf("%w: target %d, %d layers", ErrOutOfRangeTarget, target, layerCount)
	}
	return nil
}
