package acquire

import (
	"context"
	"image"
)

// FacingMode selects which physical camera to prefer.
type FacingMode string

const (
	FacingEnvironment FacingMode = "environment"
	FacingUser        FacingMode = "user"
)

// Constraints is the requested video configuration. Width and Height are
// ideals, not hard requirements.
type Constraints struct {
	Facing FacingMode `json:"facing"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
}

// DefaultConstraints requests the rear camera at 1280x720.
func DefaultConstraints() Constraints {
	return Constraints{Facing: FacingEnvironment, Width: 1280, Height: 720}
}

// Device grants exclusive access to a video input.
type Device interface {
	Open(ctx context.Context, constraints Constraints) (Stream, error)
}

// Stream is an open video input. Stop must release every track and be safe
// to call more than once.
type Stream interface {
	Play(ctx context.Context) error
	Frame() (image.Image, error)
	Stop()
}
