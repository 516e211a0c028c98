package relationships

import "errors"

var (
	// ErrMaxDepthExceeded is returned when nested eager loading goes too deep
	ErrMaxDepthExceeded = errors.New("maximum relationship depth exceeded")

	// ErrInvalidKey is returned for a key that cannot be used in a dictionary
	ErrInvalidKey = errors.New("invalid relationship key")
)
