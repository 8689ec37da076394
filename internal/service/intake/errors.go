package intake

import "errors"

// Sentinel errors for the intake service layer.
var (
	ErrNotFound   = errors.New("intake not found")
	ErrInvalid    = errors.New("invalid intake")
	ErrIneligible = errors.New("city is not eligible for disputes")
)
