package dedupe

import "errors"

// Sentinel errors for the dedupe service layer.
var (
	ErrEmptyEventID = errors.New("event id is required")
)
