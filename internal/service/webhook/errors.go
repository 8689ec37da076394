package webhook

import "errors"

// Sentinel errors for event parsing.
var (
	ErrMalformedEvent  = errors.New("malformed webhook event")
	ErrMissingEventID  = errors.New("webhook event has no id")
	ErrMissingIntakeID = errors.New("checkout event has no intake reference")
)
