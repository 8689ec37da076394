package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable class of a pipeline error. It is
// persisted on failed intakes.
type ErrorKind string

const (
	KindAuthentication      ErrorKind = "authentication"
	KindDuplicateEvent      ErrorKind = "duplicate_event"
	KindIneligibleCity      ErrorKind = "ineligible_city"
	KindRefinementTransient ErrorKind = "refinement_transient"
	KindRefinementPolicy    ErrorKind = "refinement_policy"
	KindMailTransient       ErrorKind = "mail_transient"
	KindMailPermanent       ErrorKind = "mail_permanent"
	KindStorage             ErrorKind = "storage"
	KindInternal            ErrorKind = "internal"
)

// PipelineError is implemented by every classified error in the taxonomy.
type PipelineError interface {
	error
	Kind() ErrorKind
	Transient() bool
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	var pe PipelineError
	if errors.As(err, &pe) {
		return pe.Kind()
	}
	return KindInternal
}

// IsTransient reports whether err may succeed if retried.
func IsTransient(err error) bool {
	var pe PipelineError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

// AuthenticationError is a missing or invalid webhook signature. It never
// carries the failing check so callers cannot build an oracle from it.
type AuthenticationError struct{}

func (AuthenticationError) Error() string   { return "webhook authentication failed" }
func (AuthenticationError) Kind() ErrorKind { return KindAuthentication }
func (AuthenticationError) Transient() bool { return false }

// DuplicateEventError marks an event that was already admitted. It is an
// idempotent no-op, not a failure.
type DuplicateEventError struct {
	EventID string
}

func (e *DuplicateEventError) Error() string   { return "duplicate event " + e.EventID }
func (e *DuplicateEventError) Kind() ErrorKind { return KindDuplicateEvent }
func (e *DuplicateEventError) Transient() bool { return false }

// IneligibleCityError is terminal for the intake.
type IneligibleCityError struct {
	CityID string
}

func (e *IneligibleCityError) Error() string {
	return fmt.Sprintf("city %q is not eligible for disputes", e.CityID)
}
func (e *IneligibleCityError) Kind() ErrorKind { return KindIneligibleCity }
func (e *IneligibleCityError) Transient() bool { return false }

// RefinementError is returned by the statement refinement service. Policy
// violations are terminal; provider failures are transient.
type RefinementError struct {
	Policy   bool
	Attempts int
	Reason   string
	Err      error
}

func (e *RefinementError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refinement failed after %d attempt(s): %s: %v", e.Attempts, e.Reason, e.Err)
	}
	return fmt.Sprintf("refinement failed after %d attempt(s): %s", e.Attempts, e.Reason)
}

func (e *RefinementError) Unwrap() error { return e.Err }

func (e *RefinementError) Kind() ErrorKind {
	if e.Policy {
		return KindRefinementPolicy
	}
	return KindRefinementTransient
}

func (e *RefinementError) Transient() bool { return !e.Policy }

// MailDispatchError is returned by the mail dispatch service.
type MailDispatchError struct {
	Permanent  bool
	StatusCode int
	Reason     string
	Err        error
}

func (e *MailDispatchError) Error() string {
	msg := "mail dispatch failed: " + e.Reason
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MailDispatchError) Unwrap() error { return e.Err }

func (e *MailDispatchError) Kind() ErrorKind {
	if e.Permanent {
		return KindMailPermanent
	}
	return KindMailTransient
}

func (e *MailDispatchError) Transient() bool { return !e.Permanent }

// StorageError comes from the photo storage collaborator. It is terminal for
// the photo it names, not necessarily for the intake.
type StorageError struct {
	Key    string
	Reason string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("storage %s: %s", e.Key, e.Reason)
}

func (e *StorageError) Unwrap() error   { return e.Err }
func (e *StorageError) Kind() ErrorKind { return KindStorage }
func (e *StorageError) Transient() bool { return false }
