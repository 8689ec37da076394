package pipeline

import "errors"

// Sentinel errors for the pipeline layer.
var (
	ErrNoPayment       = errors.New("no accepted payment event for intake")
	ErrNoRefinement    = errors.New("no refined statement for intake")
	ErrNoMailResult    = errors.New("no mail result")
	ErrRunInProgress   = errors.New("intake run already in progress")
	ErrBudgetExhausted = errors.New("stage attempt budget exhausted")
)

// ErrQueueFull is returned by Dispatcher.Publish when every worker is busy
// and the buffer is full. The intake stays durable and the recovery sweep
// picks it up.
var ErrQueueFull = errors.New("dispatch queue full")
