package panel

import "errors"

var (
	// ErrUnknownPanel indicates the requested panel is not defined.
	ErrUnknownPanel = errors.New("panel: unknown panel")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("panel: validation failed")
	// ErrBusy indicates a submission for the same panel is still in flight.
	ErrBusy = errors.New("panel: submission in progress")
	// ErrDispatch wraps failures of the backend call or queue hand-off.
	ErrDispatch = errors.New("panel: dispatch failed")
)
