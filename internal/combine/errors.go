package combine

import (
	"errors"
	"fmt"
)

// Stage identifies the step of a combine call that failed.
type Stage string

// Combine stages, in execution order.
const (
	StageStaging   Stage = "staging"
	StageProbe     Stage = "probe"
	StageAlignment Stage = "alignment"
	StageMux       Stage = "mux"
	StageReadBack  Stage = "readback"
)

// Sentinel errors, one per failing stage. Use errors.Is to classify a
// failure returned by Combine.
var (
	// ErrStaging is returned when the workspace cannot be created or the inputs cannot be written.
	ErrStaging = errors.New("staging failed")
	// ErrProbe is returned when either input cannot be inspected.
	ErrProbe = errors.New("probe failed")
	// ErrAlignment is returned when the measured durations admit no alignment plan.
	ErrAlignment = errors.New("alignment failed")
	// ErrMux is returned when the encoder fails.
	ErrMux = errors.New("mux failed")
	// ErrReadBack is returned when the encoder succeeded but its output cannot be read.
	ErrReadBack = errors.New("read back failed")

	// ErrEmptyInput is returned when the video or audio payload is empty.
	ErrEmptyInput = errors.New("empty input")
	// ErrEmptyOutput is returned when the encoder produced a zero-length file.
	ErrEmptyOutput = errors.New("encoder produced empty output")
)

var stageSentinels = map[Stage]error{
	StageStaging:   ErrStaging,
	StageProbe:     ErrProbe,
	StageAlignment: ErrAlignment,
	StageMux:       ErrMux,
	StageReadBack:  ErrReadBack,
}

// Error is the typed failure returned by Combine.
type Error struct {
	// Stage is the step that failed.
	Stage Stage
	// Err is the underlying cause, including tool diagnostics.
	Err error
	// Cleanup is set when releasing the workspace also failed.
	Cleanup error
}

func newError(stage Stage, err error) *Error {
	return &Error{Stage: stage, Err: err}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("combine: %s: %v", e.Stage, e.Err)
	if e.Cleanup != nil {
		msg += fmt.Sprintf(" (cleanup: %v)", e.Cleanup)
	}
	return msg
}

// Unwrap exposes both the stage sentinel and the cause, so errors.Is works
// with ErrProbe as well as with context.Canceled or media errors.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := stageSentinels[e.Stage]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// StageOf returns the failed stage of err, or "" if err did not come from Combine.
func StageOf(err error) Stage {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Stage
	}
	return ""
}
