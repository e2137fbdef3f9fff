package pipeline

import (
	"errors"
	"fmt"
)

// Analysis stages reported in AnalysisError.
const (
	StageDecode  = "decode"
	StageExtract = "extract"
	StageInfer   = "infer"
	StageDecide  = "decide"
)

// ErrModelUnavailable matches any ModelUnavailableError.
var ErrModelUnavailable = errors.New("models unavailable")

// ModelUnavailableError is returned by Analyze when the models failed to load.
type ModelUnavailableError struct {
	Err error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err == nil {
		return ErrModelUnavailable.Error()
	}
	return fmt.Sprintf("%s: %v", ErrModelUnavailable, e.Err)
}

func (e *ModelUnavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}

func (e *ModelUnavailableError) Unwrap() error {
	return e.Err
}

// AnalysisError is a decode or inference failure in one stage of Analyze.
type AnalysisError struct {
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed at %s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
