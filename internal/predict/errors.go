package predict

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step a request failed in.
type Stage string

const (
	StageDecode     Stage = "decode"
	StagePreprocess Stage = "preprocess"
	StageInfer      Stage = "infer"
	StageLookup     Stage = "lookup"
)

// ErrLabelLookup means the predicted index has no entry in the label table.
var ErrLabelLookup = errors.New("label lookup failed")

// Error is a per-request failure tagged with its originating stage.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of a prediction error, or "" if err is not one.
func StageOf(err error) Stage {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Stage
	}
	return ""
}
