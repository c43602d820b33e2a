package model

import (
	"errors"
	"fmt"
)

// Startup errors. Any of them means the process must not start serving.
var (
	ErrArtifactMissing     = errors.New("artifact missing")
	ErrArtifactCorrupt     = errors.New("artifact corrupt")
	ErrWeightShapeMismatch = errors.New("weight shape mismatch")
	ErrRuntime             = errors.New("onnx runtime unavailable")
)

// Error records which loader step failed and on which file.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("model %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("model %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Path: path, Err: err}
}
