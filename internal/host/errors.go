package host

import (
	"errors"
	"fmt"
)

// ErrNotLoaded is the cause of an InferenceError raised before Init succeeded.
var ErrNotLoaded = errors.New("model not loaded")

// ModelLoadError reports a failed Init: network, asset host or malformed
// model files. It is terminal for the session.
type ModelLoadError struct {
	ModelID string
	Err     error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.ModelID, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// InferenceError reports a failed Invoke.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
