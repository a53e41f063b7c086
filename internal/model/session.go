package model

import (
	"context"
	"errors"
)

// ErrRuntimeUnavailable is returned when the binary was built without the
// ONNX Runtime bindings or the shared library could not be initialised.
var ErrRuntimeUnavailable = errors.New("onnx runtime unavailable")

// Session runs the question-answering network over one input sequence and
// returns the per-token start and end logits.
type Session interface {
	Run(ctx context.Context, ids, mask []int64) (start, end []float32, err error)
	Close() error
}

// SessionFunc opens a Session for the weights file at path.
type SessionFunc func(path string) (Session, error)

// Graph input and output names of the exported QA models.
var (
	sessionInputs  = []string{"input_ids", "attention_mask"}
	sessionOutputs = []string{"start_logits", "end_logits"}
)
