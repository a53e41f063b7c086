//go:build cgo

package model

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// The ONNX Runtime environment is process wide and initialised once.
var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime(library string) error {
	ortOnce.Do(func() {
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

type onnxSession struct {
	session *ort.DynamicAdvancedSession
}

// ONNXSession returns a SessionFunc backed by ONNX Runtime. library is the
// path of the onnxruntime shared library; empty uses the platform default.
func ONNXSession(library string) SessionFunc {
	return func(path string) (Session, error) {
		if err := initRuntime(library); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
		}
		s, err := ort.NewDynamicAdvancedSession(path, sessionInputs, sessionOutputs, nil)
		if err != nil {
			return nil, fmt.Errorf("open onnx session %s: %w", path, err)
		}
		return &onnxSession{session: s}, nil
	}
}

func (s *onnxSession) Run(ctx context.Context, ids, mask []int64) ([]float32, []float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	shape := ort.NewShape(1, int64(len(ids)))

	idTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	startTensor, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return nil, nil, fmt.Errorf("start_logits tensor: %w", err)
	}
	defer startTensor.Destroy()

	endTensor, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return nil, nil, fmt.Errorf("end_logits tensor: %w", err)
	}
	defer endTensor.Destroy()

	if err := s.session.Run([]ort.Value{idTensor, maskTensor}, []ort.Value{startTensor, endTensor}); err != nil {
		return nil, nil, fmt.Errorf("run onnx session: %w", err)
	}
	start := append([]float32(nil), startTensor.GetData()...)
	end := append([]float32(nil), endTensor.GetData()...)
	return start, end, nil
}

func (s *onnxSession) Close() error {
	return s.session.Destroy()
}
