//go:build !cgo

package model

// ONNXSession needs cgo; without it every load fails with
// ErrRuntimeUnavailable.
func ONNXSession(library string) SessionFunc {
	return func(path string) (Session, error) {
		return nil, ErrRuntimeUnavailable
	}
}
