package protocol

import (
	"encoding/json"
	"fmt"
)

// frame is the JSON shape of every envelope on the wire. Generate carries its
// request object under "data", Result carries the answer string there.
type frame struct {
	Type      Kind            `json:"type"`
	Message   string          `json:"message,omitempty"`
	Percent   int             `json:"percent,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// UnknownKindError is returned by Decode for a type tag outside Kinds.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown envelope kind %q", e.Kind)
}

// Encode serializes an envelope to its wire form.
func Encode(env Envelope) ([]byte, error) {
	f := frame{Type: env.Kind()}

	switch e := env.(type) {
	case Init:
	case Status:
		f.Message = e.Message
	case Progress:
		f.Message = e.Message
		f.Percent = e.Percent
	case Ready:
		f.Message = e.Message
	case Generate:
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode generate payload: %w", err)
		}
		f.Data = data
		f.RequestID = e.RequestID
	case Result:
		data, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("encode result payload: %w", err)
		}
		f.Data = data
		f.RequestID = e.RequestID
	case Error:
		f.Message = e.Message
		f.RequestID = e.RequestID
	default:
		return nil, &UnknownKindError{Kind: env.Kind()}
	}

	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", f.Type, err)
	}
	return b, nil
}

// Decode parses the wire form back into a typed envelope.
func Decode(b []byte) (Envelope, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch f.Type {
	case KindInit:
		return Init{}, nil
	case KindStatus:
		return Status{Message: f.Message}, nil
	case KindProgress:
		return Progress{Message: f.Message, Percent: f.Percent}, nil
	case KindReady:
		return Ready{Message: f.Message}, nil
	case KindGenerate:
		var g Generate
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &g); err != nil {
				return nil, fmt.Errorf("decode generate payload: %w", err)
			}
		}
		g.RequestID = f.RequestID
		return g, nil
	case KindResult:
		var data string
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &data); err != nil {
				return nil, fmt.Errorf("decode result payload: %w", err)
			}
		}
		return Result{Data: data, RequestID: f.RequestID}, nil
	case KindError:
		return Error{Message: f.Message, RequestID: f.RequestID}, nil
	default:
		return nil, &UnknownKindError{Kind: f.Type}
	}
}
