package chat

import "github.com/suPer8Hu/chatapp/internal/common"

// Result is the outcome of an access-layer call. Exactly one of Data or
// Error is meaningful, chosen by Success.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	err *common.Error
}

func ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func failed[T any](err *common.Error) Result[T] {
	return Result[T]{Error: err.Msg, err: err}
}

// Err returns the tagged failure, or nil on success.
func (r Result[T]) Err() error {
	if r.Success || r.err == nil {
		return nil
	}
	return r.err
}

func (r Result[T]) Kind() common.Kind {
	if r.err == nil {
		return common.KindUnknown
	}
	return r.err.Kind
}
