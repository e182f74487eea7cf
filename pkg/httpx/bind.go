package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBodyBytes bounds decoded request bodies.
const MaxBodyBytes = 1 << 20

// BindError reports a request body that is not valid JSON for the target type.
type BindError struct {
	Msg string
}

func (e *BindError) Error() string {
	return e.Msg
}

// DecodeJSON decodes a single JSON value from the request body into T.
func DecodeJSON[T any](r *http.Request) (T, error) {
	var dst T
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(&dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dst, &BindError{Msg: "empty request body"}
		}
		return dst, &BindError{Msg: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if dec.More() {
		return dst, &BindError{Msg: "unexpected trailing data"}
	}
	return dst, nil
}
