package features

import (
	"errors"
	"fmt"
)

// ErrZeroStd is returned when a scaled feature has a zero standard deviation.
var ErrZeroStd = errors.New("scaler has zero standard deviation")

// ValidationError reports input that cannot be encoded, such as a label the
// model was never trained on. It is user-correctable.
type ValidationError struct {
	Field string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("%s %q not found in training data", e.Field, e.Value)
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
