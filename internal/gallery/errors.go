package gallery

import (
	"errors"
	"fmt"
	"strings"
)

// ErrImproperlyConfigured marks setup errors: unknown target models, models without
// an image attribute, unresolvable URL names. They are fatal at startup.
var ErrImproperlyConfigured = errors.New("gallery: improperly configured")

func improperlyConfigured(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrImproperlyConfigured, fmt.Sprintf(format, args...))
}

// Validation error codes.
const (
	CodeRequired          = "required"
	CodeInvalid           = "invalid"
	CodeMaxNumberOfImages = "max_number_of_images"
)

var defaultErrorMessages = map[string]string{
	CodeRequired: "The submitted file is empty.",
	CodeInvalid:  "The submitted images are invalid.",
}

// ValidationError is a single user facing form error.
type ValidationError struct {
	Code    string
	Message string
	Params  map[string]any
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidationErrors collects every error found while cleaning a submission.
type ValidationErrors []*ValidationError

func (errs ValidationErrors) Error() string {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	return strings.Join(messages, "; ")
}

// Has reports whether an error with code was collected.
func (errs ValidationErrors) Has(code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Messages returns the messages in collection order.
func (errs ValidationErrors) Messages() []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Message)
	}
	return out
}

func (errs ValidationErrors) add(err *ValidationError) ValidationErrors {
	for _, existing := range errs {
		if existing.Code == err.Code && existing.Message == err.Message {
			return errs
		}
	}
	return append(errs, err)
}

// AsValidationErrors unwraps err into ValidationErrors when it carries any.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var many ValidationErrors
	if errors.As(err, &many) {
		return many, true
	}
	var one *ValidationError
	if errors.As(err, &one) {
		return ValidationErrors{one}, true
	}
	return nil, false
}
