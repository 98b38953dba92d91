package generator

import (
	"errors"
	"fmt"
)

// Kind selects the prompt template and the expected output schema.
type Kind string

const (
	KindProblem    Kind = "problem"
	KindTestcases  Kind = "testcases"
	KindValidation Kind = "validation"
	KindSolution   Kind = "solution"
)

// Error classes. Every error returned by this package matches exactly one of
// them with errors.Is.
var (
	// ErrParse means the model answered but the answer was unusable.
	ErrParse = errors.New("unusable model output")

	// ErrProviderBlocked means the provider refused the prompt or the answer
	// on policy grounds.
	ErrProviderBlocked = errors.New("blocked by provider")

	// ErrProvider means the call itself failed (network, quota, auth, 5xx).
	ErrProvider = errors.New("provider call failed")
)

// Error codes carried by *Error.
const (
	CodeInvalidAPIKey = "invalid_api_key"
	CodeRateLimit     = "rate_limit_exceeded"
	CodeServiceDown   = "service_unavailable"
	CodeTimeout       = "timeout"
	CodeBlocked       = "content_blocked"
	CodeEmptyResponse = "empty_response"
	CodeInvalidOutput = "invalid_output"
	CodeMissingField  = "missing_field"
	CodeTemplate      = "template_error"
)

// Error is a classified generator failure.
type Error struct {
	Kind    Kind
	Class   error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	prefix := "generator"
	if e.Kind != "" {
		prefix = fmt.Sprintf("generator %s", e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s (%v)", prefix, e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Class, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == e.Class
}

func (e *Error) Unwrap() error {
	return e.Err
}

func parseError(code, message string, err error) *Error {
	return &Error{Class: ErrParse, Code: code, Message: message, Err: err}
}

// withKind stamps kind on a classified error, or classifies an unknown error
// as a provider failure.
func withKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var genErr *Error
	if errors.As(err, &genErr) {
		stamped := *genErr
		stamped.Kind = kind
		return &stamped
	}
	return &Error{Kind: kind, Class: ErrProvider, Code: CodeServiceDown, Message: "generation failed", Err: err}
}

// ClassName returns a short label for err's class, used in metrics and
// failure summaries.
func ClassName(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrProviderBlocked):
		return "blocked"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "unknown"
	}
}
