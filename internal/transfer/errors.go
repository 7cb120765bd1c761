package transfer

import (
	"errors"
	"fmt"
)

// Kind classifies a failed transfer. Each kind maps to one HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindMissingInput
	KindUpstreamFetchFailed
	KindTranscodeFailed
	KindConfiguration
	KindSynthesisFailed
)

func (k Kind) String() string {
	switch k {
	case KindMissingInput:
		return "missing_input"
	case KindUpstreamFetchFailed:
		return "upstream_fetch_failed"
	case KindTranscodeFailed:
		return "transcode_failed"
	case KindConfiguration:
		return "configuration_error"
	case KindSynthesisFailed:
		return "synthesis_failed"
	default:
		return "internal_error"
	}
}

// Caller-facing messages.
const (
	MsgMissingText      = "No text or text_url provided"
	MsgTextFetchFailed  = "Failed to retrieve or parse content from URL"
	MsgAudioFetchFailed = "Failed to download voice file from IPFS"
	MsgTranscodeFailed  = "Failed to convert voice file"
	MsgSynthesisFailed  = "Failed to generate voice file."
	MsgInternalError    = "An internal server error occurred."
)

// Error is the single error type returned by Service.Run.
type Error struct {
	Kind      Kind
	Stage     Stage
	RequestID string
	Message   string // safe to show to the caller
	Err       error  // underlying cause, for logs only
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError converts any error into an *Error, treating unknown errors as
// internal failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: KindInternal, Message: MsgInternalError, Err: err}
}

func internalError(stage Stage, err error) *Error {
	return &Error{Kind: KindInternal, Stage: stage, Message: MsgInternalError, Err: err}
}
