// Package scanerror defines the user-facing failure kinds of a scan attempt.
package scanerror

import (
	"errors"
	"fmt"
)

// Kind identifies a class of scan failure.
type Kind string

const (
	KindCameraUnavailable Kind = "camera_unavailable"
	KindInvalidFileType   Kind = "invalid_file_type"
	KindFileTooLarge      Kind = "file_too_large"
	KindFileReadFailed    Kind = "file_read_failed"
	KindNoCodeDetected    Kind = "no_code_detected"
	KindRequestTimeout    Kind = "request_timeout"
	KindDecodeFailed      Kind = "decode_failed"
	KindNetworkError      Kind = "network_error"
)

// Default user-facing messages per kind.
const (
	MessageCameraUnavailable = "Unable to access camera. Please ensure you have granted camera permissions."
	MessagePlaybackFailed    = "Failed to start video playback"
	MessageInvalidFileType   = "Please select an image file"
	MessageFileTooLarge      = "File too large. Please select an image under 5MB."
	MessageFileReadFailed    = "Error reading file"
	MessageNoCodeDetected    = "No QR code detected. Please try again with a clearer image."
	MessageRequestTimeout    = "Request timed out. The image might be too large to process."
	MessageDecodeServer      = "Server error processing the image. The image might be too large or in an unsupported format."
	MessageDecodeFailed      = "Error processing QR code. Please try again with a different image."
	MessageNetworkError      = "Network error. Please check your connection and try again."
)

// Error is the terminal error of one scan attempt.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Server marks a decode_failed caused by a 5xx response.
	Server bool  `json:"server,omitempty"`
	Err    error `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by kind so callers can write
// errors.Is(err, scanerror.New(scanerror.KindFileTooLarge, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New creates an error of kind with message. An empty message uses the
// kind's default.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = DefaultMessage(kind)
	}
	return &Error{Kind: kind, Message: message}
}

// Wrap is New with an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	e.Err = err
	return e
}

// ServerFailure is the 5xx variant of decode_failed.
func ServerFailure(err error) *Error {
	e := Wrap(KindDecodeFailed, MessageDecodeServer, err)
	e.Server = true
	return e
}

// From narrows any error into an *Error. Errors that carry no kind become
// network_error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindNetworkError, "", err)
}

// KindOf returns the kind of err, or "" when err is nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

// DefaultMessage returns the user-facing message for kind.
func DefaultMessage(kind Kind) string {
	switch kind {
	case KindCameraUnavailable:
		return MessageCameraUnavailable
	case KindInvalidFileType:
		return MessageInvalidFileType
	case KindFileTooLarge:
		return MessageFileTooLarge
	case KindFileReadFailed:
		return MessageFileReadFailed
	case KindNoCodeDetected:
		return MessageNoCodeDetected
	case KindRequestTimeout:
		return MessageRequestTimeout
	case KindDecodeFailed:
		return MessageDecodeFailed
	default:
		return MessageNetworkError
	}
}
