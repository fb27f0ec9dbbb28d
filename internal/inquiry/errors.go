package inquiry

import (
	"errors"
	"fmt"
)

// Kind classifies why an inquiry did not produce an answer.
type Kind int

const (
	// KindValidation means the request was rejected before anything was sent.
	KindValidation Kind = iota + 1
	// KindTransport means the request or the stream failed at the network level.
	KindTransport
	// KindResponse means the backend answered with a non-success status.
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	// FallbackResponseMessage is shown when a failed response carries no readable message.
	FallbackResponseMessage = "Unable to process inquiry."
	// FallbackTransportMessage is shown when the request or stream breaks.
	FallbackTransportMessage = "Unable to complete inquiry."
)

var (
	// ErrBusy is returned when a submission arrives while another inquiry is in flight.
	ErrBusy = errors.New("inquiry already in progress")
	// ErrClosed is returned when submitting to a consumer that has been closed.
	ErrClosed = errors.New("inquiry consumer closed")
)

// Error is an inquiry failure with the text to display for it.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is implemented by transport errors describing a non-success HTTP response.
// PayloadMessage is the human-readable message from the response body, or empty when the body
// could not be parsed.
type StatusError interface {
	error
	StatusCode() int
	PayloadMessage() string
}

func classify(err error) *Error {
	var ierr *Error
	if errors.As(err, &ierr) {
		return ierr
	}

	var serr StatusError
	if errors.As(err, &serr) {
		msg := serr.PayloadMessage()
		if msg == "" {
			msg = FallbackResponseMessage
		}
		return &Error{
			Kind:    KindResponse,
			Status:  serr.StatusCode(),
			Message: msg,
			Err:     err,
		}
	}

	return &Error{
		Kind:    KindTransport,
		Message: FallbackTransportMessage,
		Err:     err,
	}
}
