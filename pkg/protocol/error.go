package protocol

import (
	qerrors "github.com/vango-dev/queryguard/internal/errors"
)

// ErrorMessage is sent when a frame could not be applied.
type ErrorMessage struct {
	// Code is the queryguard error code, e.g. "Q140".
	Code string `json:"code,omitempty"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Fatal means the server closes the connection after sending it.
	Fatal bool `json:"fatal,omitempty"`

	// ReplyTo is the seq of the inbound frame that failed. Zero when the
	// error is not a reply, or the frame could not be parsed.
	ReplyTo uint64 `json:"replyTo,omitempty"`
}

// NewErrorMessage converts err into an error frame payload.
func NewErrorMessage(err error, fatal bool) *ErrorMessage {
	return &ErrorMessage{
		Code:    qerrors.Code(err),
		Message: err.Error(),
		Fatal:   fatal,
	}
}
