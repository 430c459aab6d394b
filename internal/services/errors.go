package services

import (
	"errors"
	"fmt"
)

// UpstreamError is returned when HubSpot or CloudConvert answers with a
// non-2xx status.
type UpstreamError struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Service, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d body %s", e.Service, e.Op, e.StatusCode, e.Body)
}

type ConversionErrorKind string

const (
	ConversionRejected ConversionErrorKind = "rejected"
	ConversionTimedOut ConversionErrorKind = "timed_out"
)

// ConversionError is returned when a CloudConvert job does not finish
// successfully.
type ConversionError struct {
	Kind    ConversionErrorKind
	JobID   string
	Message string
	Err     error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("conversion job %s %s", e.JobID, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ParseError reports a malformed webhook payload. It is never fatal.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse webhook payload: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

var ErrEmptyDownloadURL = errors.New("hubspot returned an empty download url")

// errorKind names the error category for structured log fields.
func errorKind(err error) string {
	var upstream *UpstreamError
	var conversion *ConversionError
	var parse *ParseError
	switch {
	case errors.As(err, &upstream):
		return "upstream"
	case errors.As(err, &conversion):
		return "conversion_" + string(conversion.Kind)
	case errors.As(err, &parse):
		return "parse"
	default:
		return "internal"
	}
}
