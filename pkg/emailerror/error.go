package emailerror

// Kind classifies a send failure for retry and suppression decisions
type Kind string

const (
	// KindPermanent indicates a permanent SMTP failure (5xx). Never retried.
	KindPermanent Kind = "permanent"

	// KindTemporary indicates a transient SMTP failure (4xx). Retried with back-off.
	KindTemporary Kind = "temporary"

	// KindConnection indicates a network-level failure before or during the
	// SMTP conversation (refused, reset, timeout, DNS). Retried.
	KindConnection Kind = "connection"

	// KindUnknown indicates an unclassified error. Not retried: an error we
	// cannot attribute to the recipient or the network could recur forever.
	KindUnknown Kind = "unknown"
)

// hardBounceCodes are the permanent response codes that indicate the
// recipient mailbox cannot receive mail and should be suppressed.
var hardBounceCodes = map[int]bool{
	550: true, // mailbox unavailable
	551: true, // user not local
	552: true, // storage exceeded
	553: true, // mailbox name not allowed
	554: true, // transaction failed
}

// ClassifiedError wraps a send error with classification metadata
type ClassifiedError struct {
	// Original is the underlying error
	Original error

	// Kind classifies the failure
	Kind Kind

	// Code is the raw SMTP response code when one was available, 0 otherwise
	Code int

	// Retryable indicates whether the send can be retried
	Retryable bool
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.Original == nil {
		return ""
	}
	return e.Original.Error()
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *ClassifiedError) Unwrap() error {
	return e.Original
}

// ShouldRetry reports whether the worker may re-queue the message
func (e *ClassifiedError) ShouldRetry() bool {
	return e.Retryable
}

// IsHardBounce reports whether the failure indicates a dead recipient
// mailbox. Hard bounces drive suppression and the message.bounced event.
func (e *ClassifiedError) IsHardBounce() bool {
	return e.Kind == KindPermanent && hardBounceCodes[e.Code]
}

// IsConnectionError reports whether the failure was network-level rather
// than an SMTP response. Connection errors feed the relay circuit breaker;
// recipient-level failures never do.
func (e *ClassifiedError) IsConnectionError() bool {
	return e.Kind == KindConnection
}
