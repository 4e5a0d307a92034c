package emailerror

import (
	"errors"
	"net"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"

	"github.com/emersion/go-smtp"
)

// Classifier classifies SMTP send errors
type Classifier struct{}

// NewClassifier creates a new error classifier
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Connection-level failure patterns, checked case-insensitively against the
// error string when no typed network error is available.
var connectionPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"timed out",
	"timeout",
	"no such host",
	"network is unreachable",
	"host is unreachable",
	"unexpected eof",
	"tls handshake",
}

// Matches a leading or embedded SMTP reply code, e.g. "550 5.1.1 ...",
// "smtp error: 451 try again", "[421] service unavailable".
var smtpCodeRegex = regexp.MustCompile(`(?:^|[\s:\[(])([45]\d{2})(?:[\s\-:\])]|$)`)

// Classify analyzes a send error and tags it with kind, raw code and retry
// decision. Classification is deterministic: the same error always yields
// the same result.
func (c *Classifier) Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	result := &ClassifiedError{Original: err}

	// Typed SMTP responses carry the code directly.
	var smtpErr *smtp.SMTPError
	var protoErr *textproto.Error
	switch {
	case errors.As(err, &smtpErr):
		result.Code = smtpErr.Code
	case errors.As(err, &protoErr):
		result.Code = protoErr.Code
	}

	// Network-level failures are checked before any string scraping: a dial
	// error like "tcp 10.0.0.1:587" must not be mistaken for a reply code.
	if result.Code == 0 {
		var netErr net.Error
		if errors.As(err, &netErr) || containsAny(err.Error(), connectionPatterns) {
			result.Kind = KindConnection
			result.Retryable = true
			return result
		}
		result.Code = extractSMTPCode(err.Error())
	}

	switch {
	case result.Code >= 500 && result.Code < 600:
		result.Kind = KindPermanent
		result.Retryable = false
	case result.Code >= 400 && result.Code < 500:
		result.Kind = KindTemporary
		result.Retryable = true
	default:
		result.Kind = KindUnknown
		result.Retryable = false
	}
	return result
}

// extractSMTPCode attempts to pull a reply code out of an error message
func extractSMTPCode(errStr string) int {
	if matches := smtpCodeRegex.FindStringSubmatch(errStr); len(matches) >= 2 {
		if code, err := strconv.Atoi(matches[1]); err == nil {
			return code
		}
	}
	return 0
}

// containsAny checks if the error string contains any of the patterns (case-insensitive)
func containsAny(errStr string, patterns []string) bool {
	errLower := strings.ToLower(errStr)
	for _, pattern := range patterns {
		if strings.Contains(errLower, pattern) {
			return true
		}
	}
	return false
}
