package emailerror

import (
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_NilError(t *testing.T) {
	c := NewClassifier()
	assert.Nil(t, c.Classify(nil))
}

func TestClassify_PermanentFailures(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name       string
		err        error
		code       int
		hardBounce bool
	}{
		{
			name:       "550 mailbox unavailable",
			err:        &smtp.SMTPError{Code: 550, Message: "5.1.1 mailbox unavailable"},
			code:       550,
			hardBounce: true,
		},
		{
			name:       "551 user not local",
			err:        &textproto.Error{Code: 551, Msg: "user not local"},
			code:       551,
			hardBounce: true,
		},
		{
			name:       "552 storage exceeded",
			err:        &smtp.SMTPError{Code: 552, Message: "mailbox full"},
			code:       552,
			hardBounce: true,
		},
		{
			name:       "553 bad mailbox name",
			err:        errors.New("553 mailbox name not allowed"),
			code:       553,
			hardBounce: true,
		},
		{
			name:       "554 transaction failed",
			err:        errors.New("smtp error: 554 transaction failed"),
			code:       554,
			hardBounce: true,
		},
		{
			name:       "other 5xx is permanent but not a hard bounce",
			err:        &smtp.SMTPError{Code: 521, Message: "server does not accept mail"},
			code:       521,
			hardBounce: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.err)
			require.NotNil(t, result)
			assert.Equal(t, KindPermanent, result.Kind)
			assert.Equal(t, tt.code, result.Code)
			assert.False(t, result.ShouldRetry())
			assert.Equal(t, tt.hardBounce, result.IsHardBounce())
		})
	}
}

func TestClassify_TemporaryFailures(t *testing.T) {
	c := NewClassifier()

	for _, code := range []int{421, 450, 451, 452} {
		t.Run(fmt.Sprintf("code %d", code), func(t *testing.T) {
			result := c.Classify(&smtp.SMTPError{Code: code, Message: "try again later"})
			require.NotNil(t, result)
			assert.Equal(t, KindTemporary, result.Kind)
			assert.Equal(t, code, result.Code)
			assert.True(t, result.ShouldRetry())
			assert.False(t, result.IsHardBounce())
		})
	}
}

func TestClassify_ConnectionFailures(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		err  error
	}{
		{"refused", errors.New("dial tcp 10.0.0.1:587: connect: connection refused")},
		{"reset", errors.New("read tcp: connection reset by peer")},
		{"timeout", errors.New("dial tcp: i/o timeout")},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "smtp.invalid"}},
		{"unreachable", errors.New("connect: network is unreachable")},
		{"tls", errors.New("tls handshake failure")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(tt.err)
			require.NotNil(t, result)
			assert.Equal(t, KindConnection, result.Kind)
			assert.Equal(t, 0, result.Code)
			assert.True(t, result.ShouldRetry())
			assert.True(t, result.IsConnectionError())
		})
	}
}

func TestClassify_UnknownFailures(t *testing.T) {
	c := NewClassifier()

	result := c.Classify(errors.New("message rendering failed"))
	require.NotNil(t, result)
	assert.Equal(t, KindUnknown, result.Kind)
	assert.Equal(t, 0, result.Code)
	assert.False(t, result.ShouldRetry())
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier()
	err := &smtp.SMTPError{Code: 550, Message: "5.1.1 no such user"}

	first := c.Classify(err)
	second := c.Classify(err)

	assert.Equal(t, first.Kind, second.Kind)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.ShouldRetry(), second.ShouldRetry())
}

func TestClassifiedError_Unwrap(t *testing.T) {
	c := NewClassifier()
	inner := &smtp.SMTPError{Code: 451, Message: "greylisted"}

	result := c.Classify(fmt.Errorf("send failed: %w", inner))

	var smtpErr *smtp.SMTPError
	require.True(t, errors.As(result, &smtpErr))
	assert.Equal(t, 451, smtpErr.Code)
	assert.Equal(t, KindTemporary, result.Kind)
}

func TestExtractSMTPCode(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"550 5.1.1 user unknown", 550},
		{"smtp error: 451 try again", 451},
		{"[421] service not available", 421},
		{"gateway returned 452: insufficient storage", 452},
		{"no code here", 0},
		{"ends with 550", 550},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractSMTPCode(tt.in), tt.in)
	}
}
