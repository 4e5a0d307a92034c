// Package smtpclient sends rendered email through a configured SMTP relay.
// Messages are built with go-mail, optionally DKIM-signed, and submitted over
// a fresh connection per send, capped by a connection semaphore.
package smtpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	mail "github.com/wneessen/go-mail"

	"github.com/Postroom/postroom/pkg/dkim"
	"github.com/Postroom/postroom/pkg/logger"
)

// Config holds relay connection settings.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	UseTLS         bool
	MaxConnections int
	// SystemDomain is used for generated Message-ID values.
	SystemDomain string
}

// OutboundMessage is a fully resolved email ready to send.
type OutboundMessage struct {
	ID       string
	From     string
	FromName string
	ReplyTo  string
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	Headers  map[string]string
}

// Client submits email to the configured relay.
type Client struct {
	cfg    Config
	logger logger.Logger

	// sem caps concurrent relay connections.
	sem chan struct{}
}

// NewClient creates an SMTP client for the given relay.
func NewClient(cfg Config, log logger.Logger) *Client {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 5
	}
	return &Client{
		cfg:    cfg,
		logger: log,
		sem:    make(chan struct{}, maxConns),
	}
}

// Send builds, signs and submits a message. A nil signature sends unsigned.
// Signing failures degrade to an unsigned send with a warning rather than
// failing the message.
func (c *Client) Send(ctx context.Context, msg *OutboundMessage, sig *dkim.Signature) error {
	raw, err := c.buildMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	if sig != nil {
		signed, signErr := sig.SignBytes(raw)
		if signErr != nil {
			c.logger.WithFields(map[string]interface{}{
				"message_id": msg.ID,
				"domain":     sig.Domain,
				"error":      signErr.Error(),
			}).Warn("DKIM signing failed, sending unsigned")
		} else {
			raw = signed
		}
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	return c.submit(ctx, msg.From, msg.To, raw)
}

// Close waits for in-flight sends to finish. The client must not be used
// after Close.
func (c *Client) Close() {
	for i := 0; i < cap(c.sem); i++ {
		c.sem <- struct{}{}
	}
}

// Verify checks that the relay is reachable and accepting commands.
func (c *Client) Verify(ctx context.Context) error {
	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Noop(); err != nil {
		return fmt.Errorf("smtp noop failed: %w", err)
	}
	return client.Quit()
}

// buildMessage renders the RFC 5322 message bytes.
func (c *Client) buildMessage(msg *OutboundMessage) ([]byte, error) {
	m := mail.NewMsg()

	if msg.FromName != "" {
		if err := m.FromFormat(msg.FromName, msg.From); err != nil {
			return nil, fmt.Errorf("invalid from address %q: %w", msg.From, err)
		}
	} else {
		if err := m.From(msg.From); err != nil {
			return nil, fmt.Errorf("invalid from address %q: %w", msg.From, err)
		}
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", msg.To, err)
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("invalid reply-to address %q: %w", msg.ReplyTo, err)
		}
	}

	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageIDWithValue(fmt.Sprintf("%s@%s", msg.ID, c.cfg.SystemDomain))

	for name, value := range msg.Headers {
		m.SetGenHeader(mail.Header(name), value)
	}

	// Text part always present; HTML rides along as the preferred alternative.
	m.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}

// submit runs the SMTP transaction for one message.
func (c *Client) submit(ctx context.Context, from, to string, raw []byte) error {
	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if c.cfg.Username != "" {
		auth := sasl.NewPlainClient("", c.cfg.Username, c.cfg.Password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(to, nil); err != nil {
		return fmt.Errorf("RCPT TO rejected: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := wc.Write(raw); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}

	return client.Quit()
}

// dial opens a connection to the relay, negotiating TLS per configuration.
// Port 465 with TLS enabled means implicit TLS; any other port with TLS
// enabled requires STARTTLS and fails when the relay does not offer it.
func (c *Client) dial(ctx context.Context) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	dialer := &net.Dialer{Timeout: 30 * time.Second}

	if c.cfg.UseTLS && c.cfg.Port == 465 {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: c.cfg.Host}}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		return smtp.NewClient(conn), nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if c.cfg.UseTLS {
		client, err := smtp.NewClientStartTLS(conn, &tls.Config{ServerName: c.cfg.Host})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls with %s failed: %w", addr, err)
		}
		return client, nil
	}

	return smtp.NewClient(conn), nil
}
