// Package dkim wraps DKIM key management and message signing for sending
// domains. Keys are RSA-2048; the public key is stored alongside the private
// key at generation time and can always be re-derived algebraically, so the
// DNS record never drifts from the key used to sign.
package dkim

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"

	msgauthdkim "github.com/emersion/go-msgauth/dkim"
)

// Headers included in the DKIM signature, per RFC 6376 recommendations.
var signedHeaders = []string{
	"From",
	"To",
	"Subject",
	"Date",
	"Message-ID",
	"MIME-Version",
	"Content-Type",
}

// KeyPair holds a freshly generated DKIM key pair.
type KeyPair struct {
	// PrivateKeyPEM is the PKCS#1 PEM encoding of the private key.
	PrivateKeyPEM string
	// PublicKeyBase64 is the base64 DER SubjectPublicKeyInfo, the "p=" value
	// of the DNS record.
	PublicKeyBase64 string
}

// GenerateKeyPair creates a new RSA-2048 key pair for DKIM signing.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	pub, err := encodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		PrivateKeyPEM:   string(privPEM),
		PublicKeyBase64: pub,
	}, nil
}

// ParsePrivateKey decodes a PEM private key in PKCS#1 or PKCS#8 form.
func ParsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want *rsa.PrivateKey", parsed)
	}
	return rsaKey, nil
}

// PublicKeyFromPrivate derives the base64 DER public key from a PEM private
// key. The relationship is algebraic, so the result always matches the key
// that signs.
func PublicKeyFromPrivate(privateKeyPEM string) (string, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}
	return encodePublicKey(&key.PublicKey)
}

// DNSRecord returns the TXT record value to publish at
// {selector}._domainkey.{domain}.
func DNSRecord(publicKeyBase64 string) string {
	return fmt.Sprintf("v=DKIM1; k=rsa; p=%s", publicKeyBase64)
}

// DNSRecordName returns the fully qualified name the TXT record lives at.
func DNSRecordName(selector, domain string) string {
	return fmt.Sprintf("%s._domainkey.%s", selector, domain)
}

func encodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// Signature identifies the signing domain and selector, carrying the parsed
// private key.
type Signature struct {
	Domain   string
	Selector string
	Key      *rsa.PrivateKey
}

// NewSignature parses the PEM private key for the given domain and selector.
func NewSignature(domain, selector, privateKeyPEM string) (*Signature, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("invalid DKIM key for %s: %w", domain, err)
	}
	return &Signature{Domain: domain, Selector: selector, Key: key}, nil
}

// Sign reads a rendered RFC 5322 message and writes it back out with a
// DKIM-Signature header prepended, using relaxed/relaxed canonicalization.
func (s *Signature) Sign(w io.Writer, message io.Reader) error {
	options := &msgauthdkim.SignOptions{
		Domain:                 s.Domain,
		Selector:               s.Selector,
		Signer:                 s.Key,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: msgauthdkim.CanonicalizationRelaxed,
		BodyCanonicalization:   msgauthdkim.CanonicalizationRelaxed,
		HeaderKeys:             signedHeaders,
	}

	if err := msgauthdkim.Sign(w, message, options); err != nil {
		return fmt.Errorf("dkim signing failed: %w", err)
	}
	return nil
}

// SignBytes is a convenience wrapper over Sign for in-memory messages.
func (s *Signature) SignBytes(message []byte) ([]byte, error) {
	var signed bytes.Buffer
	if err := s.Sign(&signed, bytes.NewReader(message)); err != nil {
		return nil, err
	}
	return signed.Bytes(), nil
}
