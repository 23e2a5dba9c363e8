package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrConfiguration means no webhook secret is configured. Webhooks are
	// refused outright rather than accepted unverified.
	ErrConfiguration    = errors.New("webhook secret not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Secret is the shared HMAC key. The zero value holds no key and verifies nothing.
type Secret struct {
	key []byte
}

func NewSecret(s string) (Secret, error) {
	if s == "" {
		return Secret{}, ErrConfiguration
	}
	return Secret{key: []byte(s)}, nil
}

func (s Secret) configured() bool { return len(s.key) > 0 }

type Verifier struct {
	secret Secret
}

func NewVerifier(secret Secret) *Verifier {
	return &Verifier{secret: secret}
}

// Check returns ErrConfiguration when the verifier holds no secret and
// ErrInvalidSignature when the signature is missing or wrong.
func (v *Verifier) Check(payload []byte, signature string) error {
	if v == nil || !v.secret.configured() {
		return ErrConfiguration
	}
	if !Verify(payload, []byte(signature), v.secret.key) {
		return ErrInvalidSignature
	}
	return nil
}

func (v *Verifier) Verify(payload []byte, signature string) bool {
	return v.Check(payload, signature) == nil
}

// Verify reports whether signature is the hex HMAC-SHA256 of payload under
// secret. An empty secret or signature never verifies.
func Verify(payload, signature, secret []byte) bool {
	if len(secret) == 0 || len(signature) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(string(signature)))
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(payload, secret))
}

// Sign returns the raw HMAC-SHA256 of payload.
func Sign(payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignHex is Sign hex-encoded, the form the gateway sends in its header.
func SignHex(payload, secret []byte) string {
	return hex.EncodeToString(Sign(payload, secret))
}
