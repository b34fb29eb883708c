// Package payment verifies third-party payment confirmations. The gateway
// signs "<order id>|<payment id>" with HMAC-SHA256 over a shared secret; the
// client relays the tuple back and this package recomputes and compares the
// signature. No call is ever made to the gateway itself.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrVerificationFailed is returned when the supplied signature does not
	// match the recomputed one.
	ErrVerificationFailed = errors.New("payment verification failed")
	// ErrProofIncomplete is returned when any field of the proof is missing.
	ErrProofIncomplete = errors.New("payment proof is incomplete")
)

// Proof is the confirmation tuple produced by the gateway and relayed by the
// client.
type Proof struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// Validate ensures all proof fields are present.
func (p Proof) Validate() error {
	if p.GatewayOrderID == "" || p.GatewayPaymentID == "" || p.Signature == "" {
		return ErrProofIncomplete
	}
	return nil
}

// Verifier checks payment proofs against a server-held gateway secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier with the given shared secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify recomputes the HMAC-SHA256 hex digest of
// "gatewayOrderID|gatewayPaymentID" and compares it to the supplied
// signature, case-insensitively and in constant time.
func (v *Verifier) Verify(p Proof) error {
	if err := p.Validate(); err != nil {
		return err
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(p.GatewayOrderID + "|" + p.GatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	supplied := strings.ToLower(strings.TrimSpace(p.Signature))
	if !hmac.Equal([]byte(expected), []byte(supplied)) {
		return ErrVerificationFailed
	}
	return nil
}
