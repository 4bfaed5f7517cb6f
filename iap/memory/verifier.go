package memory

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/code-payments/storekit-bridge/iap"
)

// MemoryVerifier is an in-memory verifier that checks an ed25519 signature on
// the receipt. For testing purposes, the "receipt" is actually a message that,
// when signed by the owner secret, is considered valid. The signature either
// arrives detached, or embedded as base64(signature)|message.
type MemoryVerifier struct {
	publicKey ed25519.PublicKey
}

// NewMemoryVerifier creates a new MemoryVerifier from a given public key.
func NewMemoryVerifier(pubKey ed25519.PublicKey) iap.Verifier {
	return &MemoryVerifier{publicKey: pubKey}
}

func (m *MemoryVerifier) VerifyReceipt(ctx context.Context, receipt, signature string) (bool, error) {
	sig, message, err := parseReceipt(receipt, signature)
	if err != nil {
		// Not returning an error here because we're testing the verifier, not the
		// receipt parsing.

		return false, nil
	}

	// Verify the signature.
	if ed25519.Verify(m.publicKey, message, sig) {
		return true, nil
	}

	return false, nil
}

func (m *MemoryVerifier) GetReceiptIdentifier(ctx context.Context, receipt string) ([]byte, error) {
	sig, _, err := parseReceipt(receipt, "")
	if err != nil {
		return nil, err
	}

	return sig, nil
}

func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

func GenerateValidReceipt(owner ed25519.PrivateKey, message string) string {
	signature := ed25519.Sign(owner, []byte(message))
	return base64.StdEncoding.EncodeToString(signature) + "|" + message
}

// parseReceipt resolves the signed message and its signature. A non-empty
// detached signature wins; otherwise the receipt format is
// base64(signature)|message.
func parseReceipt(receipt, signature string) (sig []byte, message []byte, err error) {
	if signature != "" {
		sig, err = base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return nil, nil, fmt.Errorf("error decoding signature: %w", err)
		}

		return sig, []byte(receipt), nil
	}

	parts := strings.Split(receipt, "|")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid receipt format: %s", receipt)
	}

	sig, err = base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("error decoding signature: %w", err)
	}

	message = []byte(parts[1])
	return sig, message, nil
}
