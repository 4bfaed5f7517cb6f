package memory

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/storekit-bridge/iap/tests"
)

func TestMemoryVerifier(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	verifier := NewMemoryVerifier(pub)
	messageGenerator := func() string {
		return uuid.NewString()
	}
	validReceiptFunc := func(msg string) string {
		return GenerateValidReceipt(priv, msg)
	}

	teardown := func() {}

	tests.RunVerifierTests(t,
		verifier, messageGenerator, validReceiptFunc, teardown)
}

func TestMemoryVerifier_DetachedSignature(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	verifier := NewMemoryVerifier(pub)

	ctx := context.Background()
	message := "order-42"
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(message)))

	valid, err := verifier.VerifyReceipt(ctx, message, signature)
	require.NoError(t, err)
	require.True(t, valid)

	// The detached signature covers the receipt, so a tampered receipt
	// fails.
	valid, err = verifier.VerifyReceipt(ctx, "tampered", signature)
	require.NoError(t, err)
	require.False(t, valid)

	// A garbage signature is invalid, not an error.
	valid, err = verifier.VerifyReceipt(ctx, message, "!!!")
	require.NoError(t, err)
	require.False(t, valid)
}

func TestMemoryVerifier_WrongKey(t *testing.T) {
	pub, _, err := GenerateKeyPair()
	require.NoError(t, err)

	_, otherPriv, err := GenerateKeyPair()
	require.NoError(t, err)

	verifier := NewMemoryVerifier(pub)

	valid, err := verifier.VerifyReceipt(context.Background(), GenerateValidReceipt(otherPriv, "order-1"), "")
	require.NoError(t, err)
	require.False(t, valid)
}
