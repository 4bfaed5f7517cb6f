package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/storekit-bridge/iap"
)

type MessageGenerator func() string
type ValidReceiptFromMessage func(message string) string

// RunVerifierTests runs every iap.Verifier implementation through the same
// conformance checks. The receipt carries its signature embedded, so the
// detached signature argument stays empty throughout.
func RunVerifierTests(t *testing.T, v iap.Verifier, msgGen MessageGenerator, validReceiptFunc ValidReceiptFromMessage, teardown func()) {
	for _, testFunc := range []func(t *testing.T, v iap.Verifier, msgGen MessageGenerator, validReceiptFunc ValidReceiptFromMessage){
		testValidReceipt,
		testInvalidReceipt,
		testIdentifierStability,
	} {
		testFunc(t, v, msgGen, validReceiptFunc)
		teardown()
	}
}

func testValidReceipt(t *testing.T, v iap.Verifier, msgGen MessageGenerator, validReceiptFunc ValidReceiptFromMessage) {
	ctx := context.Background()

	message := msgGen()
	validReceipt := validReceiptFunc(message)

	identifier, err := v.GetReceiptIdentifier(ctx, validReceipt)
	require.NoError(t, err)
	require.NotEmpty(t, identifier)

	valid, err := v.VerifyReceipt(ctx, validReceipt, "")
	require.NoError(t, err)
	require.True(t, valid)
}

func testInvalidReceipt(t *testing.T, v iap.Verifier, msgGen MessageGenerator, validReceiptFunc ValidReceiptFromMessage) {
	ctx := context.Background()

	// Just use the word "invalid" as an invalid receipt.
	valid, _ := v.VerifyReceipt(ctx, "invalid", "")
	require.False(t, valid)
}

func testIdentifierStability(t *testing.T, v iap.Verifier, msgGen MessageGenerator, validReceiptFunc ValidReceiptFromMessage) {
	ctx := context.Background()

	validReceipt := validReceiptFunc(msgGen())

	first, err := v.GetReceiptIdentifier(ctx, validReceipt)
	require.NoError(t, err)

	second, err := v.GetReceiptIdentifier(ctx, validReceipt)
	require.NoError(t, err)

	require.Equal(t, first, second)
}
