package iap

import "context"

type Verifier interface {

	// VerifyReceipt takes a IAP receipt (for iOS/Android usually a
	// base64-encoded string) plus a detached signature, and determines if the
	// receipt is valid. Platforms that embed the signature in the receipt
	// blob itself pass an empty signature.
	VerifyReceipt(ctx context.Context, receipt, signature string) (bool, error)

	// GetReceiptIdentifier takes a IAP receipt and returns a stable
	// identifier for it. This can be used to identify the receipt in the
	// system.
	GetReceiptIdentifier(ctx context.Context, receipt string) ([]byte, error)
}
