package apple

import (
	"context"

	"github.com/devsisters/go-applereceipt"
	"github.com/devsisters/go-applereceipt/applepki"
	"github.com/pkg/errors"

	"github.com/code-payments/storekit-bridge/iap"
)

type AppleVerifier struct {
	// bundleID is the app's bundle identifier, e.g. "com.flipchat.app".
	bundleID string

	// productID, when set, requires the receipt to contain a purchase of
	// that product.
	productID string
}

func NewAppleVerifier(bundleID, productID string) iap.Verifier {
	return &AppleVerifier{
		bundleID:  bundleID,
		productID: productID,
	}
}

func (v *AppleVerifier) VerifyReceipt(ctx context.Context, encodedReceipt, _ string) (bool, error) {
	// The detached signature argument is unused on this platform; app store
	// receipts are PKCS#7 envelopes with the signature embedded in the blob.

	receipt, err := applereceipt.DecodeBase64(encodedReceipt, applepki.CertPool())
	if err != nil {
		// An undecodable receipt is an invalid receipt, not an
		// infrastructure failure.

		return false, nil
	}

	// Verify the bundle ID.
	if receipt.BundleIdentifier != v.bundleID {
		return false, nil
	}

	// Verify that the receipt contains the required product, if one was
	// configured.
	if v.productID != "" {
		found := false
		for _, purchase := range receipt.InAppPurchaseReceipts {
			if purchase.ProductIdentifier == v.productID {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	// TODO: verify the AppVersion field in the receipt?
	// receipt.AppVersion

	return true, nil
}

func (v *AppleVerifier) GetReceiptIdentifier(ctx context.Context, encodedReceipt string) ([]byte, error) {
	receipt, err := applereceipt.DecodeBase64(encodedReceipt, applepki.CertPool())
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode receipt")
	}

	return receipt.SHA1Hash, nil
}
