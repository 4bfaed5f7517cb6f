package iap

import "context"

// Purchaser is the cross-platform purchasing surface. Implementations adapt
// one platform's native store service so callers can stay platform-agnostic.
//
// Calls that submit work to the native store block until the store settles
// the outcome. There is no timeout at this layer: a purchase may
// legitimately wait on user interaction for minutes. Cancelling ctx detaches
// the caller but does not withdraw the underlying store request.
type Purchaser interface {
	// Connect prepares the platform's store connection. Platforms with an
	// always-on store service return immediately.
	Connect(ctx context.Context) error

	// Disconnect releases the store connection, if the platform has one.
	Disconnect(ctx context.Context) error

	// QueryProducts fetches catalog records for the given product ids. Ids
	// the catalog does not know are skipped, not errors.
	QueryProducts(ctx context.Context, ids []string, productType ProductType) ([]Product, error)

	// Purchase buys one product and waits for the store to settle the
	// transaction. A nil purchase with a nil error means the user cancelled,
	// or the receipt failed verification.
	Purchase(ctx context.Context, productID string) (*Purchase, error)

	// GetPurchases restores previously completed purchases. A nil slice with
	// a nil error means the restore aborted or the receipt failed
	// verification; an empty non-nil slice means there was nothing to
	// restore.
	GetPurchases(ctx context.Context, productType ProductType) ([]Purchase, error)

	// ConsumePurchase marks a consumable purchase as used up, on platforms
	// that track consumption. Platforms without a consume step return
	// ErrNotSupported.
	ConsumePurchase(ctx context.Context, purchaseID string) error
}
