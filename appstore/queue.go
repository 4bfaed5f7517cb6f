package appstore

import (
	"context"
	"fmt"
	"time"
)

// TransactionState mirrors the native payment queue's transaction states,
// including the platform's raw values.
type TransactionState int

const (
	TransactionPurchasing TransactionState = iota
	TransactionPurchased
	TransactionFailed
	TransactionRestored
	TransactionDeferred
)

// Terminal reports whether the queue considers the transaction settled.
// Terminal transactions must be finished exactly once; everything else is
// still in flight.
func (s TransactionState) Terminal() bool {
	switch s {
	case TransactionPurchased, TransactionFailed, TransactionRestored:
		return true
	default:
		return false
	}
}

func (s TransactionState) String() string {
	switch s {
	case TransactionPurchasing:
		return "purchasing"
	case TransactionPurchased:
		return "purchased"
	case TransactionFailed:
		return "failed"
	case TransactionRestored:
		return "restored"
	case TransactionDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

const (
	// ErrCodePaymentCancelled is the store's "user cancelled the payment"
	// code. It settles a purchase as "no purchase", never as a failure.
	ErrCodePaymentCancelled = 2
)

// Error is a failure reported by the native store.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("store error %d: %s", e.Code, e.Message)
}

// Cancelled reports whether the error is the user-cancellation code.
func (e *Error) Cancelled() bool {
	return e != nil && e.Code == ErrCodePaymentCancelled
}

// Transaction is one native transaction record as the queue reports it.
type Transaction struct {
	ID        string
	ProductID string
	State     TransactionState
	Date      time.Time

	// Err is set when State is TransactionFailed.
	Err *Error
}

// Product is one native catalog record. Price is in minor units of the
// currency implied by PriceLocale; the store prices every product in its own
// storefront locale, independent of the device locale.
type Product struct {
	ID          string
	Title       string
	Description string
	Price       int64
	PriceLocale string
}

// ProductsResponse is the queue's answer to a catalog request. Ids the
// catalog does not know come back in InvalidIDs rather than failing the
// request.
type ProductsResponse struct {
	Products   []Product
	InvalidIDs []string
}

// TransactionObserver receives the queue's push notifications. The queue
// delivers callbacks sequentially from its own dispatch loop.
type TransactionObserver interface {
	// UpdatedTransactions delivers a batch of transaction state changes, in
	// no particular order, possibly for transactions nobody asked about.
	UpdatedTransactions(txns []Transaction)

	// RestoreCompleted signals that every restorable transaction has been
	// delivered through UpdatedTransactions.
	RestoreCompleted()

	// RestoreFailed signals that the restore aborted. Restored transactions
	// delivered before the failure must be discarded.
	RestoreFailed(err *Error)

	// ProductsLoaded delivers the catalog response for RequestProducts.
	ProductsLoaded(resp ProductsResponse)

	// ProductsRequestFailed signals that the catalog request failed.
	ProductsRequestFailed(err *Error)
}

// PaymentQueue is the native store's transaction queue. Submitting work is
// fire-and-forget; outcomes arrive later through the TransactionObserver.
type PaymentQueue interface {
	// SetObserver registers the single observer for queue events. It must be
	// set before any work is submitted.
	SetObserver(o TransactionObserver)

	// AddPayment submits a payment for one product. A submitted payment
	// cannot be withdrawn.
	AddPayment(ctx context.Context, productID string) error

	// RestoreCompletedTransactions replays completed transactions as
	// restored ones, ending with RestoreCompleted or RestoreFailed.
	RestoreCompletedTransactions(ctx context.Context) error

	// RequestProducts fetches catalog records for the given product ids.
	RequestProducts(ctx context.Context, ids []string) error

	// FinishTransaction acknowledges a terminal transaction so the queue
	// stops redelivering it on the next launch.
	FinishTransaction(ctx context.Context, transactionID string) error
}
