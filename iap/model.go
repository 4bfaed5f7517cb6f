package iap

import (
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

var (
	// ErrNotSupported indicates the current platform has no notion of the
	// requested purchasing operation.
	ErrNotSupported = errors.New("operation not supported on this platform")
)

type ProductType uint8

const (
	ProductTypeUnknown ProductType = iota
	ProductTypeInApp
	ProductTypeSubscription
)

func (t ProductType) String() string {
	switch t {
	case ProductTypeInApp:
		return "inapp"
	case ProductTypeSubscription:
		return "subscription"
	default:
		return "unknown"
	}
}

type State uint8

const (
	StateUnknown State = iota
	StatePurchasing
	StatePurchased
	StateFailed
	StateDeferred
	StateRestored
)

// Terminal reports whether no further transition can occur from s.
func (s State) Terminal() bool {
	switch s {
	case StatePurchased, StateFailed, StateRestored:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case StatePurchasing:
		return "purchasing"
	case StatePurchased:
		return "purchased"
	case StateFailed:
		return "failed"
	case StateDeferred:
		return "deferred"
	case StateRestored:
		return "restored"
	default:
		return "unknown"
	}
}

// Product is one catalog entry. Products are built fresh for every query and
// never cached; the store's catalog is the single source of truth.
type Product struct {
	ID          string
	Type        ProductType
	Title       string
	Description string

	// Price is in minor units of Currency, e.g. 499 for $4.99 or 500 for
	// ¥500. Currency comes from the product's own price locale, never from
	// the device locale.
	Price        int64
	DisplayPrice string
	Currency     string
}

// Purchase is one platform-reported transaction. A purchase record is never
// mutated after creation; re-fetching yields a new record.
type Purchase struct {
	ID          string
	ProductID   string
	PurchasedAt time.Time
	State       State
}

// TransactionError is a purchase failure reported by the platform's store,
// carrying the platform's own code and message. A user cancelling the
// payment sheet is not a TransactionError; it surfaces as no purchase at
// all.
type TransactionError struct {
	Code    int
	Message string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed: %s (code %d)", e.Message, e.Code)
}

// ReceiptIDString renders a receipt identifier for logs.
func ReceiptIDString(id []byte) string {
	return base58.Encode(id)
}
