package appstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/code-payments/storekit-bridge/iap"
)

// UpdatedTransactions classifies a batch of native transaction events.
// Terminal transactions are acknowledged back to the queue before any waiter
// is settled; events whose product has no pending call settle nothing and
// leave calls armed on other products untouched.
func (c *Client) UpdatedTransactions(txns []Transaction) {
	for _, txn := range txns {
		c.onTransaction(txn)
	}
}

func (c *Client) onTransaction(txn Transaction) {
	log := c.log.With(
		zap.String("transaction_id", txn.ID),
		zap.String("product_id", txn.ProductID),
		zap.Stringer("state", txn.State),
	)

	if !txn.State.Terminal() {
		log.Debug("Transaction in flight")
		c.publishUpdate(txn, false)
		return
	}

	c.finish(txn, log)

	switch txn.State {
	case TransactionPurchased:
		purchase := purchaseFromTransaction(txn)
		settled := c.purchases.Resolve(txn.ProductID, &purchase)
		if !settled {
			log.Debug("Purchase arrived with no pending call")
		}
		c.publishUpdate(txn, !settled)

	case TransactionFailed:
		c.settleFailed(txn, log)
		c.publishUpdate(txn, false)

	case TransactionRestored:
		c.restoredMu.Lock()
		c.restored = append(c.restored, purchaseFromTransaction(txn))
		c.restoredMu.Unlock()

		c.publishUpdate(txn, false)
	}
}

func (c *Client) settleFailed(txn Transaction, log *zap.Logger) {
	if txn.Err.Cancelled() {
		// The user backed out of the payment sheet. That settles the call
		// with no purchase, not with an error.
		if c.purchases.Resolve(txn.ProductID, nil) {
			log.Debug("Payment cancelled by user")
		}
		return
	}

	terr := &iap.TransactionError{Message: "transaction failed"}
	if txn.Err != nil {
		terr.Code = txn.Err.Code
		terr.Message = txn.Err.Message
	}

	if !c.purchases.Reject(txn.ProductID, terr) {
		log.Debug("Failed transaction had no pending call", zap.Int("code", terr.Code))
	}
}

// RestoreCompleted settles the pending restore with every restored
// transaction received since the restore began, in arrival order.
func (c *Client) RestoreCompleted() {
	c.restoredMu.Lock()
	restored := c.restored
	c.restored = nil
	c.restoredMu.Unlock()

	// Settle with a non-nil slice even when nothing was restorable, so
	// callers can tell "nothing to restore" from "restore aborted".
	result := make([]iap.Purchase, 0, len(restored))
	result = append(result, restored...)

	if !c.restores.Resolve(restoreAllKey, result) {
		c.log.Debug("Restore completed with no pending call", zap.Int("num_purchases", len(result)))
	}
}

// RestoreFailed discards everything buffered by the aborted restore and
// settles the pending call with no result.
func (c *Client) RestoreFailed(err *Error) {
	c.restoredMu.Lock()
	c.restored = nil
	c.restoredMu.Unlock()

	c.log.Warn("Restore failed", zap.Error(err))

	c.restores.Resolve(restoreAllKey, nil)
}

// ProductsLoaded settles the pending catalog request.
func (c *Client) ProductsLoaded(resp ProductsResponse) {
	if !c.catalogs.Resolve(catalogKey, resp) {
		c.log.Debug("Catalog response with no pending call", zap.Int("num_products", len(resp.Products)))
	}
}

// ProductsRequestFailed rejects the pending catalog request with the store's
// error.
func (c *Client) ProductsRequestFailed(err *Error) {
	if !c.catalogs.Reject(catalogKey, err) {
		c.log.Warn("Catalog request failed with no pending call", zap.Error(err))
	}
}

func (c *Client) publishUpdate(txn Transaction, unsolicited bool) {
	_ = c.updates.OnEvent(txn.ProductID, Update{
		Purchase:    purchaseFromTransaction(txn),
		Unsolicited: unsolicited,
	})
}

func (c *Client) finish(txn Transaction, log *zap.Logger) {
	if err := c.queue.FinishTransaction(context.Background(), txn.ID); err != nil {
		log.Warn("Failed to finish transaction", zap.Error(err))
	}
}

// purchaseFromTransaction maps one native transaction record onto the
// neutral purchase shape. Timestamps are normalized to UTC.
func purchaseFromTransaction(txn Transaction) iap.Purchase {
	return iap.Purchase{
		ID:          txn.ID,
		ProductID:   txn.ProductID,
		PurchasedAt: txn.Date.UTC(),
		State:       stateFromTransaction(txn.State),
	}
}

func stateFromTransaction(s TransactionState) iap.State {
	switch s {
	case TransactionPurchasing:
		return iap.StatePurchasing
	case TransactionPurchased:
		return iap.StatePurchased
	case TransactionFailed:
		return iap.StateFailed
	case TransactionRestored:
		return iap.StateRestored
	case TransactionDeferred:
		return iap.StateDeferred
	default:
		return iap.StateUnknown
	}
}
