package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/code-payments/storekit-bridge/appstore"
)

const dispatchBufferSize = 64

type outcomeKind uint8

const (
	outcomeApprove outcomeKind = iota
	outcomeCancel
	outcomeDefer
	outcomeFail
)

type outcome struct {
	kind    outcomeKind
	code    int
	message string
}

type ownedPurchase struct {
	productID   string
	purchasedAt time.Time
}

// Queue is an in-memory stand-in for the native payment queue. Observer
// callbacks are delivered sequentially from a single dispatch goroutine, the
// way the platform delivers them on its own queue. Payment outcomes are
// scripted per product id and default to approval.
type Queue struct {
	mu         sync.Mutex
	observer   appstore.TransactionObserver
	catalog    map[string]appstore.Product
	outcomes   map[string]outcome
	owned      []ownedPurchase
	finished   map[string]int
	calls      int
	restoreErr *appstore.Error
	catalogErr *appstore.Error

	dispatchCh chan func()
	done       chan struct{}
	closeOnce  sync.Once
}

var _ appstore.PaymentQueue = (*Queue)(nil)

func NewQueue() *Queue {
	q := &Queue{
		catalog:    make(map[string]appstore.Product),
		outcomes:   make(map[string]outcome),
		finished:   make(map[string]int),
		dispatchCh: make(chan func(), dispatchBufferSize),
		done:       make(chan struct{}),
	}

	go q.dispatchLoop()

	return q
}

// Close stops the dispatch loop. Events not yet delivered are dropped.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

func (q *Queue) dispatchLoop() {
	for {
		select {
		case fn := <-q.dispatchCh:
			fn()
		case <-q.done:
			return
		}
	}
}

func (q *Queue) dispatch(fn func()) {
	// Drop immediately once closed, even if the buffer has room.
	select {
	case <-q.done:
		return
	default:
	}

	select {
	case q.dispatchCh <- fn:
	case <-q.done:
	}
}

// AddProduct puts a product into the simulated catalog.
func (q *Queue) AddProduct(product appstore.Product) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.catalog[product.ID] = product
}

// Approve makes future payments for productID succeed. This is the default.
func (q *Queue) Approve(productID string) {
	q.setOutcome(productID, outcome{kind: outcomeApprove})
}

// Cancel makes future payments for productID fail with the
// user-cancellation code.
func (q *Queue) Cancel(productID string) {
	q.setOutcome(productID, outcome{kind: outcomeCancel})
}

// Defer makes future payments for productID stop in the deferred state. The
// terminal event, e.g. after a family approval, is injected with Deliver.
func (q *Queue) Defer(productID string) {
	q.setOutcome(productID, outcome{kind: outcomeDefer})
}

// Fail makes future payments for productID fail with a store error.
func (q *Queue) Fail(productID string, code int, message string) {
	q.setOutcome(productID, outcome{kind: outcomeFail, code: code, message: message})
}

func (q *Queue) setOutcome(productID string, out outcome) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.outcomes[productID] = out
}

// FailRestores makes restore requests abort after replaying owned
// purchases.
func (q *Queue) FailRestores(code int, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.restoreErr = &appstore.Error{Code: code, Message: message}
}

// RestoresSucceed clears a previous FailRestores.
func (q *Queue) RestoresSucceed() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.restoreErr = nil
}

// FailCatalog makes catalog requests fail.
func (q *Queue) FailCatalog(code int, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.catalogErr = &appstore.Error{Code: code, Message: message}
}

// CatalogSucceeds clears a previous FailCatalog.
func (q *Queue) CatalogSucceeds() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.catalogErr = nil
}

// Own seeds a completed purchase for a restore to replay. Replayed
// transactions get fresh transaction ids, mirroring how the store reissues
// them.
func (q *Queue) Own(productID string, purchasedAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.owned = append(q.owned, ownedPurchase{productID: productID, purchasedAt: purchasedAt})
}

// Deliver pushes an arbitrary batch of transactions through the observer,
// e.g. a promoted purchase nobody asked about.
func (q *Queue) Deliver(txns ...appstore.Transaction) {
	o := q.getObserver()
	if o == nil {
		return
	}

	q.dispatch(func() {
		o.UpdatedTransactions(txns)
	})
}

// FinishCount reports how many times transactionID was finished.
func (q *Queue) FinishCount(transactionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.finished[transactionID]
}

// Finished reports the finish count of every acknowledged transaction.
func (q *Queue) Finished() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]int, len(q.finished))
	for id, count := range q.finished {
		out[id] = count
	}
	return out
}

// Calls reports how many requests the queue has received.
func (q *Queue) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.calls
}

func (q *Queue) SetObserver(o appstore.TransactionObserver) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.observer = o
}

func (q *Queue) getObserver() appstore.TransactionObserver {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.observer
}

func (q *Queue) AddPayment(_ context.Context, productID string) error {
	q.mu.Lock()
	o := q.observer
	if o == nil {
		q.mu.Unlock()
		return errors.New("no transaction observer")
	}

	q.calls++
	out := q.outcomes[productID]
	_, known := q.catalog[productID]
	if known && out.kind == outcomeApprove {
		q.owned = append(q.owned, ownedPurchase{productID: productID, purchasedAt: time.Now()})
	}
	q.mu.Unlock()

	txnID := uuid.NewString()

	q.dispatch(func() {
		o.UpdatedTransactions([]appstore.Transaction{{
			ID:        txnID,
			ProductID: productID,
			State:     appstore.TransactionPurchasing,
		}})
	})

	if !known {
		q.dispatch(func() {
			o.UpdatedTransactions([]appstore.Transaction{{
				ID:        txnID,
				ProductID: productID,
				State:     appstore.TransactionFailed,
				Err:       &appstore.Error{Code: 0, Message: "unknown product " + productID},
			}})
		})
		return nil
	}

	switch out.kind {
	case outcomeCancel:
		q.dispatch(func() {
			o.UpdatedTransactions([]appstore.Transaction{{
				ID:        txnID,
				ProductID: productID,
				State:     appstore.TransactionFailed,
				Err:       &appstore.Error{Code: appstore.ErrCodePaymentCancelled, Message: "payment cancelled"},
			}})
		})
	case outcomeDefer:
		q.dispatch(func() {
			o.UpdatedTransactions([]appstore.Transaction{{
				ID:        txnID,
				ProductID: productID,
				State:     appstore.TransactionDeferred,
			}})
		})
	case outcomeFail:
		q.dispatch(func() {
			o.UpdatedTransactions([]appstore.Transaction{{
				ID:        txnID,
				ProductID: productID,
				State:     appstore.TransactionFailed,
				Err:       &appstore.Error{Code: out.code, Message: out.message},
			}})
		})
	default:
		q.dispatch(func() {
			o.UpdatedTransactions([]appstore.Transaction{{
				ID:        txnID,
				ProductID: productID,
				State:     appstore.TransactionPurchased,
				Date:      time.Now(),
			}})
		})
	}

	return nil
}

func (q *Queue) RestoreCompletedTransactions(_ context.Context) error {
	q.mu.Lock()
	o := q.observer
	if o == nil {
		q.mu.Unlock()
		return errors.New("no transaction observer")
	}

	q.calls++
	owned := make([]ownedPurchase, len(q.owned))
	copy(owned, q.owned)
	restoreErr := q.restoreErr
	q.mu.Unlock()

	for _, own := range owned {
		txn := appstore.Transaction{
			ID:        uuid.NewString(),
			ProductID: own.productID,
			State:     appstore.TransactionRestored,
			Date:      own.purchasedAt,
		}
		q.dispatch(func() {
			o.UpdatedTransactions([]appstore.Transaction{txn})
		})
	}

	if restoreErr != nil {
		q.dispatch(func() {
			o.RestoreFailed(restoreErr)
		})
		return nil
	}

	q.dispatch(func() {
		o.RestoreCompleted()
	})
	return nil
}

func (q *Queue) RequestProducts(_ context.Context, ids []string) error {
	q.mu.Lock()
	o := q.observer
	if o == nil {
		q.mu.Unlock()
		return errors.New("no transaction observer")
	}

	q.calls++
	catalogErr := q.catalogErr

	var resp appstore.ProductsResponse
	for _, id := range ids {
		if product, ok := q.catalog[id]; ok {
			resp.Products = append(resp.Products, product)
		} else {
			resp.InvalidIDs = append(resp.InvalidIDs, id)
		}
	}
	q.mu.Unlock()

	if catalogErr != nil {
		q.dispatch(func() {
			o.ProductsRequestFailed(catalogErr)
		})
		return nil
	}

	q.dispatch(func() {
		o.ProductsLoaded(resp)
	})
	return nil
}

func (q *Queue) FinishTransaction(_ context.Context, transactionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.calls++
	q.finished[transactionID]++
	return nil
}
