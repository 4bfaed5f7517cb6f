package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/storekit-bridge/appstore"
)

type recordingObserver struct {
	mu     sync.Mutex
	states []appstore.TransactionState

	restoresCompleted int
	restoresFailed    int

	products   []appstore.ProductsResponse
	productErr []*appstore.Error
}

func (r *recordingObserver) UpdatedTransactions(txns []appstore.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, txn := range txns {
		r.states = append(r.states, txn.State)
	}
}

func (r *recordingObserver) RestoreCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.restoresCompleted++
}

func (r *recordingObserver) RestoreFailed(*appstore.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.restoresFailed++
}

func (r *recordingObserver) ProductsLoaded(resp appstore.ProductsResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.products = append(r.products, resp)
}

func (r *recordingObserver) ProductsRequestFailed(err *appstore.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.productErr = append(r.productErr, err)
}

func (r *recordingObserver) States() []appstore.TransactionState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]appstore.TransactionState, len(r.states))
	copy(out, r.states)
	return out
}

func TestQueue_PurchasingPrecedesTerminal(t *testing.T) {
	q := NewQueue()
	t.Cleanup(q.Close)

	q.AddProduct(appstore.Product{ID: "sku", Price: 100, PriceLocale: "en-US"})

	rec := &recordingObserver{}
	q.SetObserver(rec)

	require.NoError(t, q.AddPayment(context.Background(), "sku"))

	require.Eventually(t, func() bool {
		return len(rec.States()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []appstore.TransactionState{
		appstore.TransactionPurchasing,
		appstore.TransactionPurchased,
	}, rec.States())
}

func TestQueue_UnknownProductFailsPayment(t *testing.T) {
	q := NewQueue()
	t.Cleanup(q.Close)

	rec := &recordingObserver{}
	q.SetObserver(rec)

	require.NoError(t, q.AddPayment(context.Background(), "sku.unknown"))

	require.Eventually(t, func() bool {
		return len(rec.States()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []appstore.TransactionState{
		appstore.TransactionPurchasing,
		appstore.TransactionFailed,
	}, rec.States())
}

func TestQueue_ObserverRequired(t *testing.T) {
	q := NewQueue()
	t.Cleanup(q.Close)

	require.Error(t, q.AddPayment(context.Background(), "sku"))
	require.Error(t, q.RestoreCompletedTransactions(context.Background()))
	require.Error(t, q.RequestProducts(context.Background(), []string{"sku"}))

	assert.Zero(t, q.Calls())
}

func TestQueue_RestoreReplaysBeforeCompletion(t *testing.T) {
	q := NewQueue()
	t.Cleanup(q.Close)

	rec := &recordingObserver{}
	q.SetObserver(rec)

	q.Own("sku.a", time.Now())
	q.Own("sku.b", time.Now())

	require.NoError(t, q.RestoreCompletedTransactions(context.Background()))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.restoresCompleted == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Both replays landed before the completion signal.
	assert.Equal(t, []appstore.TransactionState{
		appstore.TransactionRestored,
		appstore.TransactionRestored,
	}, rec.States())
	assert.Zero(t, rec.restoresFailed)
}

func TestQueue_RestoreFailureSignalled(t *testing.T) {
	q := NewQueue()
	t.Cleanup(q.Close)

	rec := &recordingObserver{}
	q.SetObserver(rec)

	q.Own("sku.a", time.Now())
	q.FailRestores(11, "store unavailable")

	require.NoError(t, q.RestoreCompletedTransactions(context.Background()))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return rec.restoresFailed == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Zero(t, rec.restoresCompleted)
}

func TestQueue_RequestProductsSplitsUnknownIDs(t *testing.T) {
	q := NewQueue()
	t.Cleanup(q.Close)

	q.AddProduct(appstore.Product{ID: "sku.a", Price: 100, PriceLocale: "en-US"})

	rec := &recordingObserver{}
	q.SetObserver(rec)

	require.NoError(t, q.RequestProducts(context.Background(), []string{"sku.a", "sku.b"}))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.products) == 1
	}, 5*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.products[0].Products, 1)
	assert.Equal(t, "sku.a", rec.products[0].Products[0].ID)
	assert.Equal(t, []string{"sku.b"}, rec.products[0].InvalidIDs)
}

func TestQueue_CloseDropsPendingEvents(t *testing.T) {
	q := NewQueue()
	q.AddProduct(appstore.Product{ID: "sku", Price: 100, PriceLocale: "en-US"})

	rec := &recordingObserver{}
	q.SetObserver(rec)

	q.Close()

	// Submitting after close neither blocks nor delivers.
	require.NoError(t, q.AddPayment(context.Background(), "sku"))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.States())
}
