package appstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/code-payments/storekit-bridge/event"
	"github.com/code-payments/storekit-bridge/iap"
)

const (
	StreamBufferSize = 32
	StreamTimeout    = time.Second
)

// Operations without a natural product key get a reserved one. The native
// store runs at most one restore and one catalog request at a time.
const (
	restoreAllKey = "restore-all"
	catalogKey    = "catalog"
)

// Update is one classified transaction event, fanned out to purchase
// watchers and the unsolicited purchase callback.
type Update struct {
	Purchase iap.Purchase

	// Unsolicited marks a terminal event that settled no pending call, e.g.
	// a promoted purchase finishing while nobody was waiting.
	Unsolicited bool
}

// UpdateStream delivers purchase updates to one watcher.
type UpdateStream = event.BufferedStream[Update, iap.Purchase]

type Option func(c *Client)

// WithVerifier gates purchase and restore results behind receipt
// verification. Results only reach the caller if the verifier accepts the
// local receipt.
func WithVerifier(v iap.Verifier) Option {
	return func(c *Client) {
		c.verifier = v
	}
}

// WithReceipts sets the source of the local receipt blob handed to the
// verifier.
func WithReceipts(loader ReceiptLoader) Option {
	return func(c *Client) {
		c.receipts = loader
	}
}

// WithUnsolicitedPurchases registers a callback for successful purchases
// that settled no pending call.
func WithUnsolicitedPurchases(fn func(p iap.Purchase)) Option {
	return func(c *Client) {
		c.unsolicited = fn
	}
}

// WithLocale sets the device locale, used only as a fallback when a catalog
// record carries a broken price locale.
func WithLocale(bcp47 string) Option {
	return func(c *Client) {
		c.locale = bcp47
	}
}

// Client adapts the native payment queue's push-based protocol to the
// pull-based iap.Purchaser surface. It registers itself as the queue's
// transaction observer and correlates incoming events with pending calls by
// product id.
type Client struct {
	log   *zap.Logger
	queue PaymentQueue

	verifier    iap.Verifier
	receipts    ReceiptLoader
	unsolicited func(p iap.Purchase)
	locale      string

	purchases *event.Correlator[string, *iap.Purchase]
	restores  *event.Correlator[string, []iap.Purchase]
	catalogs  *event.Correlator[string, ProductsResponse]

	updates *event.Bus[string, Update]

	restoredMu sync.Mutex
	restored   []iap.Purchase

	streamsMu sync.RWMutex
	streams   map[string]*UpdateStream
}

var (
	_ iap.Purchaser       = (*Client)(nil)
	_ TransactionObserver = (*Client)(nil)
)

func NewClient(log *zap.Logger, queue PaymentQueue, opts ...Option) *Client {
	c := &Client{
		log:    log,
		queue:  queue,
		locale: "en-US",

		purchases: event.NewCorrelator[string, *iap.Purchase](),
		restores:  event.NewCorrelator[string, []iap.Purchase](),
		catalogs:  event.NewCorrelator[string, ProductsResponse](),

		updates: event.NewBus[string, Update](),

		streams: make(map[string]*UpdateStream),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.updates.AddHandler(event.HandlerFunc[string, Update](c.onUpdate))

	queue.SetObserver(c)

	return c
}

// Connect implements iap.Purchaser. The store connection on this platform is
// always on, so there is nothing to establish.
func (c *Client) Connect(_ context.Context) error {
	c.log.Debug("Connect is a no-op on this platform")
	return nil
}

// Disconnect implements iap.Purchaser. See Connect.
func (c *Client) Disconnect(_ context.Context) error {
	c.log.Debug("Disconnect is a no-op on this platform")
	return nil
}

// QueryProducts fetches catalog records and maps them onto the neutral
// product shape. Unknown ids are logged and skipped.
func (c *Client) QueryProducts(ctx context.Context, ids []string, productType iap.ProductType) ([]iap.Product, error) {
	op, err := c.catalogs.Begin(catalogKey)
	if err != nil {
		return nil, errors.Wrap(err, "catalog request already in flight")
	}

	log := c.log.With(zap.Strings("product_ids", ids))
	log.Debug("Requesting product catalog")

	if err = c.queue.RequestProducts(ctx, ids); err != nil {
		c.catalogs.Abandon(catalogKey, op)
		return nil, errors.Wrap(err, "failed to submit catalog request")
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		c.catalogs.Abandon(catalogKey, op)
		return nil, err
	}

	if len(resp.InvalidIDs) > 0 {
		log.Warn("Catalog request contained unknown product ids", zap.Strings("invalid_ids", resp.InvalidIDs))
	}

	products := make([]iap.Product, 0, len(resp.Products))
	for _, product := range resp.Products {
		products = append(products, c.neutralProduct(product, productType))
	}

	return products, nil
}

// Purchase submits a payment and waits for the queue to settle it. The
// returned purchase is nil without an error when the user cancelled, or when
// the receipt failed verification.
func (c *Client) Purchase(ctx context.Context, productID string) (*iap.Purchase, error) {
	op, err := c.purchases.Begin(productID)
	if err != nil {
		return nil, errors.Wrapf(err, "purchase of %s", productID)
	}

	log := c.log.With(zap.String("product_id", productID))
	log.Debug("Submitting payment")

	if err = c.queue.AddPayment(ctx, productID); err != nil {
		c.purchases.Abandon(productID, op)
		return nil, errors.Wrap(err, "failed to submit payment")
	}

	purchase, err := op.Wait(ctx)
	if err != nil {
		c.purchases.Abandon(productID, op)
		return nil, err
	}

	if purchase == nil {
		log.Debug("Payment cancelled by user")
		return nil, nil
	}

	if !c.verifyLocalReceipt(ctx, log) {
		// The store-side transaction stands and was already finished; it
		// just does not get reported as a purchase.
		return nil, nil
	}

	log.Debug("Payment completed", zap.String("transaction_id", purchase.ID))
	return purchase, nil
}

// GetPurchases replays completed transactions and returns them in arrival
// order. The slice is nil without an error when the platform aborted the
// restore, or when the receipt failed verification; it is empty but non-nil
// when there was nothing to restore.
func (c *Client) GetPurchases(ctx context.Context, productType iap.ProductType) ([]iap.Purchase, error) {
	op, err := c.restores.Begin(restoreAllKey)
	if err != nil {
		return nil, errors.Wrap(err, "restore already in flight")
	}

	log := c.log.With(zap.String("product_type", productType.String()))
	log.Debug("Restoring completed transactions")

	if err = c.queue.RestoreCompletedTransactions(ctx); err != nil {
		c.restores.Abandon(restoreAllKey, op)
		return nil, errors.Wrap(err, "failed to submit restore request")
	}

	restored, err := op.Wait(ctx)
	if err != nil {
		c.restores.Abandon(restoreAllKey, op)
		return nil, err
	}

	if restored == nil {
		log.Debug("Restore aborted by the store")
		return nil, nil
	}

	if !c.verifyLocalReceipt(ctx, log) {
		return nil, nil
	}

	log.Debug("Restore completed", zap.Int("num_purchases", len(restored)))
	return restored, nil
}

// ConsumePurchase implements iap.Purchaser. The store has no consume step; a
// consumable becomes purchasable again once its transaction is finished, so
// there is nothing to submit to the queue.
func (c *Client) ConsumePurchase(_ context.Context, purchaseID string) error {
	c.log.Debug("Consume requested on a platform without consumption", zap.String("purchase_id", purchaseID))
	return iap.ErrNotSupported
}

// WatchPurchases opens a stream of every purchase update the queue reports,
// including unsolicited ones. Watching again under the same id closes and
// replaces the previous stream.
func (c *Client) WatchPurchases(id string, bufferSize int) *UpdateStream {
	if bufferSize <= 0 {
		bufferSize = StreamBufferSize
	}

	ss := event.NewBufferedStream[Update, iap.Purchase](id, bufferSize, func(u Update) (iap.Purchase, bool) {
		return u.Purchase, true
	})

	c.streamsMu.Lock()
	if existing, exists := c.streams[id]; exists {
		delete(c.streams, id)
		existing.Close()

		c.log.Info("Closed previous purchase stream", zap.String("stream_id", id))
	}
	c.streams[id] = ss
	c.streamsMu.Unlock()

	return ss
}

// StopWatching closes and removes the stream registered under id.
func (c *Client) StopWatching(id string) {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	if ss, exists := c.streams[id]; exists {
		delete(c.streams, id)
		ss.Close()
	}
}

func (c *Client) onUpdate(_ string, u Update) {
	if u.Unsolicited && u.Purchase.State == iap.StatePurchased && c.unsolicited != nil {
		c.unsolicited(u.Purchase)
	}

	c.streamsMu.RLock()
	streams := make(map[string]*UpdateStream, len(c.streams))
	for id, ss := range c.streams {
		streams[id] = ss
	}
	c.streamsMu.RUnlock()

	for id, ss := range streams {
		if err := ss.Notify(u, StreamTimeout); err != nil {
			c.log.Warn("Failed to notify purchase stream", zap.String("stream_id", id), zap.Error(err))
			c.dropStream(id, ss)
		}
	}
}

// dropStream removes ss from the registry if it is still the stream
// registered under id. A replacement registered in the meantime stays.
func (c *Client) dropStream(id string, ss *UpdateStream) {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	if current, exists := c.streams[id]; exists && current == ss {
		delete(c.streams, id)
	}
}

// verifyLocalReceipt runs the optional verification gate. True means the
// settled result may be reported to the caller.
func (c *Client) verifyLocalReceipt(ctx context.Context, log *zap.Logger) bool {
	if c.verifier == nil {
		return true
	}

	// The platform embeds the signature in the receipt blob, so the
	// detached signature stays empty.
	receipt := c.loadReceipt(ctx, log)

	valid, err := c.verifier.VerifyReceipt(ctx, receipt, "")
	if err != nil {
		log.Warn("Failed to verify receipt", zap.Error(err))
		return false
	}
	if !valid {
		log.Warn("Receipt failed verification")
		return false
	}

	if id, err := c.verifier.GetReceiptIdentifier(ctx, receipt); err == nil {
		log.Debug("Receipt verified", zap.String("receipt_id", iap.ReceiptIDString(id)))
	}

	return true
}

// loadReceipt fetches the local receipt blob. Failures degrade to an empty
// receipt rather than aborting the calling operation.
func (c *Client) loadReceipt(ctx context.Context, log *zap.Logger) string {
	if c.receipts == nil {
		return ""
	}

	receipt, err := c.receipts.Load(ctx)
	if err != nil {
		log.Warn("Failed to load local receipt, verifying without one", zap.Error(err))
		return ""
	}

	return receipt
}
