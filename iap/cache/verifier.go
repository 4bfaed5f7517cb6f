package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/code-payments/storekit-bridge/iap"
)

// Cache fronts another verifier and remembers receipts that verified
// successfully. Invalid outcomes and errors are never cached, so a rejected
// receipt is re-checked on every call, and a cached receipt is re-checked
// once its entry expires.
type Cache struct {
	verifier iap.Verifier
	cache    *ttlcache.Cache
}

func NewInCache(verifier iap.Verifier, ttl time.Duration) iap.Verifier {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	return &Cache{
		verifier: verifier,
		cache:    cache,
	}
}

func (c *Cache) VerifyReceipt(ctx context.Context, receipt, signature string) (bool, error) {
	cacheKey := toCacheKey(receipt, signature)

	if _, ok := c.cache.Get(cacheKey); ok {
		return true, nil
	}

	valid, err := c.verifier.VerifyReceipt(ctx, receipt, signature)
	if err != nil || !valid {
		return valid, err
	}

	c.cache.Set(cacheKey, struct{}{})
	return true, nil
}

func (c *Cache) GetReceiptIdentifier(ctx context.Context, receipt string) ([]byte, error) {
	return c.verifier.GetReceiptIdentifier(ctx, receipt)
}

func toCacheKey(receipt, signature string) string {
	hasher := sha256.New()
	hasher.Write([]byte(receipt))
	hasher.Write([]byte{0})
	hasher.Write([]byte(signature))
	return hex.EncodeToString(hasher.Sum(nil))
}
