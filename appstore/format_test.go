package appstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/code-payments/storekit-bridge/iap"
)

func TestNeutralProduct_CurrencyFromPriceLocale(t *testing.T) {
	// The device locale differs from the product's price locale; the
	// product wins.
	client := NewClient(zap.NewNop(), &nopQueue{}, WithLocale("de-DE"))

	got := client.neutralProduct(Product{
		ID:          "com.flipchat.tip.small",
		Title:       "Small Tip",
		Description: "Send a small tip",
		Price:       199,
		PriceLocale: "en-US",
	}, iap.ProductTypeInApp)

	assert.Equal(t, "com.flipchat.tip.small", got.ID)
	assert.Equal(t, iap.ProductTypeInApp, got.Type)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, int64(199), got.Price)
	assert.Contains(t, got.DisplayPrice, "1.99")
}

func TestNeutralProduct_ZeroDecimalCurrency(t *testing.T) {
	client := NewClient(zap.NewNop(), &nopQueue{})

	got := client.neutralProduct(Product{
		ID:          "com.flipchat.tip.small",
		Price:       500,
		PriceLocale: "ja-JP",
	}, iap.ProductTypeInApp)

	assert.Equal(t, "JPY", got.Currency)
	assert.Contains(t, got.DisplayPrice, "500")
	assert.NotContains(t, got.DisplayPrice, "5.00")
}

func TestNeutralProduct_EuroLocale(t *testing.T) {
	client := NewClient(zap.NewNop(), &nopQueue{})

	got := client.neutralProduct(Product{
		ID:          "com.flipchat.tip.small",
		Price:       499,
		PriceLocale: "fr-FR",
	}, iap.ProductTypeInApp)

	assert.Equal(t, "EUR", got.Currency)
	assert.NotEmpty(t, got.DisplayPrice)
}

func TestNeutralProduct_BrokenLocaleFallsBack(t *testing.T) {
	client := NewClient(zap.NewNop(), &nopQueue{}, WithLocale("en-US"))

	got := client.neutralProduct(Product{
		ID:          "com.flipchat.tip.small",
		Price:       199,
		PriceLocale: "not a locale",
	}, iap.ProductTypeInApp)

	// No currency can be derived, but the price still renders.
	assert.Empty(t, got.Currency)
	assert.Contains(t, got.DisplayPrice, "1.99")
}

func TestNeutralProduct_SubscriptionType(t *testing.T) {
	client := NewClient(zap.NewNop(), &nopQueue{})

	got := client.neutralProduct(Product{
		ID:          "com.flipchat.plus.monthly",
		Price:       999,
		PriceLocale: "en-US",
	}, iap.ProductTypeSubscription)

	assert.Equal(t, iap.ProductTypeSubscription, got.Type)
}
