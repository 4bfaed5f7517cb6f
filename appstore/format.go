package appstore

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/code-payments/storekit-bridge/iap"
)

// neutralProduct maps one native catalog record onto the neutral product
// shape. The currency code and display price derive from the product's own
// price locale; the device locale is only a fallback for records with a
// broken one.
func (c *Client) neutralProduct(product Product, productType iap.ProductType) iap.Product {
	out := iap.Product{
		ID:          product.ID,
		Type:        productType,
		Title:       product.Title,
		Description: product.Description,
		Price:       product.Price,
	}

	tag, err := language.Parse(product.PriceLocale)
	if err != nil {
		c.log.Warn("Product has an unparseable price locale",
			zap.String("product_id", product.ID),
			zap.String("price_locale", product.PriceLocale),
		)
		out.DisplayPrice = c.fallbackDisplayPrice(product.Price)
		return out
	}

	unit, conf := currency.FromTag(tag)
	if conf == language.No {
		c.log.Warn("No currency for price locale",
			zap.String("product_id", product.ID),
			zap.String("price_locale", product.PriceLocale),
		)
		out.DisplayPrice = c.fallbackDisplayPrice(product.Price)
		return out
	}

	out.Currency = unit.String()
	out.DisplayPrice = displayPrice(tag, unit, product.Price)
	return out
}

// displayPrice renders a minor-unit price the way the price locale writes
// it, e.g. 499 becomes "$4.99" under en-US and "￥499" under ja-JP.
func displayPrice(tag language.Tag, unit currency.Unit, minor int64) string {
	scale, _ := currency.Standard.Rounding(unit)
	amount := decimal.New(minor, -int32(scale))

	p := message.NewPrinter(tag)
	return p.Sprintf("%v", currency.Symbol(unit.Amount(amount.InexactFloat64())))
}

// fallbackDisplayPrice renders a bare number in the device locale. Without a
// known currency the scale defaults to two fraction digits.
func (c *Client) fallbackDisplayPrice(minor int64) string {
	tag, err := language.Parse(c.locale)
	if err != nil {
		tag = language.AmericanEnglish
	}

	amount := decimal.New(minor, -2)

	p := message.NewPrinter(tag)
	return p.Sprintf("%v", number.Decimal(amount.InexactFloat64(), number.Scale(2)))
}
