package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/code-payments/storekit-bridge/appstore"
	"github.com/code-payments/storekit-bridge/appstore/memory"
	"github.com/code-payments/storekit-bridge/iap"
	iap_memory "github.com/code-payments/storekit-bridge/iap/memory"
)

func main() {
	_ = godotenv.Load()

	logger := zap.Must(zap.NewDevelopment())
	defer logger.Sync()

	productID := os.Getenv("DEMO_PRODUCT_ID")
	if productID == "" {
		productID = "com.flipchat.demo.coffee"
	}

	queue := memory.NewQueue()
	defer queue.Close()

	queue.AddProduct(appstore.Product{
		ID:          productID,
		Title:       "Coffee",
		Description: "One cup of coffee",
		Price:       349,
		PriceLocale: "en-US",
	})
	queue.Own(productID, time.Now().Add(-24*time.Hour))

	pub, priv, err := iap_memory.GenerateKeyPair()
	if err != nil {
		log.Fatal("Failed to generate key:", err)
	}
	receipt := iap_memory.GenerateValidReceipt(priv, productID)

	client := appstore.NewClient(logger, queue,
		appstore.WithVerifier(iap_memory.NewMemoryVerifier(pub)),
		appstore.WithReceipts(appstore.StaticReceipt(receipt)),
		appstore.WithUnsolicitedPurchases(func(p iap.Purchase) {
			logger.Info("Unsolicited purchase", zap.String("product_id", p.ProductID))
		}),
	)

	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		log.Fatal("Failed to connect:", err)
	}

	products, err := client.QueryProducts(ctx, []string{productID}, iap.ProductTypeInApp)
	if err != nil {
		log.Fatal("Failed to query products:", err)
	}
	for _, product := range products {
		fmt.Printf("Product: %s, %s (%s)\n", product.Title, product.DisplayPrice, product.Currency)
	}

	purchase, err := client.Purchase(ctx, productID)
	if err != nil {
		log.Fatal("Failed to purchase:", err)
	}
	if purchase == nil {
		log.Fatal("Purchase was cancelled")
	}
	fmt.Println("Purchased:", purchase.ID)

	restored, err := client.GetPurchases(ctx, iap.ProductTypeInApp)
	if err != nil {
		log.Fatal("Failed to restore:", err)
	}
	fmt.Println("Restored purchases:", len(restored))
}
