package appstore

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/pkg/errors"
)

// ReceiptLoader fetches the app's local receipt blob, base64-encoded the way
// verifiers expect it.
type ReceiptLoader interface {
	Load(ctx context.Context) (string, error)
}

// StaticReceipt is a fixed receipt blob, already encoded.
type StaticReceipt string

func (r StaticReceipt) Load(_ context.Context) (string, error) {
	return string(r), nil
}

// ReceiptFile reads the raw receipt from the app bundle's receipt path and
// encodes it.
type ReceiptFile struct {
	Path string
}

func (r ReceiptFile) Load(_ context.Context) (string, error) {
	raw, err := os.ReadFile(r.Path)
	if err != nil {
		return "", errors.Wrap(err, "failed to read receipt file")
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}
