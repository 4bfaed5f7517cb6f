package iap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Terminal(t *testing.T) {
	for state, terminal := range map[State]bool{
		StateUnknown:    false,
		StatePurchasing: false,
		StatePurchased:  true,
		StateFailed:     true,
		StateDeferred:   false,
		StateRestored:   true,
	} {
		assert.Equalf(t, terminal, state.Terminal(), "state %s", state)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "purchasing", StatePurchasing.String())
	assert.Equal(t, "deferred", StateDeferred.String())
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "unknown", State(250).String())
}

func TestTransactionError_Message(t *testing.T) {
	err := &TransactionError{Code: 7, Message: "card declined"}
	require.EqualError(t, err, "transaction failed: card declined (code 7)")
}

func TestReceiptIDString(t *testing.T) {
	assert.Empty(t, ReceiptIDString(nil))
	assert.NotEmpty(t, ReceiptIDString([]byte{0x01, 0x02, 0x03}))
}
