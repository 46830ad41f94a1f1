package ports

import (
	"context"

	"github.com/layer-3/walletbridge/core"
)

// Provisioner ensures server-side resources exist for a freshly
// authenticated wallet.
type Provisioner interface {
	EnsurePrimaryAccount(ctx context.Context) (*core.TradingAccount, error)
}
