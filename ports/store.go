package ports

import (
	"context"

	"github.com/layer-3/walletbridge/core"
)

// Store is durable key-value persistence for the session snapshot.
type Store interface {
	// Load returns the persisted snapshot, or nil when none exists.
	// Implementations must fall back to the legacy tokens-only record,
	// migrate it to the current shape and delete the legacy copy.
	Load(ctx context.Context) (*core.SessionSnapshot, error)

	// Save writes the snapshot under the current-format key.
	Save(ctx context.Context, snapshot *core.SessionSnapshot) error

	// Clear removes both the current and legacy records.
	Clear(ctx context.Context) error
}
