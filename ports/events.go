package ports

import (
	"context"

	"github.com/layer-3/walletbridge/core"
)

// EventPublisher notifies interested parties of session lifecycle changes.
// Publishing is best-effort; failures never block a transition.
type EventPublisher interface {
	PublishStatusChange(ctx context.Context, status core.Status, wallet string) error
	PublishLogout(ctx context.Context, wallet string) error
}
