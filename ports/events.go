package ports

import (
	"context"

	"github.com/dexmail/dexmail-go/core"
)

// EventPublisher notifies other components about session lifecycle
// changes. Publishing is best-effort; failures are logged and never
// fail the triggering operation.
type EventPublisher interface {
	PublishLogin(ctx context.Context, address string, authType core.AuthType) error
	PublishLogout(ctx context.Context, address string, authType core.AuthType) error
}
