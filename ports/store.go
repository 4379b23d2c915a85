package ports

import (
	"context"

	"github.com/dexmail/dexmail-go/core"
)

// SessionStore persists the session across page reloads. Backing
// stores hold two named slots, the token and the profile snapshot,
// which are always written and cleared together, never partially.
// The auth orchestrator is the single writer; everything else treats
// the persisted session as read-only.
type SessionStore interface {
	// Save writes the session, replacing any previous one.
	Save(ctx context.Context, session core.Session) error

	// Load returns the persisted session, or core.ErrNoSession when
	// either slot is absent.
	Load(ctx context.Context) (core.Session, error)

	// Clear removes both slots. Clearing an empty store is a no-op.
	Clear(ctx context.Context) error
}
