// Package preference stores per-user settings as an opaque JSON document.
package preference

import (
	"context"
	"encoding/json"
)

// Repository persists the preference document per user. Get returns an empty
// object for a user without saved preferences; Set replaces the whole
// document.
type Repository interface {
	Get(ctx context.Context, userID string) (json.RawMessage, error)
	Set(ctx context.Context, userID string, prefs json.RawMessage) error
}
