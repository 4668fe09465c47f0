package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/atelier-commerce/checkout/internal/domain/preference"
)

var _ preference.Repository = (*PreferenceRepository)(nil)

const (
	selectPreferencesSQL = `SELECT prefs FROM user_preferences WHERE user_id = $1`

	upsertPreferencesSQL = `INSERT INTO user_preferences (user_id, prefs)
	VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE SET prefs = EXCLUDED.prefs, updated_at = now()`
)

// PreferenceRepository implements preference.Repository backed by PostgreSQL.
type PreferenceRepository struct {
	db DB
}

// NewPreferenceRepository returns a PreferenceRepository that uses the given
// pool.
func NewPreferenceRepository(db DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get returns the user's preference document, or an empty object if none was
// ever saved.
func (r *PreferenceRepository) Get(ctx context.Context, userID string) (json.RawMessage, error) {
	var prefs []byte
	err := r.db.QueryRow(ctx, selectPreferencesSQL, userID).Scan(&prefs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return json.RawMessage(`{}`), nil
		}
		return nil, errors.Wrapf(err, "select preferences for user %q", userID)
	}
	return prefs, nil
}

// Set replaces the user's preference document.
func (r *PreferenceRepository) Set(ctx context.Context, userID string, prefs json.RawMessage) error {
	if len(prefs) == 0 {
		prefs = json.RawMessage(`{}`)
	}
	if _, err := r.db.Exec(ctx, upsertPreferencesSQL, userID, []byte(prefs)); err != nil {
		return errors.Wrapf(err, "upsert preferences for user %q", userID)
	}
	return nil
}
