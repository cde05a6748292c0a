package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Settings keys editable from the dashboard. Values stored here override the
// corresponding environment variables.
const (
	SettingWebhookURL       = "WEBHOOK_URL"
	SettingWebhookToken     = "WEBHOOK_TOKEN"
	SettingAPIToken         = "API_TOKEN"
	SettingWebhookEnabled   = "WEBHOOK_ENABLED"
	SettingAutoReplyEnabled = "AUTO_REPLY_ENABLED"
	SettingAutoReplyMessage = "AUTO_REPLY_MESSAGE"
	SettingPauseDuration    = "PAUSE_DURATION_HOURS"
)

// Settings is a simple key/value table backing runtime-editable config.
type Settings struct {
	db *sqlx.DB
}

func NewSettings(db *sqlx.DB) *Settings {
	return &Settings{db: db}
}

// Get returns the stored value for a key, empty string when unset.
func (s *Settings) Get(key string) (string, error) {
	var value string
	query := s.db.Rebind(`SELECT value FROM settings WHERE key = ?`)
	err := s.db.Get(&value, query, key)
	if err != nil {
		// Missing keys are normal, the env fallback covers them.
		return "", nil
	}
	return value, nil
}

// GetAll returns every stored setting as a map.
func (s *Settings) GetAll() (map[string]string, error) {
	rows := []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}{}
	if err := s.db.Select(&rows, `SELECT key, value FROM settings`); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// Set upserts a single setting.
func (s *Settings) Set(key, value string) error {
	query := s.db.Rebind(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if _, err := s.db.Exec(query, key, value, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return nil
}

// SetAll upserts multiple settings in one transaction. Empty values are
// skipped except for the auto-reply message, which may legitimately be blank.
func (s *Settings) SetAll(values map[string]string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin settings transaction: %w", err)
	}
	query := tx.Rebind(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	updatedAt := time.Now().UTC().Format(time.RFC3339)
	for key, value := range values {
		if value == "" && key != SettingAutoReplyMessage {
			continue
		}
		if _, err := tx.Exec(query, key, value, updatedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to store setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Delete removes a setting, reverting it to the env value.
func (s *Settings) Delete(key string) error {
	query := s.db.Rebind(`DELETE FROM settings WHERE key = ?`)
	if _, err := s.db.Exec(query, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}
