package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when an operation targets a contact that has no
// current record.
var ErrNotFound = errors.New("not found")

// PauseRecord marks a contact whose automated processing is suspended
// because the operator took the conversation over manually.
type PauseRecord struct {
	ChatID    string `db:"chat_id" json:"chatId"`
	PausedAt  int64  `db:"paused_at" json:"pausedAt"`
	ExpiresAt int64  `db:"expires_at" json:"expiresAt"`
}

// Remaining reports how long the pause still holds.
func (r PauseRecord) Remaining(now time.Time) time.Duration {
	return time.UnixMilli(r.ExpiresAt).Sub(now)
}

// PausedContacts persists per-contact pause records. A record whose
// expires_at has lapsed is treated as absent on every read.
type PausedContacts struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPausedContacts(db *sqlx.DB) *PausedContacts {
	return &PausedContacts{db: db, now: time.Now}
}

// Pause inserts or refreshes the pause record for a chat.
func (p *PausedContacts) Pause(chatID string, duration time.Duration) error {
	now := p.now().UnixMilli()
	expiresAt := now + duration.Milliseconds()

	query := p.db.Rebind(`
		INSERT INTO paused_contacts (chat_id, paused_at, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET paused_at = excluded.paused_at, expires_at = excluded.expires_at`)
	if _, err := p.db.Exec(query, chatID, now, expiresAt); err != nil {
		return fmt.Errorf("failed to pause contact: %w", err)
	}
	return nil
}

// IsPaused reports whether the chat currently has an unexpired pause.
func (p *PausedContacts) IsPaused(chatID string) (bool, error) {
	var count int
	query := p.db.Rebind(`SELECT COUNT(*) FROM paused_contacts WHERE chat_id = ? AND expires_at > ?`)
	if err := p.db.Get(&count, query, chatID, p.now().UnixMilli()); err != nil {
		return false, fmt.Errorf("failed to check pause state: %w", err)
	}
	return count > 0, nil
}

// Get returns the unexpired pause record for a chat, or ErrNotFound.
func (p *PausedContacts) Get(chatID string) (*PauseRecord, error) {
	var rec PauseRecord
	query := p.db.Rebind(`SELECT chat_id, paused_at, expires_at FROM paused_contacts WHERE chat_id = ? AND expires_at > ?`)
	err := p.db.Get(&rec, query, chatID, p.now().UnixMilli())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load pause record: %w", err)
	}
	return &rec, nil
}

// List returns all currently valid pause records.
func (p *PausedContacts) List() ([]PauseRecord, error) {
	records := []PauseRecord{}
	query := p.db.Rebind(`SELECT chat_id, paused_at, expires_at FROM paused_contacts WHERE expires_at > ? ORDER BY paused_at DESC`)
	if err := p.db.Select(&records, query, p.now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to list paused contacts: %w", err)
	}
	return records, nil
}

// UpdateExpiry moves the expiry of an existing record. Returns ErrNotFound
// when the chat has no record at all.
func (p *PausedContacts) UpdateExpiry(chatID string, expiresAt time.Time) error {
	query := p.db.Rebind(`UPDATE paused_contacts SET expires_at = ? WHERE chat_id = ?`)
	res, err := p.db.Exec(query, expiresAt.UnixMilli(), chatID)
	if err != nil {
		return fmt.Errorf("failed to update pause expiry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Resume removes the pause record for a chat. Resuming an unknown chat is
// not an error.
func (p *PausedContacts) Resume(chatID string) error {
	query := p.db.Rebind(`DELETE FROM paused_contacts WHERE chat_id = ?`)
	if _, err := p.db.Exec(query, chatID); err != nil {
		return fmt.Errorf("failed to resume contact: %w", err)
	}
	return nil
}

// Sweep deletes all expired records and returns how many were removed.
func (p *PausedContacts) Sweep() (int64, error) {
	query := p.db.Rebind(`DELETE FROM paused_contacts WHERE expires_at <= ?`)
	res, err := p.db.Exec(query, p.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep paused contacts: %w", err)
	}
	return res.RowsAffected()
}
