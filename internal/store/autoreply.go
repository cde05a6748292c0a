package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Cooldown between automated replies to the same contact.
const AutoReplyCooldown = 12 * time.Hour

// AutoReplyLog tracks, per contact, when the last automated reply went out
// and how many inbound messages arrived since the log entry was created.
type AutoReplyLog struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewAutoReplyLog(db *sqlx.DB) *AutoReplyLog {
	return &AutoReplyLog{db: db, now: time.Now}
}

// CanSend reports whether the cooldown window for a chat has elapsed.
// A contact that was never replied to can always be replied to.
func (a *AutoReplyLog) CanSend(chatID string) (bool, error) {
	var lastReplyAt int64
	query := a.db.Rebind(`SELECT last_reply_at FROM auto_reply_log WHERE chat_id = ?`)
	err := a.db.Get(&lastReplyAt, query, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read auto-reply log: %w", err)
	}
	return a.now().UnixMilli()-lastReplyAt >= AutoReplyCooldown.Milliseconds(), nil
}

// Record registers that an automated reply was just sent, resetting the
// message counter to 1.
func (a *AutoReplyLog) Record(chatID string) error {
	now := a.now().UnixMilli()
	query := a.db.Rebind(`
		INSERT INTO auto_reply_log (chat_id, last_reply_at, message_count)
		VALUES (?, ?, 1)
		ON CONFLICT(chat_id) DO UPDATE SET last_reply_at = excluded.last_reply_at, message_count = 1`)
	if _, err := a.db.Exec(query, chatID, now); err != nil {
		return fmt.Errorf("failed to record auto-reply: %w", err)
	}
	return nil
}

// IncrementCount bumps the inbound message counter for telemetry. Contacts
// without a log entry are left untouched.
func (a *AutoReplyLog) IncrementCount(chatID string) error {
	query := a.db.Rebind(`UPDATE auto_reply_log SET message_count = message_count + 1 WHERE chat_id = ?`)
	if _, err := a.db.Exec(query, chatID); err != nil {
		return fmt.Errorf("failed to increment message count: %w", err)
	}
	return nil
}

// MessageCount returns the counter for a chat, zero when absent.
func (a *AutoReplyLog) MessageCount(chatID string) (int, error) {
	var count int
	query := a.db.Rebind(`SELECT message_count FROM auto_reply_log WHERE chat_id = ?`)
	err := a.db.Get(&count, query, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read message count: %w", err)
	}
	return count, nil
}

// Cleanup removes entries older than maxAge.
func (a *AutoReplyLog) Cleanup(maxAge time.Duration) (int64, error) {
	cutoff := a.now().UnixMilli() - maxAge.Milliseconds()
	query := a.db.Rebind(`DELETE FROM auto_reply_log WHERE last_reply_at < ?`)
	res, err := a.db.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean auto-reply log: %w", err)
	}
	return res.RowsAffected()
}
