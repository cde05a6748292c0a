package wa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrValidation marks errors raised by synchronous request validation,
// before any session call or marker write happens.
var ErrValidation = errors.New("validation failed")

// ErrInvalidDestination is returned when a destination cannot be normalized
// into a chat identifier.
var ErrInvalidDestination = fmt.Errorf("%w: destination must be a phone number with 10-15 digits", ErrValidation)

// Message is an inbound or self-sent message as reported by the session.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Body      string    `json:"body"`
	Type      string    `json:"type"`
	HasMedia  bool      `json:"hasMedia"`
	FromMe    bool      `json:"fromMe"`
	IDFromMe  bool      `json:"idFromMe"` // device-level confirmation of fromMe
	Timestamp time.Time `json:"timestamp"`
}

// ChatID returns the conversation key for the message: the destination for
// our own sends, the sender otherwise.
func (m Message) ChatID() string {
	if m.FromMe {
		return m.To
	}
	return m.From
}

// IsGroup reports whether the message belongs to a group conversation.
func (m Message) IsGroup() bool {
	return strings.HasSuffix(m.ChatID(), "@g.us")
}

// Contact is the resolved identity of a conversation partner.
type Contact struct {
	Name     string `json:"name"`
	Pushname string `json:"pushname"`
	Number   string `json:"number"`
}

// Media is a downloaded attachment.
type Media struct {
	Mimetype string
	Filename string
	Data     []byte
}

// OutgoingMedia is an attachment prepared for sending.
type OutgoingMedia struct {
	Data      []byte
	Mimetype  string
	Filename  string
	Thumbnail []byte
	VoiceNote bool
}

/// Outgoing is the content of an outbound send: plain text, or media with an
// optional caption.
type Outgoing struct {
	Text    string
	Caption string
	Media   *OutgoingMedia
}

// SendReceipt carries whatever identifier shape the session reports for a
// sent message. Not every backend fills every field.
type SendReceipt struct {
	Serialized string `json:"serializedId"`
	Raw        string `json:"rawId"`
	ID         string `json:"id"`
}

// Session is the capability maintaining the live messaging connection. It
// emits lifecycle and message events through the handler registered on the
// Client and accepts the commands below.
type Session interface {
	Initialize(ctx context.Context) error
	Destroy(ctx context.Context) error
	Logout(ctx context.Context) error
	Send(ctx context.Context, chatID string, content Outgoing) (SendReceipt, error)
	ResolveContactID(ctx context.Context, phone string) (string, error)
	Contact(ctx context.Context, msg Message) (Contact, error)
	DownloadMedia(ctx context.Context, msg Message) (*Media, error)
}

// FormatChatID normalizes a phone number in any human format into the
// canonical contact chat identifier.
func FormatChatID(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()
	if len(cleaned) < 10 || len(cleaned) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidDestination, phone)
	}
	return cleaned + "@c.us", nil
}

// NumberFromChatID strips the conversation suffix from a chat identifier.
// For opaque linked-device identifiers the result is not a phone number;
// callers display it as-is.
func NumberFromChatID(chatID string) string {
	chatID = strings.TrimSuffix(chatID, "@c.us")
	return strings.TrimSuffix(chatID, "@g.us")
}
