package webhook

import "time"

// Webhook event names.
const (
	EventMessageReceived = "message.received"
	EventMessageMedia    = "message.media"
)

// MessagePayload is the message sub-object of the webhook envelope.
type MessagePayload struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Body     string `json:"body"`
	Type     string `json:"type"`
	HasMedia bool   `json:"hasMedia"`
	IsGroup  bool   `json:"isGroup"`
	ChatID   string `json:"chatId"`
}

// ContactPayload is the resolved sender identity.
type ContactPayload struct {
	Name     string `json:"name"`
	Pushname string `json:"pushname"`
	Number   string `json:"number"`
}

// MediaPayload carries a downloaded attachment in the follow-up delivery.
// URL is set when the media was also offloaded to object storage.
type MediaPayload struct {
	Mimetype string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
	Base64   string `json:"base64"`
	URL      string `json:"url,omitempty"`
}

// Envelope is the outbound webhook wire format. One envelope is built per
// inbound message; the media follow-up reuses it with a distinct event name.
type Envelope struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Instance  string         `json:"instance"`
	Message   MessagePayload `json:"message"`
	Contact   ContactPayload `json:"contact"`
	Media     *MediaPayload  `json:"media,omitempty"`
}

// NewEnvelope stamps a primary-delivery envelope.
func NewEnvelope(instance string, msg MessagePayload, contact ContactPayload) *Envelope {
	return &Envelope{
		Event:     EventMessageReceived,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Instance:  instance,
		Message:   msg,
		Contact:   contact,
	}
}
