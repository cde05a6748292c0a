package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"wabridge/internal/queue"
	"wabridge/internal/storage"
	"wabridge/internal/store"
	"wabridge/internal/wa"
)

// Settings supplies the runtime-editable switches the dispatcher consults
// per message.
type Settings interface {
	InstanceID() string
	WebhookEnabled() bool
	WebhookURL() string
	WebhookToken() string
	AutoReplyEnabled() bool
	AutoReplyMessage() string
}

// Dispatcher orchestrates the inbound message path: pause check, optional
// auto-reply, webhook delivery and the detached media follow-up.
type Dispatcher struct {
	session   wa.Session
	markers   *wa.SendMarkers
	paused    *store.PausedContacts
	autoReply *store.AutoReplyLog
	deliverer *Deliverer
	settings  Settings
	publisher *queue.Publisher
	uploader  *storage.Uploader
}

func NewDispatcher(
	session wa.Session,
	markers *wa.SendMarkers,
	paused *store.PausedContacts,
	autoReply *store.AutoReplyLog,
	deliverer *Deliverer,
	settings Settings,
	publisher *queue.Publisher,
	uploader *storage.Uploader,
) *Dispatcher {
	return &Dispatcher{
		session:   session,
		markers:   markers,
		paused:    paused,
		autoReply: autoReply,
		deliverer: deliverer,
		settings:  settings,
		publisher: publisher,
		uploader:  uploader,
	}
}

// HandleInbound processes one inbound message. It never returns an error:
// every failure is logged here so nothing propagates back into the session's
// event loop, and one bad message never halts the stream.
func (d *Dispatcher) HandleInbound(msg wa.Message) {
	ctx := context.Background()
	chatID := msg.ChatID()

	paused, err := d.paused.IsPaused(chatID)
	if err != nil {
		log.Error().Err(err).Str("chatId", chatID).Msg("Pause lookup failed, dropping message")
		return
	}
	if paused {
		log.Debug().Str("chatId", chatID).Msg("Contact is paused (manual takeover), skipping")
		return
	}

	if err := d.autoReply.IncrementCount(chatID); err != nil {
		log.Warn().Err(err).Str("chatId", chatID).Msg("Failed to bump message counter")
	}

	d.maybeAutoReply(ctx, msg, chatID)

	if !d.settings.WebhookEnabled() {
		log.Debug().Str("chatId", chatID).Msg("Webhook forwarding disabled, skipping")
		return
	}

	env := d.buildEnvelope(ctx, msg)

	// Media goes out as an independent follow-up delivery; its failure never
	// touches the primary delivery's outcome.
	if msg.HasMedia {
		go d.deliverMedia(msg, *env)
	}

	if err := d.deliverer.Deliver(ctx, d.settings.WebhookURL(), d.settings.WebhookToken(), env); err != nil {
		log.Error().Err(err).Str("chatId", chatID).Msg("Webhook delivery failed")
		return
	}
	d.mirror(env)
}

// maybeAutoReply sends the configured automated reply when the contact is
// outside the cooldown window. Failures are logged and never block the
// webhook forwarding that follows.
func (d *Dispatcher) maybeAutoReply(ctx context.Context, msg wa.Message, chatID string) {
	if !d.settings.AutoReplyEnabled() || msg.IsGroup() {
		return
	}
	text := strings.TrimSpace(d.settings.AutoReplyMessage())
	if text == "" {
		return
	}

	ok, err := d.autoReply.CanSend(chatID)
	if err != nil {
		log.Warn().Err(err).Str("chatId", chatID).Msg("Auto-reply cooldown check failed")
		return
	}
	if !ok {
		log.Debug().Str("chatId", chatID).Msg("Auto-reply still in cooldown")
		return
	}

	// Mark before sending so the takeover detector does not read our own
	// reply as a manual intervention.
	d.markers.Mark(chatID)

	if _, err := d.session.Send(ctx, chatID, wa.Outgoing{Text: text}); err != nil {
		log.Warn().Err(err).Str("chatId", chatID).Msg("Failed to send auto-reply")
		return
	}
	if err := d.autoReply.Record(chatID); err != nil {
		log.Warn().Err(err).Str("chatId", chatID).Msg("Failed to record auto-reply")
	}
	log.Info().Str("chatId", chatID).Msg("Auto-reply sent")
}

// buildEnvelope resolves the contact identity and assembles the primary
// webhook payload.
func (d *Dispatcher) buildEnvelope(ctx context.Context, msg wa.Message) *Envelope {
	chatID := msg.ChatID()

	var contact wa.Contact
	if resolved, err := d.session.Contact(ctx, msg); err == nil {
		contact = resolved
	} else {
		log.Debug().Err(err).Str("chatId", chatID).Msg("Contact lookup failed, using chat ID fallback")
	}

	name := contact.Name
	if name == "" {
		name = contact.Pushname
	}
	if name == "" {
		name = "Unknown"
	}

	// Prefer the registry's verified number; the raw identifier can be an
	// opaque linked-device ID rather than a phone number.
	number := contact.Number
	if number == "" {
		number = wa.NumberFromChatID(chatID)
	}

	return NewEnvelope(d.settings.InstanceID(),
		MessagePayload{
			ID:       msg.ID,
			From:     msg.From,
			To:       msg.To,
			Body:     msg.Body,
			Type:     msg.Type,
			HasMedia: msg.HasMedia,
			IsGroup:  msg.IsGroup(),
			ChatID:   chatID,
		},
		ContactPayload{
			Name:     name,
			Pushname: contact.Pushname,
			Number:   number,
		})
}

// deliverMedia downloads the attachment and posts the follow-up delivery.
// Runs detached from the primary delivery with its own error boundary.
func (d *Dispatcher) deliverMedia(msg wa.Message, env Envelope) {
	ctx := context.Background()

	media, err := d.session.DownloadMedia(ctx, msg)
	if err != nil {
		log.Warn().Err(err).Str("messageId", msg.ID).Msg("Media download failed")
		return
	}
	if media == nil {
		return
	}

	payload := &MediaPayload{
		Mimetype: media.Mimetype,
		Filename: media.Filename,
		Base64:   base64.StdEncoding.EncodeToString(media.Data),
	}

	if d.uploader.Enabled() {
		key := storage.ObjectKey(msg.ChatID(), msg.ID, media.Mimetype, true)
		if url, err := d.uploader.Upload(ctx, key, media.Data, media.Mimetype); err == nil {
			payload.URL = url
		} else {
			log.Warn().Err(err).Str("messageId", msg.ID).Msg("Media offload failed, sending base64 only")
		}
	}

	env.Event = EventMessageMedia
	env.Media = payload

	if err := d.deliverer.Deliver(ctx, d.settings.WebhookURL(), d.settings.WebhookToken(), &env); err != nil {
		log.Warn().Err(err).Str("messageId", msg.ID).Msg("Media webhook delivery failed")
		return
	}
	d.mirror(&env)
}

// mirror publishes a delivered envelope to the optional queue sink.
func (d *Dispatcher) mirror(env *Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal envelope for queue")
		return
	}
	if err := d.publisher.Publish(env.Event, body); err != nil {
		log.Warn().Err(err).Str("event", env.Event).Msg("Queue publish failed")
	}
}
