package wa

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog/log"
	"github.com/vincent-petithory/dataurl"
)

const thumbnailSize = 72

// MediaInput is the polymorphic media argument of the send API: either a URL
// the bridge fetches, or base64 content with an explicit mimetype (a full
// data: URL in the data field also works).
type MediaInput struct {
	Source   string `json:"source"` // "url" or "base64"
	URL      string `json:"url,omitempty"`
	Data     string `json:"data,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// SendResult is the normalized outcome of a send operation.
type SendResult struct {
	ID   string `json:"id"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// Sender validates and normalizes outbound sends. It writes an API-send
// marker for the destination before every session send; the marker must
// exist before the send call or the takeover detector can observe the
// self-sent event first and misclassify the send as manual.
type Sender struct {
	session Session
	markers *SendMarkers
	http    *resty.Client
}

func NewSender(session Session, markers *SendMarkers) *Sender {
	return &Sender{
		session: session,
		markers: markers,
		http:    resty.New().SetTimeout(30 * time.Second),
	}
}

// SendText sends a plain text message.
func (s *Sender) SendText(ctx context.Context, to, text string) (*SendResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message text is required", ErrValidation)
	}
	chatID, err := s.resolveDestination(ctx, to)
	if err != nil {
		return nil, err
	}

	s.markers.Mark(chatID)
	receipt, err := s.session.Send(ctx, chatID, Outgoing{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to send text: %w", err)
	}
	return &SendResult{ID: messageID(receipt), To: chatID, Type: "text"}, nil
}

// SendImage sends an image with an optional caption.
func (s *Sender) SendImage(ctx context.Context, to string, input MediaInput, caption string) (*SendResult, error) {
	media, err := s.resolveMedia(ctx, input, "image/")
	if err != nil {
		return nil, err
	}
	chatID, err := s.resolveDestination(ctx, to)
	if err != nil {
		return nil, err
	}
	media.Thumbnail = imageThumbnail(media.Data)

	s.markers.Mark(chatID)
	receipt, err := s.session.Send(ctx, chatID, Outgoing{Media: media, Caption: caption})
	if err != nil {
		return nil, fmt.Errorf("failed to send image: %w", err)
	}
	return &SendResult{ID: messageID(receipt), To: chatID, Type: "image"}, nil
}

// SendAudio sends an audio message, framed as a voice note when asVoiceNote
// is set.
func (s *Sender) SendAudio(ctx context.Context, to string, input MediaInput, asVoiceNote bool) (*SendResult, error) {
	media, err := s.resolveMedia(ctx, input, "audio/")
	if err != nil {
		return nil, err
	}
	chatID, err := s.resolveDestination(ctx, to)
	if err != nil {
		return nil, err
	}
	media.VoiceNote = asVoiceNote

	msgType := "audio"
	if asVoiceNote {
		msgType = "ptt"
	}

	s.markers.Mark(chatID)
	receipt, err := s.session.Send(ctx, chatID, Outgoing{Media: media})
	if err != nil {
		return nil, fmt.Errorf("failed to send audio: %w", err)
	}
	return &SendResult{ID: messageID(receipt), To: chatID, Type: msgType}, nil
}

// resolveDestination normalizes a phone number into a chat identifier,
// preferring the session's contact registry over the digits-only fallback.
func (s *Sender) resolveDestination(ctx context.Context, to string) (string, error) {
	chatID, err := FormatChatID(to)
	if err != nil {
		return "", err
	}

	resolved, err := s.session.ResolveContactID(ctx, NumberFromChatID(chatID))
	if err != nil || resolved == "" {
		if err != nil {
			log.Debug().Err(err).Str("to", to).Msg("Contact lookup failed, using formatted chat ID")
		}
		return chatID, nil
	}
	return resolved, nil
}

func (s *Sender) resolveMedia(ctx context.Context, input MediaInput, wantPrefix string) (*OutgoingMedia, error) {
	switch input.Source {
	case "url":
		if input.URL == "" {
			return nil, fmt.Errorf("%w: media url is required", ErrValidation)
		}
		resp, err := s.http.R().SetContext(ctx).Get(input.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch media: %w", err)
		}
		if !resp.IsSuccess() {
			return nil, fmt.Errorf("media fetch returned status %d", resp.StatusCode())
		}
		mimetype := resp.Header().Get("Content-Type")
		if idx := strings.Index(mimetype, ";"); idx >= 0 {
			mimetype = mimetype[:idx]
		}
		if !strings.HasPrefix(mimetype, wantPrefix) {
			return nil, fmt.Errorf("%w: unsupported media mimetype %q, want %s*", ErrValidation, mimetype, wantPrefix)
		}
		return &OutgoingMedia{Data: resp.Body(), Mimetype: mimetype, Filename: input.Filename}, nil

	case "base64":
		if input.Data == "" {
			return nil, fmt.Errorf("%w: base64 data is required", ErrValidation)
		}
		var data []byte
		mimetype := input.Mimetype
		if strings.HasPrefix(input.Data, "data:") {
			parsed, err := dataurl.DecodeString(input.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid data URL: %v", ErrValidation, err)
			}
			data = parsed.Data
			mimetype = parsed.MediaType.ContentType()
		} else {
			decoded, err := base64.StdEncoding.DecodeString(input.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid base64 data: %v", ErrValidation, err)
			}
			data = decoded
		}
		if !strings.HasPrefix(mimetype, wantPrefix) {
			return nil, fmt.Errorf("%w: unsupported media mimetype %q, want %s*", ErrValidation, mimetype, wantPrefix)
		}
		return &OutgoingMedia{Data: data, Mimetype: mimetype, Filename: input.Filename}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported media source %q", ErrValidation, input.Source)
	}
}

// messageID extracts an identifier from whatever shape the session returned,
// synthesizing one when every field is empty.
func messageID(receipt SendReceipt) string {
	if receipt.Serialized != "" {
		return receipt.Serialized
	}
	if receipt.Raw != "" {
		return receipt.Raw
	}
	if receipt.ID != "" {
		return receipt.ID
	}
	return "msg_" + uuid.NewString()
}

// imageThumbnail renders a small JPEG preview for outbound images. Returns
// nil when the image cannot be decoded; the send proceeds without a preview.
func imageThumbnail(data []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		log.Debug().Err(err).Msg("Could not decode image for thumbnail")
		return nil
	}
	thumb := resize.Thumbnail(thumbnailSize, thumbnailSize, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 75}); err != nil {
		log.Debug().Err(err).Msg("Could not encode thumbnail")
		return nil
	}
	return buf.Bytes()
}
