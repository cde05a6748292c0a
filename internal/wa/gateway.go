package wa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Gateway is a Session backed by an external session-gateway process (the
// component that actually drives the messaging network). Commands go out as
// authenticated REST calls; the gateway pushes its events back into the
// bridge through the events endpoint (see EventsHandler).
type Gateway struct {
	client *resty.Client
}

func NewGateway(baseURL, token string) *Gateway {
	return &Gateway{
		client: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(token).
			SetTimeout(60 * time.Second),
	}
}

func (g *Gateway) Initialize(ctx context.Context) error {
	return g.post(ctx, "/session/start")
}

func (g *Gateway) Destroy(ctx context.Context) error {
	return g.post(ctx, "/session/stop")
}

func (g *Gateway) Logout(ctx context.Context) error {
	return g.post(ctx, "/session/logout")
}

func (g *Gateway) post(ctx context.Context, path string) error {
	resp, err := g.client.R().SetContext(ctx).Post(path)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type gatewaySendRequest struct {
	ChatID    string `json:"chatId"`
	Text      string `json:"text,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Media     string `json:"media,omitempty"` // base64
	Mimetype  string `json:"mimetype,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"` // base64 JPEG preview
	VoiceNote bool   `json:"voiceNote,omitempty"`
}

func (g *Gateway) Send(ctx context.Context, chatID string, content Outgoing) (SendReceipt, error) {
	req := gatewaySendRequest{ChatID: chatID, Text: content.Text, Caption: content.Caption}
	if content.Media != nil {
		req.Media = base64.StdEncoding.EncodeToString(content.Media.Data)
		req.Mimetype = content.Media.Mimetype
		req.Filename = content.Media.Filename
		req.VoiceNote = content.Media.VoiceNote
		if content.Media.Thumbnail != nil {
			req.Thumbnail = base64.StdEncoding.EncodeToString(content.Media.Thumbnail)
		}
	}

	var receipt SendReceipt
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&receipt).
		Post("/messages")
	if err != nil {
		return SendReceipt{}, fmt.Errorf("gateway send failed: %w", err)
	}
	if !resp.IsSuccess() {
		return SendReceipt{}, fmt.Errorf("gateway send returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return receipt, nil
}

func (g *Gateway) ResolveContactID(ctx context.Context, phone string) (string, error) {
	var result struct {
		ChatID string `json:"chatId"`
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("phone", phone).
		SetResult(&result).
		Get("/contacts/resolve")
	if err != nil {
		return "", fmt.Errorf("contact lookup failed: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("contact lookup returned status %d", resp.StatusCode())
	}
	return result.ChatID, nil
}

func (g *Gateway) Contact(ctx context.Context, msg Message) (Contact, error) {
	var contact Contact
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&contact).
		Get("/contacts/" + msg.ChatID())
	if err != nil {
		return Contact{}, fmt.Errorf("contact fetch failed: %w", err)
	}
	if !resp.IsSuccess() {
		return Contact{}, fmt.Errorf("contact fetch returned status %d", resp.StatusCode())
	}
	return contact, nil
}

func (g *Gateway) DownloadMedia(ctx context.Context, msg Message) (*Media, error) {
	var result struct {
		Mimetype string `json:"mimetype"`
		Filename string `json:"filename"`
		Base64   string `json:"base64"`
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/messages/" + msg.ID + "/media")
	if err != nil {
		return nil, fmt.Errorf("media download failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("media download returned status %d", resp.StatusCode())
	}
	data, err := base64.StdEncoding.DecodeString(result.Base64)
	if err != nil {
		return nil, fmt.Errorf("media payload is not valid base64: %w", err)
	}
	return &Media{Mimetype: result.Mimetype, Filename: result.Filename, Data: data}, nil
}

// gatewayEvent is the envelope the gateway POSTs to the events endpoint.
type gatewayEvent struct {
	Event   string   `json:"event"`
	QR      string   `json:"qr,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Number  string   `json:"number,omitempty"`
	Name    string   `json:"displayName,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// EventsHandler returns the HTTP handler that receives session events from
// the gateway and feeds them into the state machine. Malformed or unknown
// events are acknowledged and dropped; nothing here may propagate an error
// back into the gateway's event loop.
func EventsHandler(client *Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var evt gatewayEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			log.Warn().Err(err).Msg("Dropping malformed session event")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch evt.Event {
		case "qr":
			client.HandleEvent(QREvent{Code: evt.QR})
		case "ready":
			client.HandleEvent(ReadyEvent{Phone: PhoneIdentity{Number: evt.Number, DisplayName: evt.Name}})
		case "authenticated":
			client.HandleEvent(AuthenticatedEvent{})
		case "auth_failure":
			client.HandleEvent(AuthFailureEvent{Reason: evt.Reason})
		case "disconnected":
			client.HandleEvent(DisconnectedEvent{Reason: evt.Reason})
		case "message":
			if evt.Message != nil {
				client.HandleEvent(MessageEvent{Message: *evt.Message})
			}
		case "message_create":
			if evt.Message != nil {
				client.HandleEvent(SelfMessageEvent{Message: *evt.Message})
			}
		default:
			log.Debug().Str("event", evt.Event).Msg("Ignoring unknown session event")
		}

		w.WriteHeader(http.StatusOK)
	}
}
