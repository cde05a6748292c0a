package wa

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/vincent-petithory/dataurl"

	"wabridge/internal/store"
)

// Status is the connection lifecycle state of the session.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusQRRequired   Status = "QR_REQUIRED"
	StatusReady        Status = "READY"
)

// PhoneIdentity is the account the session is logged in as.
type PhoneIdentity struct {
	Number      string `json:"number"`
	DisplayName string `json:"displayName"`
}

// Snapshot is a read-only view of the connection state.
type Snapshot struct {
	Status      Status         `json:"status"`
	QRAvailable bool           `json:"qrAvailable"`
	QRCode      string         `json:"-"`
	LastError   string         `json:"lastError,omitempty"`
	Phone       *PhoneIdentity `json:"phone,omitempty"`
}

// Session lifecycle events, emitted by the session capability.
type (
	QREvent           struct{ Code string }
	ReadyEvent        struct{ Phone PhoneIdentity }
	AuthenticatedEvent struct{}
	AuthFailureEvent  struct{ Reason string }
	DisconnectedEvent struct{ Reason string }
	MessageEvent      struct{ Message Message }
	SelfMessageEvent  struct{ Message Message }
)

// Client owns the connection state machine and routes session events. State
// is mutated only under its mutex so snapshot reads never see a torn update.
// Lifecycle operations (initialize, restart, regenerate QR) serialize
// against each other on a separate lock so they cannot race on the single
// underlying session.
type Client struct {
	session Session
	markers *SendMarkers
	paused  *store.PausedContacts

	pauseDuration func() time.Duration
	qrToTerminal  bool

	mu   sync.Mutex
	snap Snapshot

	opMu sync.Mutex

	onMessage func(Message)
}

func NewClient(session Session, markers *SendMarkers, paused *store.PausedContacts, pauseDuration func() time.Duration, qrToTerminal bool) *Client {
	return &Client{
		session:       session,
		markers:       markers,
		paused:        paused,
		pauseDuration: pauseDuration,
		qrToTerminal:  qrToTerminal,
		snap:          Snapshot{Status: StatusDisconnected},
	}
}

// OnMessage registers the inbound message consumer. Each message is handled
// in its own goroutine so slow webhook deliveries never block ingestion.
func (c *Client) OnMessage(fn func(Message)) {
	c.onMessage = fn
}

// Snapshot returns the current connection state. Never blocks on lifecycle
// operations.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// IsReady reports whether the session is connected and able to send.
func (c *Client) IsReady() bool {
	return c.Snapshot().Status == StatusReady
}

// QRCode returns the current QR data URL, empty when none is pending.
func (c *Client) QRCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.QRCode
}

// Initialize starts the underlying session. On failure the state reverts to
// DISCONNECTED with the error recorded for operator visibility.
func (c *Client) Initialize(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	log.Info().Msg("Initializing session")
	c.setState(func(s *Snapshot) {
		s.Status = StatusConnecting
		s.LastError = ""
	})

	if err := c.session.Initialize(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to initialize session")
		c.setState(func(s *Snapshot) {
			s.Status = StatusDisconnected
			s.LastError = fmt.Sprintf("Initialization failed: %v", err)
		})
		return fmt.Errorf("failed to initialize session: %w", err)
	}
	return nil
}

// Restart destroys and re-initializes the session.
func (c *Client) Restart(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	log.Info().Msg("Restarting session")
	c.setState(func(s *Snapshot) {
		s.Status = StatusConnecting
		s.LastError = ""
		s.QRCode = ""
		s.QRAvailable = false
	})

	if err := c.destroyAndInitialize(ctx); err != nil {
		c.setState(func(s *Snapshot) {
			s.Status = StatusDisconnected
			s.LastError = fmt.Sprintf("Restart failed: %v", err)
		})
		return fmt.Errorf("failed to restart session: %w", err)
	}
	return nil
}

// RegenerateQR logs the session out to force a fresh QR code. When logout
// fails it falls back to a full destroy and re-initialize.
func (c *Client) RegenerateQR(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	log.Info().Msg("Regenerating QR code")
	c.setState(func(s *Snapshot) {
		s.Status = StatusConnecting
		s.LastError = ""
		s.QRCode = ""
		s.QRAvailable = false
	})

	if err := c.session.Logout(ctx); err != nil {
		log.Warn().Err(err).Msg("Logout failed, trying restart instead")
		if reinitErr := c.destroyAndInitialize(ctx); reinitErr != nil {
			c.setState(func(s *Snapshot) {
				s.Status = StatusDisconnected
				s.LastError = fmt.Sprintf("Failed to regenerate QR: %v", reinitErr)
			})
			return fmt.Errorf("failed to regenerate QR: %w", reinitErr)
		}
	}
	return nil
}

func (c *Client) destroyAndInitialize(ctx context.Context) error {
	if err := c.session.Destroy(ctx); err != nil {
		return err
	}
	return c.session.Initialize(ctx)
}

func (c *Client) setState(mutate func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.snap)
}

// HandleEvent processes one session event. The session capability delivers
// events serially, so state transitions here never interleave; message
// handling is fanned out to goroutines.
func (c *Client) HandleEvent(evt any) {
	switch e := evt.(type) {
	case QREvent:
		c.handleQR(e.Code)
	case ReadyEvent:
		log.Info().Str("number", e.Phone.Number).Msg("Session is ready")
		phone := e.Phone
		c.setState(func(s *Snapshot) {
			s.Status = StatusReady
			s.QRCode = ""
			s.QRAvailable = false
			s.LastError = ""
			s.Phone = &phone
		})
	case AuthenticatedEvent:
		log.Info().Msg("Session authenticated")
		c.setState(func(s *Snapshot) {
			s.Status = StatusConnecting
			s.QRCode = ""
			s.QRAvailable = false
		})
	case AuthFailureEvent:
		log.Error().Str("reason", e.Reason).Msg("Authentication failed")
		c.setState(func(s *Snapshot) {
			s.Status = StatusDisconnected
			s.LastError = fmt.Sprintf("Authentication failed: %s", e.Reason)
			s.QRCode = ""
			s.QRAvailable = false
		})
	case DisconnectedEvent:
		log.Warn().Str("reason", e.Reason).Msg("Session disconnected")
		c.setState(func(s *Snapshot) {
			s.Status = StatusDisconnected
			s.LastError = fmt.Sprintf("Disconnected: %s", e.Reason)
			s.QRCode = ""
			s.QRAvailable = false
			s.Phone = nil
		})
	case MessageEvent:
		if c.onMessage != nil {
			go c.onMessage(e.Message)
		}
	case SelfMessageEvent:
		c.handleSelfMessage(e.Message)
	default:
		log.Debug().Type("event", evt).Msg("Ignoring unhandled session event")
	}
}

func (c *Client) handleQR(code string) {
	log.Info().Msg("QR code received")

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode QR code")
		return
	}
	encoded := dataurl.New(png, "image/png").String()

	c.setState(func(s *Snapshot) {
		s.Status = StatusQRRequired
		s.QRCode = encoded
		s.QRAvailable = true
	})

	if c.qrToTerminal {
		qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
	}
}

// handleSelfMessage is the manual-takeover detector. A send confirmed by
// both the message-level and device-level from-me flags either consumes a
// live API-send marker, or pauses automated processing for the contact.
func (c *Client) handleSelfMessage(msg Message) {
	if !msg.FromMe || !msg.IDFromMe {
		// Reflected from another linked device, not a confirmed own send.
		return
	}

	chatID := msg.To
	if c.markers.Consume(chatID) {
		log.Debug().Str("chatId", chatID).Msg("API message sent, not pausing")
		return
	}

	duration := c.pauseDuration()
	log.Info().
		Str("chatId", chatID).
		Dur("duration", duration).
		Msg("Manual message detected, pausing contact")

	if err := c.paused.Pause(chatID, duration); err != nil {
		log.Error().Err(err).Str("chatId", chatID).Msg("Failed to pause contact")
	}
}
