package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"wabridge/config"
	"wabridge/internal/store"
	"wabridge/internal/wa"
)

type stubSession struct {
	receipt wa.SendReceipt
	sendErr error
	sends   int
}

func (s *stubSession) Initialize(ctx context.Context) error { return nil }
func (s *stubSession) Destroy(ctx context.Context) error    { return nil }
func (s *stubSession) Logout(ctx context.Context) error     { return nil }

func (s *stubSession) Send(ctx context.Context, chatID string, content wa.Outgoing) (wa.SendReceipt, error) {
	s.sends++
	return s.receipt, s.sendErr
}

func (s *stubSession) ResolveContactID(ctx context.Context, phone string) (string, error) {
	return "", nil
}

func (s *stubSession) Contact(ctx context.Context, msg wa.Message) (wa.Contact, error) {
	return wa.Contact{}, nil
}

func (s *stubSession) DownloadMedia(ctx context.Context, msg wa.Message) (*wa.Media, error) {
	return nil, nil
}

type serverFixture struct {
	server  *Server
	session *stubSession
	client  *wa.Client
	paused  *store.PausedContacts
}

const (
	testAPIToken       = "api-secret"
	testDashboardToken = "dash-secret"
)

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := store.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		InstanceID:         "test",
		APIToken:           testAPIToken,
		DashboardToken:     testDashboardToken,
		PauseDurationHours: 4,
	}
	settings := store.NewSettings(db)
	runtime := config.NewRuntime(cfg, settings)

	session := &stubSession{}
	markers := wa.NewSendMarkers()
	paused := store.NewPausedContacts(db)
	client := wa.NewClient(session, markers, paused, runtime.PauseDuration, false)
	sender := wa.NewSender(session, markers)

	return &serverFixture{
		server:  New(cfg, runtime, client, sender, paused, settings),
		session: session,
		client:  client,
		paused:  paused,
	}
}

func (f *serverFixture) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func TestAPIRequiresToken(t *testing.T) {
	fx := newServerFixture(t)

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong token", "nope"},
		{"dashboard token on api route", testDashboardToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := fx.request(t, "GET", "/api/status", tc.token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("Expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestDashboardRequiresToken(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.request(t, "GET", "/dashboard/paused-contacts", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rec.Code)
	}

	rec = fx.request(t, "GET", "/dashboard/paused-contacts", testDashboardToken, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with dashboard token, got %d", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	fx := newServerFixture(t)
	fx.client.HandleEvent(wa.ReadyEvent{Phone: wa.PhoneIdentity{Number: "5511999999999"}})

	rec := fx.request(t, "GET", "/api/status", testAPIToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "READY" {
		t.Errorf("Expected READY status, got %v", body["status"])
	}
}

func TestSendRejectedWhenNotReady(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.request(t, "POST", "/api/send", testAPIToken, map[string]string{
		"to": "5511999999999", "type": "text", "text": "hi",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 when session is not ready, got %d", rec.Code)
	}
	if fx.session.sends != 0 {
		t.Errorf("Expected no session sends, got %d", fx.session.sends)
	}
}

func TestSendTextEndpoint(t *testing.T) {
	fx := newServerFixture(t)
	fx.client.HandleEvent(wa.ReadyEvent{})
	fx.session.receipt = wa.SendReceipt{Serialized: "true_5511999999999@c.us_XYZ"}

	rec := fx.request(t, "POST", "/api/send", testAPIToken, map[string]string{
		"to": "+55 11 99999-9999", "type": "text", "text": "hello",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["id"] != "true_5511999999999@c.us_XYZ" {
		t.Errorf("Expected message ID in response, got %v", body["id"])
	}
	if body["to"] != "5511999999999@c.us" {
		t.Errorf("Expected normalized destination, got %v", body["to"])
	}
}

func TestSendValidationMapsTo400(t *testing.T) {
	fx := newServerFixture(t)
	fx.client.HandleEvent(wa.ReadyEvent{})

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"empty text", map[string]interface{}{"to": "5511999999999", "type": "text", "text": " "}},
		{"bad number", map[string]interface{}{"to": "123", "type": "text", "text": "hi"}},
		{"unknown type", map[string]interface{}{"to": "5511999999999", "type": "video"}},
		{"image without payload", map[string]interface{}{"to": "5511999999999", "type": "image"}},
		{"audio without payload", map[string]interface{}{"to": "5511999999999", "type": "audio"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := fx.request(t, "POST", "/api/send", testAPIToken, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPauseByPhoneNormalizesNumber(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.request(t, "POST", "/api/pause", testAPIToken, map[string]string{
		"phone": "+55 11 99999-9999",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["chatId"] != "5511999999999@c.us" {
		t.Errorf("Expected normalized chat ID, got %v", body["chatId"])
	}

	isPaused, err := fx.paused.IsPaused("5511999999999@c.us")
	if err != nil {
		t.Fatalf("IsPaused failed: %v", err)
	}
	if !isPaused {
		t.Error("Expected contact to be paused")
	}
}

func TestResumeByPhone(t *testing.T) {
	fx := newServerFixture(t)
	if err := fx.paused.Pause("5511999999999@c.us", time.Hour); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	rec := fx.request(t, "POST", "/api/resume", testAPIToken, map[string]string{
		"phone": "5511999999999",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	isPaused, err := fx.paused.IsPaused("5511999999999@c.us")
	if err != nil {
		t.Fatalf("IsPaused failed: %v", err)
	}
	if isPaused {
		t.Error("Expected contact to be resumed")
	}
}

func TestListPausedContacts(t *testing.T) {
	fx := newServerFixture(t)
	if err := fx.paused.Pause("5511999999999@c.us", time.Hour); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	rec := fx.request(t, "GET", "/dashboard/paused-contacts", testDashboardToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	contacts, ok := body["contacts"].([]interface{})
	if !ok || len(contacts) != 1 {
		t.Fatalf("Expected 1 paused contact, got %v", body["contacts"])
	}
	row := contacts[0].(map[string]interface{})
	if row["chatId"] != "5511999999999@c.us" {
		t.Errorf("Expected chat ID in listing, got %v", row["chatId"])
	}
	if row["number"] != "5511999999999" {
		t.Errorf("Expected bare number in listing, got %v", row["number"])
	}
	if row["isGroup"] != false {
		t.Errorf("Expected isGroup false, got %v", row["isGroup"])
	}
	if row["remainingMs"].(float64) <= 0 {
		t.Errorf("Expected positive remaining time, got %v", row["remainingMs"])
	}
}

func TestUpdatePauseExpiry(t *testing.T) {
	fx := newServerFixture(t)
	if err := fx.paused.Pause("5511999999999@c.us", time.Hour); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	newExpiry := time.Now().Add(8 * time.Hour).UTC()
	rec := fx.request(t, "PUT", "/dashboard/paused-contacts/5511999999999@c.us", testDashboardToken,
		map[string]string{"expiresAt": newExpiry.Format(time.RFC3339)})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.request(t, "PUT", "/dashboard/paused-contacts/5511777777777@c.us", testDashboardToken,
		map[string]string{"expiresAt": newExpiry.Format(time.RFC3339)})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown contact, got %d", rec.Code)
	}

	rec = fx.request(t, "PUT", "/dashboard/paused-contacts/5511999999999@c.us", testDashboardToken,
		map[string]string{"expiresAt": "tomorrow-ish"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestDeletePausedContact(t *testing.T) {
	fx := newServerFixture(t)
	if err := fx.paused.Pause("5511999999999@c.us", time.Hour); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	rec := fx.request(t, "DELETE", "/dashboard/paused-contacts/5511999999999@c.us", testDashboardToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	isPaused, err := fx.paused.IsPaused("5511999999999@c.us")
	if err != nil {
		t.Fatalf("IsPaused failed: %v", err)
	}
	if isPaused {
		t.Error("Expected contact to be resumed after delete")
	}
}

func TestQREndpoint(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.request(t, "GET", "/dashboard/qr", testDashboardToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 with no pending QR, got %d", rec.Code)
	}

	fx.client.HandleEvent(wa.QREvent{Code: "qr-payload"})

	rec = fx.request(t, "GET", "/dashboard/qr", testDashboardToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	qr, _ := body["qr"].(string)
	if len(qr) == 0 || qr[:14] != "data:image/png" {
		t.Errorf("Expected PNG data URL, got %.30q", qr)
	}
}

func TestSettingsRoundTripThroughAPI(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.request(t, "PUT", "/dashboard/settings", testDashboardToken, map[string]string{
		store.SettingWebhookURL:       "https://hooks.example.com/wa",
		store.SettingAutoReplyMessage: "Back soon",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = fx.request(t, "GET", "/dashboard/settings", testDashboardToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	settings, ok := body["settings"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected settings object, got %v", body)
	}
	if settings[store.SettingWebhookURL] != "https://hooks.example.com/wa" {
		t.Errorf("Expected stored webhook URL, got %v", settings[store.SettingWebhookURL])
	}
}

func TestSettingsRejectUnknownKey(t *testing.T) {
	fx := newServerFixture(t)

	rec := fx.request(t, "PUT", "/dashboard/settings", testDashboardToken, map[string]string{
		"NOT_A_SETTING": "x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown key, got %d", rec.Code)
	}
}

func TestGatewayEventsEndpoint(t *testing.T) {
	fx := newServerFixture(t)

	payload := map[string]interface{}{
		"event":  "ready",
		"number":      "5511999999999",
		"displayName": "Bridge",
	}
	rec := fx.request(t, "POST", "/events/session", "", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from events sink, got %d: %s", rec.Code, rec.Body.String())
	}
	if !fx.client.IsReady() {
		t.Error("Expected ready event to transition the client to READY")
	}
}

func TestGatewayAuthEnforcedWhenConfigured(t *testing.T) {
	fx := newServerFixture(t)
	fx.server.cfg.GatewayToken = "gw-secret"

	rec := fx.request(t, "POST", "/events/session", "", map[string]string{"event": "ready"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without gateway token, got %d", rec.Code)
	}

	rec = fx.request(t, "POST", "/events/session", "gw-secret", map[string]string{"event": "ready"})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with gateway token, got %d", rec.Code)
	}
}
