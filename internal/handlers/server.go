package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log"

	"wabridge/config"
	"wabridge/internal/store"
	"wabridge/internal/wa"
)

// Server exposes the bridge's HTTP surface: the bearer-token API used by
// integrations, the dashboard endpoints, and the session-gateway events
// sink.
type Server struct {
	router   *mux.Router
	client   *wa.Client
	sender   *wa.Sender
	paused   *store.PausedContacts
	settings *store.Settings
	runtime  *config.Runtime
	cfg      *config.Config
}

func New(
	cfg *config.Config,
	runtime *config.Runtime,
	client *wa.Client,
	sender *wa.Sender,
	paused *store.PausedContacts,
	settings *store.Settings,
) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		client:   client,
		sender:   sender,
		paused:   paused,
		settings: settings,
		runtime:  runtime,
		cfg:      cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := alice.New(s.apiAuth)
	dash := alice.New(s.dashboardAuth)
	gateway := alice.New(s.gatewayAuth)

	s.router.Handle("/api/status", api.ThenFunc(s.handleStatus)).Methods("GET")
	s.router.Handle("/api/send", api.ThenFunc(s.handleSend)).Methods("POST")
	s.router.Handle("/api/pause", api.ThenFunc(s.handlePauseByPhone)).Methods("POST")
	s.router.Handle("/api/resume", api.ThenFunc(s.handleResumeByPhone)).Methods("POST")

	s.router.Handle("/dashboard/paused-contacts", dash.ThenFunc(s.handleListPaused)).Methods("GET")
	s.router.Handle("/dashboard/paused-contacts/{chatId}", dash.ThenFunc(s.handleUpdatePause)).Methods("PUT")
	s.router.Handle("/dashboard/paused-contacts/{chatId}", dash.ThenFunc(s.handleResumeContact)).Methods("DELETE")
	s.router.Handle("/dashboard/settings", dash.ThenFunc(s.handleGetSettings)).Methods("GET")
	s.router.Handle("/dashboard/settings", dash.ThenFunc(s.handleUpdateSettings)).Methods("PUT")
	s.router.Handle("/dashboard/restart", dash.ThenFunc(s.handleRestart)).Methods("POST")
	s.router.Handle("/dashboard/regenerate-qr", dash.ThenFunc(s.handleRegenerateQR)).Methods("POST")
	s.router.Handle("/dashboard/qr", dash.ThenFunc(s.handleQR)).Methods("GET")

	s.router.Handle("/events/session", gateway.Then(wa.EventsHandler(s.client))).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]interface{}{"ok": false, "error": message})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.client.Snapshot())
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	qr := s.client.QRCode()
	if qr == "" {
		s.respondError(w, http.StatusNotFound, "No QR code available")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "qr": qr})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Restart(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to restart session")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Session restarting"})
}

func (s *Server) handleRegenerateQR(w http.ResponseWriter, r *http.Request) {
	if err := s.client.RegenerateQR(r.Context()); err != nil {
		s.respondError(w, http.StatusInternalServerError, "Failed to regenerate QR code")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "QR code regenerating"})
}
