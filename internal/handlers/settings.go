package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"wabridge/internal/store"
)

var editableSettings = map[string]bool{
	store.SettingWebhookURL:       true,
	store.SettingWebhookToken:     true,
	store.SettingAPIToken:         true,
	store.SettingWebhookEnabled:   true,
	store.SettingAutoReplyEnabled: true,
	store.SettingAutoReplyMessage: true,
	store.SettingPauseDuration:    true,
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	values, err := s.settings.GetAll()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings")
		s.respondError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "settings": values})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	for key := range values {
		if !editableSettings[key] {
			s.respondError(w, http.StatusBadRequest, "Unknown setting: "+key)
			return
		}
	}

	if err := s.settings.SetAll(values); err != nil {
		log.Error().Err(err).Msg("Failed to store settings")
		s.respondError(w, http.StatusInternalServerError, "Failed to store settings")
		return
	}

	// Drop cached values so the new settings apply immediately.
	s.runtime.Invalidate()

	log.Info().Int("count", len(values)).Msg("Settings updated")
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Settings updated"})
}
