package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"wabridge/internal/store"
	"wabridge/internal/wa"
)

func (s *Server) handleListPaused(w http.ResponseWriter, r *http.Request) {
	if _, err := s.paused.Sweep(); err != nil {
		log.Warn().Err(err).Msg("Pause sweep failed")
	}

	records, err := s.paused.List()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list paused contacts")
		s.respondError(w, http.StatusInternalServerError, "Failed to list paused contacts")
		return
	}

	now := time.Now()
	contacts := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		contacts = append(contacts, map[string]interface{}{
			"chatId":      rec.ChatID,
			"number":      wa.NumberFromChatID(rec.ChatID),
			"isGroup":     strings.HasSuffix(rec.ChatID, "@g.us"),
			"pausedAt":    rec.PausedAt,
			"expiresAt":   rec.ExpiresAt,
			"remainingMs": rec.Remaining(now).Milliseconds(),
		})
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "contacts": contacts})
}

func (s *Server) handleUpdatePause(w http.ResponseWriter, r *http.Request) {
	chatID, err := url.PathUnescape(mux.Vars(r)["chatId"])
	if err != nil || chatID == "" {
		s.respondError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	var req struct {
		ExpiresAt string `json:"expiresAt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ExpiresAt == "" {
		s.respondError(w, http.StatusBadRequest, "expiresAt is required")
		return
	}

	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	if err := s.paused.UpdateExpiry(chatID, expiresAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "Contact not found")
			return
		}
		log.Error().Err(err).Str("chatId", chatID).Msg("Failed to update pause")
		s.respondError(w, http.StatusInternalServerError, "Failed to update pause")
		return
	}

	log.Info().Str("chatId", chatID).Msg("Pause expiration updated")
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Pause updated"})
}

func (s *Server) handleResumeContact(w http.ResponseWriter, r *http.Request) {
	chatID, err := url.PathUnescape(mux.Vars(r)["chatId"])
	if err != nil || chatID == "" {
		s.respondError(w, http.StatusBadRequest, "Invalid chat ID")
		return
	}

	if err := s.paused.Resume(chatID); err != nil {
		log.Error().Err(err).Str("chatId", chatID).Msg("Failed to resume contact")
		s.respondError(w, http.StatusInternalServerError, "Failed to resume contact")
		return
	}

	log.Info().Str("chatId", chatID).Msg("Contact resumed")
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Contact resumed"})
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

// handlePauseByPhone pauses a contact addressed by phone number, normalizing
// it to the canonical chat identifier first.
func (s *Server) handlePauseByPhone(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		s.respondError(w, http.StatusBadRequest, "phone is required")
		return
	}

	chatID, err := wa.FormatChatID(req.Phone)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.paused.Pause(chatID, s.runtime.PauseDuration()); err != nil {
		log.Error().Err(err).Str("chatId", chatID).Msg("Failed to pause contact")
		s.respondError(w, http.StatusInternalServerError, "Failed to pause contact")
		return
	}

	log.Info().Str("chatId", chatID).Msg("Contact paused via API")
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "chatId": chatID})
}

func (s *Server) handleResumeByPhone(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		s.respondError(w, http.StatusBadRequest, "phone is required")
		return
	}

	chatID, err := wa.FormatChatID(req.Phone)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.paused.Resume(chatID); err != nil {
		log.Error().Err(err).Str("chatId", chatID).Msg("Failed to resume contact")
		s.respondError(w, http.StatusInternalServerError, "Failed to resume contact")
		return
	}

	log.Info().Str("chatId", chatID).Msg("Contact resumed via API")
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "chatId": chatID})
}
