package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"wabridge/internal/wa"
)

type sendRequest struct {
	To      string         `json:"to"`
	Type    string         `json:"type"`
	Text    string         `json:"text,omitempty"`
	Caption string         `json:"caption,omitempty"`
	Image   *wa.MediaInput `json:"image,omitempty"`
	Audio   *wa.MediaInput `json:"audio,omitempty"`
	AsPtt   *bool          `json:"asPtt,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if !s.client.IsReady() {
		s.respondError(w, http.StatusConflict, "WhatsApp is not connected. Current status is not READY.")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var (
		result *wa.SendResult
		err    error
	)

	switch req.Type {
	case "text":
		result, err = s.sender.SendText(r.Context(), req.To, req.Text)
	case "image":
		if req.Image == nil {
			s.respondError(w, http.StatusBadRequest, "image payload is required")
			return
		}
		result, err = s.sender.SendImage(r.Context(), req.To, *req.Image, req.Caption)
	case "audio":
		if req.Audio == nil {
			s.respondError(w, http.StatusBadRequest, "audio payload is required")
			return
		}
		asPtt := true
		if req.AsPtt != nil {
			asPtt = *req.AsPtt
		}
		result, err = s.sender.SendAudio(r.Context(), req.To, *req.Audio, asPtt)
	default:
		s.respondError(w, http.StatusBadRequest, "Unsupported message type: "+req.Type)
		return
	}

	if err != nil {
		if errors.Is(err, wa.ErrValidation) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Str("type", req.Type).Msg("Send failed")
		s.respondError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"id":   result.ID,
		"to":   result.To,
		"type": result.Type,
	})
}
