package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/greenchain/greenchain/storage"
	"github.com/greenchain/greenchain/voice"
)

// createVoiceSessionRequest opens a voice session for a buyer.
type createVoiceSessionRequest struct {
	BuyerID string  `json:"buyer_id"`
	LotID   *string `json:"lot_id,omitempty"`
}

// voiceReplyRequest carries one buyer utterance.
type voiceReplyRequest struct {
	Text string `json:"text"`
}

func (rt *router) handleCreateVoiceSession(w http.ResponseWriter, r *http.Request) {
	var req createVoiceSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}

	sessionID, reply, err := rt.agent.StartSession(r.Context(), req.BuyerID, req.LotID)
	if err != nil {
		writeVoiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
		"reply":      reply,
	})
}

func (rt *router) handleVoiceReply(w http.ResponseWriter, r *http.Request) {
	var req voiceReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "text is required")
		return
	}

	reply, err := rt.agent.HandleReply(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		writeVoiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

func (rt *router) handleVoiceEvaluate(w http.ResponseWriter, r *http.Request) {
	var req voice.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return
	}

	decision, err := rt.agent.Evaluate(r.Context(), &req)
	if err != nil {
		writeVoiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// writeVoiceError maps voice agent errors onto HTTP statuses.
func writeVoiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, voice.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, voice.ErrBuyerRequired):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
