package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"formkeeper/db"
	"formkeeper/models"

	"github.com/google/uuid"
)

// SessionHandler serves the public response-session lifecycle: start on
// survey entry, heartbeat on every page transition, complete or abandon at
// the end. The expiry sweep owns the fourth terminal state.
type SessionHandler struct {
	store db.Store
}

func NewSessionHandler(store db.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

type StartSessionRequest struct {
	Slug string `json:"slug"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// StartSession opens a session against an active survey instance
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Slug == "" {
		writeError(w, "Slug is required", http.StatusBadRequest)
		return
	}

	inst, err := h.store.GetInstanceBySlug(req.Slug)
	if err != nil {
		writeError(w, "Survey not found", http.StatusNotFound)
		return
	}

	if !inst.IsActive {
		writeError(w, "Survey is not currently accepting responses", http.StatusForbidden)
		return
	}

	now := time.Now().UTC()
	sess := &models.Session{
		SessionID:      uuid.NewString(),
		InstanceID:     inst.InstanceID,
		Status:         models.SessionInProgress,
		StartedAt:      now,
		LastActivityAt: now,
		Metadata:       models.NewMetadata(""),
	}

	if err := h.store.CreateSession(sess); err != nil {
		log.Printf("❌ Failed to create session: %v", err)
		writeError(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, sess)
}

// Heartbeat refreshes a session's activity timestamp on page transitions
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.SessionInProgress)
}

// CompleteSession terminates a session after the final page submits
func (h *SessionHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.SessionCompleted)
}

// AbandonSession terminates a session the respondent explicitly left
func (h *SessionHandler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.SessionAbandoned)
}

func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, target models.SessionStatus) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SessionID == "" {
		writeError(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	sess, err := h.store.GetSession(req.SessionID)
	if err != nil {
		writeError(w, "Session not found", http.StatusNotFound)
		return
	}

	if sess.Status.Terminal() {
		writeError(w, "Session is already closed", http.StatusConflict)
		return
	}

	sess.Status = target
	sess.LastActivityAt = time.Now().UTC()
	sess.Metadata.Touch()

	if err := h.store.UpdateSession(sess); err != nil {
		log.Printf("❌ Failed to update session %s: %v", sess.SessionID, err)
		writeError(w, "Failed to update session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, sess)
}
