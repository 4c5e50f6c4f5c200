package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/api/middleware"
	"github.com/dvloznov/pocketbook/internal/auth"
)

// SessionHandler reports identity changes to the auth gate and exposes
// the sync client's status.
type SessionHandler struct {
	gate *auth.Gate
	sync SyncService
	log  zerolog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(gate *auth.Gate, sync SyncService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{gate: gate, sync: sync, log: log}
}

// GetSession handles GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.gate.State())
}

// SignIn handles POST /api/session
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var id auth.Identity
	if err := decodeBody(r, &id); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.gate.SignIn(id); err != nil {
		if errors.Is(err, auth.ErrInvalidIdentity) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Sign-in failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Sign-in failed")
		return
	}

	h.log.Info().Str("uid", id.UID).Msg("Signed in")
	middleware.WriteJSON(w, http.StatusOK, h.gate.State())
}

// SignOut handles DELETE /api/session
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.gate.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

// SyncStatus handles GET /api/sync
func (h *SessionHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.sync.Status())
}

// Flush handles POST /api/sync/flush. It pushes a pending change now
// instead of waiting for the debounce.
func (h *SessionHandler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.Flush(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("Flush failed")
		middleware.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.sync.Status())
}
