package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/api/middleware"
	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/store"
)

// DocumentHandler serves the whole document and single fields.
type DocumentHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(st *store.Store, log zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{store: st, log: log}
}

// GetDocument handles GET /api/document
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"document": h.store.Get(),
		"origin":   h.store.Origin().String(),
	})
}

// GetField handles GET /api/fields/{name}
func (h *DocumentHandler) GetField(w http.ResponseWriter, r *http.Request) {
	f, err := domain.ParseField(r.PathValue("name"))
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	raw, err := h.store.Get().Raw(f)
	if err != nil {
		h.log.Error().Err(err).Str("field", string(f)).Msg("Failed to encode field")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to encode field")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, raw)
}

// SetField handles PUT /api/fields/{name}. The body is the new JSON value;
// null resets the field to its default.
func (h *DocumentHandler) SetField(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeBody(r, &raw); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := domain.Field(r.PathValue("name"))
	if err := h.store.SetField(f, raw); err != nil {
		switch {
		case errors.Is(err, store.ErrUnknownField):
			middleware.WriteError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, store.ErrReservedField), errors.Is(err, store.ErrInvalidValue):
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Str("field", string(f)).Msg("Failed to set field")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to set field")
		}
		return
	}

	h.GetField(w, r)
}
