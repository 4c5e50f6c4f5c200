package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/api/middleware"
	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/store"
)

// TransactionsHandler handles the transaction operations.
type TransactionsHandler struct {
	store *store.Store
	log   zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(st *store.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: st, log: log}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs := h.store.Get().Transactions
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// AddTransaction handles POST /api/transactions. A manual entry that looks
// like a duplicate is answered with 409 and the candidate, which the client
// may send to the confirm route.
func (h *TransactionsHandler) AddTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := decodeBody(r, &tx); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := tx.Validate(); err != nil {
		h.writeTxError(w, err)
		return
	}

	res, err := h.store.AddTransaction(tx)
	if err != nil {
		h.writeTxError(w, err)
		return
	}

	if res.Status == store.NeedsConfirmation {
		middleware.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"status":    res.Status.String(),
			"candidate": res.Transaction,
			"existing":  res.Existing,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"status":      res.Status.String(),
		"transaction": res.Transaction,
	})
}

// ConfirmTransaction handles POST /api/transactions/confirm
func (h *TransactionsHandler) ConfirmTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := decodeBody(r, &tx); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := tx.Validate(); err != nil {
		h.writeTxError(w, err)
		return
	}

	inserted, err := h.store.ConfirmTransaction(tx)
	if err != nil {
		h.writeTxError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"status":      store.Inserted.String(),
		"transaction": inserted,
	})
}

// UpdateTransaction handles PATCH /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch domain.TransactionPatch
	if err := decodeBody(r, &patch); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, ok := h.store.Transaction(id)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err := patch.Apply(current).Validate(); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.store.UpdateTransaction(id, patch) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}

	updated, _ := h.store.Transaction(id)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": updated,
	})
}

// DeleteTransaction handles DELETE /api/transactions/{id}. The deletion can
// be reverted through the undo route until the undo window closes.
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, ok := h.store.DeleteTransaction(id); !ok {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}

	deleted, _ := h.store.PendingUndo()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":  deleted,
		"undoable": true,
	})
}

// PendingUndo handles GET /api/transactions/undo
func (h *TransactionsHandler) PendingUndo(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.store.PendingUndo()
	if !ok {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"pending": nil})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"pending": tx})
}

// Undo handles POST /api/transactions/undo
func (h *TransactionsHandler) Undo(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.store.PendingUndo()
	if !ok || !h.store.UndoDelete() {
		middleware.WriteError(w, http.StatusConflict, "Nothing to undo")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"restored": tx,
	})
}

func (h *TransactionsHandler) writeTxError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTransaction):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicateID):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Msg("Transaction operation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Transaction operation failed")
	}
}
