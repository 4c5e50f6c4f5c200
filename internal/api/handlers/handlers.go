package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/api/middleware"
	"github.com/dvloznov/pocketbook/internal/auth"
	"github.com/dvloznov/pocketbook/internal/cloudsync"
	"github.com/dvloznov/pocketbook/internal/jobs"
	"github.com/dvloznov/pocketbook/internal/store"
)

const maxBodyBytes = 1 << 20

// SyncService is the part of the sync client the API exposes.
type SyncService interface {
	Status() cloudsync.Status
	Flush(ctx context.Context) error
}

// Deps holds everything the routes need. Publisher and JobStore may be nil,
// in which case the job routes answer 503.
type Deps struct {
	Store     *store.Store
	Auth      *auth.Gate
	Sync      SyncService
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	ExportDir string
	// OriginPatterns are the hosts allowed to open the event stream.
	OriginPatterns []string
	Log            zerolog.Logger
}

// NewRouter registers every route on a fresh mux.
func NewRouter(d Deps) *http.ServeMux {
	documents := NewDocumentHandler(d.Store, d.Log)
	transactions := NewTransactionsHandler(d.Store, d.Log)
	session := NewSessionHandler(d.Auth, d.Sync, d.Log)
	jobsHandler := NewJobsHandler(d.Publisher, d.JobStore, d.Auth, d.ExportDir, d.Log)
	events := NewEventsHandler(d.Store, d.OriginPatterns, d.Log)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/document", documents.GetDocument)
	mux.HandleFunc("GET /api/fields/{name}", documents.GetField)
	mux.HandleFunc("PUT /api/fields/{name}", documents.SetField)

	mux.HandleFunc("GET /api/transactions", transactions.ListTransactions)
	mux.HandleFunc("POST /api/transactions", transactions.AddTransaction)
	mux.HandleFunc("POST /api/transactions/confirm", transactions.ConfirmTransaction)
	mux.HandleFunc("GET /api/transactions/undo", transactions.PendingUndo)
	mux.HandleFunc("POST /api/transactions/undo", transactions.Undo)
	mux.HandleFunc("PATCH /api/transactions/{id}", transactions.UpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", transactions.DeleteTransaction)

	mux.HandleFunc("GET /api/session", session.GetSession)
	mux.HandleFunc("POST /api/session", session.SignIn)
	mux.HandleFunc("DELETE /api/session", session.SignOut)
	mux.HandleFunc("GET /api/sync", session.SyncStatus)
	mux.HandleFunc("POST /api/sync/flush", session.Flush)

	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("POST /api/jobs", jobsHandler.CreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", jobsHandler.GetJob)

	mux.HandleFunc("GET /api/events", events.Stream)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}

// decodeBody reads a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return errors.New("request body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
