package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/pocketbook/internal/api/middleware"
	"github.com/dvloznov/pocketbook/internal/cloudsync"
	"github.com/dvloznov/pocketbook/internal/engine"
	"github.com/dvloznov/pocketbook/internal/jobs"
	jobsmem "github.com/dvloznov/pocketbook/internal/jobs/inmemory"
	kvmem "github.com/dvloznov/pocketbook/internal/localstore/inmemory"
	"github.com/dvloznov/pocketbook/internal/logger"
	remotemem "github.com/dvloznov/pocketbook/internal/remote/inmemory"
	"github.com/dvloznov/pocketbook/internal/schedule"
)

type testAPI struct {
	engine   *engine.Engine
	remote   *remotemem.Store
	clock    *schedule.Manual
	jobStore *jobsmem.Store
	queue    *jobsmem.Queue
	handler  http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := logger.NewWithWriter(io.Discard)
	clock := schedule.NewManual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	rs := remotemem.NewStore()

	e, err := engine.Assemble(kvmem.NewStore(), rs,
		engine.WithLogger(log),
		engine.WithScheduler(clock),
		engine.WithClock(clock),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	jobStore := jobsmem.NewStore()
	queue := jobsmem.NewQueue(8, jobStore)
	t.Cleanup(func() { _ = queue.Close() })

	mux := NewRouter(Deps{
		Store:          e.Store(),
		Auth:           e.Auth(),
		Sync:           e.Sync(),
		Publisher:      queue,
		JobStore:       jobStore,
		ExportDir:      t.TempDir(),
		OriginPatterns: []string{"*"},
		Log:            log,
	})

	return &testAPI{
		engine:   e,
		remote:   rs,
		clock:    clock,
		jobStore: jobStore,
		queue:    queue,
		handler:  middleware.Chain(mux, middleware.Recovery(log), middleware.RequestID, middleware.Logger(log)),
	}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const coffee = `{"date":"2024-03-01","time":"08:30","amount":"4.20","category":"coffee","place":"Kiosk","payment":"card"}`

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestGetDocument(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/api/document", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.JSONEq(t, `"defaults"`, string(body["origin"]))

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body["document"], &doc))
	assert.JSONEq(t, `"dark"`, string(doc["theme"]))
	assert.JSONEq(t, `["cash","card"]`, string(doc["paymentMethods"]))
}

func TestFields(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPut, "/api/fields/theme", `"light"`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `"light"`, rec.Body.String())
	assert.Equal(t, "light", api.engine.Store().Get().Theme)

	rec = api.do(t, http.MethodPut, "/api/fields/theme", `null`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"dark"`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/fields/paymentMethods", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["cash","card"]`, rec.Body.String())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown field", http.MethodPut, "/api/fields/nope", `1`, http.StatusNotFound},
		{"unknown field read", http.MethodGet, "/api/fields/nope", "", http.StatusNotFound},
		{"wrong kind", http.MethodPut, "/api/fields/goals", `{}`, http.StatusBadRequest},
		{"reserved", http.MethodPut, "/api/fields/transactions", `[]`, http.StatusBadRequest},
		{"not json", http.MethodPut, "/api/fields/theme", `light`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAddAndConfirmTransaction(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/transactions", coffee)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.JSONEq(t, `"inserted"`, string(body["status"]))

	rec = api.do(t, http.MethodPost, "/api/transactions", coffee)
	require.Equal(t, http.StatusConflict, rec.Code)
	body = decode(t, rec)
	assert.JSONEq(t, `"needs_confirmation"`, string(body["status"]))
	require.Contains(t, body, "existing")
	assert.Len(t, api.engine.Store().Get().Transactions, 1)

	rec = api.do(t, http.MethodPost, "/api/transactions/confirm", string(body["candidate"]))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, api.engine.Store().Get().Transactions, 2)

	rec = api.do(t, http.MethodPost, "/api/transactions/confirm", string(body["candidate"]))
	assert.Equal(t, http.StatusConflict, rec.Code, "candidate id was already inserted")

	rec = api.do(t, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `2`, string(decode(t, rec)["count"]))
}

func TestAddTransactionInvalid(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/transactions", `{"date":"yesterday","amount":"1","category":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/transactions/confirm", `{"date":"2024-03-01","amount":"1","category":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `0`, string(decode(t, rec)["count"]))

	rec = api.do(t, http.MethodPost, "/api/transactions", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateDeleteUndo(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/transactions", coffee)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Transaction struct {
			ID string `json:"id"`
		} `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Transaction.ID

	rec = api.do(t, http.MethodPatch, "/api/transactions/"+id, `{"memo":"oat latte"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tx, ok := api.engine.Store().Transaction(id)
	require.True(t, ok)
	assert.Equal(t, "oat latte", tx.Memo)
	assert.Equal(t, "Kiosk", tx.Place)

	rec = api.do(t, http.MethodPatch, "/api/transactions/"+id, `{"date":"soon"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = api.do(t, http.MethodPatch, "/api/transactions/missing", `{"memo":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/transactions/undo", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/transactions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, api.engine.Store().Get().Transactions)

	rec = api.do(t, http.MethodGet, "/api/transactions/undo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)

	rec = api.do(t, http.MethodPost, "/api/transactions/undo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, api.engine.Store().Get().Transactions, 1)

	rec = api.do(t, http.MethodDelete, "/api/transactions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionAndSyncStatus(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/session", `{"uid":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/session", `{"uid":"u1","email":"a@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, api.engine.WaitSynced(ctx))

	rec = api.do(t, http.MethodGet, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"syncing"`, string(decode(t, rec)["state"]))

	api.engine.Store().SetTheme("light")
	rec = api.do(t, http.MethodPost, "/api/sync/flush", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var theme string
	ok, err := api.remote.Field("u1", "theme", &theme)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "light", theme)

	rec = api.do(t, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, cloudsync.StateAwaitingIdentity, api.engine.Sync().Status().State)
}

func TestJobs(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/jobs", `{"type":"parse_document"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/jobs", `{"type":"backup_bigquery"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "requires a signed-in identity")

	rec = api.do(t, http.MethodPost, "/api/jobs", `{"type":"export_file"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var created struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = api.do(t, http.MethodGet, "/api/jobs/"+created.JobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job jobs.ExportJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobs.JobTypeExportFile, job.Type)
	assert.Contains(t, job.Path, "pocketbook-")

	rec = api.do(t, http.MethodGet, "/api/jobs?type=export_file", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `1`, string(decode(t, rec)["count"]))

	rec = api.do(t, http.MethodGet, "/api/jobs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsDisabled(t *testing.T) {
	mux := NewRouter(Deps{Log: logger.NewWithWriter(io.Discard)})
	for _, path := range []string{"/api/jobs", "/api/jobs/x"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewBufferString(`{"type":"export_file"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPut, "/api/document", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
