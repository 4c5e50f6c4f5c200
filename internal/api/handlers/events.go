package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/store"
)

const (
	eventBuffer  = 32
	writeTimeout = 5 * time.Second
)

// Event is one message on the change stream. The first message on every
// connection is a snapshot of the whole document.
type Event struct {
	Type     string          `json:"type"`
	Source   store.Source    `json:"source,omitempty"`
	Fields   []domain.Field  `json:"fields,omitempty"`
	Document domain.Document `json:"document"`
}

// EventsHandler streams document changes over a websocket.
type EventsHandler struct {
	store   *store.Store
	origins []string
	log     zerolog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(st *store.Store, origins []string, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{store: st, origins: origins, log: log}
}

// Stream handles GET /api/events. A client that falls more than
// eventBuffer events behind is disconnected and should reconnect to get a
// fresh snapshot.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	events := make(chan Event, eventBuffer)
	lagged := make(chan struct{})
	var lagOnce sync.Once

	unsubscribe := h.store.Subscribe(func(ch store.Change) {
		ev := Event{Type: "change", Source: ch.Source, Fields: ch.Fields, Document: ch.Document}
		select {
		case events <- ev:
		default:
			lagOnce.Do(func() { close(lagged) })
		}
	})
	defer unsubscribe()

	if err := h.write(ctx, conn, Event{Type: "snapshot", Document: h.store.Get()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-lagged:
			conn.Close(websocket.StatusTryAgainLater, "client too slow")
			return
		case ev := <-events:
			if err := h.write(ctx, conn, ev); err != nil {
				h.log.Debug().Err(err).Msg("Event stream closed")
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
