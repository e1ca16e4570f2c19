package eventsws

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"wfs-go/internal/wfs"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

// Handler upgrades requests to websockets and forwards every bus event to
// the client. Repeated "topic" query parameters restrict the stream. A
// client that falls behind by more than the buffer loses events.
type Handler struct {
	bus    *wfs.Bus
	logger wfs.Logger
	buffer int
	accept *websocket.AcceptOptions
}

// NewHandler creates a Handler for bus. originPatterns lists hosts allowed
// to connect cross-origin.
func NewHandler(bus *wfs.Bus, logger wfs.Logger, originPatterns ...string) *Handler {
	if logger == nil {
		logger = wfs.NewNopLogger()
	}
	return &Handler{
		bus:    bus,
		logger: logger,
		buffer: defaultBuffer,
		accept: &websocket.AcceptOptions{OriginPatterns: originPatterns},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics := make(map[wfs.Topic]bool)
	for _, t := range r.URL.Query()["topic"] {
		topics[wfs.Topic(t)] = true
	}

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	events := make(chan wfs.Event, h.buffer)
	unsubscribe := h.bus.Subscribe(func(e wfs.Event) {
		if len(topics) > 0 && !topics[e.Topic()] {
			return
		}
		select {
		case events <- e:
		default:
			h.logger.Warn("dropping event for slow client", "remote", r.RemoteAddr, "topic", string(e.Topic()))
		}
	})
	defer unsubscribe()

	h.logger.Info("event stream client connected", "remote", r.RemoteAddr)
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("event stream client disconnected", "remote", r.RemoteAddr)
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case e := <-events:
			if err := h.write(ctx, conn, e); err != nil {
				h.logger.Warn("writing event", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, e wfs.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, NewFrame(e))
}

// NewServeMux mounts h at /events.
func NewServeMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/events", h)
	return mux
}
