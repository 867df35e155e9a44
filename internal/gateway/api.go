// ABOUTME: HTTP surface of the desktop agent: the WebSocket endpoint plus a JSON admin API
// ABOUTME: Exposes channels, apps and tabs, the event ledger and its SSE stream, health and metrics

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/fdc3-gateway/internal/agent"
	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/store"
	"github.com/2389/fdc3-gateway/internal/transport"
)

// WebSocketPath is where apps connect.
const WebSocketPath = "/fdc3"

// sseKeepalive is how often an idle event stream is sent a comment.
const sseKeepalive = 15 * time.Second

// AssignChannelRequest is the JSON body for POST /api/tabs/{tabId}/channel.
type AssignChannelRequest struct {
	Channel string `json:"channel"`
}

// AssignChannelResponse reports whether the assignment was applied to a
// connected app or queued for the tab.
type AssignChannelResponse struct {
	TabID   string `json:"tabId"`
	Channel string `json:"channel"`
	Applied bool   `json:"applied"`
}

// TabResponse describes what the agent knows about a tab: the app connected
// in it, that app's channel and any channel queued for the tab.
type TabResponse struct {
	TabID          string        `json:"tabId"`
	Client         *agent.Info   `json:"client,omitempty"`
	Channel        *fdc3.Channel `json:"channel,omitempty"`
	PendingChannel string        `json:"pendingChannel,omitempty"`
}

// Handler returns the HTTP handler serving apps and the admin API.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	upgrader := transport.NewUpgrader(g.config.Server.AllowedOrigins)
	mux.Handle(WebSocketPath, transport.WebSocketHandler(upgrader, g.ServeConn, g.config.Server.MaxMessageBytes, g.logger))

	mux.HandleFunc("GET /api/channels", g.handleListChannels)
	mux.HandleFunc("GET /api/clients", g.handleListClients)
	mux.HandleFunc("GET /api/events", g.handleListEvents)
	mux.HandleFunc("GET /api/events/stream", g.handleStreamEvents)
	mux.HandleFunc("GET /api/events/{id}", g.handleGetEvent)
	mux.HandleFunc("GET /api/tabs/{tabId}", g.handleGetTab)
	mux.HandleFunc("POST /api/tabs/{tabId}/channel", g.handleAssignChannel)

	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	if g.metrics != nil {
		mux.Handle(g.config.Metrics.Path, g.metrics.Handler())
	}
	return mux
}

func (g *Gateway) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.router.Channels())
}

func (g *Gateway) handleListClients(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.manager.List())
}

// handleListEvents handles GET /api/events with optional kind, client,
// channel, since, until, limit and cursor query parameters.
func (g *Gateway) handleListEvents(w http.ResponseWriter, r *http.Request) {
	params, err := parseEventsQuery(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.ledger.Events(r.Context(), params)
	if errors.Is(err, store.ErrInvalidCursor) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid cursor")
		return
	}
	if err != nil {
		g.logger.Error("failed to query events", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to query events")
		return
	}
	g.writeJSON(w, http.StatusOK, result)
}

// handleGetEvent handles GET /api/events/{id}.
func (g *Gateway) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := g.ledger.Event(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrEventNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get event", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	g.writeJSON(w, http.StatusOK, event)
}

func parseEventsQuery(r *http.Request) (store.GetEventsParams, error) {
	q := r.URL.Query()
	params := store.GetEventsParams{
		Kind:     store.EventKind(q.Get("kind")),
		ClientID: q.Get("client"),
		Channel:  q.Get("channel"),
		Cursor:   q.Get("cursor"),
	}
	if params.Kind != "" && !params.Kind.Valid() {
		return params, fmt.Errorf("unknown event kind %q", params.Kind)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, errors.New("limit must be an integer")
		}
		params.Limit = n
	}
	for name, dst := range map[string]**time.Time{"since": &params.Since, "until": &params.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return params, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
		}
		*dst = &t
	}
	return params, nil
}

// handleStreamEvents follows new ledger events as Server-Sent Events,
// optionally limited to one channel.
func (g *Gateway) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	channel := r.URL.Query().Get("channel")
	events := g.ledger.Subscribe(r.Context(), channel)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(sseKeepalive)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, string(event.Kind), event)
			flusher.Flush()
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleGetTab handles GET /api/tabs/{tabId}. A tab with neither a
// connected app nor a queued channel is not found.
func (g *Gateway) handleGetTab(w http.ResponseWriter, r *http.Request) {
	resp := TabResponse{TabID: r.PathValue("tabId")}
	resp.PendingChannel, _ = g.router.PendingChannel(resp.TabID)

	if conn, ok := g.manager.ByTab(resp.TabID); ok {
		resp.Client = conn.Info()
		// The app may disconnect between the two lookups.
		if current, err := g.router.CurrentChannel(conn.ID); err == nil {
			resp.Channel = current
		}
	}

	if resp.Client == nil && resp.PendingChannel == "" {
		g.sendJSONError(w, http.StatusNotFound, "tab not found")
		return
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleAssignChannel handles POST /api/tabs/{tabId}/channel.
func (g *Gateway) handleAssignChannel(w http.ResponseWriter, r *http.Request) {
	tabID := r.PathValue("tabId")

	var req AssignChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Channel == "" {
		g.sendJSONError(w, http.StatusBadRequest, "channel is required")
		return
	}

	applied, err := g.AssignTabChannel(tabID, req.Channel)
	if errors.Is(err, fdc3.NoChannelFound) {
		g.sendJSONError(w, http.StatusNotFound, "channel not found")
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	g.writeJSON(w, http.StatusOK, AssignChannelResponse{TabID: tabID, Channel: req.Channel, Applied: applied})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK until shutdown begins.
func (g *Gateway) handleReady(w http.ResponseWriter, _ *http.Request) {
	if g.closing.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d apps)", g.manager.Count())
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
