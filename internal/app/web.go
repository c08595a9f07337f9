package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/pedestrian_tracker/internal/config"
	"github.com/relabs-tech/pedestrian_tracker/internal/nav"
	"github.com/relabs-tech/pedestrian_tracker/internal/osm"
	"github.com/relabs-tech/pedestrian_tracker/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins on the local network
	},
}

// Suggester completes partial addresses for the search box.
type Suggester interface {
	Suggest(ctx context.Context, query string) ([]nav.Place, error)
}

// WalkHistory reads archived walks.
type WalkHistory interface {
	ListWalks(ctx context.Context, limit int) ([]store.WalkSummary, error)
	GetWalk(ctx context.Context, id string) (nav.Walk, error)
}

const (
	defaultWalkLimit = 20
	wsWriteWait      = 5 * time.Second
)

// webServer serves the latest snapshot over HTTP and a websocket feed, and
// forwards commands to the tracker.
type webServer struct {
	sendCommand func(nav.Command) error
	suggester   Suggester
	walks       WalkHistory

	mu       sync.RWMutex
	last     nav.Snapshot
	haveLast bool

	// writeMu serialises websocket writes; gorilla allows one writer per conn.
	writeMu   sync.Mutex
	clients   map[*websocket.Conn]struct{}
	writeWait time.Duration
}

func newWebServer(sendCommand func(nav.Command) error, suggester Suggester, walks WalkHistory) *webServer {
	return &webServer{
		sendCommand: sendCommand,
		suggester:   suggester,
		walks:       walks,
		clients:     make(map[*websocket.Conn]struct{}),
		writeWait:   wsWriteWait,
	}
}

// writeWS sends m to one client. A client that stops reading fails the
// write after writeWait instead of holding up the others. Callers hold writeMu.
func (ws *webServer) writeWS(conn *websocket.Conn, m wsMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(ws.writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(m)
}

// updateSnapshot caches s and pushes it to every websocket client.
func (ws *webServer) updateSnapshot(s nav.Snapshot) {
	ws.mu.Lock()
	ws.last = s
	ws.haveLast = true
	ws.mu.Unlock()
	ws.broadcast(wsMessage{Type: "snapshot", Snapshot: &s})
}

func (ws *webServer) snapshot() (nav.Snapshot, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.last, ws.haveLast
}

// wsMessage is what the websocket feed sends.
type wsMessage struct {
	Type     string        `json:"type"` // "snapshot", "event", "error"
	Snapshot *nav.Snapshot `json:"snapshot,omitempty"`
	Event    *nav.Event    `json:"event,omitempty"`
	Message  string        `json:"message,omitempty"`
}

func (ws *webServer) broadcast(m wsMessage) {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	for conn := range ws.clients {
		if err := ws.writeWS(conn, m); err != nil {
			log.Printf("web: websocket write error, dropping client: %v", err)
			conn.Close()
			delete(ws.clients, conn)
		}
	}
}

func (ws *webServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshot", ws.handleSnapshot)
	mux.HandleFunc("POST /api/command", ws.handleCommand)
	mux.HandleFunc("GET /api/suggest", ws.handleSuggest)
	mux.HandleFunc("GET /api/walks", ws.handleWalks)
	mux.HandleFunc("GET /api/walks/{id}", ws.handleWalk)
	mux.HandleFunc("GET /api/status.png", ws.handleStatusCard)
	mux.HandleFunc("/ws", ws.handleWS)
	mux.Handle("/", http.FileServer(http.Dir("web")))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (ws *webServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := ws.snapshot()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// submit assigns an id when missing and forwards cmd to the tracker.
func (ws *webServer) submit(cmd nav.Command) (nav.Command, error) {
	if cmd.Type == "" {
		return cmd, errors.New("missing command type")
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	return cmd, ws.sendCommand(cmd)
}

func (ws *webServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd nav.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid command: "+err.Error(), http.StatusBadRequest)
		return
	}
	if cmd.Type == "" {
		http.Error(w, "missing command type", http.StatusBadRequest)
		return
	}
	cmd, err := ws.submit(cmd)
	if err != nil {
		log.Printf("web: command forward error: %v", err)
		http.Error(w, "tracker unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": cmd.ID})
}

func (ws *webServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if ws.suggester == nil {
		http.Error(w, "address search disabled", http.StatusNotImplemented)
		return
	}
	places, err := ws.suggester.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		log.Printf("web: suggest error: %v", err)
		http.Error(w, "address search failed", http.StatusBadGateway)
		return
	}
	if places == nil {
		places = []nav.Place{}
	}
	writeJSON(w, http.StatusOK, places)
}

func (ws *webServer) handleWalks(w http.ResponseWriter, r *http.Request) {
	if ws.walks == nil {
		http.Error(w, "walk history disabled", http.StatusNotImplemented)
		return
	}
	limit := defaultWalkLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	list, err := ws.walks.ListWalks(r.Context(), limit)
	if err != nil {
		log.Printf("web: list walks error: %v", err)
		http.Error(w, "walk history unavailable", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []store.WalkSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (ws *webServer) handleWalk(w http.ResponseWriter, r *http.Request) {
	if ws.walks == nil {
		http.Error(w, "walk history disabled", http.StatusNotImplemented)
		return
	}
	walk, err := ws.walks.GetWalk(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrWalkNotFound):
		http.Error(w, "walk not found", http.StatusNotFound)
		return
	case err != nil:
		log.Printf("web: get walk error: %v", err)
		http.Error(w, "walk history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, walk)
}

func (ws *webServer) handleStatusCard(w http.ResponseWriter, r *http.Request) {
	s, ok := ws.snapshot()
	data, err := encodeStatusCard(s, ok)
	if err != nil {
		log.Printf("web: status card error: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// handleWS streams snapshots and events; clients may send commands back.
func (ws *webServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}

	ws.writeMu.Lock()
	ws.clients[conn] = struct{}{}
	if s, ok := ws.snapshot(); ok {
		if err := ws.writeWS(conn, wsMessage{Type: "snapshot", Snapshot: &s}); err != nil {
			log.Printf("web: websocket write error: %v", err)
		}
	}
	ws.writeMu.Unlock()

	defer func() {
		ws.writeMu.Lock()
		delete(ws.clients, conn)
		ws.writeMu.Unlock()
		conn.Close()
	}()

	for {
		var cmd nav.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: websocket error: %v", err)
			}
			return
		}
		if _, err := ws.submit(cmd); err != nil {
			ws.writeMu.Lock()
			if werr := ws.writeWS(conn, wsMessage{Type: "error", Message: err.Error()}); werr != nil {
				log.Printf("web: websocket write error: %v", werr)
			}
			ws.writeMu.Unlock()
		}
	}
}

// RunWeb serves the browser UI. Snapshots and events arrive over MQTT;
// commands leave the same way.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("web: config not initialised")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	var walks WalkHistory
	if cfg.SessionDBPath != "" {
		db, err := store.NewDB(cfg.SessionDBPath)
		if err != nil {
			log.Printf("web: walk history disabled: %v", err)
		} else {
			defer db.Close()
			walks = db
		}
	}

	lookups := osm.NewClient(osm.Options{
		GeocoderURL: cfg.GeocoderURL,
		RouterURL:   cfg.RouterURL,
		UserAgent:   cfg.UserAgent,
		Language:    cfg.Language,
		Timeout:     cfg.HTTPTimeout(),
	})

	ws := newWebServer(func(cmd nav.Command) error {
		return publishJSONWait(client, cfg.TopicCommand, false, cmd)
	}, lookups, walks)

	if err := subscribeJSON(client, cfg.TopicSnapshot, "web", ws.updateSnapshot); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicEvents, "web", func(e nav.Event) {
		ws.broadcast(wsMessage{Type: "event", Event: &e})
	}); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: listening on %s", addr)
	return http.ListenAndServe(addr, ws.routes())
}
