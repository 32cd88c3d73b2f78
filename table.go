// Podbox live tables
//
// Ad-hoc pickup sessions that never touch the persisted roster. Players
// join a shared table by name over a WebSocket; the first connection
// becomes the organizer, who can lock the lobby, kick players, and deal
// the joined names into pods.
//
// Features:
// - WebSockets per table ID: /table/:tableid and /table/:tableid/ws
// - Players identified by cookie (playerID), names unique ignoring case
// - Collision messages sent only to the offending client
// - Tables auto-reaped after a configurable idle timeout
// - Random 8-char table IDs via crypto/rand, with server-side collision check
// - In-browser QR button to share the current table, backed by go-qrcode

package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// TablePlayer holds the data we store server-side for a joined player.
type TablePlayer struct {
	PlayerID string
	Name     string
}

// Messages coming from clients
type TableClientMessage struct {
	Type       string `json:"type"`                  // "join", "lock_lobby", "kick", "deal"
	Name       string `json:"name,omitempty"`        // join
	Lock       *bool  `json:"lock,omitempty"`        // lock_lobby
	TargetName string `json:"target_name,omitempty"` // kick
	TargetSize int    `json:"target_size,omitempty"` // deal
}

// TableStateMessage broadcasts the joined players and lobby state.
type TableStateMessage struct {
	Type      string   `json:"type"` // "table_state"
	Players   []string `json:"players"`
	Locked    bool     `json:"locked"`
	Organizer bool     `json:"organizer,omitempty"`
}

// SessionInfoMessage is sent immediately on connect so the client knows
// whether the lobby is locked and what role this cookie has.
type SessionInfoMessage struct {
	Type        string `json:"type"` // "session_info"
	LobbyLocked bool   `json:"lobby_locked"`
	IsExisting  bool   `json:"is_existing"`
	IsOrganizer bool   `json:"is_organizer"`
	Name        string `json:"name,omitempty"`
}

// PodsMessage broadcasts a dealt distribution to every client.
type PodsMessage struct {
	Type  string            `json:"type"` // "pods"
	Pods  []Pod             `json:"pods"`
	Stats DistributionStats `json:"stats"`
}

// Sent to a single client when a name is already taken at this table.
type CollisionMessage struct {
	Type    string `json:"type"` // "collision"
	Message string `json:"message"`
}

// SimpleMessage is for generic notifications ("kicked", "lobby_locked", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type tableClient struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type tableJoin struct {
	client *tableClient
	msg    TableClientMessage
}

type tableCommand struct {
	client *tableClient
	msg    TableClientMessage
}

type tableHub struct {
	id      string
	clients map[*tableClient]bool
	players []TablePlayer

	register chan *tableClient
	unreg    chan *tableClient
	joins    chan tableJoin
	cmds     chan tableCommand

	mu sync.RWMutex

	createdAt         time.Time
	lastActive        time.Time
	lobbyLocked       bool
	organizerPlayerID string // cookie/playerID of organizer (may also be a player)

	lastPods []Pod
}

func newTableHub(tableID string) *tableHub {
	now := time.Now()
	return &tableHub{
		id:         tableID,
		clients:    make(map[*tableClient]bool),
		register:   make(chan *tableClient),
		unreg:      make(chan *tableClient),
		joins:      make(chan tableJoin),
		cmds:       make(chan tableCommand),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *tableHub) run(cfg *Config, app *App) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()

			// First connection becomes organizer
			if h.organizerPlayerID == "" {
				h.organizerPlayerID = c.playerID
			}

			isExisting := false
			existingName := ""
			for _, p := range h.players {
				if p.PlayerID == c.playerID {
					isExisting = true
					existingName = p.Name
					break
				}
			}
			isOrganizer := (h.organizerPlayerID == c.playerID)

			h.clients[c] = true

			c.send <- SessionInfoMessage{
				Type:        "session_info",
				LobbyLocked: h.lobbyLocked,
				IsExisting:  isExisting,
				IsOrganizer: isOrganizer,
				Name:        existingName,
			}

			h.broadcastStateLocked()

			if h.lastPods != nil {
				c.send <- PodsMessage{
					Type:  "pods",
					Pods:  h.lastPods,
					Stats: Summarize(h.lastPods),
				}
			}

			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			playerID := c.playerID
			isOrganizer := (playerID == h.organizerPlayerID)
			h.mu.Unlock()

			// The organizer leaving does not erase players.
			if playerID != "" && !isOrganizer {
				go h.scheduleRemoval(playerID, cfg.playerTimeout)
			}

		case jr := <-h.joins:
			h.handleJoin(cfg, jr)

		case cmd := <-h.cmds:
			h.handleCommand(cfg, app, cmd)
		}
	}
}

func (h *tableHub) playerNamesLocked() []string {
	names := make([]string, 0, len(h.players))
	for _, p := range h.players {
		names = append(names, p.Name)
	}
	return names
}

// broadcastStateLocked sends the joined players and lock state to all
// clients. Assumes h.mu is held.
func (h *tableHub) broadcastStateLocked() {
	names := h.playerNamesLocked()

	for client := range h.clients {
		select {
		case client.send <- TableStateMessage{
			Type:      "table_state",
			Players:   names,
			Locked:    h.lobbyLocked,
			Organizer: client.playerID == h.organizerPlayerID,
		}:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// scheduleRemoval waits for d, and if no client with this playerID is
// currently connected, removes that player's entry and broadcasts the
// updated state.
func (h *tableHub) scheduleRemoval(playerID string, d time.Duration) {
	time.Sleep(d)

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.playerID == playerID {
			return
		}
	}

	dst := h.players[:0]
	changed := false

	for _, p := range h.players {
		if p.PlayerID == playerID {
			changed = true
			continue
		}
		dst = append(dst, p)
	}
	h.players = dst

	if !changed {
		return
	}

	h.lastActive = time.Now()

	h.broadcastStateLocked()
}

// handleJoin processes "join" messages.
func (h *tableHub) handleJoin(cfg *Config, jr tableJoin) {
	msg := jr.msg
	c := jr.client

	name := strings.TrimSpace(msg.Name)
	if name == "" || c.playerID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	existingIndex := -1
	for i, p := range h.players {
		if p.PlayerID == c.playerID {
			existingIndex = i
			break
		}
	}

	if h.lobbyLocked && existingIndex == -1 {
		select {
		case c.send <- SimpleMessage{
			Type:    "lobby_locked",
			Message: "The table is locked; no new players may join.",
		}:
		default:
			delete(h.clients, c)
			close(c.send)
		}
		return
	}

	for _, p := range h.players {
		if p.PlayerID == c.playerID {
			continue
		}
		if strings.EqualFold(p.Name, name) {
			select {
			case c.send <- CollisionMessage{
				Type:    "collision",
				Message: "That name is already taken at this table. Please choose another.",
			}:
			default:
				delete(h.clients, c)
				close(c.send)
			}
			return
		}
	}

	if existingIndex >= 0 {
		h.players[existingIndex].Name = name
	} else {
		h.players = append(h.players, TablePlayer{
			PlayerID: c.playerID,
			Name:     name,
		})
		logf(cfg, "TABLE: Player %q joined %s", name, h.id)
	}

	h.broadcastStateLocked()
}

// handleCommand processes organizer commands: lock/unlock the lobby, kick
// players, deal pods.
func (h *tableHub) handleCommand(cfg *Config, app *App, cmd tableCommand) {
	c := cmd.client
	msg := cmd.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	// Only the organizer may issue these commands
	if h.organizerPlayerID == "" || c.playerID != h.organizerPlayerID {
		return
	}

	switch msg.Type {
	case "lock_lobby":
		h.lobbyLocked = msg.Lock != nil && *msg.Lock
		h.broadcastStateLocked()

	case "kick":
		target := msg.TargetName
		if target == "" {
			return
		}

		dst := h.players[:0]
		kickedPlayerID := ""

		for _, p := range h.players {
			if strings.EqualFold(p.Name, target) {
				kickedPlayerID = p.PlayerID
				continue
			}
			dst = append(dst, p)
		}
		h.players = dst

		if kickedPlayerID == "" {
			return
		}

		for client := range h.clients {
			if client.playerID == kickedPlayerID {
				client.send <- SimpleMessage{
					Type:    "kicked",
					Message: "You have been removed by the organizer.",
				}
				delete(h.clients, client)
				close(client.send)
			}
		}

		h.broadcastStateLocked()

	case "deal":
		h.dealLocked(cfg, app, c, msg.TargetSize)
	}
}

// dealLocked runs the distribution engine over the joined names and
// broadcasts the result. Assumes h.mu is held.
func (h *tableHub) dealLocked(cfg *Config, app *App, c *tableClient, targetSize int) {
	sizes := app.Settings().SizeConfig
	if targetSize > 0 {
		sizes.TargetSize = targetSize
	}

	pods, err := Distribute(h.playerNamesLocked(), sizes, nil)
	if err != nil {
		select {
		case c.send <- SimpleMessage{
			Type:    "deal_error",
			Message: err.Error(),
		}:
		default:
		}
		return
	}

	h.lastPods = pods
	logf(cfg, "TABLE: Dealt %d pod(s) for %d player(s) in %s", len(pods), len(h.players), h.id)

	msg := PodsMessage{
		Type:  "pods",
		Pods:  pods,
		Stats: Summarize(pods),
	}

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *tableHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "podbox_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// tableManager holds a set of hubs keyed by table ID, so each
// /table/:tableid is its own isolated session.
type tableManager struct {
	mu          sync.Mutex
	hubs        map[string]*tableHub
	idleTimeout time.Duration
}

func newTableManager(idleTimeout time.Duration) *tableManager {
	tm := &tableManager{
		hubs:        make(map[string]*tableHub),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go tm.reaperLoop()
	}
	return tm
}

func (tm *tableManager) getHub(cfg *Config, app *App, tableID string) *tableHub {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if hub, ok := tm.hubs[tableID]; ok {
		return hub
	}

	hub := newTableHub(tableID)
	tm.hubs[tableID] = hub
	go hub.run(cfg, app)
	return hub
}

// newTableID generates a crypto-random table ID and ensures it doesn't
// collide with existing tables.
func (tm *tableManager) newTableID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		tm.mu.Lock()
		_, exists := tm.hubs[id]
		tm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout.
func (tm *tableManager) reaperLoop() {
	ticker := time.NewTicker(tm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-tm.idleTimeout)

		tm.mu.Lock()
		for id, hub := range tm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(tm.hubs, id)
				go hub.closeAll()
			}
		}
		tm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :tableid
func serveTableWS(cfg *Config, app *App, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tableID := ps.ByName("tableid")
		if tableID == "" {
			http.Error(w, "missing table id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := tm.getHub(cfg, app, tableID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &tableClient{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *tableClient) readPump(h *tableHub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg TableClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join":
			h.joins <- tableJoin{
				client: c,
				msg:    msg,
			}
		case "lock_lobby", "kick", "deal":
			h.cmds <- tableCommand{
				client: c,
				msg:    msg,
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *tableClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current table URL using
// go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	tableID := ps.ByName("tableid")
	if tableID == "" {
		http.Error(w, "missing table id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /table/:tableid/qr; strip trailing "/qr" to get the table URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func serveTablePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data, err := appAssets.ReadFile("assets/app/table.html")
		if err != nil {
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(data)
	}
}

// redirectNewTable handles GET /table by generating a new random table ID
// (with server-side collision detection) and redirecting to /table/:tableid.
func redirectNewTable(cfg *Config, path string, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		tableID := tm.newTableID()
		logf(cfg, "TABLE: Created table %s/%s", path, tableID)
		http.Redirect(w, r, path+"/"+tableID, http.StatusTemporaryRedirect)
	}
}

// registerTables sets up routes so that:
//   - /table                  → redirects to new random table (8-char ID)
//   - /table/:tableid         → HTML client
//   - /table/:tableid/ws      → WebSocket for that table
//   - /table/:tableid/qr      → PNG QR code for that table URL
func registerTables(cfg *Config, app *App, path string, mux *httprouter.Router) {
	tm := newTableManager(cfg.sessionTimeout)

	// Root path → redirect to new random table
	mux.GET(cfg.prefix+path, redirectNewTable(cfg, path, tm))

	// Per-table client view (HTML)
	mux.GET(cfg.prefix+path+"/:tableid", serveTablePage(cfg))

	// Per-table websocket
	mux.GET(cfg.prefix+path+"/:tableid/ws", serveTableWS(cfg, app, tm))

	// Per-table QR code
	mux.GET(cfg.prefix+path+"/:tableid/qr", qrHandler)
}
