package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/power-grid/internal/auth"
	"github.com/example/power-grid/internal/game"
)

// Routes builds the HTTP surface: health checks, the host-only game API and
// the seat websocket.
func (gs *GameServer) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	}).Methods("GET")

	// seat tokens travel in the query string, browsers cannot set headers on
	// websocket upgrades
	r.HandleFunc("/ws", gs.HandleWS).Methods("GET")

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(gs.issuer.AuthMiddleware)
	protected.HandleFunc("/games", gs.HandleListGames).Methods("GET")
	protected.HandleFunc("/games", gs.HandleCreateGame).Methods("POST")
	protected.HandleFunc("/games/{id}", gs.HandleGetGame).Methods("GET")
	protected.HandleFunc("/games/{id}/journal", gs.HandleJournal).Methods("GET")
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrSeatTaken):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// CreateGameRequest is the body of POST /api/games.
type CreateGameRequest struct {
	Name    string   `json:"name"`
	Players int      `json:"players"`
	Bots    int      `json:"bots"`
	Names   []string `json:"names"`
}

type CreateGameResponse struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Seats []SeatToken `json:"seats"`
}

func (gs *GameServer) HandleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, err)
		return
	}
	room, tokens, err := gs.CreateRoom(req.Name, req.Players, req.Bots, req.Names)
	if err != nil {
		writeError(w, err)
		return
	}
	if tokens == nil {
		tokens = []SeatToken{}
	}
	writeJSON(w, http.StatusCreated, CreateGameResponse{ID: room.ID, Name: room.Name, Seats: tokens})
}

func (gs *GameServer) HandleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, gs.Rooms())
}

// GameView is the body of GET /api/games/{id}. State is present once the
// game has started.
type GameView struct {
	Room   RoomSummary    `json:"room"`
	Seats  []Seat         `json:"seats"`
	State  *game.Snapshot `json:"state,omitempty"`
	Result *game.Result   `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (gs *GameServer) HandleGetGame(w http.ResponseWriter, r *http.Request) {
	room, err := gs.getRoom(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	room.mu.Lock()
	view := GameView{Room: room.summary(), Result: room.Result, Error: room.Error}
	for _, s := range room.Seats {
		view.Seats = append(view.Seats, Seat{ID: s.ID, Name: s.Name, Bot: s.Bot, Connected: s.Connected})
	}
	g := room.game
	room.mu.Unlock()
	if g != nil {
		state := g.View()
		view.State = &state
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleJournal returns journal entries after the optional ?after=seq.
func (gs *GameServer) HandleJournal(w http.ResponseWriter, r *http.Request) {
	room, err := gs.getRoom(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	after := 0
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "after must be a non-negative integer"})
			return
		}
		after = n
	}
	room.mu.Lock()
	g := room.game
	room.mu.Unlock()
	entries := []game.JournalEntry{}
	if g != nil {
		if e := g.Journal().Entries(after); e != nil {
			entries = e
		}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleWS upgrades a seat connection. The seat token is checked before the
// upgrade so failures get a plain HTTP status.
func (gs *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if t, err := auth.BearerToken(r); err == nil {
			token = t
		}
	}
	claims, err := gs.issuer.Validate(defaultStr(token, "-"))
	if err != nil {
		writeError(w, err)
		return
	}
	if claims.Role != auth.RoleSeat {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "seat token required"})
		return
	}
	if err := gs.checkSeat(claims); err != nil {
		writeError(w, err)
		return
	}
	ws, err := gs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("upgrade:", err)
		return
	}
	if _, err := gs.attach(claims, ws); err != nil {
		log.Printf("attach %s/%s: %v", claims.GameID, claims.Seat, err)
		ws.Close()
	}
}
