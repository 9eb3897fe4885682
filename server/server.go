package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"gridchase/grid_world"
	"gridchase/server/fastview"
	"gridchase/storage"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
)

// Options configure the game each connection gets.
type Options struct {
	Grid grid_world.Config
	Keys grid_world.KeyMap
	// NewSource, if set, builds an action source per session and the session
	// plays itself every Tick. Otherwise sessions are driven by key events.
	NewSource func(sim *grid_world.Simulator) grid_world.ActionSource
	Tick      time.Duration
	MaxSteps  int
}

// Server serves the game page and one game session per websocket. Ledgers of
// finished sessions are merged and, when a store is set, saved as runs.
type Server struct {
	addr   string
	opts   Options
	store  storage.Store
	logger *log.Logger
	router *mux.Router

	mu       sync.Mutex
	ledger   grid_world.Ledger
	sessions int
}

// NewServer validates the grid by building a simulator from it. The store may
// be nil; it must already be initialized.
func NewServer(
	addr string,
	opts Options,
	store storage.Store,
	logger *log.Logger,
) (*Server, error) {
	opts.Grid.Display = true
	if opts.Grid.CellDim == 0 {
		opts.Grid.CellDim = grid_world.PLAYER_DIM
	}
	if _, err := grid_world.NewSimulator(opts.Grid, nil, nil); err != nil {
		return nil, err
	}
	if opts.Keys == nil {
		opts.Keys = grid_world.DefaultKeyMap()
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Millisecond * 100
	}

	server := &Server{
		addr:   addr,
		opts:   opts,
		store:  store,
		logger: logger,
		ledger: grid_world.Ledger{},
	}

	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket).Methods(http.MethodGet)
	router.HandleFunc("/routes", server.serveRoutes).Methods(http.MethodGet)
	server.router = router
	return server, nil
}

func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens until ctx is done, then shuts down.
func (server *Server) Serve(ctx context.Context) (err error) {
	srv := &http.Server{
		Addr:    server.addr,
		Handler: server.router,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	server.logger.Info("serving", "addr", server.addr)

	select {
	case err = <-errs:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		err = fmt.Errorf("serve: %w", err)
		return
	}
	return nil
}

// Ledger returns a copy of the merged ledger of finished sessions.
func (server *Server) Ledger() grid_world.Ledger {
	server.mu.Lock()
	defer server.mu.Unlock()

	ledger := grid_world.Ledger{}
	grid_world.MergeLedgers(ledger, server.ledger)
	return ledger
}

// serveWebsocket runs one session for the connection's lifetime.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	grid := server.opts.Grid
	canvas := NewCanvas(grid.Title, grid.Width, grid.Height, grid.CellDim)

	cli, err := fastview.NewClient[Frame, KeyEvent](canvas.Frames(), w, r)
	if err != nil {
		server.logger.Error("upgrade failed", "err", err)
		return
	}

	sim, err := grid_world.NewSimulator(grid, rand.New(rand.NewSource(time.Now().UnixNano())), canvas)
	if err != nil {
		server.logger.Error("simulator", "err", err)
		cli.Close()
		return
	}

	session := NewSession(sim, canvas, server.opts.Keys, server.logger.With("remote", r.RemoteAddr))
	if server.opts.NewSource != nil {
		session.WithSource(server.opts.NewSource(sim), server.opts.Tick, server.opts.MaxSteps)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- cli.Sync(ctx)
	}()

	ledger, err := session.Run(ctx, cli.Messages())
	if err != nil {
		server.logger.Error("session failed", "err", err)
	}
	canvas.Close()
	cancel()
	if err := <-syncErr; err != nil {
		server.logger.Debug("websocket closed", "err", err)
	}

	server.finishSession(ledger, grid)
}

// finishSession saves the session's ledger as a run, then merges it into the
// server's ledger.
func (server *Server) finishSession(ledger grid_world.Ledger, grid grid_world.Config) {
	if server.store != nil && len(ledger) > 0 {
		run := storage.Run{
			ID:        storage.NewRunID(),
			CreatedAt: time.Now(),
			Width:     grid.Width,
			Height:    grid.Height,
			CellDim:   grid.CellDim,
			Ledger:    ledger,
		}
		if err := server.store.SaveRun(context.Background(), run); err != nil {
			server.logger.Error("saving session run", "err", err)
		} else {
			server.logger.Info("saved session run", "id", run.ID)
		}
	}

	server.mu.Lock()
	server.sessions++
	sessions := server.sessions
	collisions := grid_world.MergeLedgers(server.ledger, ledger)
	total := len(server.ledger)
	server.mu.Unlock()

	server.logger.Info("session finished",
		"session", sessions,
		"routes", len(ledger),
		"collisions", collisions,
		"total_routes", total)
}

// serveRoutes returns the merged ledger as a list of route records.
func (server *Server) serveRoutes(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(storage.Records(server.Ledger())); err != nil {
		server.logger.Error("encoding routes", "err", err)
	}
}

// Serve the index.html main page.
func (server *Server) serveIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := renderIndex(w, server.opts.Grid); err != nil {
		server.logger.Error("rendering index", "err", err)
	}
}
