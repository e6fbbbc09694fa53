// Package server exposes tracked contacts over HTTP and keeps their
// solutions current as observations arrive.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wisq/autocrew/internal/scenario"
	"github.com/wisq/autocrew/internal/store"
	"github.com/wisq/autocrew/internal/tma"
	"golang.org/x/sync/errgroup"
)

const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Addr            string
	Solver          *tma.Solver
	Store           *store.FSStore // optional
	Settle          tma.SettleConfig
	ResolveInterval time.Duration
	Workers         int
}

// Server represents the HTTP server
type Server struct {
	contacts     *ContactManager
	resolver     *Resolver
	store        *store.FSStore
	addr         string
	server       *http.Server
	pingInterval time.Duration
}

func NewServer(opts Options) *Server {
	contacts := NewContactManager(opts.Settle)
	return &Server{
		contacts:     contacts,
		resolver:     NewResolver(contacts, opts.Solver, opts.Store, opts.ResolveInterval, opts.Workers),
		store:        opts.Store,
		addr:         opts.Addr,
		pingInterval: 30 * time.Second,
	}
}

// Restore tracks every checkpointed contact in the store.
func (s *Server) Restore() (int, error) {
	if s.store == nil {
		return 0, nil
	}
	infos, err := s.store.ListCheckpoints()
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, info := range infos {
		cp, err := s.store.LoadCheckpoint(info.ContactID)
		if err == nil {
			err = cp.Validate()
		}
		if err != nil {
			slog.Warn("Skipping checkpoint", "contactID", info.ContactID, "error", err)
			continue
		}
		s.contacts.RestoreContact(cp)
		restored++
	}
	slog.Info("Restored contacts", "count", restored)
	return restored, nil
}

// Handler returns the server's routes wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/contacts", s.handleContacts)
	mux.HandleFunc("/api/v1/contacts/", s.handleContactsWithID)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok\n")
	})
	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Run serves HTTP and runs the resolver until ctx is done, then shuts
// the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting HTTP server", "addr", s.addr)
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.resolver.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// handleContacts handles /api/v1/contacts
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateContact(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.contacts.ListContacts())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleContactsWithID handles /api/v1/contacts/:id/*
func (s *Server) handleContactsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/contacts/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.Error(w, "Contact ID required", http.StatusBadRequest)
		return
	}
	id := parts[0]

	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}
	switch {
	case (sub == "" || sub == "status") && r.Method == http.MethodGet:
		s.handleGetContact(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		s.handleDeleteContact(w, r, id)
	case sub == "observations" && r.Method == http.MethodPost:
		s.handleAddObservations(w, r, id)
	case sub == "stream" && r.Method == http.MethodGet:
		s.handleContactStream(w, r, id)
	case sub == "trace" && r.Method == http.MethodGet:
		s.handleGetTrace(w, r, id)
	case sub == "" || sub == "status" || sub == "observations" || sub == "stream" || sub == "trace":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateContact accepts a scenario as JSON or YAML.
func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}
	sc, err := scenario.Parse(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c := s.contacts.CreateContact(sc)
	slog.Info("Contact created", "contactID", c.ID, "name", sc.Name, "observations", len(sc.Observations))
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request, id string) {
	c, exists := s.contacts.GetContact(id)
	if !exists {
		http.Error(w, "Contact not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request, id string) {
	if !s.contacts.DeleteContact(id) {
		http.Error(w, "Contact not found", http.StatusNotFound)
		return
	}
	if s.store != nil {
		if err := s.store.DeleteCheckpoint(id); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Error("Failed to delete checkpoint", "contactID", id, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddObservations accepts one observation object or an array of them.
func (s *Server) handleAddObservations(w http.ResponseWriter, r *http.Request, id string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	var obs []scenario.Observation
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(body, &obs)
	} else {
		var one scenario.Observation
		err = json.Unmarshal(body, &one)
		obs = []scenario.Observation{one}
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if _, exists := s.contacts.GetContact(id); !exists {
		http.Error(w, "Contact not found", http.StatusNotFound)
		return
	}
	c, err := s.contacts.AddObservations(id, obs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.contacts.broadcaster.Broadcast(newProgressEvent(c))
	writeJSON(w, http.StatusAccepted, c)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, id string) {
	if s.store == nil {
		http.Error(w, "Tracing disabled", http.StatusNotFound)
		return
	}
	tr, err := store.NewTraceReader(s.store.BaseDir(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
