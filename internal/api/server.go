// Package api exposes the bot over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/petasbytes/go-chatgraph/internal/chat"
	"github.com/petasbytes/go-chatgraph/internal/graph"
	"github.com/petasbytes/go-chatgraph/internal/logger"
)

// maxBodyBytes caps request bodies on the message endpoint.
const maxBodyBytes = 1 << 20

// Backend is the part of chat.Bot served over HTTP.
type Backend interface {
	Turn(ctx context.Context, input, threadID string) (chat.TurnResult, error)
	History(ctx context.Context, threadID string) ([]string, error)
	State(ctx context.Context, threadID string) (chat.State, bool, error)
	Checkpoints(ctx context.Context, threadID string) ([]graph.Snapshot[chat.State], error)
	Threads(ctx context.Context) ([]string, error)
}

type Server struct {
	router  *chi.Mux
	backend Backend
	log     *logger.Logger
}

func NewServer(backend Backend, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	s := &Server{router: router, backend: backend, log: log}
	router.Use(s.requestLog)

	router.Get("/health", s.health)
	router.Route("/api/v1/threads", func(r chi.Router) {
		r.Get("/", s.listThreads)
		r.Post("/", s.createThread)
		r.Route("/{threadID}", func(r chi.Router) {
			r.Post("/messages", s.postMessage)
			r.Get("/history", s.history)
			r.Get("/state", s.state)
			r.Get("/checkpoints", s.checkpoints)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("API server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	ids, err := s.backend.Threads(r.Context())
	if err != nil {
		s.internalError(w, "list threads", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": ids})
}

func (s *Server) createThread(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"thread_id": uuid.NewString()})
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	ThreadID string `json:"thread_id"`
	Reply    string `json:"reply"`
	Intent   string `json:"intent"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	res, err := s.backend.Turn(r.Context(), msg, threadID)
	if err != nil {
		s.log.Warn("turn failed", "thread_id", threadID, "error", err)
		writeError(w, http.StatusBadGateway, "turn failed")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{ThreadID: res.ThreadID, Reply: res.Reply, Intent: string(res.Intent)})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	hist, err := s.backend.History(r.Context(), threadID)
	if err != nil {
		s.internalError(w, "history", err)
		return
	}
	if hist == nil {
		hist = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": threadID, "history": hist})
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	st, found, err := s.backend.State(r.Context(), threadID)
	if err != nil {
		s.internalError(w, "state", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "thread not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": threadID, "state": st})
}

type checkpointView struct {
	ID        string    `json:"id"`
	Step      int       `json:"step"`
	Node      string    `json:"node"`
	Next      string    `json:"next,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) checkpoints(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	snaps, err := s.backend.Checkpoints(r.Context(), threadID)
	if err != nil {
		s.internalError(w, "checkpoints", err)
		return
	}
	out := make([]checkpointView, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, checkpointView{ID: sn.CheckpointID, Step: sn.Step, Node: sn.Node, Next: sn.Next, CreatedAt: sn.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": threadID, "checkpoints": out})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
