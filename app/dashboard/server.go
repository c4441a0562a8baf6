// Package dashboard is the operator's read-mostly HTTP surface: live
// leaderboard view over server-sent events, administrative delete/clear, and
// spreadsheet/chart exports. It is not part of the game protocol.
package dashboard

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	leaderboardservice "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/application"
	leaderboarddb "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/infrastructure/repositories"
)

const exportLimit = 100

// Server serves the dashboard API.
type Server struct {
	service *leaderboardservice.LeaderboardService
	hub     *Hub
	logger  *slog.Logger

	// Mutations are rate limited; the dashboard is an operator tool, not a
	// bulk API.
	limiter *rate.Limiter
}

// NewServer creates the dashboard server around the service and the SSE hub.
func NewServer(service *leaderboardservice.LeaderboardService, hub *Hub, logger *slog.Logger) *Server {
	return &Server{
		service: service,
		hub:     hub,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/events", s.hub.ServeHTTP)

	r.Route("/api/leaderboards", func(r chi.Router) {
		r.Get("/", s.handleListAll)
		r.Route("/{mode}", func(r chi.Router) {
			r.Get("/", s.handleListMode)
			r.Get("/export.xlsx", s.handleExportXLSX)
			r.Get("/chart.png", s.handleExportChart)
			r.With(s.rateLimit).Post("/clear", s.handleClear)
			r.With(s.rateLimit).Delete("/{username}", s.handleDelete)
		})
	})

	return r
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListAll(w http.ResponseWriter, _ *http.Request) {
	boards := make(map[string][]leaderboarddb.RankedEntry)
	for _, mode := range s.service.AdminModes() {
		top, err := s.service.AdminTop(mode, exportLimit)
		if err != nil {
			continue
		}
		if top == nil {
			top = []leaderboarddb.RankedEntry{}
		}
		boards[mode] = top
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"leaderboards": boards})
}

func (s *Server) handleListMode(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	top, err := s.service.AdminTop(mode, exportLimit)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown game mode: "+mode)
		return
	}
	if top == nil {
		top = []leaderboarddb.RankedEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"gameMode": mode, "entries": top})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	username := chi.URLParam(r, "username")

	err := s.service.AdminDelete(mode, username)
	switch {
	case errors.Is(err, leaderboarddb.ErrUnknownMode):
		s.writeError(w, http.StatusNotFound, "unknown game mode: "+mode)
	case errors.Is(err, leaderboarddb.ErrEntryNotFound):
		s.writeError(w, http.StatusNotFound, "no such entry: "+username)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.logger.Info("dashboard deleted entry",
			slog.String("mode", mode), slog.String("username", username))
		s.writeJSON(w, http.StatusOK, map[string]string{"deleted": username})
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")

	if err := s.service.AdminClear(mode); err != nil {
		s.writeError(w, http.StatusNotFound, "unknown game mode: "+mode)
		return
	}
	s.logger.Info("dashboard cleared leaderboard", slog.String("mode", mode))
	s.writeJSON(w, http.StatusOK, map[string]string{"cleared": mode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
