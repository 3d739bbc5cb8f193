package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"riffcity/internal/config"
	"riffcity/internal/jobrun"
	"riffcity/internal/sim"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
)

type Server struct {
	cfg    config.Config
	log    *slog.Logger
	sim    *sim.Service
	ledger *jobrun.Ledger
	mux    *chi.Mux
}

func New(cfg config.Config, logger *slog.Logger, simSvc *sim.Service, ledger *jobrun.Ledger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		sim:    simSvc,
		ledger: ledger,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Triggered-By", "X-Request-Id", "X-Profile-ID"},
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs/daily/run", s.handleRunDaily)
		r.Post("/jobs/{job}/run", s.handleRunJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/runs", s.handleRecentRuns)

		r.Post("/offers/{id}/accept", s.handleAcceptOffer)
	})
}

// triggerFromRequest reads the audit fields from the optional JSON body
// first and falls back to headers, so both curl one-liners and the CLI
// land attributable rows in the run ledger.
func triggerFromRequest(r *http.Request) sim.Trigger {
	var in struct {
		TriggeredBy string `json:"triggeredBy"`
		RequestID   string `json:"requestId"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&in)
	}
	trig := sim.Trigger{
		TriggeredBy: strings.TrimSpace(in.TriggeredBy),
		RequestID:   strings.TrimSpace(in.RequestID),
	}
	if trig.TriggeredBy == "" {
		trig.TriggeredBy = strings.TrimSpace(r.Header.Get("X-Triggered-By"))
	}
	if trig.TriggeredBy == "" {
		trig.TriggeredBy = "api"
	}
	if trig.RequestID == "" {
		trig.RequestID = strings.TrimSpace(r.Header.Get("X-Request-Id"))
	}
	if trig.RequestID == "" {
		trig.RequestID = uuid.NewString()
	}
	return trig
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	trig := triggerFromRequest(r)

	res, err := s.sim.RunJob(r.Context(), job, trig)
	if err != nil {
		if errors.Is(err, sim.ErrInvalidInput) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"job":     job,
			"error":   err.Error(),
			"result":  res,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  res,
	})
}

func (s *Server) handleRunDaily(w http.ResponseWriter, r *http.Request) {
	trig := triggerFromRequest(r)
	res, err := s.sim.RunDaily(r.Context(), trig)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
			"result":  res,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"result":  res,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": sim.JobNames()})
}

func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	runs, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	offerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offer id")
		return
	}
	profileID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get("X-Profile-ID")), 10, 64)
	if err != nil || profileID <= 0 {
		writeError(w, http.StatusBadRequest, "X-Profile-ID header is required")
		return
	}

	out, err := s.sim.AcceptOffer(r.Context(), sim.AcceptOfferInput{
		OfferID:   offerID,
		ProfileID: profileID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrOfferNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sim.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, sim.ErrExclusivityConflict), errors.Is(err, sim.ErrBrandConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sim.ErrOfferNotPending), errors.Is(err, sim.ErrOfferExpired), errors.Is(err, sim.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
