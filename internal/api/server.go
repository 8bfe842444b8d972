// Package api provides the local HTTP server the overlay UI talks to.
// It exposes the obligation ledger (CRUD, repayments, alerts, status)
// on localhost; rendering stays entirely on the overlay side.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/tornsidekick/sidekick/internal/domain"
	"github.com/tornsidekick/sidekick/internal/infra/alerts"
	"github.com/tornsidekick/sidekick/internal/infra/enrich"
	"github.com/tornsidekick/sidekick/internal/infra/ledger"
)

// Server is the sidekick HTTP API server.
type Server struct {
	ledger         *ledger.Service
	resolver       *enrich.Resolver // optional: kicks name enrichment after create
	metricsEnabled bool
	now            func() time.Time
}

// NewServer creates a new API server over the ledger service.
func NewServer(svc *ledger.Service) *Server {
	return &Server{ledger: svc, now: time.Now}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetResolver sets the enrichment resolver used to kick off name lookups
// for obligations created with a placeholder name.
func (s *Server) SetResolver(r *enrich.Resolver) { s.resolver = r }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/alerts", s.handleAllAlerts)

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleCreate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGet)
				r.Delete("/", s.handleDelete)
				r.Post("/complete", s.handleComplete)
				r.Post("/increase", s.handleIncrease)
				r.Post("/freeze", s.handleFreeze)
				r.Post("/repay", s.handleRepay)
				r.Put("/notes", s.handleNotes)
				r.Get("/alerts", s.handleAlerts)
			})
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Summarize())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("active") == "1" {
		writeJSON(w, http.StatusOK, s.ledger.Active())
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.List())
}

type createRequest struct {
	Kind             domain.ObligationKind `json:"kind"`
	CounterpartyID   int64                 `json:"counterparty_id"`
	CounterpartyName string                `json:"counterparty_name,omitempty"`
	Principal        decimal.Decimal       `json:"principal"`
	Interest         domain.InterestPolicy `json:"interest"`
	Notes            string                `json:"notes,omitempty"`
	DueAt            *time.Time            `json:"due_at,omitempty"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := s.ledger.Create(r.Context(), ledger.CreateParams{
		Kind:             req.Kind,
		CounterpartyID:   req.CounterpartyID,
		CounterpartyName: req.CounterpartyName,
		Principal:        req.Principal,
		Interest:         req.Interest,
		Notes:            req.Notes,
		DueAt:            req.DueAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if s.resolver != nil && domain.IsPlaceholderName(o.CounterpartyName) {
		go s.resolver.ResolvePlaceholders(context.Background())
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	o, err := s.ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.ledger.MarkCompleted(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := s.ledger.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

func (s *Server) handleIncrease(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	o, err := s.ledger.IncreasePrincipal(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	o, err := s.ledger.RecordRepayment(r.Context(), chi.URLParam(r, "id"), req.Amount, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type freezeRequest struct {
	Frozen bool `json:"frozen"`
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	var req freezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.ledger.SetFrozen(r.Context(), id, req.Frozen); err != nil {
		writeDomainError(w, err)
		return
	}
	o, err := s.ledger.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.ledger.SetNotes(r.Context(), chi.URLParam(r, "id"), req.Notes); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	o, err := s.ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(alerts.For(o, s.now())))
}

func (s *Server) handleAllAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(alerts.ForAll(s.ledger.Active(), s.now())))
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func orEmpty(a []alerts.Alert) []alerts.Alert {
	if a == nil {
		return []alerts.Alert{}
	}
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidOperation),
		errors.Is(err, domain.ErrAlreadyCompleted):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// corsMiddleware allows the browser overlay (a different origin) to call
// the local API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
