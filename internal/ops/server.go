// Package ops exposes the operational HTTP surface: health, metrics,
// worker status, DLQ inspection and replay, webhook management, and
// on-demand remittance and export runs.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loanserve/backend/internal/core"
	"github.com/loanserve/backend/internal/export"
	"github.com/loanserve/backend/internal/intake"
	"github.com/loanserve/backend/internal/remit"
	"github.com/loanserve/backend/internal/vendorhttp"
	"github.com/loanserve/backend/internal/webhooks"
	"github.com/loanserve/backend/internal/worker"
)

// DatapointReader loads the canonical datapoints for one loan.
type DatapointReader interface {
	LoadDatapoints(ctx context.Context, tenantID, loanID string) (map[string]core.Datapoint, error)
}

// Server wires the ops endpoints over the running components.
type Server struct {
	registry *worker.Registry
	dlq      *worker.MemDLQ
	hooks    *webhooks.Registry
	remit    *remit.Engine
	export   *export.Engine
	verifier *vendorhttp.Verifier
	pipeline *intake.IntakeWorker
	points   DatapointReader
	logger   *log.Logger
}

func NewServer(registry *worker.Registry, dlq *worker.MemDLQ, hooks *webhooks.Registry, remitEngine *remit.Engine, exportEngine *export.Engine, verifier *vendorhttp.Verifier, pipeline *intake.IntakeWorker, points DatapointReader) *Server {
	return &Server{
		registry: registry,
		dlq:      dlq,
		hooks:    hooks,
		remit:    remitEngine,
		export:   exportEngine,
		verifier: verifier,
		pipeline: pipeline,
		points:   points,
		logger:   log.New(log.Writer(), "[OPS] ", log.LstdFlags),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/workers", s.handleWorkers).Methods("GET")
	r.HandleFunc("/api/dlq", s.handleDLQList).Methods("GET")
	r.HandleFunc("/api/dlq/{id}/replay", s.handleDLQReplay).Methods("POST")

	r.HandleFunc("/api/webhooks", s.handleWebhookRegister).Methods("POST")
	r.HandleFunc("/api/webhooks", s.handleWebhookList).Methods("GET")
	r.HandleFunc("/api/webhooks/{id}", s.handleWebhookUnregister).Methods("DELETE")

	r.HandleFunc("/api/remittances/run", s.handleRemitRun).Methods("POST")
	r.HandleFunc("/api/exports/run", s.handleExportRun).Methods("POST")
	r.HandleFunc("/api/loans/{loan_id}/verify", s.handleVendorVerify).Methods("POST")

	return r
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port string) error {
	addr := ":" + port
	s.logger.Printf("🚀 Ops server listening on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func getTenantID(r *http.Request) string {
	tid := r.Header.Get("X-Tenant-ID")
	if tid == "" {
		return "default"
	}
	return tid
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	healthy := s.registry.Healthy()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": healthy,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.HealthAll())
}

func (s *Server) handleDLQList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dlq.List())
}

func (s *Server) handleDLQReplay(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Worker           string `json:"worker"`
		PreserveAttempts bool   `json:"preserve_attempts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rt, ok := s.registry.Get(body.Worker)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("worker %q not registered", body.Worker))
		return
	}
	outcome, err := s.dlq.Replay(r.Context(), id, rt, body.PreserveAttempts)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleWebhookRegister(w http.ResponseWriter, r *http.Request) {
	var sub webhooks.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sub.TenantID = getTenantID(r)
	if err := s.hooks.Register(&sub); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleWebhookList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hooks.ListAll())
}

func (s *Server) handleWebhookUnregister(w http.ResponseWriter, r *http.Request) {
	if err := s.hooks.Unregister(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemitRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		InvestorID string `json:"investor_id"`
		AsOf       string `json:"as_of,omitempty"` // YYYY-MM-DD
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var asOf time.Time
	if body.AsOf != "" {
		t, err := time.Parse("2006-01-02", body.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bad as_of date: %w", err))
			return
		}
		asOf = t
	}
	result, err := s.remit.Run(r.Context(), getTenantID(r), body.InvestorID, asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleVendorVerify runs the vendor sweep for a loan and feeds the results
// through authority resolution like any other candidate source.
func (s *Server) handleVendorVerify(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loan_id"]
	tenantID := getTenantID(r)

	points, err := s.points.LoadDatapoints(r.Context(), tenantID, loanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	candidates := s.verifier.VerifyLoan(r.Context(), tenantID, points)
	if len(candidates) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"candidates": 0})
		return
	}

	saved, defects, status, err := s.pipeline.Apply(r.Context(), tenantID, core.LoanURN(loanID), loanID, candidates)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"candidates": len(candidates),
		"datapoints": saved,
		"defects":    len(defects),
		"status":     status,
	})
}

func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LoanID   string `json:"loan_id"`
		Template string `json:"template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, artifact, err := s.export.Run(r.Context(), getTenantID(r), body.LoanID, body.Template)
	if err != nil {
		if rec != nil && rec.Status == "failed" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"export": rec})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": rec, "artifact": artifact})
}
