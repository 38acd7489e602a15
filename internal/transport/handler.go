package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meet-when/patient-scheduler/internal/config"
	"github.com/meet-when/patient-scheduler/internal/scheduling"
)

// Handler serves the scheduling engine over HTTP.
type Handler struct {
	weights config.ObjectiveWeights
	solver  config.SolverConfig
}

// New creates a Handler bound to the given objective weights and solver
// tuning, matching the teacher's handlers.New(cfg, svc) constructor shape.
func New(cfg *config.Config) *Handler {
	return &Handler{weights: cfg.Weights, solver: cfg.Solver}
}

// Routes registers this handler's endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /solve", h.Solve)
	mux.HandleFunc("GET /health", h.Health)
}

// Solve decodes a scheduling.Request, runs the engine, and encodes the
// scheduling.Response. Per SPEC_FULL.md §6, a malformed request becomes a
// 400; an engine ERROR (an unexpected solver status or a failure building
// the model) becomes a 500 with an ERROR response body; OPTIMAL, FEASIBLE
// and INFEASIBLE are a 200 with that status carried in the body.
func (h *Handler) Solve(w http.ResponseWriter, r *http.Request) {
	var req scheduling.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := scheduling.Solve(r.Context(), req, h.weights, h.solver)
	if err != nil {
		var verr *scheduling.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusInternalServerError, scheduling.Response{
			Status:  scheduling.StatusError,
			Message: err.Error(),
		})
		return
	}

	status := http.StatusOK
	if resp.Status == scheduling.StatusError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

// Health reports liveness; it does not touch the engine or any external
// dependency, since this service has none.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
