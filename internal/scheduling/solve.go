package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/or-tools/ortools/sat/go/cpmodel"
	cmpb "github.com/google/or-tools/ortools/sat/proto/cpmodel"
	sppb "github.com/google/or-tools/ortools/sat/proto/satparameters"
	"google.golang.org/protobuf/proto"

	"github.com/meet-when/patient-scheduler/internal/config"
)

// Solve runs the full four-stage pipeline from SPEC_FULL.md §2: it
// normalizes the request, builds the CP-SAT model, solves it within the
// configured time budget, and extracts a Response.
//
// ctx is checked once, on entry, before validation and model construction;
// a cancellation after that point is not observed, and the native CP-SAT
// search itself only ever stops at its own wall-clock budget once invoked.
func Solve(ctx context.Context, req Request, weights config.ObjectiveWeights, solverCfg config.SolverConfig) (Response, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	g, err := newGrid(req.TimeSlots, solverCfg.GridMinutes)
	if err != nil {
		return Response{}, err
	}
	if err := validatePatients(req.Patients, g); err != nil {
		return Response{}, err
	}
	if err := validatePinnedSlots(req.PinnedSlots, g); err != nil {
		return Response{}, err
	}

	norm := normalize(req)

	// Fast path: nothing for the solver to schedule (SPEC_FULL.md §4.1).
	if norm.numPatients() == 0 || norm.numTeams() == 0 {
		return Response{
			Status:      StatusOptimal,
			Slots:       pinnedSlotsVerbatim(req.PinnedSlots),
			SolveTimeMs: elapsedMs(start),
		}, nil
	}

	b, err := newBuilder(g, norm)
	if err != nil {
		return Response{}, err
	}

	if err := b.buildNonAutoIntervals(); err != nil {
		return Response{}, err
	}
	if err := b.buildPairVars(); err != nil {
		return Response{}, err
	}

	b.addHardConstraints()
	b.computeEffectiveStarts()
	b.addArrivalTouchpoint()
	b.addSoftObjective(weights)

	model, err := b.model.Model()
	if err != nil {
		return Response{}, fmt.Errorf("scheduling: failed to instantiate CP model: %w", err)
	}

	params := &sppb.SatParameters{
		MaxTimeInSeconds: proto.Float64(solverCfg.MaxTimeInSeconds),
		NumSearchWorkers: proto.Int32(int32(solverCfg.NumSearchWorkers)),
	}
	response, err := cpmodel.SolveCpModelWithParameters(model, params)
	if err != nil {
		return Response{}, fmt.Errorf("scheduling: solve failed: %w", err)
	}
	elapsed := elapsedMs(start)

	switch response.GetStatus() {
	case cmpb.CpSolverStatus_INFEASIBLE:
		return Response{
			Status:      StatusInfeasible,
			SolveTimeMs: elapsed,
			Message:     "No feasible schedule exists for the given constraints.",
		}, nil

	case cmpb.CpSolverStatus_OPTIMAL, cmpb.CpSolverStatus_FEASIBLE:
		slots := b.extractSolution(response)
		status := StatusFeasible
		if response.GetStatus() == cmpb.CpSolverStatus_OPTIMAL {
			status = StatusOptimal
		}
		return Response{
			Status:      status,
			Slots:       slots,
			SolveTimeMs: elapsed,
			Message:     fmt.Sprintf("Solved in %dms with objective value %.0f", elapsed, response.GetObjectiveValue()),
		}, nil

	default:
		return Response{
			Status:      StatusError,
			SolveTimeMs: elapsed,
			Message:     fmt.Sprintf("Solver returned unexpected status: %s", response.GetStatus()),
		}, nil
	}
}

func elapsedMs(start time.Time) int {
	return int(time.Since(start) / time.Millisecond)
}

// validatePatients checks every patient's arrival label is in the grid
// (SPEC_FULL.md §3, request-level invariants).
func validatePatients(patients []Patient, g *grid) error {
	seen := make(map[string]bool, len(patients))
	for _, p := range patients {
		if seen[p.Name] {
			return newValidationError("duplicate patient name %q", p.Name)
		}
		seen[p.Name] = true
		if _, err := g.timeToIndex(p.ArrivalTime); err != nil {
			return err
		}
	}
	return nil
}

// validatePinnedSlots checks every pin's time label is in the grid.
// Pins referencing unknown patients/teams are handled defensively later
// (SPEC_FULL.md §7), not rejected here.
func validatePinnedSlots(pins []PinnedSlot, g *grid) error {
	for _, ps := range pins {
		if _, err := g.timeToIndex(ps.TimeSlot); err != nil {
			return err
		}
	}
	return nil
}
