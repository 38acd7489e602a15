package scheduling

import (
	"context"
	"testing"

	"github.com/meet-when/patient-scheduler/internal/config"
)

func defaultWeights() config.ObjectiveWeights {
	return config.ObjectiveWeights{Span: 10, PriorityGap: 15, Makespan: 1}
}

func defaultSolverConfig() config.SolverConfig {
	return config.SolverConfig{MaxTimeInSeconds: 5, NumSearchWorkers: 4, GridMinutes: 30}
}

// TestSolve_EmptyInput covers SPEC_FULL.md §8, "Empty input": zero patients
// or zero auto teams returns all pinned slots unchanged and OPTIMAL,
// without invoking the solver.
func TestSolve_EmptyInput(t *testing.T) {
	req := Request{
		PinnedSlots: []PinnedSlot{{PatientName: "A", TimeSlot: "8:00", TeamID: "T1"}},
	}
	resp, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusOptimal {
		t.Errorf("expected OPTIMAL, got %s", resp.Status)
	}
	if len(resp.Slots) != 1 || !resp.Slots[0].Pinned {
		t.Fatalf("expected pinned slot passthrough, got %+v", resp.Slots)
	}
}

// TestSolve_ValidatesUnknownArrival covers SPEC_FULL.md §7's validation
// error kind: an arrival time outside the grid is rejected before any
// model construction.
func TestSolve_ValidatesUnknownArrival(t *testing.T) {
	req := Request{
		Patients: []Patient{{Name: "A", ArrivalTime: "25:00"}},
		Teams:    []Team{{ID: "T1", SpecialtyIDs: []string{"S1"}, Duration: 30, AutoSchedule: true, Capacity: 1}},
	}
	_, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
}

// TestSolve_NonAutoPinPassthrough covers SPEC_FULL.md §8 scenario 5: a pin
// referencing a non-auto team must appear verbatim in the output, pinned.
func TestSolve_NonAutoPinPassthrough(t *testing.T) {
	req := Request{
		Patients: []Patient{{Name: "A", ArrivalTime: "8:00"}},
		Teams: []Team{
			{ID: "T1", SpecialtyIDs: []string{"S1"}, Duration: 30, AutoSchedule: true, Capacity: 1},
			{ID: "TX", SpecialtyIDs: []string{"S2"}, Duration: 30, AutoSchedule: false},
		},
		PinnedSlots: []PinnedSlot{
			{PatientName: "A", TimeSlot: "10:00", TeamID: "TX"},
		},
	}
	resp, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, s := range resp.Slots {
		if s.TeamID == "TX" && s.TimeSlot == "10:00" {
			if !s.Pinned {
				t.Error("expected non-auto pin to be marked pinned")
			}
			found = true
		}
	}
	if !found {
		t.Fatalf("expected non-auto pinned slot in output, got %+v", resp.Slots)
	}
}

// TestSolve_InfeasibleCapacity covers SPEC_FULL.md §8 scenario 6: three
// patients all arriving at the same time against a single capacity-1 team
// on a one-slot horizon cannot be satisfied.
func TestSolve_InfeasibleCapacity(t *testing.T) {
	req := Request{
		Patients: []Patient{
			{Name: "A", ArrivalTime: "8:00"},
			{Name: "B", ArrivalTime: "8:00"},
			{Name: "C", ArrivalTime: "8:00"},
		},
		Teams: []Team{
			{ID: "T1", SpecialtyIDs: []string{"S1"}, Duration: 30, AutoSchedule: true, Capacity: 1},
		},
		TimeSlots: []string{"8:00"},
	}
	resp, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusInfeasible {
		t.Errorf("expected INFEASIBLE, got %s", resp.Status)
	}
}

// TestSolve_SinglePatientSingleTeam covers SPEC_FULL.md §8 scenario 1.
func TestSolve_SinglePatientSingleTeam(t *testing.T) {
	req := Request{
		Patients: []Patient{{Name: "A", ArrivalTime: "9:00"}},
		Teams:    []Team{{ID: "T1", SpecialtyIDs: []string{"S1"}, Duration: 30, Priority: 0, AutoSchedule: true, Capacity: 1}},
	}
	resp, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusOptimal {
		t.Fatalf("expected OPTIMAL, got %s (%s)", resp.Status, resp.Message)
	}
	if len(resp.Slots) != 1 {
		t.Fatalf("expected exactly one slot, got %+v", resp.Slots)
	}
	got := resp.Slots[0]
	if got.PatientName != "A" || got.TimeSlot != "9:00" || got.TeamID != "T1" {
		t.Errorf("expected (A, 9:00, T1), got %+v", got)
	}
}

// TestSolve_PriorityOrdering covers SPEC_FULL.md §8 scenario 2: the
// higher-priority team (lower priority number) should start at arrival,
// the other immediately after.
func TestSolve_PriorityOrdering(t *testing.T) {
	req := Request{
		Patients: []Patient{{Name: "A", ArrivalTime: "8:00"}},
		Teams: []Team{
			{ID: "T1", SpecialtyIDs: []string{"S1"}, Duration: 30, Priority: 0, AutoSchedule: true, Capacity: 1},
			{ID: "T2", SpecialtyIDs: []string{"S2"}, Duration: 30, Priority: 1, AutoSchedule: true, Capacity: 1},
		},
	}
	resp, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusOptimal {
		t.Fatalf("expected OPTIMAL, got %s (%s)", resp.Status, resp.Message)
	}

	var t1Slot, t2Slot *ResultSlot
	for i := range resp.Slots {
		switch resp.Slots[i].TeamID {
		case "T1":
			t1Slot = &resp.Slots[i]
		case "T2":
			t2Slot = &resp.Slots[i]
		}
	}
	if t1Slot == nil || t2Slot == nil {
		t.Fatalf("expected both T1 and T2 slots, got %+v", resp.Slots)
	}
	if t1Slot.TimeSlot != "8:00" {
		t.Errorf("expected T1 at 8:00, got %s", t1Slot.TimeSlot)
	}
	if t2Slot.TimeSlot != "8:30" {
		t.Errorf("expected T2 at 8:30, got %s", t2Slot.TimeSlot)
	}
}

// TestSolve_SharedSpecialty covers SPEC_FULL.md §8 scenario 3: two
// patients sharing a single capacity-1 team must be staggered, each
// still starting at its own arrival.
func TestSolve_SharedSpecialty(t *testing.T) {
	teams := []Team{
		{ID: "T1", SpecialtyIDs: []string{"S1"}, Duration: 30, AutoSchedule: true, Capacity: 1},
	}

	t.Run("staggered arrivals feasible", func(t *testing.T) {
		req := Request{
			Patients: []Patient{
				{Name: "A", ArrivalTime: "8:00"},
				{Name: "B", ArrivalTime: "8:30"},
			},
			Teams: teams,
		}
		resp, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Status != StatusOptimal {
			t.Fatalf("expected OPTIMAL, got %s (%s)", resp.Status, resp.Message)
		}

		byPatient := map[string]string{}
		for _, s := range resp.Slots {
			byPatient[s.PatientName] = s.TimeSlot
		}
		if byPatient["A"] != "8:00" {
			t.Errorf("expected A at 8:00, got %s", byPatient["A"])
		}
		if byPatient["B"] != "8:30" {
			t.Errorf("expected B at 8:30, got %s", byPatient["B"])
		}
	})

	t.Run("same arrival infeasible", func(t *testing.T) {
		req := Request{
			Patients: []Patient{
				{Name: "A", ArrivalTime: "8:00"},
				{Name: "B", ArrivalTime: "8:00"},
			},
			Teams: teams,
		}
		resp, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Status != StatusInfeasible {
			t.Errorf("expected INFEASIBLE (both patients must touch T1 exactly at their shared arrival), got %s", resp.Status)
		}
	})
}

// TestSolve_SplitMode covers SPEC_FULL.md §8 scenario 4: two patients
// sharing one splittable, capacity-1 team both arrive at the same time,
// so neither can take the team whole (that would collide on the team
// resource, or on either specialty, with the other) — both are forced
// into split mode, each still touching arrival through one specialty.
func TestSolve_SplitMode(t *testing.T) {
	req := Request{
		Patients: []Patient{
			{Name: "A", ArrivalTime: "8:00"},
			{Name: "B", ArrivalTime: "8:00"},
		},
		Teams: []Team{
			{ID: "T", SpecialtyIDs: []string{"S1", "S2"}, Duration: 60, AutoSchedule: true, Capacity: 1},
		},
	}
	resp, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusOptimal {
		t.Fatalf("expected OPTIMAL, got %s (%s)", resp.Status, resp.Message)
	}

	bySpec := map[string]map[string]ResultSlot{"A": {}, "B": {}}
	for _, s := range resp.Slots {
		slots, ok := bySpec[s.PatientName]
		if !ok {
			continue
		}
		if !s.IsSplit || s.OriginalTeamID != "T" {
			t.Errorf("expected %s's appointments to be split pieces of team T, got %+v", s.PatientName, s)
		}
		slots[s.SplitSpecialtyID] = s
	}

	for _, patient := range []string{"A", "B"} {
		s1, okS1 := bySpec[patient]["S1"]
		s2, okS2 := bySpec[patient]["S2"]
		if !okS1 || !okS2 {
			t.Fatalf("expected %s to have split appointments on both S1 and S2", patient)
		}
		if s1.TimeSlot == s2.TimeSlot {
			t.Errorf("expected %s's S1 and S2 appointments at different times, both at %s", patient, s1.TimeSlot)
		}
		if s1.TimeSlot != "8:00" && s2.TimeSlot != "8:00" {
			t.Errorf("expected %s to touch arrival 8:00 on one specialty, got S1=%s S2=%s", patient, s1.TimeSlot, s2.TimeSlot)
		}
	}

	if bySpec["A"]["S1"].TimeSlot == bySpec["B"]["S1"].TimeSlot {
		t.Errorf("expected A and B's S1 appointments at different times, both at %s", bySpec["A"]["S1"].TimeSlot)
	}
	if bySpec["A"]["S2"].TimeSlot == bySpec["B"]["S2"].TimeSlot {
		t.Errorf("expected A and B's S2 appointments at different times, both at %s", bySpec["A"]["S2"].TimeSlot)
	}
}

// TestSolve_IdempotentUnderRepin covers the "Idempotence under re-pin" law
// from SPEC_FULL.md §8: solving, then pinning every output slot and
// solving again, yields the same slot set.
func TestSolve_IdempotentUnderRepin(t *testing.T) {
	req := Request{
		Patients: []Patient{{Name: "A", ArrivalTime: "8:00"}},
		Teams: []Team{
			{ID: "T1", SpecialtyIDs: []string{"S1"}, Duration: 30, Priority: 0, AutoSchedule: true, Capacity: 1},
			{ID: "T2", SpecialtyIDs: []string{"S2"}, Duration: 30, Priority: 1, AutoSchedule: true, Capacity: 1},
		},
	}

	first, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error on first solve: %v", err)
	}
	if first.Status != StatusOptimal {
		t.Fatalf("expected OPTIMAL on first solve, got %s (%s)", first.Status, first.Message)
	}

	rePinned := req
	for _, s := range first.Slots {
		rePinned.PinnedSlots = append(rePinned.PinnedSlots, PinnedSlot{
			PatientName:      s.PatientName,
			TimeSlot:         s.TimeSlot,
			TeamID:           s.TeamID,
			IsSplit:          s.IsSplit,
			OriginalTeamID:   s.OriginalTeamID,
			SplitSpecialtyID: s.SplitSpecialtyID,
		})
	}

	second, err := Solve(context.Background(), rePinned, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error on second solve: %v", err)
	}
	if second.Status != StatusOptimal {
		t.Fatalf("expected OPTIMAL on second solve, got %s (%s)", second.Status, second.Message)
	}
	if !sameSlotSet(first.Slots, second.Slots) {
		t.Errorf("re-pinning changed the slot set: first=%+v second=%+v", first.Slots, second.Slots)
	}
}

// TestSolve_PinMonotonicity covers the "Pin monotonicity" law from
// SPEC_FULL.md §8: pinning a slot that already equals the unique optimal
// assignment must not change any other slot.
func TestSolve_PinMonotonicity(t *testing.T) {
	req := Request{
		Patients: []Patient{{Name: "A", ArrivalTime: "8:00"}},
		Teams: []Team{
			{ID: "T1", SpecialtyIDs: []string{"S1"}, Duration: 30, Priority: 0, AutoSchedule: true, Capacity: 1},
			{ID: "T2", SpecialtyIDs: []string{"S2"}, Duration: 30, Priority: 1, AutoSchedule: true, Capacity: 1},
		},
	}

	baseline, err := Solve(context.Background(), req, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error on baseline solve: %v", err)
	}
	if baseline.Status != StatusOptimal {
		t.Fatalf("expected OPTIMAL on baseline solve, got %s (%s)", baseline.Status, baseline.Message)
	}

	withPin := req
	withPin.PinnedSlots = []PinnedSlot{{PatientName: "A", TimeSlot: "8:00", TeamID: "T1"}}

	pinned, err := Solve(context.Background(), withPin, defaultWeights(), defaultSolverConfig())
	if err != nil {
		t.Fatalf("unexpected error on pinned solve: %v", err)
	}
	if pinned.Status != StatusOptimal {
		t.Fatalf("expected OPTIMAL on pinned solve, got %s (%s)", pinned.Status, pinned.Message)
	}
	if !sameSlotSet(baseline.Slots, pinned.Slots) {
		t.Errorf("pinning the existing optimal slot changed the result: baseline=%+v pinned=%+v", baseline.Slots, pinned.Slots)
	}
}

// sameSlotSet compares two slot lists ignoring the Pinned flag, which
// legitimately differs between an unpinned and a re-pinned solve.
func sameSlotSet(a, b []ResultSlot) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(s ResultSlot) [4]string {
		return [4]string{s.PatientName, s.TimeSlot, s.TeamID, s.SplitSpecialtyID}
	}
	counts := map[[4]string]int{}
	for _, s := range a {
		counts[key(s)]++
	}
	for _, s := range b {
		counts[key(s)]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// TestSolve_ContextCanceled ensures a canceled context short-circuits
// before any model construction.
func TestSolve_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := Request{
		Patients: []Patient{{Name: "A", ArrivalTime: "8:00"}},
		Teams:    []Team{{ID: "T1", SpecialtyIDs: []string{"S1"}, Duration: 30, AutoSchedule: true, Capacity: 1}},
	}
	if _, err := Solve(ctx, req, defaultWeights(), defaultSolverConfig()); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
