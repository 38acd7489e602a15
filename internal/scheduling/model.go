package scheduling

import (
	"github.com/google/or-tools/ortools/sat/go/cpmodel"
)

// modeKind records whether a (patient, team) pair's mode is pinned to one
// value or left to the solver, so later stages (effective start, extraction)
// know how to read it back without re-deriving the same logic.
type modeKind int

const (
	modeWhole modeKind = iota
	modeSplit
	modeVariable
)

// splitVars is one specialty's 1-slot optional interval within a split-mode
// team appointment.
type splitVars struct {
	start, end cpmodel.IntVar
	interval   cpmodel.IntervalVar
	present    cpmodel.BoolVar
}

// pairVars holds every decision variable for one (patient, team) pair:
// the mode selector, the whole-mode interval, and, for splittable teams,
// one splitVars per specialty the team covers (empty otherwise).
type pairVars struct {
	kind modeKind
	mode cpmodel.BoolVar

	wholeStart, wholeEnd cpmodel.IntVar
	wholeInterval        cpmodel.IntervalVar
	wholePresent         cpmodel.BoolVar

	// effective is computed in objective.go once all pair vars exist.
	effective cpmodel.IntVar

	splits map[string]splitVars
}

// builder carries the CP-SAT model plus everything constructed while
// walking the normalized request: the variables above indexed by
// [patient][team], the fixed intervals for non-auto pins, and the
// accumulators the soft objective reads from.
type builder struct {
	model *cpmodel.Builder
	grid  *grid
	norm  *normalized

	arrivalIdx []int // per patient
	durSlots   []int // per auto team

	vars [][]pairVars // [patient][team]

	nonAutoByPatient map[int][]cpmodel.IntervalVar
	nonAutoBySpec    map[string][]cpmodel.IntervalVar

	patientSpans   []cpmodel.IntVar
	patientMaxEnds []cpmodel.IntVar
	priorityDelays []cpmodel.IntVar
}

// newBuilder prepares the per-team duration slot counts and per-patient
// arrival indices, validating both against the grid.
func newBuilder(g *grid, n *normalized) (*builder, error) {
	b := &builder{
		model:            cpmodel.NewCpModelBuilder(),
		grid:             g,
		norm:             n,
		arrivalIdx:       make([]int, n.numPatients()),
		durSlots:         make([]int, n.numTeams()),
		vars:             make([][]pairVars, n.numPatients()),
		nonAutoByPatient: make(map[int][]cpmodel.IntervalVar),
		nonAutoBySpec:    make(map[string][]cpmodel.IntervalVar),
	}

	for i, name := range n.patientNames {
		idx, err := g.timeToIndex(n.patientArrival[name])
		if err != nil {
			return nil, err
		}
		b.arrivalIdx[i] = idx
	}

	for i, team := range n.autoTeams {
		slots, err := g.durationSlots(team.Duration)
		if err != nil {
			return nil, err
		}
		b.durSlots[i] = slots
	}

	return b, nil
}

// buildNonAutoIntervals materializes the fixed intervals for pins that
// reference non-auto teams (SPEC_FULL.md §4.2, "Non-auto pinned intervals").
func (b *builder) buildNonAutoIntervals() error {
	for _, ps := range b.norm.pinnedNonAuto {
		p, ok := b.norm.patientIdx[ps.PatientName]
		if !ok {
			continue // unknown patient: silently dropped, SPEC_FULL.md §7
		}

		slotIdx, err := b.grid.timeToIndex(ps.TimeSlot)
		if err != nil {
			return err
		}

		teamID := ps.TeamID
		if ps.OriginalTeamID != "" {
			teamID = ps.OriginalTeamID
		}
		dur := 1
		if !ps.IsSplit {
			if team, ok := b.norm.nonAutoTeams[teamID]; ok {
				if slots, err := b.grid.durationSlots(team.Duration); err == nil {
					dur = slots
				}
			}
		}

		interval := b.model.NewFixedSizeIntervalVar(cpmodel.NewConstant(int64(slotIdx)), int64(dur))
		b.nonAutoByPatient[p] = append(b.nonAutoByPatient[p], interval)

		if ps.IsSplit && ps.SplitSpecialtyID != "" {
			b.nonAutoBySpec[ps.SplitSpecialtyID] = append(b.nonAutoBySpec[ps.SplitSpecialtyID], interval)
		} else if team, ok := b.norm.nonAutoTeams[teamID]; ok {
			for _, spec := range team.SpecialtyIDs {
				b.nonAutoBySpec[spec] = append(b.nonAutoBySpec[spec], interval)
			}
		}
	}
	return nil
}

// buildPairVars creates the mode selector and whole/split interval
// variables for every (patient, team) pair, per SPEC_FULL.md §4.2.
func (b *builder) buildPairVars() error {
	horizon := int64(b.grid.horizon())

	for p := 0; p < b.norm.numPatients(); p++ {
		b.vars[p] = make([]pairVars, b.norm.numTeams())
		arrival := int64(b.arrivalIdx[p])

		for t, team := range b.norm.autoTeams {
			dur := int64(b.durSlots[t])
			pv, err := b.buildPair(p, t, team, dur, horizon, arrival)
			if err != nil {
				return err
			}
			b.vars[p][t] = pv
		}
	}
	return nil
}

func (b *builder) buildPair(p, t int, team Team, dur, horizon, arrival int64) (pairVars, error) {
	patientName := b.patientName(p)
	splittable := team.Splittable()

	_, forceWhole := b.norm.pinnedWhole[pinKey{patientName, team.ID}]
	var pinnedSplits map[string]PinnedSlot
	for _, spec := range team.SpecialtyIDs {
		if ps, ok := b.norm.pinnedSplit[splitPinKey{patientName, team.ID, spec}]; ok {
			if pinnedSplits == nil {
				pinnedSplits = make(map[string]PinnedSlot)
			}
			pinnedSplits[spec] = ps
		}
	}
	forceSplit := len(pinnedSplits) > 0

	pv := pairVars{splits: make(map[string]splitVars, len(team.SpecialtyIDs))}

	switch {
	case !splittable:
		pv.kind = modeWhole
		pv.mode = b.model.TrueVar()
	case forceWhole:
		pv.kind = modeWhole
		pv.mode = b.model.TrueVar()
	case forceSplit:
		pv.kind = modeSplit
		pv.mode = b.model.FalseVar()
	default:
		pv.kind = modeVariable
		pv.mode = b.model.NewBoolVar()
	}

	// --- Whole-mode interval. NewOptionalIntervalVar enforces start+size==end
	// itself; NewFixedSizeIntervalVar does not constrain the separate `we`
	// var we carry for the soft objective, so that branch needs it spelled
	// out explicitly. ---
	ws := b.model.NewIntVar(0, horizon-dur)
	we := b.model.NewIntVar(dur, horizon)
	arrivalConst := cpmodel.NewConstant(arrival)

	if splittable {
		pv.wholePresent = pv.mode
		pv.wholeInterval = b.model.NewOptionalIntervalVar(ws, cpmodel.NewConstant(dur), we, pv.wholePresent)
		b.model.AddLessOrEqual(arrivalConst, ws).OnlyEnforceIf(pv.mode)
	} else {
		pv.wholePresent = b.model.TrueVar()
		pv.wholeInterval = b.model.NewFixedSizeIntervalVar(ws, dur)
		b.model.AddEquality(we, cpmodel.NewConstant(dur).Add(ws))
		b.model.AddLessOrEqual(arrivalConst, ws)
	}

	if ps, ok := b.norm.pinnedWhole[pinKey{patientName, team.ID}]; ok {
		pinIdx, err := b.grid.timeToIndex(ps.TimeSlot)
		if err != nil {
			return pairVars{}, err
		}
		b.model.AddEquality(ws, cpmodel.NewConstant(int64(pinIdx)))
	}

	pv.wholeStart, pv.wholeEnd = ws, we

	// --- Split-mode intervals, one per covered specialty ---
	if splittable {
		notMode := pv.mode.Not()
		for _, spec := range team.SpecialtyIDs {
			ss := b.model.NewIntVar(0, horizon-1)
			se := b.model.NewIntVar(1, horizon)
			present := notMode
			interval := b.model.NewOptionalIntervalVar(ss, cpmodel.NewConstant(1), se, present)

			b.model.AddLessOrEqual(arrivalConst, ss).OnlyEnforceIf(notMode)

			if ps, ok := pinnedSplits[spec]; ok {
				pinIdx, err := b.grid.timeToIndex(ps.TimeSlot)
				if err != nil {
					return pairVars{}, err
				}
				b.model.AddEquality(ss, cpmodel.NewConstant(int64(pinIdx)))
			}

			pv.splits[spec] = splitVars{start: ss, end: se, interval: interval, present: present}
		}
	}

	return pv, nil
}

func (b *builder) patientName(p int) string {
	return b.norm.patientNames[p]
}
