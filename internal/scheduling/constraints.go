package scheduling

import "github.com/google/or-tools/ortools/sat/go/cpmodel"

// addHardConstraints wires up the three resource no-overlap layers from
// SPEC_FULL.md §4.3 (patient, team, specialty). The arrival-touchpoint
// constraint (§4.3 item 4) is added separately in objective.go once the
// effective-start variables it depends on exist.
func (b *builder) addHardConstraints() {
	b.addPatientNoOverlap()
	b.addTeamResourceConstraints()
	b.addSpecialtyResourceConstraints()
}

// addPatientNoOverlap ensures no patient has two overlapping intervals
// across whole-mode, split-mode, and non-auto pinned appointments.
func (b *builder) addPatientNoOverlap() {
	for p := 0; p < b.norm.numPatients(); p++ {
		var intervals []cpmodel.IntervalVar
		for t := range b.norm.autoTeams {
			pv := b.vars[p][t]
			intervals = append(intervals, pv.wholeInterval)
			for _, sv := range pv.splits {
				intervals = append(intervals, sv.interval)
			}
		}
		intervals = append(intervals, b.nonAutoByPatient[p]...)
		if len(intervals) > 1 {
			b.model.AddNoOverlap(intervals...)
		}
	}
}

// addTeamResourceConstraints bounds concurrent whole-mode occupancy of each
// auto team to its capacity. Split-mode intervals are excluded: they are
// bound at the specialty level instead (SPEC_FULL.md §4.3 item 2).
func (b *builder) addTeamResourceConstraints() {
	for t, team := range b.norm.autoTeams {
		var intervals []cpmodel.IntervalVar
		for p := 0; p < b.norm.numPatients(); p++ {
			intervals = append(intervals, b.vars[p][t].wholeInterval)
		}
		if len(intervals) <= 1 {
			continue
		}
		if team.Capacity <= 1 {
			b.model.AddNoOverlap(intervals...)
			continue
		}
		cumulative := b.model.NewCumulative(cpmodel.NewConstant(int64(team.Capacity)))
		for _, iv := range intervals {
			cumulative.AddDemand(iv, cpmodel.NewConstant(1))
		}
	}
}

// addSpecialtyResourceConstraints ensures each specialty serves at most one
// patient per slot, across whole-mode intervals of every team covering it,
// split-mode intervals dimensioned on it, and non-auto pinned intervals.
func (b *builder) addSpecialtyResourceConstraints() {
	bySpec := make(map[string][]cpmodel.IntervalVar)

	for t, team := range b.norm.autoTeams {
		for _, spec := range team.SpecialtyIDs {
			for p := 0; p < b.norm.numPatients(); p++ {
				pv := b.vars[p][t]
				bySpec[spec] = append(bySpec[spec], pv.wholeInterval)
				if sv, ok := pv.splits[spec]; ok {
					bySpec[spec] = append(bySpec[spec], sv.interval)
				}
			}
		}
	}

	for spec, intervals := range b.nonAutoBySpec {
		bySpec[spec] = append(bySpec[spec], intervals...)
	}

	for _, intervals := range bySpec {
		if len(intervals) > 1 {
			b.model.AddNoOverlap(intervals...)
		}
	}
}
