package scheduling

import (
	"github.com/google/or-tools/ortools/sat/go/cpmodel"

	"github.com/meet-when/patient-scheduler/internal/config"
)

// computeEffectiveStarts fills in pv.effective for every (patient, team)
// pair per SPEC_FULL.md §4.4: the whole start in whole mode, the minimum
// split start in split mode, and in variable mode the whole start when the
// mode is whole, otherwise a value bounded above by every split start and
// equal to at least one of them (their minimum).
func (b *builder) computeEffectiveStarts() {
	horizon := int64(b.grid.horizon())

	for p := 0; p < b.norm.numPatients(); p++ {
		for t, team := range b.norm.autoTeams {
			pv := &b.vars[p][t]

			switch pv.kind {
			case modeWhole:
				pv.effective = pv.wholeStart

			case modeSplit:
				starts := splitStarts(pv, team)
				if len(starts) == 0 {
					continue
				}
				eff := b.model.NewIntVar(0, horizon)
				b.model.AddMinEquality(eff, starts)
				pv.effective = eff

			case modeVariable:
				starts := splitStarts(pv, team)
				eff := b.model.NewIntVar(0, horizon)
				notMode := pv.mode.Not()

				b.model.AddEquality(eff, pv.wholeStart).OnlyEnforceIf(pv.mode)

				var selectors []cpmodel.BoolVar
				for _, ss := range starts {
					b.model.AddLessOrEqual(eff, ss).OnlyEnforceIf(notMode)

					sel := b.model.NewBoolVar()
					b.model.AddLessOrEqual(ss, eff).OnlyEnforceIf(sel, notMode)
					selectors = append(selectors, sel)
				}
				if len(selectors) > 0 {
					b.model.AddBoolOr(selectors...).OnlyEnforceIf(notMode)
				}
				pv.effective = eff
			}
		}
	}
}

func splitStarts(pv *pairVars, team Team) []cpmodel.IntVar {
	var starts []cpmodel.IntVar
	for _, spec := range team.SpecialtyIDs {
		if sv, ok := pv.splits[spec]; ok {
			starts = append(starts, sv.start)
		}
	}
	return starts
}

// addArrivalTouchpoint requires, for every patient, that at least one
// scheduled team's effective start equals the patient's arrival index
// (SPEC_FULL.md §4.3 item 4).
func (b *builder) addArrivalTouchpoint() {
	for p := 0; p < b.norm.numPatients(); p++ {
		arrival := cpmodel.NewConstant(int64(b.arrivalIdx[p]))

		var atArrival []cpmodel.BoolVar
		for t := range b.norm.autoTeams {
			eff := b.vars[p][t].effective
			bvar := b.model.NewBoolVar()
			b.model.AddEquality(eff, arrival).OnlyEnforceIf(bvar)
			atArrival = append(atArrival, bvar)
		}
		if len(atArrival) > 0 {
			b.model.AddBoolOr(atArrival...)
		}
	}
}

// addSoftObjective builds the three weighted terms from SPEC_FULL.md §4.5
// (span, priority delay, makespan) and calls Minimize on their sum.
func (b *builder) addSoftObjective(weights config.ObjectiveWeights) {
	horizon := int64(b.grid.horizon())
	objective := cpmodel.NewLinearExpr()

	makespan := b.model.NewIntVar(0, horizon)

	for p := 0; p < b.norm.numPatients(); p++ {
		type presentStart struct {
			v       cpmodel.IntVar
			present cpmodel.BoolVar
		}
		var starts, ends []presentStart

		for t := range b.norm.autoTeams {
			pv := b.vars[p][t]
			starts = append(starts, presentStart{pv.wholeStart, pv.wholePresent})
			ends = append(ends, presentStart{pv.wholeEnd, pv.wholePresent})
			for _, sv := range pv.splits {
				starts = append(starts, presentStart{sv.start, sv.present})
				ends = append(ends, presentStart{sv.end, sv.present})
			}
		}
		if len(starts) == 0 {
			continue
		}

		minStart := b.model.NewIntVar(0, horizon)
		maxEnd := b.model.NewIntVar(0, horizon)

		for _, s := range starts {
			b.model.AddLessOrEqual(minStart, s.v).OnlyEnforceIf(s.present)
		}
		b.model.AddLessOrEqual(cpmodel.NewConstant(int64(b.arrivalIdx[p])), minStart)

		for _, e := range ends {
			b.model.AddLessOrEqual(e.v, maxEnd).OnlyEnforceIf(e.present)
		}

		span := b.model.NewIntVar(0, horizon)
		b.model.AddEquality(span, cpmodel.NewLinearExpr().AddTerm(maxEnd, 1).AddTerm(minStart, -1))
		objective.AddTerm(span, weights.Span)

		b.model.AddLessOrEqual(maxEnd, makespan)

		b.patientSpans = append(b.patientSpans, span)
		b.patientMaxEnds = append(b.patientMaxEnds, maxEnd)
	}

	if len(b.patientMaxEnds) == 0 {
		b.model.AddEquality(makespan, cpmodel.NewConstant(0))
	}
	objective.AddTerm(makespan, weights.Makespan)

	b.addPriorityDelayTerms(objective, weights.PriorityGap, horizon)

	b.model.Minimize(objective)
}

// addPriorityDelayTerms penalizes, for every patient and every pair of
// auto teams with distinct priorities, how many slots the higher-priority
// (lower priority number) team starts after the lower-priority one
// (SPEC_FULL.md §4.5).
func (b *builder) addPriorityDelayTerms(objective *cpmodel.LinearExpr, weight int64, horizon int64) {
	teams := b.norm.autoTeams

	for p := 0; p < b.norm.numPatients(); p++ {
		for t1 := 0; t1 < len(teams); t1++ {
			for t2 := t1 + 1; t2 < len(teams); t2++ {
				if teams[t1].Priority == teams[t2].Priority {
					continue
				}
				earlier, later := t1, t2
				if teams[t1].Priority > teams[t2].Priority {
					earlier, later = t2, t1
				}

				es := b.vars[p][earlier].effective
				ls := b.vars[p][later].effective

				delay := b.model.NewIntVar(0, horizon)
				b.model.AddLessOrEqual(cpmodel.NewLinearExpr().AddTerm(es, 1).AddTerm(ls, -1), delay)

				objective.AddTerm(delay, weight)
				b.priorityDelays = append(b.priorityDelays, delay)
			}
		}
	}
}
