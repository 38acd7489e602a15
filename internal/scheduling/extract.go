package scheduling

import (
	"sort"

	"github.com/google/or-tools/ortools/sat/go/cpmodel"
	cmpb "github.com/google/or-tools/ortools/sat/proto/cpmodel"
)

// extractSolution reads variable values out of a solved response and emits
// one ResultSlot per active (patient, team) or (patient, team, specialty)
// pair, per SPEC_FULL.md §4.7, then appends any non-auto pinned slot not
// already covered.
func (b *builder) extractSolution(response *cmpb.CpSolverResponse) []ResultSlot {
	var result []ResultSlot
	emitted := make(map[[2]string]bool)

	for p := 0; p < b.norm.numPatients(); p++ {
		patientName := b.norm.patientNames[p]

		for t, team := range b.norm.autoTeams {
			pv := b.vars[p][t]

			isWhole := pv.kind == modeWhole
			if pv.kind == modeVariable {
				isWhole = cpmodel.SolutionBooleanValue(response, pv.mode)
			}

			if isWhole {
				startIdx := int(cpmodel.SolutionIntegerValue(response, pv.wholeStart))
				timeStr := b.grid.indexToTime(startIdx)

				result = append(result, ResultSlot{
					PatientName: patientName,
					TimeSlot:    timeStr,
					TeamID:      team.ID,
					Pinned:      b.isWholePinned(patientName, team.ID),
				})
				emitted[[2]string{patientName, timeStr}] = true
				continue
			}

			for _, spec := range team.SpecialtyIDs {
				sv, ok := pv.splits[spec]
				if !ok {
					continue
				}
				startIdx := int(cpmodel.SolutionIntegerValue(response, sv.start))
				timeStr := b.grid.indexToTime(startIdx)

				result = append(result, ResultSlot{
					PatientName:      patientName,
					TimeSlot:         timeStr,
					TeamID:           syntheticSplitTeamID(team.ID, spec),
					Pinned:           b.isSplitPinned(patientName, team.ID, spec),
					IsSplit:          true,
					OriginalTeamID:   team.ID,
					SplitSpecialtyID: spec,
				})
				emitted[[2]string{patientName, timeStr}] = true
			}
		}
	}

	for _, ps := range b.norm.pinnedNonAuto {
		key := [2]string{ps.PatientName, ps.TimeSlot}
		if emitted[key] {
			continue
		}
		result = append(result, ResultSlot{
			PatientName:      ps.PatientName,
			TimeSlot:         ps.TimeSlot,
			TeamID:           ps.TeamID,
			Pinned:           true,
			IsSplit:          ps.IsSplit,
			OriginalTeamID:   ps.OriginalTeamID,
			SplitSpecialtyID: ps.SplitSpecialtyID,
		})
		emitted[key] = true
	}

	b.sortResultSlots(result)
	return result
}

func (b *builder) isWholePinned(patient, teamID string) bool {
	_, ok := b.norm.pinnedWhole[pinKey{patient, teamID}]
	return ok
}

func (b *builder) isSplitPinned(patient, teamID, specialty string) bool {
	_, ok := b.norm.pinnedSplit[splitPinKey{patient, teamID, specialty}]
	return ok
}

// syntheticSplitTeamID renders the "split_<team>_<specialty>" label the
// source system uses for split output slots. SPEC_FULL.md's open question
// on this redundancy is resolved by keeping both this and OriginalTeamID,
// to preserve downstream-consumer compatibility (see DESIGN.md).
func syntheticSplitTeamID(teamID, specialtyID string) string {
	return "split_" + teamID + "_" + specialtyID
}

// sortResultSlots imposes a deterministic (patient, time) order on an
// otherwise unordered slot list, per SPEC_FULL.md §5 ("the engine sorts by
// (patient name, time index) before returning for deterministic testing").
// Slots referencing a time label outside the grid (shouldn't happen for
// solver-emitted slots, but non-auto pins are caller data) sort last.
func (b *builder) sortResultSlots(slots []ResultSlot) {
	slotIndex := func(label string) int {
		if i, ok := b.grid.index[label]; ok {
			return i
		}
		return len(b.grid.labels)
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].PatientName != slots[j].PatientName {
			return slots[i].PatientName < slots[j].PatientName
		}
		return slotIndex(slots[i].TimeSlot) < slotIndex(slots[j].TimeSlot)
	})
}
