package scheduling

// pinKey identifies an auto whole-mode pin by (patient, team).
type pinKey struct {
	patient string
	teamID  string
}

// splitPinKey identifies an auto split-mode pin by (patient, team, specialty).
type splitPinKey struct {
	patient   string
	teamID    string
	specialty string
}

// normalized is the output of input normalization (SPEC_FULL.md §4.1): the
// auto/non-auto team partition, the patient/team index maps, and the pinned
// slots classified by how they bind the model.
type normalized struct {
	autoTeams    []Team
	nonAutoTeams map[string]Team

	patientIdx     map[string]int
	patientNames   []string // index -> name, inverse of patientIdx
	patientArrival map[string]string
	teamIdx        map[string]int

	pinnedWhole   map[pinKey]PinnedSlot
	pinnedSplit   map[splitPinKey]PinnedSlot
	pinnedNonAuto []PinnedSlot
}

// normalize partitions the request's teams and classifies its pinned slots.
// Every pin is classified, including pins for unknown patients: such a pin
// never matches a patient in the model (buildNonAutoIntervals skips it), but
// a non-auto one is still passed through to the output. Pins whose team_id
// and original_team_id both name no auto team are treated defensively as
// non-auto.
func normalize(req Request) *normalized {
	n := &normalized{
		nonAutoTeams:   make(map[string]Team),
		patientIdx:     make(map[string]int, len(req.Patients)),
		patientNames:   make([]string, len(req.Patients)),
		patientArrival: make(map[string]string, len(req.Patients)),
		teamIdx:        make(map[string]int),
		pinnedWhole:    make(map[pinKey]PinnedSlot),
		pinnedSplit:    make(map[splitPinKey]PinnedSlot),
	}

	for _, t := range req.Teams {
		if t.AutoSchedule {
			n.teamIdx[t.ID] = len(n.autoTeams)
			n.autoTeams = append(n.autoTeams, t)
		} else {
			n.nonAutoTeams[t.ID] = t
		}
	}

	for i, p := range req.Patients {
		n.patientIdx[p.Name] = i
		n.patientNames[i] = p.Name
		n.patientArrival[p.Name] = p.ArrivalTime
	}

	for _, ps := range req.PinnedSlots {
		n.classifyPin(ps)
	}

	return n
}

func (n *normalized) classifyPin(ps PinnedSlot) {
	effectiveNonAutoID := ps.TeamID
	if ps.OriginalTeamID != "" {
		effectiveNonAutoID = ps.OriginalTeamID
	}
	_, isNonAuto := n.nonAutoTeams[effectiveNonAutoID]
	_, teamIsAuto := n.teamIdx[ps.TeamID]
	_, originalIsAuto := n.teamIdx[ps.OriginalTeamID]
	if isNonAuto || (!teamIsAuto && !originalIsAuto) {
		n.pinnedNonAuto = append(n.pinnedNonAuto, ps)
		return
	}

	if ps.IsSplit && ps.OriginalTeamID != "" && ps.SplitSpecialtyID != "" {
		n.pinnedSplit[splitPinKey{ps.PatientName, ps.OriginalTeamID, ps.SplitSpecialtyID}] = ps
		return
	}

	realTeamID := ps.TeamID
	if ps.OriginalTeamID != "" {
		if _, isAuto := n.teamIdx[ps.OriginalTeamID]; isAuto {
			realTeamID = ps.OriginalTeamID
		}
	}
	n.pinnedWhole[pinKey{ps.PatientName, realTeamID}] = ps
}

func (n *normalized) numPatients() int { return len(n.patientIdx) }
func (n *normalized) numTeams() int    { return len(n.autoTeams) }

// pinnedSlotsVerbatim converts pinned slots straight to result slots,
// without consulting the solver — the fast path for zero patients/teams
// (SPEC_FULL.md §4.1).
func pinnedSlotsVerbatim(pins []PinnedSlot) []ResultSlot {
	out := make([]ResultSlot, 0, len(pins))
	for _, ps := range pins {
		out = append(out, ResultSlot{
			PatientName:      ps.PatientName,
			TimeSlot:         ps.TimeSlot,
			TeamID:           ps.TeamID,
			Pinned:           true,
			IsSplit:          ps.IsSplit,
			OriginalTeamID:   ps.OriginalTeamID,
			SplitSpecialtyID: ps.SplitSpecialtyID,
		})
	}
	return out
}
