package patients

import (
	"sort"
	"strings"
	"time"
)

// matchPatients returns patients whose name contains term case-insensitively
// or whose id contains term. A blank term matches everyone.
func matchPatients(all []Patient, term string) []Patient {
	term = strings.TrimSpace(term)
	if term == "" {
		return append([]Patient(nil), all...)
	}
	lowered := strings.ToLower(term)
	out := make([]Patient, 0)
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), lowered) || strings.Contains(p.ID, term) {
			out = append(out, p)
		}
	}
	return out
}

func findPatient(all []Patient, id string) int {
	for i := range all {
		if all[i].ID == id {
			return i
		}
	}
	return -1
}

func findAppointment(all []Appointment, id string) int {
	for i := range all {
		if all[i].ID == id {
			return i
		}
	}
	return -1
}

// sortNewestFirst orders by dateTime descending; ties fall back to id so the
// order does not depend on storage order.
func sortNewestFirst(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if !appts[i].DateTime.Equal(appts[j].DateTime) {
			return appts[i].DateTime.After(appts[j].DateTime)
		}
		return appts[i].ID < appts[j].ID
	})
}

func sortSoonestFirst(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if !appts[i].DateTime.Equal(appts[j].DateTime) {
			return appts[i].DateTime.Before(appts[j].DateTime)
		}
		return appts[i].ID < appts[j].ID
	})
}

func appointmentsFor(all []Appointment, patientID string) []Appointment {
	out := make([]Appointment, 0)
	for _, a := range all {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sortNewestFirst(out)
	return out
}

// upcoming selects Scheduled appointments strictly after now, soonest first,
// truncated to limit when limit > 0.
func upcoming(all []Appointment, now time.Time, limit int) []Appointment {
	out := make([]Appointment, 0)
	for _, a := range all {
		if a.Status == StatusScheduled && a.DateTime.After(now) {
			out = append(out, a)
		}
	}
	sortSoonestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// countOnDay counts appointments of any status on now's calendar date in loc.
func countOnDay(all []Appointment, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	count := 0
	for _, a := range all {
		ay, am, ad := a.DateTime.In(loc).Date()
		if ay == y && am == m && ad == d {
			count++
		}
	}
	return count
}
