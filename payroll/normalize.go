package payroll

import (
	"sort"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// NormalizeReport lists what Normalize changed.
type NormalizeReport struct {
	Seeded    []string               `json:"seeded,omitempty"`
	Archived  []string               `json:"archived,omitempty"`
	Relabeled []string               `json:"relabeled,omitempty"`
	Invalid   []*InvalidCadenceError `json:"-"`
	// Rejected holds roster rows set aside before normalization because they
	// failed validation. Filled in by the engine.
	Rejected []string `json:"rejected,omitempty"`
}

// Changed reports whether the returned store differs from the input.
func (r NormalizeReport) Changed() bool {
	return len(r.Seeded)+len(r.Archived)+len(r.Relabeled) > 0
}

// ChangedIDs returns every touched employee id once, sorted.
func (r NormalizeReport) ChangedIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, group := range [][]string{r.Seeded, r.Archived, r.Relabeled} {
		for _, id := range group {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// InvalidIDs returns the ids of roster rows skipped for their cadence,
// followed by the rejected rows.
func (r NormalizeReport) InvalidIDs() []string {
	ids := make([]string, 0, len(r.Invalid)+len(r.Rejected))
	for _, e := range r.Invalid {
		ids = append(ids, e.EmployeeID)
	}
	return append(ids, r.Rejected...)
}

// Normalize brings a cycle store to its canonical shape for day today.
// It never modifies its input.
//
//  1. Every roster employee without a pack gets an initial cycle starting today.
//     Employees with an unknown cadence are skipped and reported.
//  2. A terminal current cycle is moved to the front of history (unless it is
//     already there) and replaced by its successor.
//  3. Every non-terminal current cycle gets its status recomputed.
func Normalize(cycles CycleStore, roster []Employee, today generic.Date) (CycleStore, NormalizeReport) {
	out := cycles.Clone()
	var report NormalizeReport

	for _, emp := range roster {
		if _, ok := out[emp.ID]; ok {
			continue
		}
		c, err := NewInitialCycle(emp, today)
		if err != nil {
			if ic, ok := err.(*InvalidCadenceError); ok {
				report.Invalid = append(report.Invalid, ic)
			}
			continue
		}
		c.Status = ResolveStatus(c, today)
		out[emp.ID] = Pack{Current: c, History: []Cycle{}}
		report.Seeded = append(report.Seeded, emp.ID)
	}

	ids := make([]string, 0, len(out))
	for id := range out {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		pack := out[id]
		changed := false

		if pack.Current.Status.IsTerminal() {
			next, err := NextCycleFrom(pack.Current)
			if err != nil {
				report.Invalid = append(report.Invalid, &InvalidCadenceError{EmployeeID: id, Cadence: string(pack.Current.Cadence)})
				continue
			}
			if !alreadyArchived(pack) {
				pack.History = append([]Cycle{pack.Current}, pack.History...)
			}
			pack.Current = next
			report.Archived = append(report.Archived, id)
			changed = true
		}

		if status := ResolveStatus(pack.Current, today); status != pack.Current.Status {
			pack.Current.Status = status
			if !changed {
				report.Relabeled = append(report.Relabeled, id)
			}
			changed = true
		}

		if changed {
			out[id] = pack
		}
	}

	return out, report
}

func alreadyArchived(p Pack) bool {
	return len(p.History) > 0 &&
		p.History[0].PayslipID != "" &&
		p.History[0].PayslipID == p.Current.PayslipID
}
