package registry

import (
	"cmp"
	"slices"

	"github.com/dukerupert/giadinh/internal/model"
)

type WorshipFilter struct {
	Status model.WorshipStatus
	Type   model.WorshipType
	// From and To bound the scheduled date (YYYY-MM-DD), inclusive.
	From        string
	To          string
	HouseholdID int64
	MemberID    int64
}

func (f WorshipFilter) match(w *model.WorshipHistory) bool {
	switch {
	case f.Status != "" && w.Status != f.Status:
		return false
	case f.Type != "" && w.Type != f.Type:
		return false
	case f.From != "" && w.ScheduledDate < f.From:
		return false
	case f.To != "" && w.ScheduledDate > f.To:
		return false
	case f.HouseholdID > 0 && w.HouseholdID != f.HouseholdID:
		return false
	case f.MemberID > 0 && (w.MemberID == nil || *w.MemberID != f.MemberID):
		return false
	}
	return true
}

func FilterWorship(entries []model.WorshipHistory, f WorshipFilter) []model.WorshipHistory {
	out := make([]model.WorshipHistory, 0, len(entries))
	for i := range entries {
		if f.match(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}

func SortWorship(entries []model.WorshipHistory, by string, desc bool) error {
	var cmpFn func(a, b model.WorshipHistory) int
	switch by {
	case SortDefault:
		return nil
	case SortDate:
		cmpFn = func(a, b model.WorshipHistory) int { return cmp.Compare(a.ScheduledDate, b.ScheduledDate) }
	case SortCreatedAt:
		cmpFn = func(a, b model.WorshipHistory) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return ErrInvalidSort
	}
	slices.SortStableFunc(entries, func(a, b model.WorshipHistory) int {
		c := cmpFn(a, b)
		if desc {
			c = -c
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		return c
	})
	return nil
}
