package registry

import (
	"cmp"
	"slices"

	"github.com/dukerupert/giadinh/internal/model"
)

type HouseholdFilter struct {
	// Query matches name, address, phone or head name.
	Query string
}

func FilterHouseholds(households []model.Household, f HouseholdFilter) []model.Household {
	q := Fold(f.Query)
	out := make([]model.Household, 0, len(households))
	for _, h := range households {
		if matches(q, h.Name, h.Address, h.Phone, h.HeadName) {
			out = append(out, h)
		}
	}
	return out
}

func SortHouseholds(households []model.Household, by string, desc bool) error {
	var cmpFn func(a, b model.Household) int
	switch by {
	case SortDefault:
		return nil
	case SortName:
		cmpFn = func(a, b model.Household) int { return cmp.Compare(Fold(a.Name), Fold(b.Name)) }
	case SortCreatedAt:
		cmpFn = func(a, b model.Household) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortMemberCount:
		cmpFn = func(a, b model.Household) int { return cmp.Compare(a.MemberCount, b.MemberCount) }
	default:
		return ErrInvalidSort
	}
	slices.SortStableFunc(households, func(a, b model.Household) int {
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
