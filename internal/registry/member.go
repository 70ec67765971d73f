package registry

import (
	"cmp"
	"errors"
	"slices"

	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/zodiac"
)

var ErrInvalidSort = errors.New("registry: invalid sort field")

const (
	SortDefault     = ""
	SortName        = "name"
	SortBirthYear   = "birth_year"
	SortCreatedAt   = "created_at"
	SortMemberCount = "member_count"
	SortDate        = "date"
)

type MemberFilter struct {
	// Query matches full or dharma name, ignoring case and accents.
	Query         string
	Gender        zodiac.Gender
	Alive         *bool
	BirthYearFrom int
	BirthYearTo   int
	HouseholdID   int64
}

func (f MemberFilter) match(m *model.FamilyMember, q string) bool {
	switch {
	case f.Gender != "" && m.Gender != f.Gender:
		return false
	case f.Alive != nil && m.IsAlive != *f.Alive:
		return false
	case f.BirthYearFrom > 0 && m.BirthYear < f.BirthYearFrom:
		return false
	case f.BirthYearTo > 0 && m.BirthYear > f.BirthYearTo:
		return false
	case f.HouseholdID > 0 && m.HouseholdID != f.HouseholdID:
		return false
	}
	return matches(q, m.FullName, m.DharmaName)
}

// FilterMembers returns the members matching every set field of f, in their
// original order.
func FilterMembers(members []model.FamilyMember, f MemberFilter) []model.FamilyMember {
	q := Fold(f.Query)
	out := make([]model.FamilyMember, 0, len(members))
	for i := range members {
		if f.match(&members[i], q) {
			out = append(out, members[i])
		}
	}
	return out
}

// SortMembers sorts in place. SortDefault keeps household order.
func SortMembers(members []model.FamilyMember, by string, desc bool) error {
	var cmpFn func(a, b model.FamilyMember) int
	switch by {
	case SortDefault:
		return nil
	case SortName:
		cmpFn = func(a, b model.FamilyMember) int { return CompareNames(a.FullName, b.FullName) }
	case SortBirthYear:
		cmpFn = func(a, b model.FamilyMember) int { return cmp.Compare(a.BirthYear, b.BirthYear) }
	case SortCreatedAt:
		cmpFn = func(a, b model.FamilyMember) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return ErrInvalidSort
	}
	slices.SortStableFunc(members, func(a, b model.FamilyMember) int {
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
