package registry

import (
	"slices"

	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/zodiac"
)

type StarEntry struct {
	MemberID    int64       `json:"member_id"`
	HouseholdID int64       `json:"household_id"`
	FullName    string      `json:"full_name"`
	BirthYear   int         `json:"birth_year"`
	NominalAge  int         `json:"nominal_age"`
	Star        zodiac.Star `json:"star"`
	TamTai      bool        `json:"tam_tai"`
}

// StarsForYear lists the ruling star of every living member born on or
// before year. Bad stars come first, then by name.
func StarsForYear(members []model.FamilyMember, year int) []StarEntry {
	out := make([]StarEntry, 0, len(members))
	for _, m := range members {
		if !m.IsAlive {
			continue
		}
		star, err := zodiac.StarOf(m.BirthYear, m.Gender, year)
		if err != nil {
			continue
		}
		out = append(out, StarEntry{
			MemberID:    m.ID,
			HouseholdID: m.HouseholdID,
			FullName:    m.FullName,
			BirthYear:   m.BirthYear,
			NominalAge:  zodiac.NominalAge(m.BirthYear, year),
			Star:        star,
			TamTai:      zodiac.TamTaiOf(m.BirthYear, year).Active,
		})
	}
	slices.SortStableFunc(out, func(a, b StarEntry) int {
		if c := zodiac.NatureRank(a.Star.Nature) - zodiac.NatureRank(b.Star.Nature); c != 0 {
			return c
		}
		return CompareNames(a.FullName, b.FullName)
	})
	return out
}
