// Package zodiac implements the Vietnamese astrology lookups used by the
// registry: can chi of a year, nominal age, nạp âm element, the yearly
// Cửu Diệu star, cung phi (kua) and the Tam Tai / Kim Lâu / Hoang Ốc checks.
package zodiac

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidGender = errors.New("zodiac: gender must be male or female")
	ErrInvalidYear   = errors.New("zodiac: invalid year")
)

type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
)

func (g Gender) Valid() bool {
	return g == Male || g == Female
}

// Label returns the Vietnamese label shown in the admin tool.
func (g Gender) Label() string {
	switch g {
	case Male:
		return "Nam"
	case Female:
		return "Nữ"
	}
	return ""
}

var stems = [10]string{"Giáp", "Ất", "Bính", "Đinh", "Mậu", "Kỷ", "Canh", "Tân", "Nhâm", "Quý"}

var branches = [12]string{"Tý", "Sửu", "Dần", "Mão", "Thìn", "Tỵ", "Ngọ", "Mùi", "Thân", "Dậu", "Tuất", "Hợi"}

var animals = [12]string{"Chuột", "Trâu", "Hổ", "Mèo", "Rồng", "Rắn", "Ngựa", "Dê", "Khỉ", "Gà", "Chó", "Lợn"}

type CanChi struct {
	Stem        string `json:"stem"`
	Branch      string `json:"branch"`
	StemIndex   int    `json:"stem_index"`
	BranchIndex int    `json:"branch_index"`
}

func (c CanChi) String() string {
	return c.Stem + " " + c.Branch
}

// YearCanChi returns the heavenly stem and earthly branch of a solar year.
// Year 4 (and every 60 years after) is Giáp Tý.
func YearCanChi(year int) CanChi {
	s := mod(year+6, 10)
	b := mod(year+8, 12)
	return CanChi{Stem: stems[s], Branch: branches[b], StemIndex: s, BranchIndex: b}
}

// Animal returns the zodiac animal of the year's earthly branch.
func Animal(year int) string {
	return animals[mod(year+8, 12)]
}

// NominalAge is the Vietnamese "tuổi mụ": one at birth, plus one every lunar new year.
func NominalAge(birthYear, year int) int {
	return year - birthYear + 1
}

// ActualAge is the age reached during the given year.
func ActualAge(birthYear, year int) int {
	return year - birthYear
}

func validateYears(birthYear, year int) error {
	if birthYear < 1 || birthYear > 9999 || year < 1 || year > 9999 {
		return fmt.Errorf("%w: %d", ErrInvalidYear, birthYear)
	}
	if birthYear > year {
		return fmt.Errorf("%w: born %d after %d", ErrInvalidYear, birthYear, year)
	}
	return nil
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
