package zodiac

type Nature string

const (
	Good    Nature = "good"
	Neutral Nature = "neutral"
	Bad     Nature = "bad"
)

// Star is one of the nine Cửu Diệu stars ruling a person's year.
type Star struct {
	Name   string `json:"name"`
	Nature Nature `json:"nature"`
	// WorshipDay is the lunar day of each month on which the star is venerated.
	WorshipDay int `json:"worship_day"`
	Candles    int `json:"candles"`
}

var (
	laHau     = Star{"La Hầu", Bad, 8, 9}
	keDo      = Star{"Kế Đô", Bad, 18, 21}
	thaiBach  = Star{"Thái Bạch", Bad, 15, 8}
	thoTu     = Star{"Thổ Tú", Neutral, 19, 5}
	thuyDieu  = Star{"Thủy Diệu", Neutral, 21, 7}
	vanHon    = Star{"Vân Hớn", Neutral, 29, 15}
	thaiDuong = Star{"Thái Dương", Good, 27, 12}
	thaiAm    = Star{"Thái Âm", Good, 26, 7}
	mocDuc    = Star{"Mộc Đức", Good, 25, 20}
)

// Indexed by nominal age mod 9.
var (
	maleStars   = [9]Star{mocDuc, laHau, thoTu, thuyDieu, thaiBach, thaiDuong, vanHon, keDo, thaiAm}
	femaleStars = [9]Star{thuyDieu, keDo, vanHon, mocDuc, thaiAm, thoTu, laHau, thaiDuong, thaiBach}
)

// Stars lists every star once, in the order used for reports.
var Stars = []Star{laHau, keDo, thaiBach, thoTu, thuyDieu, vanHon, thaiDuong, thaiAm, mocDuc}

// StarOf returns the star ruling a person in the given year.
func StarOf(birthYear int, gender Gender, year int) (Star, error) {
	if !gender.Valid() {
		return Star{}, ErrInvalidGender
	}
	if err := validateYears(birthYear, year); err != nil {
		return Star{}, err
	}

	i := mod(NominalAge(birthYear, year), 9)
	if gender == Male {
		return maleStars[i], nil
	}
	return femaleStars[i], nil
}

// NatureRank orders natures so that bad stars sort first.
func NatureRank(n Nature) int {
	switch n {
	case Bad:
		return 0
	case Neutral:
		return 1
	}
	return 2
}
