package zodiac

// Profile is everything the registry shows about a person for a given year.
type Profile struct {
	BirthYear   int      `json:"birth_year"`
	Gender      Gender   `json:"gender"`
	Year        int      `json:"year"`
	CanChi      string   `json:"can_chi"`
	Animal      string   `json:"animal"`
	YearCanChi  string   `json:"year_can_chi"`
	NominalAge  int      `json:"nominal_age"`
	ActualAge   int      `json:"actual_age"`
	NapAm       NapAm    `json:"nap_am"`
	Kua         Kua      `json:"kua"`
	Star        Star     `json:"star"`
	TamTai      TamTai   `json:"tam_tai"`
	KimLau      KimLau   `json:"kim_lau"`
	HoangOc     *HoangOc `json:"hoang_oc,omitempty"`
}

func ProfileFor(birthYear int, gender Gender, year int) (Profile, error) {
	star, err := StarOf(birthYear, gender, year)
	if err != nil {
		return Profile{}, err
	}
	kua, err := KuaOf(birthYear, gender)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{
		BirthYear:  birthYear,
		Gender:     gender,
		Year:       year,
		CanChi:     YearCanChi(birthYear).String(),
		Animal:     Animal(birthYear),
		YearCanChi: YearCanChi(year).String(),
		NominalAge: NominalAge(birthYear, year),
		ActualAge:  ActualAge(birthYear, year),
		NapAm:      NapAmOf(birthYear),
		Kua:        kua,
		Star:       star,
		TamTai:     TamTaiOf(birthYear, year),
		KimLau:     KimLauOf(birthYear, year),
	}
	if h, ok := HoangOcOf(birthYear, year); ok {
		p.HoangOc = &h
	}
	return p, nil
}
