package zodiac

// tamTaiStart maps a birth triad (branch index mod 4) to the branch index of
// the first of its three Tam Tai years.
var tamTaiStart = [4]int{
	2,  // Thân, Tý, Thìn -> Dần, Mão, Thìn
	11, // Tỵ, Dậu, Sửu -> Hợi, Tý, Sửu
	8,  // Dần, Ngọ, Tuất -> Thân, Dậu, Tuất
	5,  // Hợi, Mão, Mùi -> Tỵ, Ngọ, Mùi
}

type TamTai struct {
	Active bool `json:"active"`
	// Year is 1, 2 or 3 while Active.
	Year     int      `json:"year,omitempty"`
	Branches []string `json:"branches"`
}

// TamTaiOf reports whether year falls into the Tam Tai window of someone born in birthYear.
func TamTaiOf(birthYear, year int) TamTai {
	start := tamTaiStart[mod(birthYear+8, 12)%4]
	t := TamTai{Branches: []string{
		branches[start],
		branches[mod(start+1, 12)],
		branches[mod(start+2, 12)],
	}}
	if d := mod(mod(year+8, 12)-start, 12); d < 3 {
		t.Active = true
		t.Year = d + 1
	}
	return t
}

type KimLau struct {
	Active bool   `json:"active"`
	Kind   string `json:"kind,omitempty"`
}

var kimLauKinds = map[int]string{
	1: "Kim Lâu Thân",
	3: "Kim Lâu Thê",
	6: "Kim Lâu Tử",
	8: "Kim Lâu Súc",
}

// KimLauOf checks the Kim Lâu rule, consulted before weddings, on nominal age.
func KimLauOf(birthYear, year int) KimLau {
	kind, ok := kimLauKinds[mod(NominalAge(birthYear, year), 9)]
	return KimLau{Active: ok, Kind: kind}
}

type HoangOc struct {
	Name string `json:"name"`
	Good bool   `json:"good"`
}

var hoangOcPalaces = [6]HoangOc{
	{"Nhất Cát", true},
	{"Nhì Nghi", true},
	{"Tam Địa Sát", false},
	{"Tứ Tấn Tài", true},
	{"Ngũ Thọ Tử", false},
	{"Lục Hoang Ốc", false},
}

// HoangOcOf returns the Hoang Ốc palace for building a house at the nominal
// age reached in year. Ages below ten are not counted.
func HoangOcOf(birthYear, year int) (HoangOc, bool) {
	age := NominalAge(birthYear, year)
	if age < 10 {
		return HoangOc{}, false
	}
	return hoangOcPalaces[(age/10-1+age%10)%6], true
}
