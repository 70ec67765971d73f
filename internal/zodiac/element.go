package zodiac

type Element string

const (
	Metal Element = "Kim"
	Wood  Element = "Mộc"
	Water Element = "Thủy"
	Fire  Element = "Hỏa"
	Earth Element = "Thổ"
)

type NapAm struct {
	Name    string  `json:"name"`
	Element Element `json:"element"`
}

// napAm holds one entry per pair of consecutive years in the 60-year cycle,
// starting at Giáp Tý.
var napAm = [30]NapAm{
	{"Hải Trung Kim", Metal},
	{"Lư Trung Hỏa", Fire},
	{"Đại Lâm Mộc", Wood},
	{"Lộ Bàng Thổ", Earth},
	{"Kiếm Phong Kim", Metal},
	{"Sơn Đầu Hỏa", Fire},
	{"Giản Hạ Thủy", Water},
	{"Thành Đầu Thổ", Earth},
	{"Bạch Lạp Kim", Metal},
	{"Dương Liễu Mộc", Wood},
	{"Tuyền Trung Thủy", Water},
	{"Ốc Thượng Thổ", Earth},
	{"Tích Lịch Hỏa", Fire},
	{"Tùng Bách Mộc", Wood},
	{"Trường Lưu Thủy", Water},
	{"Sa Trung Kim", Metal},
	{"Sơn Hạ Hỏa", Fire},
	{"Bình Địa Mộc", Wood},
	{"Bích Thượng Thổ", Earth},
	{"Kim Bạch Kim", Metal},
	{"Phú Đăng Hỏa", Fire},
	{"Thiên Hà Thủy", Water},
	{"Đại Trạch Thổ", Earth},
	{"Thoa Xuyến Kim", Metal},
	{"Tang Đố Mộc", Wood},
	{"Đại Khê Thủy", Water},
	{"Sa Trung Thổ", Earth},
	{"Thiên Thượng Hỏa", Fire},
	{"Thạch Lựu Mộc", Wood},
	{"Đại Hải Thủy", Water},
}

// NapAmOf returns the nạp âm (life element) of people born in the given year.
func NapAmOf(birthYear int) NapAm {
	return napAm[mod(birthYear-4, 60)/2]
}

type Kua struct {
	Number  int     `json:"number"`
	Name    string  `json:"name"`
	Element Element `json:"element"`
	Group   string  `json:"group"`
}

const (
	eastGroup = "Đông tứ mệnh"
	westGroup = "Tây tứ mệnh"
)

var kuas = map[int]Kua{
	1: {1, "Khảm", Water, eastGroup},
	2: {2, "Khôn", Earth, westGroup},
	3: {3, "Chấn", Wood, eastGroup},
	4: {4, "Tốn", Wood, eastGroup},
	6: {6, "Càn", Metal, westGroup},
	7: {7, "Đoài", Metal, westGroup},
	8: {8, "Cấn", Earth, westGroup},
	9: {9, "Ly", Fire, eastGroup},
}

// KuaOf returns the cung phi of a person. Number five has no palace of its
// own: men take Khôn and women take Cấn.
func KuaOf(birthYear int, gender Gender) (Kua, error) {
	if !gender.Valid() {
		return Kua{}, ErrInvalidGender
	}
	if birthYear < 1 {
		return Kua{}, ErrInvalidYear
	}

	r := mod(birthYear, 9)
	var n int
	if gender == Male {
		n = mod(11-r, 9)
	} else {
		n = mod(r+4, 9)
	}
	if n == 0 {
		n = 9
	}
	if n == 5 {
		if gender == Male {
			n = 2
		} else {
			n = 8
		}
	}
	return kuas[n], nil
}
