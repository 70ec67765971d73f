package model

import "time"

type WorshipType string

const (
	WorshipAnniversary WorshipType = "gio"
	WorshipPeace       WorshipType = "cau_an"
	WorshipStar        WorshipType = "cung_sao"
	WorshipRequiem     WorshipType = "cau_sieu"
	WorshipOther       WorshipType = "khac"
)

var WorshipTypes = []WorshipType{WorshipAnniversary, WorshipPeace, WorshipStar, WorshipRequiem, WorshipOther}

// Label returns the Vietnamese name of the ceremony.
func (t WorshipType) Label() string {
	switch t {
	case WorshipAnniversary:
		return "Giỗ"
	case WorshipPeace:
		return "Cầu an"
	case WorshipStar:
		return "Cúng sao giải hạn"
	case WorshipRequiem:
		return "Cầu siêu"
	case WorshipOther:
		return "Khác"
	}
	return string(t)
}

type WorshipStatus string

const (
	WorshipScheduled WorshipStatus = "scheduled"
	WorshipCompleted WorshipStatus = "completed"
	WorshipCancelled WorshipStatus = "cancelled"
)

type WorshipHistory struct {
	ID          int64       `json:"id"`
	HouseholdID int64       `json:"household_id"`
	MemberID    *int64      `json:"member_id"`
	Type        WorshipType `json:"worship_type"`
	Title       string      `json:"title"`
	// ScheduledDate is the solar date, YYYY-MM-DD.
	ScheduledDate string        `json:"scheduled_date"`
	LunarDay      int           `json:"lunar_day"`
	LunarMonth    int           `json:"lunar_month"`
	LunarYear     int           `json:"lunar_year"`
	LunarLeap     bool          `json:"lunar_leap"`
	Status        WorshipStatus `json:"status"`
	Offering      string        `json:"offering"`
	Notes         string        `json:"notes"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
