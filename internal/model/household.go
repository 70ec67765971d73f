package model

import "time"

type Household struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	HeadMemberID *int64    `json:"head_member_id"`
	HeadName     string    `json:"head_name,omitempty"`
	MemberCount  int       `json:"member_count"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HouseholdDetail is a household together with its members in display order
// and its worship history, most recent first.
type HouseholdDetail struct {
	Household
	Members []FamilyMember   `json:"members"`
	Worship []WorshipHistory `json:"worship"`
}
