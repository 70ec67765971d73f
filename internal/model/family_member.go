package model

import (
	"time"

	"github.com/dukerupert/giadinh/internal/zodiac"
)

type FamilyMember struct {
	ID           int64         `json:"id"`
	HouseholdID  int64         `json:"household_id"`
	FullName     string        `json:"full_name"`
	DharmaName   string        `json:"dharma_name"`
	BirthYear    int           `json:"birth_year"`
	Gender       zodiac.Gender `json:"gender"`
	IsAlive      bool          `json:"is_alive"`
	Relationship string        `json:"relationship"`
	// Lunar day and month of death, used to schedule giỗ.
	DeathLunarDay   *int      `json:"death_lunar_day"`
	DeathLunarMonth *int      `json:"death_lunar_month"`
	DeathYear       *int      `json:"death_year"`
	Notes           string    `json:"notes"`
	SortOrder       int       `json:"sort_order"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasDeathDate reports whether the member's giỗ can be scheduled.
func (m *FamilyMember) HasDeathDate() bool {
	return !m.IsAlive && m.DeathLunarDay != nil && m.DeathLunarMonth != nil
}
