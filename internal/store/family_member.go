package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/giadinh/internal/model"
)

type FamilyMemberStore struct {
	db *sql.DB
}

func NewFamilyMemberStore(db *sql.DB) *FamilyMemberStore {
	return &FamilyMemberStore{db: db}
}

const memberCols = `id, household_id, full_name, dharma_name, birth_year, gender, is_alive, relationship,
	death_lunar_day, death_lunar_month, death_year, notes, sort_order, created_at, updated_at`

func scanMember(sc scanner) (*model.FamilyMember, error) {
	var m model.FamilyMember
	var day, month, year sql.NullInt64
	err := sc.Scan(&m.ID, &m.HouseholdID, &m.FullName, &m.DharmaName, &m.BirthYear, &m.Gender, &m.IsAlive, &m.Relationship,
		&day, &month, &year, &m.Notes, &m.SortOrder, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.DeathLunarDay = intPtr(day)
	m.DeathLunarMonth = intPtr(month)
	m.DeathYear = intPtr(year)
	return &m, nil
}

func (s *FamilyMemberStore) query(ctx context.Context, q string, args ...any) ([]model.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query family members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// Create appends a member at the end of its household's order.
func (s *FamilyMemberStore) Create(ctx context.Context, m *model.FamilyMember) (*model.FamilyMember, error) {
	var maxOrder int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sort_order), -1) FROM family_members WHERE household_id = ?", m.HouseholdID,
	).Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO family_members (household_id, full_name, dharma_name, birth_year, gender, is_alive, relationship,
		 death_lunar_day, death_lunar_month, death_year, notes, sort_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.HouseholdID, m.FullName, m.DharmaName, m.BirthYear, m.Gender, m.IsAlive, m.Relationship,
		nullInt(m.DeathLunarDay), nullInt(m.DeathLunarMonth), nullInt(m.DeathYear), m.Notes, maxOrder+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family member: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *FamilyMemberStore) GetByID(ctx context.Context, id int64) (*model.FamilyMember, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memberCols+" FROM family_members WHERE id = ?", id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query family member: %w", err)
	}
	return m, nil
}

func (s *FamilyMemberStore) List(ctx context.Context) ([]model.FamilyMember, error) {
	return s.query(ctx, "SELECT "+memberCols+" FROM family_members ORDER BY household_id, sort_order, id")
}

func (s *FamilyMemberStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.FamilyMember, error) {
	return s.query(ctx,
		"SELECT "+memberCols+" FROM family_members WHERE household_id = ? ORDER BY sort_order, id",
		householdID,
	)
}

// ListDeceasedWithDeathDate returns members whose lunar death day and month are known.
func (s *FamilyMemberStore) ListDeceasedWithDeathDate(ctx context.Context) ([]model.FamilyMember, error) {
	return s.query(ctx,
		`SELECT `+memberCols+` FROM family_members
		 WHERE is_alive = 0 AND death_lunar_day IS NOT NULL AND death_lunar_month IS NOT NULL
		 ORDER BY household_id, sort_order, id`,
	)
}

// Update overwrites the editable fields of a member. The household is not changed.
func (s *FamilyMemberStore) Update(ctx context.Context, id int64, m *model.FamilyMember) (*model.FamilyMember, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE family_members SET full_name = ?, dharma_name = ?, birth_year = ?, gender = ?, is_alive = ?,
		 relationship = ?, death_lunar_day = ?, death_lunar_month = ?, death_year = ?, notes = ?
		 WHERE id = ?`,
		m.FullName, m.DharmaName, m.BirthYear, m.Gender, m.IsAlive, m.Relationship,
		nullInt(m.DeathLunarDay), nullInt(m.DeathLunarMonth), nullInt(m.DeathYear), m.Notes, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update family member: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a member. If the member was the head of their household,
// the household is left without a head.
func (s *FamilyMemberStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM family_members WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete family member: %w", err)
	}
	return nil
}

// UpdateSortOrder sets the order of a household's members to the order of ids.
// Every id must belong to the household.
func (s *FamilyMemberStore) UpdateSortOrder(ctx context.Context, householdID int64, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "UPDATE family_members SET sort_order = ? WHERE id = ? AND household_id = ?")
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		result, err := stmt.ExecContext(ctx, i, id, householdID)
		if err != nil {
			return fmt.Errorf("update sort order for id %d: %w", id, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("member %d: %w", id, ErrNotFound)
		}
	}

	return tx.Commit()
}
