package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/giadinh/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

const householdSelect = `SELECT h.id, h.name, h.address, h.phone, h.head_member_id, COALESCE(m.full_name, ''),
	(SELECT COUNT(*) FROM family_members c WHERE c.household_id = h.id),
	h.notes, h.created_at, h.updated_at
	FROM households h LEFT JOIN family_members m ON m.id = h.head_member_id`

func scanHousehold(sc scanner) (*model.Household, error) {
	var h model.Household
	var head sql.NullInt64
	err := sc.Scan(&h.ID, &h.Name, &h.Address, &h.Phone, &head, &h.HeadName, &h.MemberCount, &h.Notes, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.HeadMemberID = int64Ptr(head)
	return &h, nil
}

func (s *HouseholdStore) Create(ctx context.Context, h *model.Household) (*model.Household, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO households (name, address, phone, notes) VALUES (?, ?, ?, ?)`,
		h.Name, h.Address, h.Phone, h.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, householdSelect+` WHERE h.id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) List(ctx context.Context) ([]model.Household, error) {
	rows, err := s.db.QueryContext(ctx, householdSelect+` ORDER BY h.name, h.id`)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()

	var households []model.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	return households, rows.Err()
}

func (s *HouseholdStore) Update(ctx context.Context, id int64, h *model.Household) (*model.Household, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE households SET name = ?, address = ?, phone = ?, notes = ? WHERE id = ?`,
		h.Name, h.Address, h.Phone, h.Notes, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update household: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes a household along with its members and worship history.
func (s *HouseholdStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}

// SetHead designates the head member of a household. A nil memberID clears it.
func (s *HouseholdStore) SetHead(ctx context.Context, householdID int64, memberID *int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if memberID != nil {
		var owner int64
		err := tx.QueryRowContext(ctx, `SELECT household_id FROM family_members WHERE id = ?`, *memberID).Scan(&owner)
		if err == sql.ErrNoRows {
			return ErrHeadNotInHousehold
		}
		if err != nil {
			return fmt.Errorf("get head member: %w", err)
		}
		if owner != householdID {
			return ErrHeadNotInHousehold
		}
	}

	result, err := tx.ExecContext(ctx, `UPDATE households SET head_member_id = ? WHERE id = ?`, nullInt64(memberID), householdID)
	if err != nil {
		return fmt.Errorf("set household head: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
