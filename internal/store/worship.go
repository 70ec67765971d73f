package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/model"
)

type WorshipStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewWorshipStore(db *sql.DB, clock clockwork.Clock) *WorshipStore {
	return &WorshipStore{db: db, clock: clock}
}

const worshipCols = `id, household_id, member_id, worship_type, title, scheduled_date,
	lunar_day, lunar_month, lunar_year, lunar_leap, status, offering, notes, completed_at, created_at, updated_at`

func scanWorship(sc scanner) (*model.WorshipHistory, error) {
	var w model.WorshipHistory
	var memberID sql.NullInt64
	var completedAt sql.NullTime
	err := sc.Scan(&w.ID, &w.HouseholdID, &memberID, &w.Type, &w.Title, &w.ScheduledDate,
		&w.LunarDay, &w.LunarMonth, &w.LunarYear, &w.LunarLeap, &w.Status, &w.Offering, &w.Notes,
		&completedAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.MemberID = int64Ptr(memberID)
	if completedAt.Valid {
		w.CompletedAt = &completedAt.Time
	}
	return &w, nil
}

func (s *WorshipStore) query(ctx context.Context, q string, args ...any) ([]model.WorshipHistory, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query worship history: %w", err)
	}
	defer rows.Close()

	var entries []model.WorshipHistory
	for rows.Next() {
		w, err := scanWorship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worship history: %w", err)
		}
		entries = append(entries, *w)
	}
	return entries, rows.Err()
}

// Create records a worship event. A zero Status means scheduled.
func (s *WorshipStore) Create(ctx context.Context, w *model.WorshipHistory) (*model.WorshipHistory, error) {
	status := w.Status
	if status == "" {
		status = model.WorshipScheduled
	}
	var completedAt sql.NullTime
	if status == model.WorshipCompleted {
		completedAt = sql.NullTime{Time: s.clock.Now().UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO worship_history (household_id, member_id, worship_type, title, scheduled_date,
		 lunar_day, lunar_month, lunar_year, lunar_leap, status, offering, notes, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.HouseholdID, nullInt64(w.MemberID), w.Type, w.Title, w.ScheduledDate,
		w.LunarDay, w.LunarMonth, w.LunarYear, w.LunarLeap, status, w.Offering, w.Notes, completedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert worship history: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *WorshipStore) GetByID(ctx context.Context, id int64) (*model.WorshipHistory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+worshipCols+` FROM worship_history WHERE id = ?`, id)
	w, err := scanWorship(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get worship history: %w", err)
	}
	return w, nil
}

// List returns every entry, most recent date first.
func (s *WorshipStore) List(ctx context.Context) ([]model.WorshipHistory, error) {
	return s.query(ctx, `SELECT `+worshipCols+` FROM worship_history ORDER BY scheduled_date DESC, id DESC`)
}

func (s *WorshipStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.WorshipHistory, error) {
	return s.query(ctx,
		`SELECT `+worshipCols+` FROM worship_history WHERE household_id = ? ORDER BY scheduled_date DESC, id DESC`,
		householdID,
	)
}

// ListUpcoming returns scheduled events whose date falls in [from, to], soonest first.
// Dates are YYYY-MM-DD.
func (s *WorshipStore) ListUpcoming(ctx context.Context, from, to string) ([]model.WorshipHistory, error) {
	return s.query(ctx,
		`SELECT `+worshipCols+` FROM worship_history
		 WHERE status = ? AND scheduled_date >= ? AND scheduled_date <= ?
		 ORDER BY scheduled_date, id`,
		model.WorshipScheduled, from, to,
	)
}

// Update overwrites the editable fields. Status changes go through SetStatus.
func (s *WorshipStore) Update(ctx context.Context, id int64, w *model.WorshipHistory) (*model.WorshipHistory, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE worship_history SET member_id = ?, worship_type = ?, title = ?, scheduled_date = ?,
		 lunar_day = ?, lunar_month = ?, lunar_year = ?, lunar_leap = ?, offering = ?, notes = ?
		 WHERE id = ?`,
		nullInt64(w.MemberID), w.Type, w.Title, w.ScheduledDate,
		w.LunarDay, w.LunarMonth, w.LunarYear, w.LunarLeap, w.Offering, w.Notes, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update worship history: %w", err)
	}
	return s.GetByID(ctx, id)
}

// SetStatus moves an entry to status. completed_at is set only while completed.
func (s *WorshipStore) SetStatus(ctx context.Context, id int64, status model.WorshipStatus) (*model.WorshipHistory, error) {
	var completedAt sql.NullTime
	if status == model.WorshipCompleted {
		completedAt = sql.NullTime{Time: s.clock.Now().UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE worship_history SET status = ?, completed_at = ? WHERE id = ?`,
		status, completedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("set worship status: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *WorshipStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM worship_history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete worship history: %w", err)
	}
	return nil
}

// ExistsForMemberOn reports whether an entry of the given type is already
// recorded for the member on date, whatever its status.
func (s *WorshipStore) ExistsForMemberOn(ctx context.Context, memberID int64, typ model.WorshipType, date string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM worship_history WHERE member_id = ? AND worship_type = ? AND scheduled_date = ?`,
		memberID, typ, date,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check worship exists: %w", err)
	}
	return count > 0, nil
}
