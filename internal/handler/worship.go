package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/lunar"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/registry"
	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/validate"
	"github.com/dukerupert/giadinh/internal/websocket"
)

const (
	defaultUpcomingDays = 30
	maxUpcomingDays     = 366
)

const (
	msgWorshipNotFound  = "Không tìm thấy lễ cúng"
	msgOneDate          = "Cần nhập đúng một trong hai: ngày dương lịch hoặc ngày âm lịch"
	msgInvalidDate      = "Ngày không hợp lệ"
	msgInvalidLunarDate = "Ngày âm lịch không tồn tại"
	msgNotLeapMonth     = "Năm này không có tháng nhuận đó"
	msgMemberOtherHouse = "Thành viên không thuộc hộ này"
	msgNotScheduled     = "Chỉ có thể cập nhật lễ đang chờ thực hiện"
	msgInvalidDays      = "Số ngày phải từ 1 đến 366"
	msgInvalidStatus    = "Trạng thái không hợp lệ"
)

type WorshipHandler struct {
	worship    *store.WorshipStore
	households *store.HouseholdStore
	members    *store.FamilyMemberStore
	validator  *validate.Validator
	notifier   Notifier
	clock      clockwork.Clock
	logger     *slog.Logger
}

func NewWorshipHandler(ws *store.WorshipStore, hs *store.HouseholdStore, ms *store.FamilyMemberStore, v *validate.Validator, n Notifier, clock clockwork.Clock, logger *slog.Logger) *WorshipHandler {
	return &WorshipHandler{worship: ws, households: hs, members: ms, validator: v, notifier: notifierOrNop(n), clock: clock, logger: logger}
}

type lunarDateRequest struct {
	Day   int  `json:"day" validate:"min=1,max=30"`
	Month int  `json:"month" validate:"min=1,max=12"`
	Year  int  `json:"year" validate:"min=1,max=9999"`
	Leap  bool `json:"leap"`
}

type worshipFields struct {
	MemberID  *int64            `json:"member_id" validate:"omitempty,gt=0"`
	Type      model.WorshipType `json:"worship_type" validate:"required,oneof=gio cau_an cung_sao cau_sieu khac"`
	Title     string            `json:"title" validate:"max=200"`
	Date      string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	LunarDate *lunarDateRequest `json:"lunar_date"`
	Offering  string            `json:"offering" validate:"max=500"`
	Notes     string            `json:"notes" validate:"max=2000"`
}

type createWorshipRequest struct {
	HouseholdID int64 `json:"household_id" validate:"required,gt=0"`
	worshipFields
}

// entry resolves the date fields into a worship entry. It writes the
// response and returns false when the dates do not make sense.
func (f *worshipFields) entry(w http.ResponseWriter, householdID int64) (*model.WorshipHistory, bool) {
	if (f.Date == "") == (f.LunarDate == nil) {
		fieldError(w, "date", msgOneDate)
		return nil, false
	}

	var solar time.Time
	var ld lunar.Date
	if f.Date != "" {
		t, err := time.ParseInLocation(time.DateOnly, f.Date, lunar.Location)
		if err != nil {
			fieldError(w, "date", msgInvalidDate)
			return nil, false
		}
		solar, ld = t, lunar.FromSolar(t)
	} else {
		ld = lunar.Date{Day: f.LunarDate.Day, Month: f.LunarDate.Month, Year: f.LunarDate.Year, Leap: f.LunarDate.Leap}
		t, err := lunar.ToSolar(ld)
		switch {
		case errors.Is(err, lunar.ErrInvalidLeapMonth):
			fieldError(w, "lunar_date", msgNotLeapMonth)
			return nil, false
		case err != nil:
			fieldError(w, "lunar_date", msgInvalidLunarDate)
			return nil, false
		}
		solar = t
	}

	return &model.WorshipHistory{
		HouseholdID:   householdID,
		MemberID:      f.MemberID,
		Type:          f.Type,
		Title:         strings.TrimSpace(f.Title),
		ScheduledDate: solar.Format(time.DateOnly),
		LunarDay:      ld.Day,
		LunarMonth:    ld.Month,
		LunarYear:     ld.Year,
		LunarLeap:     ld.Leap,
		Offering:      strings.TrimSpace(f.Offering),
		Notes:         f.Notes,
	}, true
}

// List handles GET /api/worship
func (h *WorshipHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := registry.WorshipFilter{
		Status: model.WorshipStatus(q.Get("status")),
		Type:   model.WorshipType(q.Get("type")),
		From:   q.Get("from"),
		To:     q.Get("to"),
	}
	switch f.Status {
	case "", model.WorshipScheduled, model.WorshipCompleted, model.WorshipCancelled:
	default:
		fieldError(w, "status", msgInvalidStatus)
		return
	}
	for key, v := range map[string]string{"from": f.From, "to": f.To} {
		if _, err := time.Parse(time.DateOnly, v); v != "" && err != nil {
			fieldError(w, key, msgInvalidDate)
			return
		}
	}
	householdID, ok1 := queryInt(r, "household_id", 0)
	memberID, ok2 := queryInt(r, "member_id", 0)
	page, ok3 := queryInt(r, "page", 1)
	perPage, ok4 := queryInt(r, "per_page", registry.DefaultPerPage)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		writeError(w, http.StatusBadRequest, msgValidation)
		return
	}
	f.HouseholdID, f.MemberID = int64(householdID), int64(memberID)

	all, err := h.worship.List(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "list worship", err)
		return
	}
	filtered := registry.FilterWorship(all, f)
	by, desc := sortParams(r)
	if err := registry.SortWorship(filtered, by, desc); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidSort)
		return
	}
	writeJSON(w, http.StatusOK, registry.Paginate(filtered, page, perPage))
}

// Get handles GET /api/worship/{id}
func (h *WorshipHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Create handles POST /api/worship. The date is given either as a solar
// date or as a lunar date.
func (h *WorshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createWorshipRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	household, err := h.households.GetByID(r.Context(), req.HouseholdID)
	if err != nil {
		internalError(w, r, h.logger, "get household", err)
		return
	}
	if household == nil {
		fieldError(w, "household_id", msgHouseholdNotFound)
		return
	}
	if !h.checkMember(w, r, household.ID, req.MemberID) {
		return
	}
	entry, ok := req.entry(w, household.ID)
	if !ok {
		return
	}

	created, err := h.worship.Create(r.Context(), entry)
	if err != nil {
		internalError(w, r, h.logger, "create worship", err)
		return
	}
	h.notifier.Notify(websocket.EntityWorship, websocket.ActionCreated, created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/worship/{id}. The household and status are kept.
func (h *WorshipHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	var req worshipFields
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	if !h.checkMember(w, r, existing.HouseholdID, req.MemberID) {
		return
	}
	entry, ok := req.entry(w, existing.HouseholdID)
	if !ok {
		return
	}

	updated, err := h.worship.Update(r.Context(), existing.ID, entry)
	if err != nil {
		internalError(w, r, h.logger, "update worship", err)
		return
	}
	h.notifier.Notify(websocket.EntityWorship, websocket.ActionUpdated, updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/worship/{id}
func (h *WorshipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.worship.Delete(r.Context(), existing.ID); err != nil {
		internalError(w, r, h.logger, "delete worship", err)
		return
	}
	h.notifier.Notify(websocket.EntityWorship, websocket.ActionDeleted, existing.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Complete handles POST /api/worship/{id}/complete
func (h *WorshipHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.WorshipCompleted, websocket.ActionCompleted)
}

// Cancel handles POST /api/worship/{id}/cancel
func (h *WorshipHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.WorshipCancelled, websocket.ActionCancelled)
}

// transition moves a scheduled entry to status. Finished entries are final.
func (h *WorshipHandler) transition(w http.ResponseWriter, r *http.Request, status model.WorshipStatus, action string) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	if existing.Status != model.WorshipScheduled {
		writeError(w, http.StatusConflict, msgNotScheduled)
		return
	}
	updated, err := h.worship.SetStatus(r.Context(), existing.ID, status)
	if err != nil {
		internalError(w, r, h.logger, "set worship status", err)
		return
	}
	h.notifier.Notify(websocket.EntityWorship, action, updated.ID)
	writeJSON(w, http.StatusOK, updated)
}

type upcomingEntry struct {
	model.WorshipHistory
	DaysUntil int `json:"days_until"`
}

// Upcoming handles GET /api/worship/upcoming?days=
func (h *WorshipHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(r, "days", defaultUpcomingDays)
	if !ok || days < 1 || days > maxUpcomingDays {
		fieldError(w, "days", msgInvalidDays)
		return
	}

	now := h.clock.Now().In(lunar.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, lunar.Location)
	entries, err := h.worship.ListUpcoming(r.Context(), today.Format(time.DateOnly), today.AddDate(0, 0, days).Format(time.DateOnly))
	if err != nil {
		internalError(w, r, h.logger, "list upcoming worship", err)
		return
	}

	out := make([]upcomingEntry, 0, len(entries))
	for _, e := range entries {
		d, err := time.ParseInLocation(time.DateOnly, e.ScheduledDate, lunar.Location)
		if err != nil {
			continue
		}
		out = append(out, upcomingEntry{WorshipHistory: e, DaysUntil: int(d.Sub(today).Hours() / 24)})
	}
	writeJSON(w, http.StatusOK, out)
}

// ScheduleAnniversaries handles POST /api/worship/anniversaries?year=. It
// schedules the giỗ of every deceased member with a known lunar death date
// in the given lunar year, skipping members already scheduled that day and
// members who died in or after that year.
func (h *WorshipHandler) ScheduleAnniversaries(w http.ResponseWriter, r *http.Request) {
	year, ok := queryInt(r, "year", lunar.FromSolar(h.clock.Now()).Year)
	if !ok || year < 1 || year > 9999 {
		fieldError(w, "year", msgInvalidYear)
		return
	}

	deceased, err := h.members.ListDeceasedWithDeathDate(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "list deceased members", err)
		return
	}

	created := []model.WorshipHistory{}
	skipped := 0
	for _, m := range deceased {
		// The first giỗ falls in the year after death.
		if m.DeathYear != nil && year <= *m.DeathYear {
			skipped++
			continue
		}
		solar, err := lunar.AnniversaryIn(year, *m.DeathLunarDay, *m.DeathLunarMonth)
		if err != nil {
			h.logger.WarnContext(r.Context(), "skip anniversary", "member_id", m.ID, "error", err)
			skipped++
			continue
		}
		date := solar.Format(time.DateOnly)

		exists, err := h.worship.ExistsForMemberOn(r.Context(), m.ID, model.WorshipAnniversary, date)
		if err != nil {
			internalError(w, r, h.logger, "check anniversary", err)
			return
		}
		if exists {
			skipped++
			continue
		}

		ld := lunar.FromSolar(solar)
		memberID := m.ID
		entry, err := h.worship.Create(r.Context(), &model.WorshipHistory{
			HouseholdID:   m.HouseholdID,
			MemberID:      &memberID,
			Type:          model.WorshipAnniversary,
			Title:         model.WorshipAnniversary.Label() + " " + m.FullName,
			ScheduledDate: date,
			LunarDay:      ld.Day,
			LunarMonth:    ld.Month,
			LunarYear:     ld.Year,
			LunarLeap:     ld.Leap,
		})
		if err != nil {
			internalError(w, r, h.logger, "create anniversary", err)
			return
		}
		created = append(created, *entry)
		h.notifier.Notify(websocket.EntityWorship, websocket.ActionCreated, entry.ID)
	}

	status := http.StatusOK
	if len(created) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"year":    year,
		"created": created,
		"skipped": skipped,
	})
}

// checkMember verifies that an optional member belongs to the household.
func (h *WorshipHandler) checkMember(w http.ResponseWriter, r *http.Request, householdID int64, memberID *int64) bool {
	if memberID == nil {
		return true
	}
	m, err := h.members.GetByID(r.Context(), *memberID)
	if err != nil {
		internalError(w, r, h.logger, "get member", err)
		return false
	}
	if m == nil {
		fieldError(w, "member_id", msgMemberNotFound)
		return false
	}
	if m.HouseholdID != householdID {
		fieldError(w, "member_id", msgMemberOtherHouse)
		return false
	}
	return true
}

func (h *WorshipHandler) load(w http.ResponseWriter, r *http.Request) (*model.WorshipHistory, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return nil, false
	}
	entry, err := h.worship.GetByID(r.Context(), id)
	if err != nil {
		internalError(w, r, h.logger, "get worship", err)
		return nil, false
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, msgWorshipNotFound)
		return nil, false
	}
	return entry, true
}
