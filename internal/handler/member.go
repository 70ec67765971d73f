package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/lunar"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/registry"
	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/validate"
	"github.com/dukerupert/giadinh/internal/websocket"
	"github.com/dukerupert/giadinh/internal/zodiac"
)

const (
	msgMemberNotFound   = "Không tìm thấy thành viên"
	msgDeathDateInPairs = "Cần nhập cả ngày và tháng âm lịch ngày mất"
	msgDeathBeforeBirth = "Năm mất không được trước năm sinh"
	msgMemberNotInHouse = "Danh sách có thành viên không thuộc hộ này"
	msgInvalidYear      = "Năm không hợp lệ"
	msgInvalidGender    = "Giới tính phải là nam hoặc nữ"
)

type MemberHandler struct {
	households *store.HouseholdStore
	members    *store.FamilyMemberStore
	validator  *validate.Validator
	notifier   Notifier
	clock      clockwork.Clock
	logger     *slog.Logger
}

func NewMemberHandler(hs *store.HouseholdStore, ms *store.FamilyMemberStore, v *validate.Validator, n Notifier, clock clockwork.Clock, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{households: hs, members: ms, validator: v, notifier: notifierOrNop(n), clock: clock, logger: logger}
}

type memberRequest struct {
	FullName        string        `json:"full_name" validate:"notblank,max=200"`
	DharmaName      string        `json:"dharma_name" validate:"max=200"`
	BirthYear       int           `json:"birth_year" validate:"required,min=1,max=9999"`
	Gender          zodiac.Gender `json:"gender" validate:"required,oneof=male female"`
	IsAlive         *bool         `json:"is_alive"`
	Relationship    string        `json:"relationship" validate:"max=100"`
	DeathLunarDay   *int          `json:"death_lunar_day" validate:"omitempty,min=1,max=30"`
	DeathLunarMonth *int          `json:"death_lunar_month" validate:"omitempty,min=1,max=12"`
	DeathYear       *int          `json:"death_year" validate:"omitempty,min=1,max=9999"`
	Notes           string        `json:"notes" validate:"max=2000"`
}

// check applies the rules that span fields. It writes the response and
// returns false on failure.
func (req *memberRequest) check(w http.ResponseWriter) bool {
	if req.IsAlive == nil || *req.IsAlive {
		// The living have no death date.
		req.DeathLunarDay, req.DeathLunarMonth, req.DeathYear = nil, nil, nil
		return true
	}
	if (req.DeathLunarDay == nil) != (req.DeathLunarMonth == nil) {
		fieldError(w, "death_lunar_day", msgDeathDateInPairs)
		return false
	}
	if req.DeathYear != nil && *req.DeathYear < req.BirthYear {
		fieldError(w, "death_year", msgDeathBeforeBirth)
		return false
	}
	return true
}

func (req *memberRequest) model(householdID int64) *model.FamilyMember {
	alive := req.IsAlive == nil || *req.IsAlive
	return &model.FamilyMember{
		HouseholdID:     householdID,
		FullName:        strings.TrimSpace(req.FullName),
		DharmaName:      strings.TrimSpace(req.DharmaName),
		BirthYear:       req.BirthYear,
		Gender:          req.Gender,
		IsAlive:         alive,
		Relationship:    strings.TrimSpace(req.Relationship),
		DeathLunarDay:   req.DeathLunarDay,
		DeathLunarMonth: req.DeathLunarMonth,
		DeathYear:       req.DeathYear,
		Notes:           req.Notes,
	}
}

// List handles GET /api/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := registry.MemberFilter{
		Query:  q.Get("q"),
		Gender: zodiac.Gender(q.Get("gender")),
	}
	if f.Gender != "" && !f.Gender.Valid() {
		fieldError(w, "gender", msgInvalidGender)
		return
	}

	var ok bool
	if f.Alive, ok = queryBool(r, "alive"); !ok {
		fieldError(w, "alive", msgValidation)
		return
	}
	if f.BirthYearFrom, ok = queryInt(r, "birth_year_from", 0); !ok {
		fieldError(w, "birth_year_from", msgInvalidYear)
		return
	}
	if f.BirthYearTo, ok = queryInt(r, "birth_year_to", 0); !ok {
		fieldError(w, "birth_year_to", msgInvalidYear)
		return
	}
	householdID, ok := queryInt(r, "household_id", 0)
	if !ok {
		fieldError(w, "household_id", msgInvalidID)
		return
	}
	f.HouseholdID = int64(householdID)

	page, ok1 := queryInt(r, "page", 1)
	perPage, ok2 := queryInt(r, "per_page", registry.DefaultPerPage)
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, msgValidation)
		return
	}

	all, err := h.members.List(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "list members", err)
		return
	}
	filtered := registry.FilterMembers(all, f)
	by, desc := sortParams(r)
	if err := registry.SortMembers(filtered, by, desc); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidSort)
		return
	}
	writeJSON(w, http.StatusOK, registry.Paginate(filtered, page, perPage))
}

// Get handles GET /api/members/{id}
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	member, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// Create handles POST /api/households/{id}/members
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	household, ok := loadHousehold(w, r, h.households, h.logger, "id")
	if !ok {
		return
	}
	var req memberRequest
	if !decodeJSON(w, r, h.validator, &req) || !req.check(w) {
		return
	}

	member, err := h.members.Create(r.Context(), req.model(household.ID))
	if err != nil {
		internalError(w, r, h.logger, "create member", err)
		return
	}
	h.notifier.Notify(websocket.EntityMember, websocket.ActionCreated, member.ID)
	writeJSON(w, http.StatusCreated, member)
}

// Update handles PUT /api/members/{id}. The member stays in its household.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if !decodeJSON(w, r, h.validator, &req) || !req.check(w) {
		return
	}

	member, err := h.members.Update(r.Context(), existing.ID, req.model(existing.HouseholdID))
	if err != nil {
		internalError(w, r, h.logger, "update member", err)
		return
	}
	h.notifier.Notify(websocket.EntityMember, websocket.ActionUpdated, member.ID)
	writeJSON(w, http.StatusOK, member)
}

// Delete handles DELETE /api/members/{id}
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.members.Delete(r.Context(), existing.ID); err != nil {
		internalError(w, r, h.logger, "delete member", err)
		return
	}
	h.notifier.Notify(websocket.EntityMember, websocket.ActionDeleted, existing.ID)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSortOrder handles PUT /api/households/{id}/members/sort
func (h *MemberHandler) UpdateSortOrder(w http.ResponseWriter, r *http.Request) {
	household, ok := loadHousehold(w, r, h.households, h.logger, "id")
	if !ok {
		return
	}
	var req struct {
		IDs []int64 `json:"ids" validate:"required,min=1,unique,dive,gt=0"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	err := h.members.UpdateSortOrder(r.Context(), household.ID, req.IDs)
	if errors.Is(err, store.ErrNotFound) {
		fieldError(w, "ids", msgMemberNotInHouse)
		return
	}
	if err != nil {
		internalError(w, r, h.logger, "update member sort order", err)
		return
	}
	h.notifier.Notify(websocket.EntityMember, websocket.ActionReordered, household.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Horoscope handles GET /api/members/{id}/horoscope?year=. The year
// defaults to the current lunar year.
func (h *MemberHandler) Horoscope(w http.ResponseWriter, r *http.Request) {
	member, ok := h.load(w, r)
	if !ok {
		return
	}
	year, ok := queryInt(r, "year", lunar.FromSolar(h.clock.Now()).Year)
	if !ok {
		fieldError(w, "year", msgInvalidYear)
		return
	}

	profile, err := zodiac.ProfileFor(member.BirthYear, member.Gender, year)
	if errors.Is(err, zodiac.ErrInvalidYear) {
		fieldError(w, "year", msgInvalidYear)
		return
	}
	if err != nil {
		internalError(w, r, h.logger, "member horoscope", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member":  member,
		"profile": profile,
	})
}

func (h *MemberHandler) load(w http.ResponseWriter, r *http.Request) (*model.FamilyMember, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return nil, false
	}
	member, err := h.members.GetByID(r.Context(), id)
	if err != nil {
		internalError(w, r, h.logger, "get member", err)
		return nil, false
	}
	if member == nil {
		writeError(w, http.StatusNotFound, msgMemberNotFound)
		return nil, false
	}
	return member, true
}
