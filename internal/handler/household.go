package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/registry"
	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/validate"
	"github.com/dukerupert/giadinh/internal/websocket"
)

const (
	msgHouseholdNotFound = "Không tìm thấy hộ gia đình"
	msgHeadNotMember     = "Chủ hộ phải là thành viên của hộ"
	msgInvalidSort       = "Trường sắp xếp không hợp lệ"
)

type HouseholdHandler struct {
	households *store.HouseholdStore
	members    *store.FamilyMemberStore
	worship    *store.WorshipStore
	validator  *validate.Validator
	notifier   Notifier
	logger     *slog.Logger
}

func NewHouseholdHandler(hs *store.HouseholdStore, ms *store.FamilyMemberStore, ws *store.WorshipStore, v *validate.Validator, n Notifier, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{households: hs, members: ms, worship: ws, validator: v, notifier: notifierOrNop(n), logger: logger}
}

type householdRequest struct {
	Name    string `json:"name" validate:"notblank,max=200"`
	Address string `json:"address" validate:"max=500"`
	Phone   string `json:"phone" validate:"max=30"`
	Notes   string `json:"notes" validate:"max=2000"`
}

func (req *householdRequest) model() *model.Household {
	return &model.Household{
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		Phone:   strings.TrimSpace(req.Phone),
		Notes:   req.Notes,
	}
}

// List handles GET /api/households
func (h *HouseholdHandler) List(w http.ResponseWriter, r *http.Request) {
	page, ok1 := queryInt(r, "page", 1)
	perPage, ok2 := queryInt(r, "per_page", registry.DefaultPerPage)
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, msgValidation)
		return
	}

	all, err := h.households.List(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "list households", err)
		return
	}

	filtered := registry.FilterHouseholds(all, registry.HouseholdFilter{Query: r.URL.Query().Get("q")})
	by, desc := sortParams(r)
	if err := registry.SortHouseholds(filtered, by, desc); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidSort)
		return
	}
	writeJSON(w, http.StatusOK, registry.Paginate(filtered, page, perPage))
}

// Get handles GET /api/households/{id}
func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	household, ok := h.load(w, r)
	if !ok {
		return
	}
	members, err := h.members.ListByHousehold(r.Context(), household.ID)
	if err != nil {
		internalError(w, r, h.logger, "list household members", err)
		return
	}
	if members == nil {
		members = []model.FamilyMember{}
	}
	history, err := h.worship.ListByHousehold(r.Context(), household.ID)
	if err != nil {
		internalError(w, r, h.logger, "list household worship", err)
		return
	}
	if history == nil {
		history = []model.WorshipHistory{}
	}
	writeJSON(w, http.StatusOK, model.HouseholdDetail{Household: *household, Members: members, Worship: history})
}

// Create handles POST /api/households
func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	household, err := h.households.Create(r.Context(), req.model())
	if err != nil {
		internalError(w, r, h.logger, "create household", err)
		return
	}
	h.notifier.Notify(websocket.EntityHousehold, websocket.ActionCreated, household.ID)
	writeJSON(w, http.StatusCreated, household)
}

// Update handles PUT /api/households/{id}
func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	var req householdRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	household, err := h.households.Update(r.Context(), existing.ID, req.model())
	if err != nil {
		internalError(w, r, h.logger, "update household", err)
		return
	}
	h.notifier.Notify(websocket.EntityHousehold, websocket.ActionUpdated, household.ID)
	writeJSON(w, http.StatusOK, household)
}

// Delete handles DELETE /api/households/{id}. Members and worship
// history go with it.
func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.households.Delete(r.Context(), existing.ID); err != nil {
		internalError(w, r, h.logger, "delete household", err)
		return
	}
	h.notifier.Notify(websocket.EntityHousehold, websocket.ActionDeleted, existing.ID)
	w.WriteHeader(http.StatusNoContent)
}

// SetHead handles PUT /api/households/{id}/head. A null member_id clears the head.
func (h *HouseholdHandler) SetHead(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	var req struct {
		MemberID *int64 `json:"member_id" validate:"omitempty,gt=0"`
	}
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	err := h.households.SetHead(r.Context(), existing.ID, req.MemberID)
	switch {
	case errors.Is(err, store.ErrHeadNotInHousehold):
		fieldError(w, "member_id", msgHeadNotMember)
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, msgHouseholdNotFound)
		return
	case err != nil:
		internalError(w, r, h.logger, "set household head", err)
		return
	}

	household, err := h.households.GetByID(r.Context(), existing.ID)
	if err != nil || household == nil {
		internalError(w, r, h.logger, "reload household", err)
		return
	}
	h.notifier.Notify(websocket.EntityHousehold, websocket.ActionUpdated, household.ID)
	writeJSON(w, http.StatusOK, household)
}

// load fetches the household named by the {id} path value, writing the
// error response itself when it cannot.
func (h *HouseholdHandler) load(w http.ResponseWriter, r *http.Request) (*model.Household, bool) {
	return loadHousehold(w, r, h.households, h.logger, "id")
}

func loadHousehold(w http.ResponseWriter, r *http.Request, hs *store.HouseholdStore, logger *slog.Logger, param string) (*model.Household, bool) {
	id, err := parsePathID(r, param)
	if err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidID)
		return nil, false
	}
	household, err := hs.GetByID(r.Context(), id)
	if err != nil {
		internalError(w, r, logger, "get household", err)
		return nil, false
	}
	if household == nil {
		writeError(w, http.StatusNotFound, msgHouseholdNotFound)
		return nil, false
	}
	return household, true
}
