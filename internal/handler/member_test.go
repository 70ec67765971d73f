package handler

import (
	"net/http"
	"testing"

	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/registry"
	"github.com/dukerupert/giadinh/internal/websocket"
	"github.com/dukerupert/giadinh/internal/zodiac"
)

func newMemberHandler(e *testEnv) *MemberHandler {
	return NewMemberHandler(e.households, e.members, e.validator, e.notifier, e.clock, testLogger)
}

func TestMemberCreate(t *testing.T) {
	e := setupEnv(t)
	h := newMemberHandler(e)
	hh := e.household(t, "Hộ Nguyễn")

	rec := serve(h.Create, request("POST", "/", map[string]any{
		"full_name":    "Nguyễn Thị Hoa",
		"birth_year":   1988,
		"gender":       "female",
		"relationship": "Con gái",
	}, "id", idStr(hh.ID)))
	expectStatus(t, rec, http.StatusCreated)
	got := decode[model.FamilyMember](t, rec)
	if got.HouseholdID != hh.ID || !got.IsAlive || got.Gender != zodiac.Female {
		t.Errorf("member = %+v", got)
	}
	if ev := e.notifier.last(); ev.entity != websocket.EntityMember || ev.action != websocket.ActionCreated {
		t.Errorf("notification = %+v", ev)
	}
}

func TestMemberCreateDeceased(t *testing.T) {
	e := setupEnv(t)
	h := newMemberHandler(e)
	hh := e.household(t, "Hộ Nguyễn")

	rec := serve(h.Create, request("POST", "/", map[string]any{
		"full_name":         "Nguyễn Văn Tổ",
		"birth_year":        1920,
		"gender":            "male",
		"is_alive":          false,
		"death_lunar_day":   12,
		"death_lunar_month": 3,
		"death_year":        1990,
	}, "id", idStr(hh.ID)))
	expectStatus(t, rec, http.StatusCreated)
	got := decode[model.FamilyMember](t, rec)
	if !got.HasDeathDate() || *got.DeathLunarDay != 12 {
		t.Errorf("member = %+v", got)
	}
}

func TestMemberCreateValidation(t *testing.T) {
	e := setupEnv(t)
	h := newMemberHandler(e)
	hh := e.household(t, "Hộ Nguyễn")

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"blank name", map[string]any{"full_name": " ", "birth_year": 1990, "gender": "male"}, "full_name"},
		{"bad gender", map[string]any{"full_name": "A", "birth_year": 1990, "gender": "other"}, "gender"},
		{"missing year", map[string]any{"full_name": "A", "gender": "male"}, "birth_year"},
		{"day out of range", map[string]any{"full_name": "A", "birth_year": 1900, "gender": "male", "is_alive": false, "death_lunar_day": 31, "death_lunar_month": 1}, "death_lunar_day"},
		{"day without month", map[string]any{"full_name": "A", "birth_year": 1900, "gender": "male", "is_alive": false, "death_lunar_day": 3}, "death_lunar_day"},
		{"death before birth", map[string]any{"full_name": "A", "birth_year": 1950, "gender": "male", "is_alive": false, "death_year": 1940}, "death_year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h.Create, request("POST", "/", tt.body, "id", idStr(hh.ID)))
			expectFieldError(t, rec, tt.field)
		})
	}
}

func TestMemberCreateUnknownHousehold(t *testing.T) {
	e := setupEnv(t)
	h := newMemberHandler(e)

	rec := serve(h.Create, request("POST", "/", map[string]any{"full_name": "A", "birth_year": 1990, "gender": "male"}, "id", "42"))
	expectStatus(t, rec, http.StatusNotFound)
}

func TestMemberLivingDropsDeathDate(t *testing.T) {
	e := setupEnv(t)
	h := newMemberHandler(e)
	hh := e.household(t, "Hộ Nguyễn")
	m := e.member(t, hh.ID, "Nguyễn Văn Sống", 1970, zodiac.Male)

	rec := serve(h.Update, request("PUT", "/", map[string]any{
		"full_name":         "Nguyễn Văn Sống",
		"birth_year":        1970,
		"gender":            "male",
		"is_alive":          true,
		"death_lunar_day":   5,
		"death_lunar_month": 5,
	}, "id", idStr(m.ID)))
	expectStatus(t, rec, http.StatusOK)
	got := decode[model.FamilyMember](t, rec)
	if got.DeathLunarDay != nil || got.DeathLunarMonth != nil {
		t.Errorf("living member kept a death date: %+v", got)
	}
}

func TestMemberList(t *testing.T) {
	e := setupEnv(t)
	h := newMemberHandler(e)
	a := e.household(t, "Hộ A")
	b := e.household(t, "Hộ B")
	e.member(t, a.ID, "Nguyễn Văn Bảo", 1950, zodiac.Male)
	e.member(t, a.ID, "Trần Thị Ánh", 1990, zodiac.Female)
	e.member(t, b.ID, "Phạm Văn Cường", 2000, zodiac.Male)

	rec := serve(h.List, request("GET", "/api/members?gender=male&birth_year_from=1960", nil))
	expectStatus(t, rec, http.StatusOK)
	page := decode[registry.Page[model.FamilyMember]](t, rec)
	if page.Total != 1 || page.Items[0].FullName != "Phạm Văn Cường" {
		t.Errorf("filtered = %+v", page.Items)
	}

	rec = serve(h.List, request("GET", "/api/members?household_id="+idStr(a.ID)+"&sort=name", nil))
	expectStatus(t, rec, http.StatusOK)
	page = decode[registry.Page[model.FamilyMember]](t, rec)
	// Sorted by given name: Ánh before Bảo.
	if page.Total != 2 || page.Items[0].FullName != "Trần Thị Ánh" {
		t.Errorf("sorted = %+v", page.Items)
	}

	rec = serve(h.List, request("GET", "/api/members?q=cuong", nil))
	page = decode[registry.Page[model.FamilyMember]](t, rec)
	if page.Total != 1 {
		t.Errorf("search total = %d, want 1", page.Total)
	}

	rec = serve(h.List, request("GET", "/api/members?gender=x", nil))
	expectFieldError(t, rec, "gender")

	rec = serve(h.List, request("GET", "/api/members?alive=maybe", nil))
	expectFieldError(t, rec, "alive")
}

func TestMemberDeleteClearsHead(t *testing.T) {
	e := setupEnv(t)
	h := newMemberHandler(e)
	hh := e.household(t, "Hộ Nguyễn")
	m := e.member(t, hh.ID, "Nguyễn Văn Chủ", 1950, zodiac.Male)
	if err := e.households.SetHead(t.Context(), hh.ID, &m.ID); err != nil {
		t.Fatalf("SetHead: %v", err)
	}

	rec := serve(h.Delete, request("DELETE", "/", nil, "id", idStr(m.ID)))
	expectStatus(t, rec, http.StatusNoContent)

	got, err := e.households.GetByID(t.Context(), hh.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.HeadMemberID != nil {
		t.Error("household head should be cleared")
	}
}

func TestMemberUpdateSortOrder(t *testing.T) {
	e := setupEnv(t)
	h := newMemberHandler(e)
	hh := e.household(t, "Hộ Nguyễn")
	other := e.household(t, "Hộ Khác")
	m1 := e.member(t, hh.ID, "Một", 1950, zodiac.Male)
	m2 := e.member(t, hh.ID, "Hai", 1952, zodiac.Female)
	stranger := e.member(t, other.ID, "Ba", 1960, zodiac.Male)

	rec := serve(h.UpdateSortOrder, request("PUT", "/", map[string][]int64{"ids": {m2.ID, m1.ID}}, "id", idStr(hh.ID)))
	expectStatus(t, rec, http.StatusNoContent)

	list, err := e.members.ListByHousehold(t.Context(), hh.ID)
	if err != nil {
		t.Fatalf("ListByHousehold: %v", err)
	}
	if list[0].ID != m2.ID {
		t.Errorf("first member = %d, want %d", list[0].ID, m2.ID)
	}
	if ev := e.notifier.last(); ev.action != websocket.ActionReordered {
		t.Errorf("notification = %+v", ev)
	}

	rec = serve(h.UpdateSortOrder, request("PUT", "/", map[string][]int64{"ids": {m1.ID, stranger.ID}}, "id", idStr(hh.ID)))
	expectFieldError(t, rec, "ids")

	rec = serve(h.UpdateSortOrder, request("PUT", "/", map[string][]int64{"ids": {}}, "id", idStr(hh.ID)))
	expectFieldError(t, rec, "ids")
}

func TestMemberHoroscope(t *testing.T) {
	e := setupEnv(t)
	h := newMemberHandler(e)
	hh := e.household(t, "Hộ Nguyễn")
	m := e.member(t, hh.ID, "Nguyễn Văn Giáp", 1984, zodiac.Male)

	rec := serve(h.Horoscope, request("GET", "/?year=2024", nil, "id", idStr(m.ID)))
	expectStatus(t, rec, http.StatusOK)
	got := decode[struct {
		Member  model.FamilyMember `json:"member"`
		Profile zodiac.Profile     `json:"profile"`
	}](t, rec)
	if got.Profile.CanChi != "Giáp Tý" || got.Profile.NominalAge != 41 || got.Profile.Year != 2024 {
		t.Errorf("profile = %+v", got.Profile)
	}

	// Without a year the current lunar year is used.
	rec = serve(h.Horoscope, request("GET", "/", nil, "id", idStr(m.ID)))
	expectStatus(t, rec, http.StatusOK)
	got = decode[struct {
		Member  model.FamilyMember `json:"member"`
		Profile zodiac.Profile     `json:"profile"`
	}](t, rec)
	if got.Profile.Year != 2026 {
		t.Errorf("default year = %d, want 2026", got.Profile.Year)
	}

	rec = serve(h.Horoscope, request("GET", "/?year=1900", nil, "id", idStr(m.ID)))
	expectFieldError(t, rec, "year")
}
