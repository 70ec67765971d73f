package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/giadinh/internal/lunar"
	"github.com/dukerupert/giadinh/internal/registry"
	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/zodiac"
)

// ToolsHandler serves the astrology and calendar lookups.
type ToolsHandler struct {
	members *store.FamilyMemberStore
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewToolsHandler(ms *store.FamilyMemberStore, clock clockwork.Clock, logger *slog.Logger) *ToolsHandler {
	return &ToolsHandler{members: ms, clock: clock, logger: logger}
}

func (h *ToolsHandler) currentYear() int {
	return lunar.FromSolar(h.clock.Now()).Year
}

// Zodiac handles GET /api/zodiac?birth_year=&gender=&year=
func (h *ToolsHandler) Zodiac(w http.ResponseWriter, r *http.Request) {
	birthYear, ok := queryInt(r, "birth_year", 0)
	if !ok || birthYear == 0 {
		fieldError(w, "birth_year", msgInvalidYear)
		return
	}
	year, ok := queryInt(r, "year", h.currentYear())
	if !ok {
		fieldError(w, "year", msgInvalidYear)
		return
	}
	gender := zodiac.Gender(r.URL.Query().Get("gender"))

	profile, err := zodiac.ProfileFor(birthYear, gender, year)
	switch {
	case errors.Is(err, zodiac.ErrInvalidGender):
		fieldError(w, "gender", msgInvalidGender)
	case errors.Is(err, zodiac.ErrInvalidYear):
		fieldError(w, "year", msgInvalidYear)
	case err != nil:
		internalError(w, r, h.logger, "zodiac profile", err)
	default:
		writeJSON(w, http.StatusOK, profile)
	}
}

// Stars handles GET /api/stars?year=
func (h *ToolsHandler) Stars(w http.ResponseWriter, r *http.Request) {
	year, ok := queryInt(r, "year", h.currentYear())
	if !ok || year < 1 || year > 9999 {
		fieldError(w, "year", msgInvalidYear)
		return
	}
	members, err := h.members.List(r.Context())
	if err != nil {
		internalError(w, r, h.logger, "list members", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":    year,
		"can_chi": zodiac.YearCanChi(year).String(),
		"members": registry.StarsForYear(members, year),
	})
}

// Lunar handles GET /api/lunar?date=YYYY-MM-DD. Without a date it
// converts today.
func (h *ToolsHandler) Lunar(w http.ResponseWriter, r *http.Request) {
	solar := h.clock.Now().In(lunar.Location)
	if s := r.URL.Query().Get("date"); s != "" {
		t, err := time.ParseInLocation(time.DateOnly, s, lunar.Location)
		if err != nil {
			fieldError(w, "date", msgInvalidDate)
			return
		}
		solar = t
	}
	d := lunar.FromSolar(solar)
	writeJSON(w, http.StatusOK, map[string]any{
		"solar":      solar.Format(time.DateOnly),
		"lunar":      d,
		"label":      d.String(),
		"can_chi":    zodiac.YearCanChi(d.Year).String(),
		"leap_month": lunar.LeapMonth(d.Year),
	})
}

// Solar handles GET /api/lunar/solar?day=&month=&year=&leap=
func (h *ToolsHandler) Solar(w http.ResponseWriter, r *http.Request) {
	day, ok1 := queryInt(r, "day", 0)
	month, ok2 := queryInt(r, "month", 0)
	year, ok3 := queryInt(r, "year", h.currentYear())
	leap, ok4 := queryBool(r, "leap")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		writeError(w, http.StatusBadRequest, msgInvalidLunarDate)
		return
	}
	d := lunar.Date{Day: day, Month: month, Year: year, Leap: leap != nil && *leap}

	t, err := lunar.ToSolar(d)
	switch {
	case errors.Is(err, lunar.ErrInvalidLeapMonth):
		fieldError(w, "leap", msgNotLeapMonth)
	case err != nil:
		writeError(w, http.StatusBadRequest, msgInvalidLunarDate)
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"lunar": d,
			"label": d.String(),
			"solar": t.Format(time.DateOnly),
		})
	}
}
