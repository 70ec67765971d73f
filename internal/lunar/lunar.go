// Package lunar converts between the Gregorian calendar and the Vietnamese
// lunar calendar. Month boundaries come from an astronomical approximation of
// new moons and solar longitude computed for UTC+7.
package lunar

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidDate      = errors.New("lunar: invalid date")
	ErrInvalidLeapMonth = errors.New("lunar: month is not a leap month in that year")
)

// Location is the time zone the Vietnamese calendar is computed in.
var Location = time.FixedZone("ICT", 7*60*60)

const (
	timeZone    = 7.0
	synodic     = 29.530588853
	epochNewMon = 2415021.076998695
)

// Date is a day in the lunar calendar.
type Date struct {
	Day   int  `json:"day"`
	Month int  `json:"month"`
	Year  int  `json:"year"`
	Leap  bool `json:"leap"`
}

func (d Date) String() string {
	s := fmt.Sprintf("%d/%d/%d", d.Day, d.Month, d.Year)
	if d.Leap {
		s += " (nhuận)"
	}
	return s
}

func (d Date) validate() error {
	if d.Day < 1 || d.Day > 30 || d.Month < 1 || d.Month > 12 || d.Year < 1 {
		return fmt.Errorf("%w: %s", ErrInvalidDate, d)
	}
	return nil
}

// FromSolar returns the lunar date of the calendar day t falls on in Vietnam.
func FromSolar(t time.Time) Date {
	t = t.In(Location)
	return solarToLunar(jdFromDate(t.Day(), int(t.Month()), t.Year()))
}

// ToSolar returns midnight (Vietnam time) of the solar day matching d.
func ToSolar(d Date) (time.Time, error) {
	start, length, err := monthStart(d.Year, d.Month, d.Leap)
	if err != nil {
		return time.Time{}, err
	}
	if d.Day < 1 || d.Day > length {
		return time.Time{}, fmt.Errorf("%w: %s has only %d days", ErrInvalidDate, d, length)
	}
	return fromJD(start + d.Day - 1), nil
}

// DaysInMonth returns 29 or 30.
func DaysInMonth(year, month int, leap bool) (int, error) {
	_, length, err := monthStart(year, month, leap)
	return length, err
}

// LeapMonth returns the leap month of a lunar year, or 0 if the year has none.
func LeapMonth(year int) int {
	if m := leapMonthAfter(year - 1); m >= 1 && m <= 10 {
		return m
	}
	if m := leapMonthAfter(year); m >= 11 {
		return m
	}
	return 0
}

// NextAnniversary returns the first day on or after from (by calendar day)
// whose lunar date is day/month in a regular month. Day 30 moves to the 29th
// in years where that month is short.
func NextAnniversary(day, month int, from time.Time) (time.Time, error) {
	if err := (Date{Day: day, Month: month, Year: 1}).validate(); err != nil {
		return time.Time{}, err
	}
	from = from.In(Location)
	today := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, Location)

	for y := FromSolar(today).Year; ; y++ {
		start, length, err := monthStart(y, month, false)
		if err != nil {
			return time.Time{}, err
		}
		d := min(day, length)
		t := fromJD(start + d - 1)
		if !t.Before(today) {
			return t, nil
		}
	}
}

// AnniversaryIn returns the solar date of day/month in lunar year, with the
// same short-month fallback as NextAnniversary.
func AnniversaryIn(year, day, month int) (time.Time, error) {
	if err := (Date{Day: day, Month: month, Year: year}).validate(); err != nil {
		return time.Time{}, err
	}
	start, length, err := monthStart(year, month, false)
	if err != nil {
		return time.Time{}, err
	}
	return fromJD(start + min(day, length) - 1), nil
}

// monthStart returns the julian day number of the first day of a lunar month
// and the month's length.
func monthStart(year, month int, leap bool) (int, int, error) {
	d := Date{Day: 1, Month: month, Year: year, Leap: leap}
	if err := d.validate(); err != nil {
		return 0, 0, err
	}

	var a11, b11 int
	if month < 11 {
		a11 = lunarMonth11(year - 1)
		b11 = lunarMonth11(year)
	} else {
		a11 = lunarMonth11(year)
		b11 = lunarMonth11(year + 1)
	}
	k := int(math.Floor(0.5 + (float64(a11)-epochNewMon)/synodic))
	off := month - 11
	if off < 0 {
		off += 12
	}

	if b11-a11 > 365 {
		leapOff := leapMonthOffset(a11)
		leapMonth := leapOff - 2
		if leapMonth <= 0 {
			leapMonth += 12
		}
		if leap && month != leapMonth {
			return 0, 0, fmt.Errorf("%w: %d/%d", ErrInvalidLeapMonth, month, year)
		}
		if leap || off >= leapOff {
			off++
		}
	} else if leap {
		return 0, 0, fmt.Errorf("%w: %d/%d", ErrInvalidLeapMonth, month, year)
	}

	start := newMoonDay(k + off)
	return start, newMoonDay(k+off+1) - start, nil
}

// leapMonthAfter returns the leap month between month 11 of year and month
// 11 of the following year, or 0.
func leapMonthAfter(year int) int {
	a11 := lunarMonth11(year)
	if lunarMonth11(year+1)-a11 <= 365 {
		return 0
	}
	m := leapMonthOffset(a11) - 2
	if m <= 0 {
		m += 12
	}
	return m
}

func solarToLunar(dayNumber int) Date {
	// The mean-lunation estimate of k can be off by one either way against
	// the corrected new moon, so settle on the last new moon <= dayNumber.
	k := int(math.Floor((float64(dayNumber) - epochNewMon) / synodic))
	start := newMoonDay(k)
	for start > dayNumber {
		k--
		start = newMoonDay(k)
	}
	for next := newMoonDay(k + 1); next <= dayNumber; next = newMoonDay(k + 1) {
		k++
		start = next
	}

	_, _, yy := jdToDate(dayNumber)
	a11 := lunarMonth11(yy)
	b11 := a11
	var year int
	if a11 >= start {
		year = yy
		a11 = lunarMonth11(yy - 1)
	} else {
		year = yy + 1
		b11 = lunarMonth11(yy + 1)
	}

	d := Date{Day: dayNumber - start + 1}
	diff := (start - a11) / 29
	d.Month = diff + 11
	if b11-a11 > 365 {
		leapDiff := leapMonthOffset(a11)
		if diff >= leapDiff {
			d.Month = diff + 10
			d.Leap = diff == leapDiff
		}
	}
	if d.Month > 12 {
		d.Month -= 12
	}
	if d.Month >= 11 && diff < 4 {
		year--
	}
	d.Year = year
	return d
}

// lunarMonth11 returns the day number of the start of lunar month 11 (the
// month containing the winter solstice) of a solar year.
func lunarMonth11(year int) int {
	off := float64(jdFromDate(31, 12, year) - 2415021)
	k := int(math.Floor(off / synodic))
	nm := newMoonDay(k)
	if sunLongitude(nm) >= 9 {
		nm = newMoonDay(k - 1)
	}
	return nm
}

// leapMonthOffset returns how many months after month 11 the leap month
// falls, given the start of month 11 of a year with 13 months.
func leapMonthOffset(a11 int) int {
	k := int(math.Floor((float64(a11)-epochNewMon)/synodic + 0.5))
	i := 1
	arc := sunLongitude(newMoonDay(k + i))
	for {
		last := arc
		i++
		arc = sunLongitude(newMoonDay(k + i))
		if arc == last || i >= 14 {
			break
		}
	}
	return i - 1
}

func fromJD(jd int) time.Time {
	d, m, y := jdToDate(jd)
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, Location)
}
