package domain

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// London is the organisation's local zone; calendar dates are taken in it.
var London = loadLondon()

func loadLondon() *time.Location {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		return time.UTC
	}
	return loc
}

// Date returns midnight UTC for a calendar day. Event and finance dates are stored this way.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// CivilDate returns the London calendar date of t as a Date.
func CivilDate(t time.Time) time.Time {
	l := t.In(London)
	return Date(l.Year(), l.Month(), l.Day())
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange normalises both ends to calendar dates and requires start ≤ end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{
		Start: Date(start.Year(), start.Month(), start.Day()),
		End:   Date(end.Year(), end.Month(), end.Day()),
	}
	if r.Start.After(r.End) {
		return DateRange{}, ErrInvalidDateRange
	}
	return r, nil
}

// Contains reports whether the calendar date of t falls in the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Date(t.Year(), t.Month(), t.Day())
	return !d.Before(r.Start) && !d.After(r.End)
}

// EndExclusive is the first instant after the range, for half-open SQL predicates.
func (r DateRange) EndExclusive() time.Time {
	return r.End.AddDate(0, 0, 1)
}

// TaxYearStarting returns 6 April of year to 5 April of the following year.
func TaxYearStarting(year int) DateRange {
	return DateRange{
		Start: Date(year, time.April, 6),
		End:   Date(year+1, time.April, 5),
	}
}

// TaxYearFor returns the UK tax year containing the London date of t.
func TaxYearFor(t time.Time) DateRange {
	d := CivilDate(t)
	year := d.Year()
	if d.Before(Date(year, time.April, 6)) {
		year--
	}
	return TaxYearStarting(year)
}

// TaxYearLabel renders the tax year starting in the range's start year, e.g. "2024-25".
func (r DateRange) TaxYearLabel() string {
	y := r.Start.Year()
	if r.Start.Before(Date(y, time.April, 6)) {
		y--
	}
	return fmt.Sprintf("%d-%02d", y, (y+1)%100)
}
