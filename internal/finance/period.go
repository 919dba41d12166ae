package finance

import (
	"time"

	"go-ops-dashboard/internal/apperr"
)

const dateLayout = "2006-01-02"

// MaxCustomYears bounds the length of a custom period
const MaxCustomYears = 10

// Window is the half-open interval [Start, End)
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Period is a named reporting window and the window it is compared against
type Period struct {
	Name     string `json:"name"`
	Current  Window `json:"current"`
	Previous Window `json:"previous"`
}

// Period names accepted by Resolve
const (
	PeriodToday     = "today"
	PeriodYesterday = "yesterday"
	Period7Days     = "7d"
	Period30Days    = "30d"
	Period90Days    = "90d"
	PeriodThisMonth = "this_month"
	PeriodLastMonth = "last_month"
	PeriodThisYear  = "this_year"
	PeriodCustom    = "custom"
)

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// precedingWindow is the window of equal length that ends where w starts
func precedingWindow(w Window) Window {
	length := w.End.Sub(w.Start)
	return Window{Start: w.Start.Add(-length), End: w.Start}
}

func lastDays(today time.Time, n int) Window {
	return Window{Start: today.AddDate(0, 0, -(n - 1)), End: today.AddDate(0, 0, 1)}
}

// Resolve turns a period name into concrete windows relative to now. Day
// boundaries follow now's location. Rolling periods include today; calendar
// periods are compared with the previous calendar month or year. For custom
// periods from and to are inclusive dates (YYYY-MM-DD), less than
// MaxCustomYears apart.
func Resolve(name, from, to string, now time.Time) (Period, error) {
	today := startOfDay(now)
	p := Period{Name: name}

	switch name {
	case "", PeriodThisMonth:
		p.Name = PeriodThisMonth
		start := startOfMonth(now)
		p.Current = Window{Start: start, End: start.AddDate(0, 1, 0)}
		p.Previous = Window{Start: start.AddDate(0, -1, 0), End: start}
		return p, nil
	case PeriodLastMonth:
		start := startOfMonth(now).AddDate(0, -1, 0)
		p.Current = Window{Start: start, End: start.AddDate(0, 1, 0)}
		p.Previous = Window{Start: start.AddDate(0, -1, 0), End: start}
		return p, nil
	case PeriodThisYear:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		p.Current = Window{Start: start, End: start.AddDate(1, 0, 0)}
		p.Previous = Window{Start: start.AddDate(-1, 0, 0), End: start}
		return p, nil
	case PeriodToday:
		p.Current = Window{Start: today, End: today.AddDate(0, 0, 1)}
	case PeriodYesterday:
		p.Current = Window{Start: today.AddDate(0, 0, -1), End: today}
	case Period7Days:
		p.Current = lastDays(today, 7)
	case Period30Days:
		p.Current = lastDays(today, 30)
	case Period90Days:
		p.Current = lastDays(today, 90)
	case PeriodCustom:
		start, err := time.ParseInLocation(dateLayout, from, now.Location())
		if err != nil {
			return p, apperr.Wrap(apperr.ErrInvalidInput, "from must be a date (YYYY-MM-DD)")
		}
		end, err := time.ParseInLocation(dateLayout, to, now.Location())
		if err != nil {
			return p, apperr.Wrap(apperr.ErrInvalidInput, "to must be a date (YYYY-MM-DD)")
		}
		if end.Before(start) {
			return p, apperr.Wrap(apperr.ErrInvalidInput, "to must not be before from")
		}
		if !end.Before(start.AddDate(MaxCustomYears, 0, 0)) {
			return p, apperr.Wrap(apperr.ErrInvalidInput, "a custom period spans at most %d years", MaxCustomYears)
		}
		p.Current = Window{Start: start, End: end.AddDate(0, 0, 1)}
	default:
		return p, apperr.Wrap(apperr.ErrInvalidInput, "unknown period %q", name)
	}

	p.Previous = precedingWindow(p.Current)
	return p, nil
}
