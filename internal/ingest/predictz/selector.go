package predictz

import (
	"fmt"
	"strings"
	"time"
)

const (
	// BaseURL is the listing root; dated listings live under it
	BaseURL = "https://www.predictz.com/predictions/"

	SelectorToday    = "today"
	SelectorTomorrow = "tomorrow"

	selectorLayout = "20060102"
)

// SelectorError reports a date selector that is neither a keyword nor YYYYMMDD
type SelectorError struct {
	Input string
	Err   error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("invalid date selector %q (want today, tomorrow or YYYYMMDD): %v", e.Input, e.Err)
}

func (e *SelectorError) Unwrap() error { return e.Err }

// Selector identifies which listing page to scrape and the calendar day its
// matches are stamped with.
type Selector struct {
	Token string    // "today", "tomorrow" or the YYYYMMDD string
	Date  time.Time // midnight of the listing day
}

// ParseSelector resolves a raw selector against now. An empty selector means
// today. Explicit dates are interpreted in now's location.
func ParseSelector(raw string, now time.Time) (Selector, error) {
	raw = strings.TrimSpace(raw)
	today := midnight(now)

	switch strings.ToLower(raw) {
	case "", SelectorToday:
		return Selector{Token: SelectorToday, Date: today}, nil
	case SelectorTomorrow:
		return Selector{Token: SelectorTomorrow, Date: today.AddDate(0, 0, 1)}, nil
	}

	date, err := time.ParseInLocation(selectorLayout, raw, now.Location())
	if err != nil {
		return Selector{}, &SelectorError{Input: raw, Err: err}
	}
	return Selector{Token: raw, Date: date}, nil
}

// URL builds the listing URL for the selector under base
func (s Selector) URL(base string) string {
	if base == "" {
		base = BaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if s.Token == SelectorToday {
		return base
	}
	return base + s.Token + "/"
}

func (s Selector) String() string {
	return s.Token
}

// NormalizeDateInput accepts the looser formats API callers send
// (YYYY-MM-DD as well as the selector grammar) and returns a selector string.
func NormalizeDateInput(raw string) string {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.Format(selectorLayout)
	}
	return raw
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
