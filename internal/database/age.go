package database

import "time"

// AgeWindow bounds birthdays inclusively: BornAfter <= birthday <= BornBefore.
type AgeWindow struct {
	BornAfter  time.Time
	BornBefore time.Time
}

// NewAgeWindow returns the birthdays of people who are at least minAge and at
// most maxAge years old on the calendar day of now.
// A person turning minAge today is included, as is a person turning maxAge today.
func NewAgeWindow(now time.Time, minAge, maxAge int) AgeWindow {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return AgeWindow{
		BornAfter:  today.AddDate(-maxAge, 0, 0),
		BornBefore: today.AddDate(-minAge, 0, 0),
	}
}

// Contains reports whether birthday falls inside the window. A nil birthday never does.
func (w AgeWindow) Contains(birthday *time.Time) bool {
	if birthday == nil {
		return false
	}
	y, m, d := birthday.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return !day.Before(w.BornAfter) && !day.After(w.BornBefore)
}

// Empty reports whether no birthday can satisfy the window (minAge > maxAge).
func (w AgeWindow) Empty() bool {
	return w.BornAfter.After(w.BornBefore)
}
