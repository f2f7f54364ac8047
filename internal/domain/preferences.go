package domain

import "fmt"

// Preferences are the user's hard constraints on recommended courses.
// Zero values mean "no constraint".
type Preferences struct {
	MinRating      float64
	MinWeeklyHours float64
	MaxWeeklyHours float64
}

// Validate checks the preference values for consistency.
func (p Preferences) Validate() error {
	if p.MinRating < 0 || p.MinRating > 5 {
		return fmt.Errorf("%w: min_rating %.2f outside [0, 5]", ErrValidation, p.MinRating)
	}
	if p.MinWeeklyHours < 0 {
		return fmt.Errorf("%w: min_weekly_hours must not be negative", ErrValidation)
	}
	if p.MaxWeeklyHours < 0 {
		return fmt.Errorf("%w: max_weekly_hours must not be negative", ErrValidation)
	}
	if p.MaxWeeklyHours > 0 && p.MinWeeklyHours > p.MaxWeeklyHours {
		return fmt.Errorf("%w: min_weekly_hours %.1f exceeds max_weekly_hours %.1f",
			ErrValidation, p.MinWeeklyHours, p.MaxWeeklyHours)
	}
	return nil
}

// Matches reports whether a document satisfies the hard constraints.
// Unknown metadata (zero hours or rating) passes: a missing estimate is not
// grounds for exclusion.
func (p Preferences) Matches(d Document) bool {
	if p.MinRating > 0 && d.Rating() > 0 && d.Rating() < p.MinRating {
		return false
	}
	if d.WeeklyHours() > 0 {
		if p.MaxWeeklyHours > 0 && d.WeeklyHours() > p.MaxWeeklyHours {
			return false
		}
		if p.MinWeeklyHours > 0 && d.WeeklyHours() < p.MinWeeklyHours {
			return false
		}
	}
	return true
}
