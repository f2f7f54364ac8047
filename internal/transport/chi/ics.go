package chi

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// semesterWeeks is the recurrence count for a course calendar event.
const semesterWeeks = 15

var icsDays = map[string]string{
	"Monday":    "MO",
	"Tuesday":   "TU",
	"Wednesday": "WE",
	"Thursday":  "TH",
	"Friday":    "FR",
}

var icsWeekdays = map[string]time.Weekday{
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
}

// calendarEvent is one weekly course meeting to render as iCalendar.
type calendarEvent struct {
	ID          string
	Title       string
	Day         string
	StartTime   string
	EndTime     string
	Location    string
	Description string
}

func (e calendarEvent) validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if _, ok := icsDays[e.Day]; !ok {
		return fmt.Errorf("day must be a weekday name, got %q", e.Day)
	}
	if _, err := time.Parse("15:04", e.StartTime); err != nil {
		return fmt.Errorf("start_time must be HH:MM, got %q", e.StartTime)
	}
	if _, err := time.Parse("15:04", e.EndTime); err != nil {
		return fmt.Errorf("end_time must be HH:MM, got %q", e.EndTime)
	}
	return nil
}

// renderICS produces an iCalendar document with a weekly recurrence for one
// semester, starting at the next occurrence of the event's weekday.
func renderICS(e calendarEvent, now time.Time) (string, error) {
	if err := e.validate(); err != nil {
		return "", err
	}

	diff := (int(icsWeekdays[e.Day]) - int(now.Weekday()) + 7) % 7
	eventDate := now.AddDate(0, 0, diff)

	start, _ := time.Parse("15:04", e.StartTime)
	end, _ := time.Parse("15:04", e.EndTime)

	startDT := time.Date(eventDate.Year(), eventDate.Month(), eventDate.Day(),
		start.Hour(), start.Minute(), 0, 0, now.Location())
	endDT := time.Date(eventDate.Year(), eventDate.Month(), eventDate.Day(),
		end.Hour(), end.Minute(), 0, 0, now.Location())

	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	b.WriteString("PRODID:-//CMU Scotty Scheduler//EN\r\n")
	b.WriteString("BEGIN:VEVENT\r\n")
	fmt.Fprintf(&b, "UID:%s@cmu.edu\r\n", uuid.NewString())
	fmt.Fprintf(&b, "DTSTAMP:%s\r\n", now.UTC().Format("20060102T150405Z"))
	fmt.Fprintf(&b, "DTSTART:%s\r\n", startDT.Format("20060102T150405"))
	fmt.Fprintf(&b, "DTEND:%s\r\n", endDT.Format("20060102T150405"))
	fmt.Fprintf(&b, "SUMMARY:%s (%s)\r\n", escapeICS(e.Title), escapeICS(e.ID))
	fmt.Fprintf(&b, "LOCATION:%s\r\n", escapeICS(e.Location))
	fmt.Fprintf(&b, "DESCRIPTION:%s\r\n", escapeICS(e.Description))
	fmt.Fprintf(&b, "RRULE:FREQ=WEEKLY;COUNT=%d;BYDAY=%s\r\n", semesterWeeks, icsDays[e.Day])
	b.WriteString("END:VEVENT\r\n")
	b.WriteString("END:VCALENDAR\r\n")
	return b.String(), nil
}

// escapeICS escapes text per RFC 5545 (commas, semicolons, backslashes, newlines).
func escapeICS(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\n", `\n`,
	)
	return r.Replace(s)
}
