package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/mGhassen/WildEnergy-sub005/internal/models"
)

const (
	dateLayout     = "2006-01-02"
	clockLayout    = "15:04:05"
	dateTimeLayout = dateLayout + " " + clockLayout
)

// courseWindow is a course occurrence resolved to absolute instants.
type courseWindow struct {
	Start time.Time
	End   time.Time
}

func courseWindowFor(course *models.Course, loc *time.Location) (courseWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(dateTimeLayout, course.CourseDate+" "+strings.TrimSpace(course.StartTime), loc)
	if err != nil {
		return courseWindow{}, fmt.Errorf("course %d start: %w", course.ID, err)
	}
	end, err := time.ParseInLocation(dateTimeLayout, course.CourseDate+" "+strings.TrimSpace(course.EndTime), loc)
	if err != nil {
		return courseWindow{}, fmt.Errorf("course %d end: %w", course.ID, err)
	}
	return courseWindow{Start: start, End: end}, nil
}

// Started is true from the start instant on.
func (w courseWindow) Started(now time.Time) bool {
	return !now.Before(w.Start)
}

// Finished is true once the end time has passed. Comparison is at whole
// seconds, matching the wall clock strings the sweep SQL uses.
func (w courseWindow) Finished(now time.Time) bool {
	return now.Truncate(time.Second).After(w.End)
}

// WithinCutoff is true once now reaches start minus window; the boundary itself
// counts as inside.
func (w courseWindow) WithinCutoff(now time.Time, window time.Duration) bool {
	return !now.Before(w.Start.Add(-window))
}

// localDateClock splits now into the gym-local date and wall clock strings the
// SQL comparisons use.
func localDateClock(now time.Time, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return local.Format(dateLayout), local.Format(clockLayout)
}
