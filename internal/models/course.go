package models

const (
	CourseScheduled  = "scheduled"
	CourseInProgress = "in_progress"
	CourseCompleted  = "completed"
	CourseCancelled  = "cancelled"
)

// Course is one dated occurrence of a class. CourseDate is YYYY-MM-DD and the
// times are HH:MM:SS wall clock in the gym's time zone.
type Course struct {
	ID                  int64  `json:"id"`
	ClassID             int64  `json:"class_id"`
	GroupID             int64  `json:"group_id"`
	CourseDate          string `json:"course_date"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	MaxParticipants     int    `json:"max_participants"`
	CurrentParticipants int    `json:"current_participants"`
	Status              string `json:"status"`
	IsActive            bool   `json:"is_active"`
}
