package models

import "time"

const (
	RegistrationRegistered = "registered"
	RegistrationAttended   = "attended"
	RegistrationAbsent     = "absent"
	RegistrationCancelled  = "cancelled"
)

type Registration struct {
	ID               int64      `json:"id"`
	MemberID         int64      `json:"member_id"`
	CourseID         int64      `json:"course_id"`
	SubscriptionID   int64      `json:"subscription_id"`
	Status           string     `json:"status"`
	QRCode           string     `json:"qr_code"`
	RegistrationDate time.Time  `json:"registration_date"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	SessionRefunded  bool       `json:"session_refunded"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsLive reports whether the registration still blocks a new booking of the same course.
func (r *Registration) IsLive() bool {
	switch r.Status {
	case RegistrationRegistered, RegistrationAttended, RegistrationAbsent:
		return true
	default:
		return false
	}
}

type Checkin struct {
	ID              int64     `json:"id"`
	RegistrationID  int64     `json:"registration_id"`
	MemberID        int64     `json:"member_id"`
	CheckinTime     time.Time `json:"checkin_time"`
	SessionConsumed bool      `json:"session_consumed"`
}

type RegistrationDetail struct {
	Registration
	Course  *Course  `json:"course,omitempty"`
	Checkin *Checkin `json:"checkin,omitempty"`
}
