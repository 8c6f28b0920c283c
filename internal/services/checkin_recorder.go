package services

import (
	"context"
	"strings"

	"github.com/mGhassen/WildEnergy-sub005/internal/models"
)

type registrationLifecycle interface {
	CheckIn(ctx context.Context, registrationID int64) (*models.Checkin, error)
	CheckOut(ctx context.Context, registrationID int64) (*CheckOutResult, error)
}

// CheckinRecorder resolves the QR token scanned at the front desk and hands the
// registration to the lifecycle service.
type CheckinRecorder struct {
	registrations RegistrationStore
	lifecycle     registrationLifecycle
}

func NewCheckinRecorder(tx Transactor, lifecycle registrationLifecycle) *CheckinRecorder {
	return &CheckinRecorder{
		registrations: tx.Stores().Registrations,
		lifecycle:     lifecycle,
	}
}

type ScanResult struct {
	Registration *models.Registration `json:"registration"`
	Checkin      *models.Checkin      `json:"checkin,omitempty"`
	NewStatus    string               `json:"new_status"`
}

func (r *CheckinRecorder) CheckInByCode(ctx context.Context, qrCode string) (*ScanResult, error) {
	registration, err := r.lookup(ctx, qrCode)
	if err != nil {
		return nil, err
	}

	checkin, err := r.lifecycle.CheckIn(ctx, registration.ID)
	if err != nil {
		return nil, err
	}
	registration.Status = models.RegistrationAttended
	return &ScanResult{
		Registration: registration,
		Checkin:      checkin,
		NewStatus:    models.RegistrationAttended,
	}, nil
}

func (r *CheckinRecorder) CheckOutByCode(ctx context.Context, qrCode string) (*ScanResult, error) {
	registration, err := r.lookup(ctx, qrCode)
	if err != nil {
		return nil, err
	}

	result, err := r.lifecycle.CheckOut(ctx, registration.ID)
	if err != nil {
		return nil, err
	}
	return &ScanResult{
		Registration: result.Registration,
		NewStatus:    result.NewStatus,
	}, nil
}

func (r *CheckinRecorder) lookup(ctx context.Context, qrCode string) (*models.Registration, error) {
	qrCode = strings.TrimSpace(qrCode)
	if qrCode == "" {
		return nil, ErrInvalidInput
	}
	registration, err := r.registrations.GetByQRCode(ctx, qrCode)
	if err != nil {
		return nil, notFoundAs(err, ErrRegistrationNotFound)
	}
	return registration, nil
}
