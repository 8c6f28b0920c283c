package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// CapacityTracker owns a course's participant counter.
type CapacityTracker struct {
	store CourseStore
}

func NewCapacityTracker(store CourseStore) *CapacityTracker {
	return &CapacityTracker{store: store}
}

// Reserve takes a seat in one conditional update and returns the new count.
func (t *CapacityTracker) Reserve(ctx context.Context, courseID int64) (int, error) {
	current, err := t.store.Reserve(ctx, courseID)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if _, lookupErr := t.store.GetByID(ctx, courseID); lookupErr != nil {
		return 0, notFoundAs(lookupErr, ErrCourseNotFound)
	}
	return 0, ErrCourseFull
}

func (t *CapacityTracker) Release(ctx context.Context, courseID int64) (int, error) {
	current, err := t.store.Release(ctx, courseID)
	if err != nil {
		return 0, notFoundAs(err, ErrCourseNotFound)
	}
	return current, nil
}
