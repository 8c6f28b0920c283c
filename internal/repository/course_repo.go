package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/mGhassen/WildEnergy-sub005/internal/models"
)

const courseColumns = `
	c.id, c.class_id, cat.group_id, c.course_date::text, c.start_time::text, c.end_time::text,
	c.max_participants, c.current_participants, c.status, c.is_active
`

const courseFrom = `
	FROM courses c
	JOIN classes cl ON cl.id = c.class_id
	JOIN categories cat ON cat.id = cl.category_id
`

type CourseRepository struct {
	db DBTX
}

func NewCourseRepository(db DBTX) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) GetByID(ctx context.Context, courseID int64) (*models.Course, error) {
	query := `SELECT ` + courseColumns + courseFrom + `WHERE c.id = $1`
	return scanCourse(r.db.QueryRow(ctx, query, courseID))
}

// GetByIDForUpdate locks the course row only; the catalog rows joined for the
// group stay unlocked.
func (r *CourseRepository) GetByIDForUpdate(ctx context.Context, courseID int64) (*models.Course, error) {
	query := `SELECT ` + courseColumns + courseFrom + `WHERE c.id = $1 FOR UPDATE OF c`
	return scanCourse(r.db.QueryRow(ctx, query, courseID))
}

// Reserve takes one seat if one is free and returns the new participant count.
// pgx.ErrNoRows means the course is full or does not exist.
func (r *CourseRepository) Reserve(ctx context.Context, courseID int64) (int, error) {
	query := `
		UPDATE courses
		SET current_participants = current_participants + 1, updated_at = NOW()
		WHERE id = $1 AND current_participants < max_participants
		RETURNING current_participants
	`
	var current int
	if err := r.db.QueryRow(ctx, query, courseID).Scan(&current); err != nil {
		return 0, err
	}
	return current, nil
}

// Release frees one seat, never going below zero.
func (r *CourseRepository) Release(ctx context.Context, courseID int64) (int, error) {
	query := `
		UPDATE courses
		SET current_participants = GREATEST(current_participants - 1, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING current_participants
	`
	var current int
	if err := r.db.QueryRow(ctx, query, courseID).Scan(&current); err != nil {
		return 0, err
	}
	return current, nil
}

func scanCourse(row pgx.Row) (*models.Course, error) {
	var course models.Course
	err := row.Scan(
		&course.ID,
		&course.ClassID,
		&course.GroupID,
		&course.CourseDate,
		&course.StartTime,
		&course.EndTime,
		&course.MaxParticipants,
		&course.CurrentParticipants,
		&course.Status,
		&course.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &course, nil
}
