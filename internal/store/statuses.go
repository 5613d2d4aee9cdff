package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

func (s *BaseStore) GetStatus(ctx context.Context, q DBTX, homeworkID, studentID int64) (*models.HomeworkStatus, error) {
	var status models.HomeworkStatus
	found, err := s.getOne(ctx, q, &status, "get homework status", `
		SELECT id, homework_id, student_id, status, teacher_status, submitted_at, reviewed_at,
		       review_notes, created_at, updated_at
		FROM student_homework_statuses
		WHERE homework_id = ? AND student_id = ?
	`, homeworkID, studentID)
	if err != nil || !found {
		return nil, err
	}
	return &status, nil
}

// InsertStatus is a plain INSERT: a second row for the same (homework_id,
// student_id) fails with models.ErrConflict and callers decide what to do.
func (s *BaseStore) InsertStatus(ctx context.Context, q DBTX, status *models.HomeworkStatus) error {
	id, err := s.insertReturningID(ctx, q, "insert homework status", `
		INSERT INTO student_homework_statuses
			(homework_id, student_id, status, teacher_status, submitted_at, reviewed_at, review_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, status.HomeworkID, status.StudentID, status.Status, status.Review, status.SubmittedAt,
		status.ReviewedAt, status.ReviewNotes, status.CreatedAt, status.UpdatedAt)
	if err != nil {
		return err
	}
	status.ID = id
	return nil
}

func (s *BaseStore) UpdateStudentProgress(ctx context.Context, q DBTX, status *models.HomeworkStatus) error {
	return s.execAffecting(ctx, q, "update student progress", `
		UPDATE student_homework_statuses
		SET status = ?, submitted_at = ?, updated_at = ?
		WHERE id = ?
	`, status.Status, status.SubmittedAt, status.UpdatedAt, status.ID)
}

func (s *BaseStore) UpdateReview(ctx context.Context, q DBTX, status *models.HomeworkStatus) error {
	return s.execAffecting(ctx, q, "update review", `
		UPDATE student_homework_statuses
		SET teacher_status = ?, review_notes = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ?
	`, status.Review, status.ReviewNotes, status.ReviewedAt, status.UpdatedAt, status.ID)
}

func (s *BaseStore) ListStatuses(ctx context.Context, q DBTX, homeworkID int64) ([]models.StatusView, error) {
	var statuses []models.StatusView
	err := sqlx.SelectContext(ctx, q, &statuses, s.Converter(`
		SELECT st.id, st.homework_id, st.student_id, st.status, st.teacher_status, st.submitted_at,
		       st.reviewed_at, st.review_notes, st.created_at, st.updated_at,
		       u.first_name, u.last_name
		FROM student_homework_statuses st
		JOIN users u ON u.id = st.student_id
		WHERE st.homework_id = ?
		ORDER BY u.last_name, u.first_name, st.student_id
	`), homeworkID)
	if err != nil {
		return nil, s.fail("list homework statuses", err)
	}
	return statuses, nil
}
