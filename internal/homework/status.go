package homework

import (
	"context"
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

// canTouchRow lets a student reach their row when it already exists or when
// the homework is currently addressed to them. The second case covers rows
// that fan-out never created.
func (s *Service) canTouchRow(ctx context.Context, q store.DBTX, actor access.Actor, hw *models.Homework) error {
	if actor.IsTeacher() {
		return nil
	}
	existing, err := s.store.GetStatus(ctx, q, hw.ID, actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	if existing != nil {
		return nil
	}
	return s.gate.CanReadHomework(ctx, actor, hw)
}

// EnsureRow returns the status row for (homeworkID, studentID), creating it
// if needed. Concurrent callers all get the same row.
func (s *Service) EnsureRow(ctx context.Context, actor access.Actor, homeworkID, studentID int64) (*models.HomeworkStatus, error) {
	if err := s.gate.CanReadStatus(actor, studentID); err != nil {
		return nil, err
	}
	hw, err := s.getHomework(ctx, s.store.Handle(), homeworkID)
	if err != nil {
		return nil, err
	}
	if err := s.canTouchRow(ctx, s.store.Handle(), actor, hw); err != nil {
		return nil, err
	}
	status, _, err := s.ledger.EnsureRow(ctx, s.store.Handle(), homeworkID, studentID)
	return status, err
}

// StudentUpdate sets the progress of the caller's own row. Every update
// stamps the submission time and any state may follow any other.
func (s *Service) StudentUpdate(ctx context.Context, actor access.Actor, homeworkID, studentID int64, state models.ProgressState) (*models.HomeworkStatus, error) {
	if err := s.gate.CanWriteProgress(actor, studentID); err != nil {
		return nil, err
	}
	if !state.Valid() {
		return nil, models.NewValidationError("invalid status", models.FieldError{Field: "status", Error: "oneof"})
	}

	// the gate reads memberships on its own connection, so check before the tx
	hw, err := s.getHomework(ctx, s.store.Handle(), homeworkID)
	if err != nil {
		return nil, err
	}
	if err := s.canTouchRow(ctx, s.store.Handle(), actor, hw); err != nil {
		return nil, err
	}

	var status *models.HomeworkStatus
	err = s.store.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		status, _, err = s.ledger.EnsureRow(ctx, tx, homeworkID, studentID)
		if err != nil {
			return err
		}

		now := s.now()
		status.Status = state
		status.SubmittedAt = &now
		status.UpdatedAt = now
		if err := s.store.UpdateStudentProgress(ctx, tx, status); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug.Printf("Student %d set homework %d to %s", studentID, homeworkID, state)
	return status, nil
}

// TeacherReview records the teacher's verdict, creating the row first when
// the student never touched it.
func (s *Service) TeacherReview(ctx context.Context, actor access.Actor, homeworkID, studentID int64, state models.ReviewState, notes *string) (*models.HomeworkStatus, error) {
	if err := s.gate.CanWriteReview(actor); err != nil {
		return nil, err
	}
	if !state.Valid() {
		return nil, models.NewValidationError("invalid teacher status", models.FieldError{Field: "teacher_status", Error: "oneof"})
	}
	if notes != nil {
		trimmed := strings.TrimSpace(*notes)
		notes = &trimmed
	}

	var status *models.HomeworkStatus
	err := s.store.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		status, _, err = s.ledger.EnsureRow(ctx, tx, homeworkID, studentID)
		if err != nil {
			return err
		}

		now := s.now()
		status.Review = state
		status.ReviewNotes = notes
		status.ReviewedAt = &now
		status.UpdatedAt = now
		if err := s.store.UpdateReview(ctx, tx, status); err != nil {
			return fmt.Errorf("failed to update review: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info.Printf("Teacher %d reviewed homework %d of student %d: %s", actor.UserID, homeworkID, studentID, state)
	return status, nil
}
