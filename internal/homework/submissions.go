package homework

import (
	"context"
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/blob"
	"github.com/shrimpsizemoose/homeroom/internal/metrics"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

// UploadSubmission attaches files to the caller's own row. Rows and blobs
// are all-or-nothing.
func (s *Service) UploadSubmission(ctx context.Context, actor access.Actor, homeworkID int64, files []models.Upload, comment string) ([]models.StudentHomeworkFile, error) {
	if actor.IsTeacher() {
		return nil, fmt.Errorf("%w: only students submit homework", models.ErrPermissionDenied)
	}
	if len(files) == 0 {
		return nil, models.NewValidationError("no files", models.FieldError{Field: "files", Error: "required"})
	}

	hw, err := s.getHomework(ctx, s.store.Handle(), homeworkID)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CanReadHomework(ctx, actor, hw); err != nil {
		return nil, err
	}

	now := s.now()
	comment = strings.TrimSpace(comment)
	stager := blob.NewStager(s.blobs)
	out := make([]models.StudentHomeworkFile, 0, len(files))

	err = s.store.WithTx(ctx, func(tx store.DBTX) error {
		if _, _, err := s.ledger.EnsureRow(ctx, tx, homeworkID, actor.UserID); err != nil {
			return err
		}
		for _, f := range files {
			key, err := stager.Put(ctx, submissionScope, f)
			if err != nil {
				return err
			}
			file := models.StudentHomeworkFile{
				HomeworkID: homeworkID,
				StudentID:  actor.UserID,
				Filename:   f.Filename,
				FilePath:   key,
				FileType:   blob.KindOf(f.Filename),
				Comment:    comment,
				UploadedAt: now,
			}
			if err := s.store.CreateSubmissionFile(ctx, tx, &file); err != nil {
				return fmt.Errorf("failed to attach %q: %w", f.Filename, err)
			}
			out = append(out, file)
		}
		return nil
	})
	if err != nil {
		if rbErr := stager.Rollback(ctx); rbErr != nil {
			logger.Error.Printf("Leftover blobs after failed submission upload: %v", rbErr)
		}
		return nil, err
	}

	for _, f := range files {
		metrics.SubmissionFileSize.Observe(float64(len(f.Content)))
	}
	logger.Info.Printf("Student %d uploaded %d files for homework %d", actor.UserID, len(out), homeworkID)
	return out, nil
}

// DeleteSubmission removes one of the caller's own submission files. The
// blob goes after the row is gone.
func (s *Service) DeleteSubmission(ctx context.Context, actor access.Actor, fileID int64) error {
	file, err := s.store.GetSubmissionFile(ctx, s.store.Handle(), fileID)
	if err != nil {
		return fmt.Errorf("failed to get submission file %d: %w", fileID, err)
	}
	if file == nil {
		return fmt.Errorf("submission file %d: %w", fileID, models.ErrNotFound)
	}
	if file.StudentID != actor.UserID {
		return fmt.Errorf("%w: file %d belongs to student %d", models.ErrPermissionDenied, fileID, file.StudentID)
	}

	if err := s.store.DeleteSubmissionFile(ctx, s.store.Handle(), fileID); err != nil {
		return fmt.Errorf("failed to delete submission file %d: %w", fileID, err)
	}
	blob.DeleteAll(ctx, s.blobs, []string{file.FilePath})
	return nil
}

// ListSubmissions lists submission files of a homework. Teachers may pass
// studentID 0 for everyone; students only ever see their own.
func (s *Service) ListSubmissions(ctx context.Context, actor access.Actor, homeworkID, studentID int64) ([]models.StudentHomeworkFile, error) {
	hw, err := s.getHomework(ctx, s.store.Handle(), homeworkID)
	if err != nil {
		return nil, err
	}
	if !actor.IsTeacher() {
		if studentID != 0 && studentID != actor.UserID {
			return nil, fmt.Errorf("%w: user %d cannot list files of student %d", models.ErrPermissionDenied, actor.UserID, studentID)
		}
		studentID = actor.UserID
		if err := s.canTouchRow(ctx, s.store.Handle(), actor, hw); err != nil {
			return nil, err
		}
	}

	files, err := s.store.ListSubmissionFiles(ctx, s.store.Handle(), homeworkID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submission files: %w", err)
	}
	if files == nil {
		files = []models.StudentHomeworkFile{}
	}
	return files, nil
}
