// Package homework is the assignment catalog, the per-student status ledger
// and the fan-out that connects them.
package homework

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/blob"
	"github.com/shrimpsizemoose/homeroom/internal/lateness"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

const (
	homeworkScope   = "homework"
	submissionScope = "submissions"
)

type Service struct {
	store  store.Store
	blobs  blob.Store
	gate   *access.Gate
	ledger *Ledger
	now    func() time.Time
}

func NewService(s store.Store, blobs blob.Store, gate *access.Gate) *Service {
	svc := &Service{store: s, blobs: blobs, gate: gate}
	return svc.WithClock(func() time.Time { return time.Now().UTC() })
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.ledger = NewLedger(s.store, now)
	return s
}

type NewHomework struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Deadline    *time.Time    `json:"deadline"`
	Target      models.Target `json:"target"`
	ScheduleID  *int64        `json:"schedule_id"`
}

// Detail is a homework with its reference files. For a student it also
// carries their own status row and submissions.
type Detail struct {
	models.Homework
	Files       []models.HomeworkFile        `json:"files"`
	Status      *models.HomeworkStatus       `json:"status,omitempty"`
	Submissions []models.StudentHomeworkFile `json:"submissions,omitempty"`
}

func (s *Service) getHomework(ctx context.Context, q store.DBTX, id int64) (*models.Homework, error) {
	hw, err := s.store.GetHomework(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get homework %d: %w", id, err)
	}
	if hw == nil {
		return nil, fmt.Errorf("homework %d: %w", id, models.ErrNotFound)
	}
	return hw, nil
}

func (s *Service) checkTarget(ctx context.Context, q store.DBTX, target models.Target) error {
	switch target.Kind {
	case models.TargetStudent:
		user, err := s.store.GetUser(ctx, q, target.ID)
		if err != nil {
			return fmt.Errorf("failed to get user %d: %w", target.ID, err)
		}
		if user == nil {
			return fmt.Errorf("student %d: %w", target.ID, models.ErrNotFound)
		}
		if user.Role != models.RoleStudent {
			return models.NewValidationError("invalid target", models.FieldError{Field: "target", Error: "not a student"})
		}
	case models.TargetGroup:
		group, err := s.store.GetGroup(ctx, q, target.ID)
		if err != nil {
			return fmt.Errorf("failed to get group %d: %w", target.ID, err)
		}
		if group == nil {
			return fmt.Errorf("group %d: %w", target.ID, models.ErrNotFound)
		}
	}
	return nil
}

// Create stores a homework with its reference files and fans it out, all in
// one transaction. A failed file write undoes everything, including files
// already written. A recipient whose status row cannot be created does not:
// it is listed in the report instead.
func (s *Service) Create(ctx context.Context, actor access.Actor, in NewHomework, files []models.Upload) (*models.Homework, *FanoutReport, error) {
	if err := s.gate.CanWriteHomework(actor); err != nil {
		return nil, nil, err
	}

	now := s.now()
	hw := &models.Homework{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Deadline:    in.Deadline,
		ScheduleID:  in.ScheduleID,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// SetTarget drops unknown kinds, so the raw target is checked first
	if err := in.Target.Validate(); err != nil {
		return nil, nil, err
	}
	hw.SetTarget(in.Target)
	if err := hw.Validate(); err != nil {
		return nil, nil, err
	}

	stager := blob.NewStager(s.blobs)
	var report *FanoutReport
	err := s.store.WithTx(ctx, func(tx store.DBTX) error {
		if err := s.checkTarget(ctx, tx, in.Target); err != nil {
			return err
		}
		if err := s.store.CreateHomework(ctx, tx, hw); err != nil {
			return fmt.Errorf("failed to create homework: %w", err)
		}

		for _, f := range files {
			key, err := stager.Put(ctx, homeworkScope, f)
			if err != nil {
				return err
			}
			file := &models.HomeworkFile{
				HomeworkID: hw.ID,
				Filename:   f.Filename,
				FilePath:   key,
				FileType:   blob.KindOf(f.Filename),
				UploadedAt: now,
			}
			if err := s.store.CreateHomeworkFile(ctx, tx, file); err != nil {
				return fmt.Errorf("failed to attach %q: %w", f.Filename, err)
			}
		}

		var err error
		report, err = s.fanout(ctx, tx, hw)
		return err
	})
	if err != nil {
		if rbErr := stager.Rollback(ctx); rbErr != nil {
			logger.Error.Printf("Leftover blobs after failed homework create: %v", rbErr)
		}
		return nil, nil, err
	}

	logger.Info.Printf("User %d created homework %d %q for %s with %d files", actor.UserID, hw.ID, hw.Title, hw.Target(), len(files))
	if w := report.Warning(); w != nil {
		logger.Error.Printf("Homework %d created with warnings: %v", hw.ID, w)
	}
	return hw, report, nil
}

// Delete removes a homework with its files and status rows. Blobs go after
// the commit; a blob that cannot be removed is only logged.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id int64) error {
	if err := s.gate.CanWriteHomework(actor); err != nil {
		return err
	}

	var keys []string
	err := s.store.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := s.getHomework(ctx, tx, id); err != nil {
			return err
		}

		refs, err := s.store.ListHomeworkFiles(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("failed to list homework files: %w", err)
		}
		subs, err := s.store.ListSubmissionFiles(ctx, tx, id, 0)
		if err != nil {
			return fmt.Errorf("failed to list submission files: %w", err)
		}
		for _, f := range refs {
			keys = append(keys, f.FilePath)
		}
		for _, f := range subs {
			keys = append(keys, f.FilePath)
		}

		if err := s.store.DeleteHomework(ctx, tx, id); err != nil {
			return fmt.Errorf("failed to delete homework %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	blob.DeleteAll(ctx, s.blobs, keys)
	logger.Info.Printf("User %d deleted homework %d and %d files", actor.UserID, id, len(keys))
	return nil
}

// ListFor returns what the viewer may see, newest first: everything for a
// teacher, and for a student what targets them directly or through any
// group they are in now.
func (s *Service) ListFor(ctx context.Context, viewer access.Actor) ([]models.Homework, error) {
	var (
		list []models.Homework
		err  error
	)
	if viewer.IsTeacher() {
		list, err = s.store.ListHomeworks(ctx, s.store.Handle())
	} else {
		list, err = s.store.ListHomeworksForStudent(ctx, s.store.Handle(), viewer.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list homeworks: %w", err)
	}
	if list == nil {
		list = []models.Homework{}
	}
	return list, nil
}

// Get returns one homework. A student opening it gets their status row,
// created on first touch.
func (s *Service) Get(ctx context.Context, actor access.Actor, id int64) (*Detail, error) {
	hw, err := s.getHomework(ctx, s.store.Handle(), id)
	if err != nil {
		return nil, err
	}
	if err := s.gate.CanReadHomework(ctx, actor, hw); err != nil {
		return nil, err
	}

	files, err := s.store.ListHomeworkFiles(ctx, s.store.Handle(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to list homework files: %w", err)
	}
	detail := &Detail{Homework: *hw, Files: files}

	if !actor.IsTeacher() {
		detail.Status, _, err = s.ledger.EnsureRow(ctx, s.store.Handle(), id, actor.UserID)
		if err != nil {
			return nil, err
		}
		detail.Submissions, err = s.store.ListSubmissionFiles(ctx, s.store.Handle(), id, actor.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to list submissions: %w", err)
		}
	}
	return detail, nil
}

// ListStatuses is the teacher's view of every recipient's row, each marked
// with how many days late it is.
func (s *Service) ListStatuses(ctx context.Context, actor access.Actor, id int64) ([]models.StatusView, error) {
	if err := access.RequireTeacher(actor); err != nil {
		return nil, err
	}
	hw, err := s.getHomework(ctx, s.store.Handle(), id)
	if err != nil {
		return nil, err
	}
	views, err := s.store.ListStatuses(ctx, s.store.Handle(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	lateness.Annotate(hw.Deadline, views, s.now())
	return views, nil
}
