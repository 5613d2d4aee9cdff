package homework

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/metrics"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

// rowStore is the part of store.Store the ledger needs.
type rowStore interface {
	GetHomework(ctx context.Context, q store.DBTX, id int64) (*models.Homework, error)
	GetUser(ctx context.Context, q store.DBTX, id int64) (*models.User, error)
	GetStatus(ctx context.Context, q store.DBTX, homeworkID, studentID int64) (*models.HomeworkStatus, error)
	InsertStatus(ctx context.Context, q store.DBTX, status *models.HomeworkStatus) error
	Savepoint(ctx context.Context, tx store.DBTX, name string, fn func() error) error
}

// Ledger owns the one-row-per-(homework, student) status table. The unique
// constraint is the only lock: a losing insert reads the winner's row.
type Ledger struct {
	rows rowStore
	now  func() time.Time
}

func NewLedger(rows rowStore, now func() time.Time) *Ledger {
	return &Ledger{rows: rows, now: now}
}

// EnsureRow returns the status row for the pair, creating it with the
// assigned/sent defaults when missing. created is true only for the caller
// whose insert won.
func (l *Ledger) EnsureRow(ctx context.Context, q store.DBTX, homeworkID, studentID int64) (status *models.HomeworkStatus, created bool, err error) {
	status, err = l.rows.GetStatus(ctx, q, homeworkID, studentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read status: %w", err)
	}
	if status != nil {
		return status, false, nil
	}

	if err := l.checkPair(ctx, q, homeworkID, studentID); err != nil {
		return nil, false, err
	}

	status = models.NewHomeworkStatus(homeworkID, studentID, l.now())
	err = l.insert(ctx, q, status)
	if err == nil {
		return status, true, nil
	}
	if !errors.Is(err, models.ErrConflict) {
		return nil, false, fmt.Errorf("failed to create status: %w", err)
	}

	metrics.StatusConflictsTotal.WithLabelValues("student_homework_statuses").Inc()
	logger.Debug.Printf("Status (%d, %d) created concurrently, reading it back", homeworkID, studentID)

	status, err = l.rows.GetStatus(ctx, q, homeworkID, studentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read status after conflict: %w", err)
	}
	if status == nil {
		return nil, false, fmt.Errorf("status (%d, %d) vanished after conflict: %w", homeworkID, studentID, models.ErrStorage)
	}
	return status, false, nil
}

// insert scopes the insert to a savepoint inside a transaction so a unique
// violation leaves the transaction usable for the read back.
func (l *Ledger) insert(ctx context.Context, q store.DBTX, status *models.HomeworkStatus) error {
	if !store.InTx(q) {
		return l.rows.InsertStatus(ctx, q, status)
	}
	return l.rows.Savepoint(ctx, q, "status_insert", func() error {
		return l.rows.InsertStatus(ctx, q, status)
	})
}

func (l *Ledger) checkPair(ctx context.Context, q store.DBTX, homeworkID, studentID int64) error {
	hw, err := l.rows.GetHomework(ctx, q, homeworkID)
	if err != nil {
		return fmt.Errorf("failed to get homework %d: %w", homeworkID, err)
	}
	if hw == nil {
		return fmt.Errorf("homework %d: %w", homeworkID, models.ErrNotFound)
	}

	user, err := l.rows.GetUser(ctx, q, studentID)
	if err != nil {
		return fmt.Errorf("failed to get user %d: %w", studentID, err)
	}
	if user == nil {
		return fmt.Errorf("student %d: %w", studentID, models.ErrNotFound)
	}
	if user.Role != models.RoleStudent {
		return models.NewValidationError("status rows belong to students",
			models.FieldError{Field: "student_id", Error: "not a student"})
	}
	return nil
}
