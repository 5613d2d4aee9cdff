package homework

import (
	"context"
	"errors"
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/metrics"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

// RecipientFailure is one status row fan-out could not create.
type RecipientFailure struct {
	StudentID int64  `json:"student_id"`
	Err       error  `json:"-"`
	Message   string `json:"error"`
}

// FanoutReport says what a fan-out did. Failures are per recipient and do
// not undo the homework.
type FanoutReport struct {
	HomeworkID int64              `json:"homework_id"`
	Target     models.Target      `json:"target"`
	Recipients int                `json:"recipients"`
	Created    int                `json:"created"`
	Existing   int                `json:"existing"`
	Failed     []RecipientFailure `json:"failed,omitempty"`
}

// Warning folds every recipient failure into one error, or nil.
func (r *FanoutReport) Warning() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("student %d: %w", f.StudentID, f.Err))
	}
	return fmt.Errorf("status rows missing for %d of %d recipients: %w", len(r.Failed), r.Recipients, errors.Join(errs...))
}

// recipients snapshots who a homework goes to right now.
func (s *Service) recipients(ctx context.Context, q store.DBTX, hw *models.Homework) ([]int64, error) {
	target := hw.Target()
	switch target.Kind {
	case models.TargetStudent:
		return []int64{target.ID}, nil
	case models.TargetGroup:
		members, err := s.store.ListGroupMembers(ctx, q, target.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list members of group %d: %w", target.ID, err)
		}
		ids := make([]int64, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.UserID)
		}
		return ids, nil
	}
	return nil, nil
}

// fanout makes sure every current recipient has a status row. It runs inside
// tx; each recipient gets its own savepoint so one failure leaves the rest
// of the transaction intact.
func (s *Service) fanout(ctx context.Context, tx store.DBTX, hw *models.Homework) (*FanoutReport, error) {
	ids, err := s.recipients(ctx, tx, hw)
	if err != nil {
		return nil, err
	}

	report := &FanoutReport{HomeworkID: hw.ID, Target: hw.Target(), Recipients: len(ids)}
	for _, id := range ids {
		var created bool
		err := s.store.Savepoint(ctx, tx, fmt.Sprintf("fanout_%d", id), func() error {
			var err error
			_, created, err = s.ledger.EnsureRow(ctx, tx, hw.ID, id)
			return err
		})
		switch {
		case err != nil:
			logger.Error.Printf("Fan-out of homework %d to student %d failed: %v", hw.ID, id, err)
			metrics.FanoutRowsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
			report.Failed = append(report.Failed, RecipientFailure{StudentID: id, Err: err, Message: err.Error()})
		case created:
			metrics.FanoutRowsTotal.WithLabelValues(metrics.OutcomeCreated).Inc()
			report.Created++
		default:
			metrics.FanoutRowsTotal.WithLabelValues(metrics.OutcomeExisting).Inc()
			report.Existing++
		}
	}

	logger.Info.Printf("Fan-out of homework %d to %s: %d created, %d existing, %d failed",
		hw.ID, report.Target, report.Created, report.Existing, len(report.Failed))
	return report, nil
}

// Refanout creates the status rows a homework's recipients are missing, for
// example students who joined its group after it was assigned. Rows that
// already exist are left alone.
func (s *Service) Refanout(ctx context.Context, actor access.Actor, homeworkID int64) (*FanoutReport, error) {
	if err := s.gate.CanWriteHomework(actor); err != nil {
		return nil, err
	}

	var report *FanoutReport
	err := s.store.WithTx(ctx, func(tx store.DBTX) error {
		hw, err := s.getHomework(ctx, tx, homeworkID)
		if err != nil {
			return err
		}
		report, err = s.fanout(ctx, tx, hw)
		return err
	})
	if err != nil {
		return nil, err
	}
	if w := report.Warning(); w != nil {
		logger.Error.Printf("Re-fan-out of homework %d incomplete: %v", homeworkID, w)
	}
	return report, nil
}
