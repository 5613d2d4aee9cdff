package models

import "time"

type ProgressState string

const (
	ProgressAssigned   ProgressState = "assigned"
	ProgressInProgress ProgressState = "in_progress"
	ProgressCompleted  ProgressState = "completed"
	ProgressHasIssues  ProgressState = "has_issues"
)

func (s ProgressState) Valid() bool {
	switch s {
	case ProgressAssigned, ProgressInProgress, ProgressCompleted, ProgressHasIssues:
		return true
	}
	return false
}

type ReviewState string

const (
	ReviewSent        ReviewState = "sent"
	ReviewUnderReview ReviewState = "under_review"
	ReviewReviewed    ReviewState = "reviewed"
)

func (s ReviewState) Valid() bool {
	switch s {
	case ReviewSent, ReviewUnderReview, ReviewReviewed:
		return true
	}
	return false
}

// HomeworkStatus is the ledger row for one (homework, student) pair.
//
// unique_together is handled on DB level:
// CONSTRAINT unique_student_homework UNIQUE (homework_id, student_id)
type HomeworkStatus struct {
	ID          int64         `db:"id" json:"id"`
	HomeworkID  int64         `db:"homework_id" json:"homework_id"`
	StudentID   int64         `db:"student_id" json:"student_id"`
	Status      ProgressState `db:"status" json:"status"`
	Review      ReviewState   `db:"teacher_status" json:"teacher_status"`
	SubmittedAt *time.Time    `db:"submitted_at" json:"submitted_at,omitempty"`
	ReviewedAt  *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNotes *string       `db:"review_notes" json:"review_notes,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// NewHomeworkStatus returns a row with the ledger defaults.
func NewHomeworkStatus(homeworkID, studentID int64, now time.Time) *HomeworkStatus {
	return &HomeworkStatus{
		HomeworkID: homeworkID,
		StudentID:  studentID,
		Status:     ProgressAssigned,
		Review:     ReviewSent,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// StatusView is a ledger row as a teacher sees it on the homework page.
type StatusView struct {
	HomeworkStatus
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	DaysLate  int    `db:"-" json:"days_late"`
}
