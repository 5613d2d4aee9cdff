package models

import (
	"fmt"
	"time"
)

type TargetKind string

const (
	TargetNone    TargetKind = "none"
	TargetStudent TargetKind = "student"
	TargetGroup   TargetKind = "group"
)

// Target names who receives a homework: one student, one group or nobody yet.
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   int64      `json:"id,omitempty"`
}

func ForStudent(id int64) Target { return Target{Kind: TargetStudent, ID: id} }
func ForGroup(id int64) Target   { return Target{Kind: TargetGroup, ID: id} }
func Untargeted() Target         { return Target{Kind: TargetNone} }

func (t Target) String() string {
	if t.Kind == TargetNone || t.Kind == "" {
		return "none"
	}
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}

func (t Target) Validate() error {
	switch t.Kind {
	case TargetNone, "":
		return nil
	case TargetStudent, TargetGroup:
		if t.ID <= 0 {
			return NewValidationError("invalid target", FieldError{Field: "target", Error: "id must be positive"})
		}
		return nil
	default:
		return NewValidationError("invalid target", FieldError{Field: "target", Error: "unknown kind " + string(t.Kind)})
	}
}

type Homework struct {
	ID          int64      `db:"id" json:"id"`
	Title       string     `db:"title" json:"title" validate:"required,max=200"`
	Description string     `db:"description" json:"description"`
	Deadline    *time.Time `db:"deadline" json:"deadline,omitempty"`
	GroupID     *int64     `db:"group_id" json:"group_id,omitempty"`
	StudentID   *int64     `db:"student_id" json:"student_id,omitempty"`
	ScheduleID  *int64     `db:"schedule_id" json:"schedule_id,omitempty"`
	CreatedBy   int64      `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (h *Homework) Target() Target {
	switch {
	case h.StudentID != nil:
		return ForStudent(*h.StudentID)
	case h.GroupID != nil:
		return ForGroup(*h.GroupID)
	default:
		return Untargeted()
	}
}

func (h *Homework) SetTarget(t Target) {
	h.GroupID, h.StudentID = nil, nil
	id := t.ID
	switch t.Kind {
	case TargetStudent:
		h.StudentID = &id
	case TargetGroup:
		h.GroupID = &id
	}
}

func (h *Homework) Validate() error {
	if err := validateStruct(h); err != nil {
		return err
	}
	return h.Target().Validate()
}

type FileType string

const (
	FileTypeImage    FileType = "image"
	FileTypeDocument FileType = "document"
	FileTypeOther    FileType = "other"
)

// Upload is a file handed in by a caller before it reaches the blob store.
type Upload struct {
	Filename string
	Content  []byte
}

// HomeworkFile is a reference file a teacher attached to a homework.
type HomeworkFile struct {
	ID         int64     `db:"id" json:"id"`
	HomeworkID int64     `db:"homework_id" json:"homework_id"`
	Filename   string    `db:"filename" json:"filename"`
	FilePath   string    `db:"file_path" json:"file_path"`
	FileType   FileType  `db:"file_type" json:"file_type"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// StudentHomeworkFile is a submission artifact attached by a student.
type StudentHomeworkFile struct {
	ID         int64     `db:"id" json:"id"`
	HomeworkID int64     `db:"homework_id" json:"homework_id"`
	StudentID  int64     `db:"student_id" json:"student_id"`
	Filename   string    `db:"filename" json:"filename"`
	FilePath   string    `db:"file_path" json:"file_path"`
	FileType   FileType  `db:"file_type" json:"file_type"`
	Comment    string    `db:"comment" json:"comment"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}
