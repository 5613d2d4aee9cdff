// Package access decides whether an actor may touch a homework or a status
// row. Every refusal wraps models.ErrPermissionDenied.
package access

import (
	"context"
	"fmt"
	"slices"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

// Actor is the authenticated caller. It is passed explicitly into every
// service operation.
type Actor struct {
	UserID int64       `json:"user_id"`
	Role   models.Role `json:"role"`
}

func Teacher(id int64) Actor { return Actor{UserID: id, Role: models.RoleTeacher} }
func Student(id int64) Actor { return Actor{UserID: id, Role: models.RoleStudent} }

func (a Actor) IsTeacher() bool { return a.Role == models.RoleTeacher }

// MembershipSource lists the groups a user currently belongs to.
type MembershipSource interface {
	GroupIDsOf(ctx context.Context, userID int64) ([]int64, error)
}

type Gate struct {
	members MembershipSource
}

func NewGate(members MembershipSource) *Gate {
	return &Gate{members: members}
}

func denied(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrPermissionDenied, fmt.Sprintf(format, args...))
}

// RequireTeacher guards operations only teachers may run.
func RequireTeacher(actor Actor) error {
	if !actor.IsTeacher() {
		return denied("user %d is not a teacher", actor.UserID)
	}
	return nil
}

// TargetsStudent reports whether a homework is addressed to the student,
// either directly or through one of groupIDs.
func TargetsStudent(hw *models.Homework, studentID int64, groupIDs []int64) bool {
	target := hw.Target()
	switch target.Kind {
	case models.TargetStudent:
		return target.ID == studentID
	case models.TargetGroup:
		return slices.Contains(groupIDs, target.ID)
	}
	return false
}

// CanReadHomework lets teachers read everything and students read homeworks
// targeted at them or at a group they are in right now.
func (g *Gate) CanReadHomework(ctx context.Context, actor Actor, hw *models.Homework) error {
	if actor.IsTeacher() {
		return nil
	}
	if target := hw.Target(); target.Kind == models.TargetStudent {
		if target.ID == actor.UserID {
			return nil
		}
		return denied("homework %d is not assigned to user %d", hw.ID, actor.UserID)
	}

	groupIDs, err := g.members.GroupIDsOf(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve memberships: %w", err)
	}
	if TargetsStudent(hw, actor.UserID, groupIDs) {
		return nil
	}
	return denied("homework %d is not assigned to user %d", hw.ID, actor.UserID)
}

// CanWriteHomework is teacher-only.
func (g *Gate) CanWriteHomework(actor Actor) error {
	return RequireTeacher(actor)
}

// CanReadStatus lets students see only their own row.
func (g *Gate) CanReadStatus(actor Actor, studentID int64) error {
	if actor.IsTeacher() || actor.UserID == studentID {
		return nil
	}
	return denied("user %d cannot read status of student %d", actor.UserID, studentID)
}

// CanWriteProgress lets a student move the progress field of their own row.
func (g *Gate) CanWriteProgress(actor Actor, studentID int64) error {
	if actor.IsTeacher() {
		return denied("progress is set by the student")
	}
	if actor.UserID != studentID {
		return denied("user %d cannot update status of student %d", actor.UserID, studentID)
	}
	return nil
}

// CanWriteReview is teacher-only.
func (g *Gate) CanWriteReview(actor Actor) error {
	return RequireTeacher(actor)
}
