package models

import "time"

// Group is a named cohort of students. IsIndividual is a display flag only,
// membership rules are the same for both kinds.
type Group struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name" validate:"required,max=100"`
	Description  string    `db:"description" json:"description"`
	IsIndividual bool      `db:"is_individual" json:"is_individual"`
	CreatedBy    int64     `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (g *Group) Validate() error {
	return validateStruct(g)
}

type GroupWithCount struct {
	Group
	MemberCount int `db:"member_count" json:"member_count"`
}

// unique_together is handled on DB level:
// CONSTRAINT unique_group_member UNIQUE (group_id, user_id)
type GroupMember struct {
	ID       int64     `db:"id" json:"id"`
	GroupID  int64     `db:"group_id" json:"group_id"`
	UserID   int64     `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// MemberView joins a membership row with the member's name for listings.
type MemberView struct {
	GroupMember
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Email     string `db:"email" json:"email"`
}
