package models

import (
	"time"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

type User struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email" validate:"required,email,max=120"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name" validate:"required,max=50"`
	LastName     string    `db:"last_name" json:"last_name" validate:"required,max=50"`
	Phone        string    `db:"phone" json:"phone" validate:"max=20"`
	Role         Role      `db:"role" json:"role" validate:"required,oneof=teacher student"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (u *User) IsTeacher() bool {
	return u.Role == RoleTeacher
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

func (u *User) Validate() error {
	return validateStruct(u)
}

// Session is what the identity provider hands back for a bearer token.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_dttm_utc"`
}
