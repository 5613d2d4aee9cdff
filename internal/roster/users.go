// Package roster manages accounts and the groups students are organised in.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"
	"golang.org/x/crypto/bcrypt"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

const minPasswordLength = 6

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type NewUser struct {
	Email     string      `json:"email"`
	Password  string      `json:"password"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Phone     string      `json:"phone"`
	Role      models.Role `json:"role"`
}

// UserUpdate carries the fields an admin edit may change. Nil means keep.
type UserUpdate struct {
	Email     *string      `json:"email"`
	Password  *string      `json:"password"`
	FirstName *string      `json:"first_name"`
	LastName  *string      `json:"last_name"`
	Phone     *string      `json:"phone"`
	Role      *models.Role `json:"role"`
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", models.NewValidationError("password too short",
			models.FieldError{Field: "password", Error: fmt.Sprintf("min=%d", minPasswordLength)})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates an account without an acting user. It backs the admin
// CLI and CreateUser.
func (s *Service) Register(ctx context.Context, in NewUser) (*models.User, error) {
	user := &models.User{
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Phone:     strings.TrimSpace(in.Phone),
		Role:      in.Role,
		CreatedAt: s.now(),
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if err := s.store.CreateUser(ctx, s.store.Handle(), user); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}
	logger.Info.Printf("Created %s account %d (%s)", user.Role, user.ID, user.Email)
	return user, nil
}

// SignUp is public self-registration. Whatever role is asked for, the
// account is a student.
func (s *Service) SignUp(ctx context.Context, in NewUser) (*models.User, error) {
	in.Role = models.RoleStudent
	return s.Register(ctx, in)
}

func (s *Service) CreateUser(ctx context.Context, actor access.Actor, in NewUser) (*models.User, error) {
	if err := access.RequireTeacher(actor); err != nil {
		return nil, err
	}
	return s.Register(ctx, in)
}

// Authenticate checks credentials. Unknown email and wrong password look the
// same to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, s.store.Handle(), strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: invalid credentials", models.ErrPermissionDenied)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logger.Debug.Printf("Password mismatch for user %d", user.ID)
		return nil, fmt.Errorf("%w: invalid credentials", models.ErrPermissionDenied)
	}
	return user, nil
}

// GetUser lets teachers see anyone and everybody else only themselves.
func (s *Service) GetUser(ctx context.Context, actor access.Actor, id int64) (*models.User, error) {
	if !actor.IsTeacher() && actor.UserID != id {
		return nil, fmt.Errorf("%w: user %d cannot view user %d", models.ErrPermissionDenied, actor.UserID, id)
	}
	return s.lookup(ctx, s.store.Handle(), id)
}

// Whois loads a user without an acting user. Request authentication uses it
// to learn the role behind an id.
func (s *Service) Whois(ctx context.Context, id int64) (*models.User, error) {
	return s.lookup(ctx, s.store.Handle(), id)
}

func (s *Service) lookup(ctx context.Context, q store.DBTX, id int64) (*models.User, error) {
	user, err := s.store.GetUser(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return user, nil
}

func (s *Service) ListStudents(ctx context.Context, actor access.Actor) ([]models.User, error) {
	if err := access.RequireTeacher(actor); err != nil {
		return nil, err
	}
	students, err := s.store.ListUsers(ctx, s.store.Handle(), models.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

// ListTeachers is open to everyone so students can find whom to message.
func (s *Service) ListTeachers(ctx context.Context) ([]models.User, error) {
	teachers, err := s.store.ListUsers(ctx, s.store.Handle(), models.RoleTeacher)
	if err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	return teachers, nil
}

// UpdateUser is the admin escape hatch: it is the only path that can change
// a role.
func (s *Service) UpdateUser(ctx context.Context, actor access.Actor, id int64, in UserUpdate) (*models.User, error) {
	if err := access.RequireTeacher(actor); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.store.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		user, err = s.lookup(ctx, tx, id)
		if err != nil {
			return err
		}

		if in.Email != nil {
			user.Email = strings.ToLower(strings.TrimSpace(*in.Email))
		}
		if in.FirstName != nil {
			user.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			user.LastName = strings.TrimSpace(*in.LastName)
		}
		if in.Phone != nil {
			user.Phone = strings.TrimSpace(*in.Phone)
		}
		if in.Role != nil {
			if *in.Role != user.Role {
				logger.Info.Printf("User %d changes role of %d from %s to %s", actor.UserID, id, user.Role, *in.Role)
			}
			user.Role = *in.Role
		}
		if err := user.Validate(); err != nil {
			return err
		}
		if in.Password != nil {
			hash, err := hashPassword(*in.Password)
			if err != nil {
				return err
			}
			user.PasswordHash = hash
		}

		if err := s.store.UpdateUser(ctx, tx, user); err != nil {
			return fmt.Errorf("failed to update user %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ProfileUpdate is what users may change about themselves.
type ProfileUpdate struct {
	Phone *string `json:"phone"`
}

// UpdateProfile edits the caller's own account.
func (s *Service) UpdateProfile(ctx context.Context, actor access.Actor, in ProfileUpdate) (*models.User, error) {
	var user *models.User
	err := s.store.WithTx(ctx, func(tx store.DBTX) error {
		var err error
		user, err = s.lookup(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		if in.Phone != nil {
			user.Phone = strings.TrimSpace(*in.Phone)
		}
		if err := user.Validate(); err != nil {
			return err
		}
		if err := s.store.UpdateUser(ctx, tx, user); err != nil {
			return fmt.Errorf("failed to update profile of %d: %w", actor.UserID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug.Printf("User %d updated their profile", actor.UserID)
	return user, nil
}

// DeleteUser removes an account and, through the schema, everything the
// account owns as a student. Nobody can delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actor access.Actor, id int64) error {
	if err := access.RequireTeacher(actor); err != nil {
		return err
	}
	if actor.UserID == id {
		return models.NewValidationError("cannot delete yourself", models.FieldError{Field: "id", Error: "self"})
	}
	err := s.store.WithTx(ctx, func(tx store.DBTX) error {
		if _, err := s.lookup(ctx, tx, id); err != nil {
			return err
		}
		err := s.store.DeleteUser(ctx, tx, id)
		// the row exists, so a foreign key failure means it is still referenced
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: user %d still owns homeworks or groups", models.ErrConflict, id)
		}
		if err != nil {
			return fmt.Errorf("failed to delete user %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info.Printf("User %d deleted user %d", actor.UserID, id)
	return nil
}
