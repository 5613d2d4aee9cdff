package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

type Store interface {
	Close() error
	ApplyMigrations(dir string) error

	Handle() DBTX
	WithTx(ctx context.Context, fn func(tx DBTX) error) error
	Savepoint(ctx context.Context, tx DBTX, name string, fn func() error) error

	CreateUser(ctx context.Context, q DBTX, user *models.User) error
	GetUser(ctx context.Context, q DBTX, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, q DBTX, email string) (*models.User, error)
	ListUsers(ctx context.Context, q DBTX, role models.Role) ([]models.User, error)
	UpdateUser(ctx context.Context, q DBTX, user *models.User) error
	DeleteUser(ctx context.Context, q DBTX, id int64) error

	CreateGroup(ctx context.Context, q DBTX, group *models.Group) error
	GetGroup(ctx context.Context, q DBTX, id int64) (*models.Group, error)
	ListGroups(ctx context.Context, q DBTX) ([]models.GroupWithCount, error)
	DeleteGroup(ctx context.Context, q DBTX, id int64) error
	AddGroupMember(ctx context.Context, q DBTX, member *models.GroupMember) (bool, error)
	GetGroupMember(ctx context.Context, q DBTX, id int64) (*models.GroupMember, error)
	DeleteGroupMember(ctx context.Context, q DBTX, id int64) error
	ListGroupMembers(ctx context.Context, q DBTX, groupID int64) ([]models.MemberView, error)
	ListMemberships(ctx context.Context, q DBTX, userID int64) ([]models.GroupMember, error)

	CreateHomework(ctx context.Context, q DBTX, hw *models.Homework) error
	GetHomework(ctx context.Context, q DBTX, id int64) (*models.Homework, error)
	DeleteHomework(ctx context.Context, q DBTX, id int64) error
	ListHomeworks(ctx context.Context, q DBTX) ([]models.Homework, error)
	ListHomeworksForStudent(ctx context.Context, q DBTX, studentID int64) ([]models.Homework, error)
	CreateHomeworkFile(ctx context.Context, q DBTX, file *models.HomeworkFile) error
	ListHomeworkFiles(ctx context.Context, q DBTX, homeworkID int64) ([]models.HomeworkFile, error)
	CreateSubmissionFile(ctx context.Context, q DBTX, file *models.StudentHomeworkFile) error
	GetSubmissionFile(ctx context.Context, q DBTX, id int64) (*models.StudentHomeworkFile, error)
	DeleteSubmissionFile(ctx context.Context, q DBTX, id int64) error
	ListSubmissionFiles(ctx context.Context, q DBTX, homeworkID, studentID int64) ([]models.StudentHomeworkFile, error)

	GetStatus(ctx context.Context, q DBTX, homeworkID, studentID int64) (*models.HomeworkStatus, error)
	InsertStatus(ctx context.Context, q DBTX, status *models.HomeworkStatus) error
	UpdateStudentProgress(ctx context.Context, q DBTX, status *models.HomeworkStatus) error
	UpdateReview(ctx context.Context, q DBTX, status *models.HomeworkStatus) error
	ListStatuses(ctx context.Context, q DBTX, homeworkID int64) ([]models.StatusView, error)

	CreateMessage(ctx context.Context, q DBTX, msg *models.Message) error
	CreateChatFile(ctx context.Context, q DBTX, file *models.ChatFile) error
	ListThread(ctx context.Context, q DBTX, userA, userB int64) ([]models.Message, error)
	ListChatFiles(ctx context.Context, q DBTX, messageIDs []int64) ([]models.ChatFile, error)
	MarkThreadRead(ctx context.Context, q DBTX, viewerID, otherID int64) (int64, error)
	ListChats(ctx context.Context, q DBTX, viewerID int64) ([]models.ChatSummary, error)
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
	Classify  ErrorClassifier
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

func (s *BaseStore) Handle() DBTX {
	return s.DB
}

// ApplyMigrations applies SQL migrations from a directory, translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".sql") {
			names = append(names, file.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		logger.Info.Printf("Applying migration: %s", name)
		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}

	return nil
}

// WithTx runs fn inside a transaction. Any error from fn rolls everything
// back; the error is returned unchanged.
func (s *BaseStore) WithTx(ctx context.Context, fn func(tx DBTX) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return s.fail("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.fail("commit transaction", err)
	}
	return nil
}

// Savepoint scopes fn to a savepoint of an open transaction so a failed
// statement does not poison the rest of it. Postgres aborts the whole
// transaction on any error otherwise.
func (s *BaseStore) Savepoint(ctx context.Context, tx DBTX, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return s.fail("create savepoint", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, s.fail("rollback to savepoint", rbErr))
		}
		if _, relErr := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return errors.Join(err, s.fail("release savepoint", relErr))
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return s.fail("release savepoint", err)
	}
	return nil
}

// fail wraps a driver error with the matching models sentinel so callers can
// branch on errors.Is without knowing the dialect.
func (s *BaseStore) fail(op string, err error) error {
	kind := models.ErrStorage
	if errors.Is(err, sql.ErrNoRows) {
		kind = models.ErrNotFound
	} else if s.Classify != nil {
		if k := s.Classify(err); k != nil {
			kind = k
		}
	}
	return fmt.Errorf("failed to %s: %w: %w", op, kind, err)
}

func (s *BaseStore) insertReturningID(ctx context.Context, q DBTX, op, query string, args ...interface{}) (int64, error) {
	var id int64
	if err := q.QueryRowxContext(ctx, s.Converter(query), args...).Scan(&id); err != nil {
		return 0, s.fail(op, err)
	}
	return id, nil
}

// execAffecting runs a write and reports ErrNotFound when nothing matched.
func (s *BaseStore) execAffecting(ctx context.Context, q DBTX, op, query string, args ...interface{}) error {
	res, err := q.ExecContext(ctx, s.Converter(query), args...)
	if err != nil {
		return s.fail(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.fail(op, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to %s: %w", op, models.ErrNotFound)
	}
	return nil
}
