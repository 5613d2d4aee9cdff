package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

const homeworkColumns = `id, title, description, deadline, group_id, student_id, schedule_id, created_by, created_at, updated_at`

func (s *BaseStore) CreateHomework(ctx context.Context, q DBTX, hw *models.Homework) error {
	id, err := s.insertReturningID(ctx, q, "create homework", `
		INSERT INTO homeworks (title, description, deadline, group_id, student_id, schedule_id, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, hw.Title, hw.Description, hw.Deadline, hw.GroupID, hw.StudentID, hw.ScheduleID, hw.CreatedBy, hw.CreatedAt, hw.UpdatedAt)
	if err != nil {
		return err
	}
	hw.ID = id
	return nil
}

func (s *BaseStore) GetHomework(ctx context.Context, q DBTX, id int64) (*models.Homework, error) {
	var hw models.Homework
	found, err := s.getOne(ctx, q, &hw, "get homework", `SELECT `+homeworkColumns+` FROM homeworks WHERE id = ?`, id)
	if err != nil || !found {
		return nil, err
	}
	return &hw, nil
}

// DeleteHomework removes the homework; reference files, submission files and
// status rows are removed by ON DELETE CASCADE.
func (s *BaseStore) DeleteHomework(ctx context.Context, q DBTX, id int64) error {
	return s.execAffecting(ctx, q, "delete homework", `DELETE FROM homeworks WHERE id = ?`, id)
}

func (s *BaseStore) ListHomeworks(ctx context.Context, q DBTX) ([]models.Homework, error) {
	var homeworks []models.Homework
	err := sqlx.SelectContext(ctx, q, &homeworks, `
		SELECT `+homeworkColumns+`
		FROM homeworks
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, s.fail("list homeworks", err)
	}
	return homeworks, nil
}

// ListHomeworksForStudent returns homeworks targeted at the student directly
// or at any group the student currently belongs to, newest first.
func (s *BaseStore) ListHomeworksForStudent(ctx context.Context, q DBTX, studentID int64) ([]models.Homework, error) {
	var homeworks []models.Homework
	err := sqlx.SelectContext(ctx, q, &homeworks, s.Converter(`
		SELECT `+homeworkColumns+`
		FROM homeworks
		WHERE student_id = ?
		   OR group_id IN (SELECT group_id FROM group_members WHERE user_id = ?)
		ORDER BY created_at DESC, id DESC
	`), studentID, studentID)
	if err != nil {
		return nil, s.fail("list homeworks for student", err)
	}
	return homeworks, nil
}

func (s *BaseStore) CreateHomeworkFile(ctx context.Context, q DBTX, file *models.HomeworkFile) error {
	id, err := s.insertReturningID(ctx, q, "create homework file", `
		INSERT INTO homework_files (homework_id, filename, file_path, file_type, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, file.HomeworkID, file.Filename, file.FilePath, file.FileType, file.UploadedAt)
	if err != nil {
		return err
	}
	file.ID = id
	return nil
}

func (s *BaseStore) ListHomeworkFiles(ctx context.Context, q DBTX, homeworkID int64) ([]models.HomeworkFile, error) {
	var files []models.HomeworkFile
	err := sqlx.SelectContext(ctx, q, &files, s.Converter(`
		SELECT id, homework_id, filename, file_path, file_type, uploaded_at
		FROM homework_files
		WHERE homework_id = ?
		ORDER BY id
	`), homeworkID)
	if err != nil {
		return nil, s.fail("list homework files", err)
	}
	return files, nil
}

func (s *BaseStore) CreateSubmissionFile(ctx context.Context, q DBTX, file *models.StudentHomeworkFile) error {
	id, err := s.insertReturningID(ctx, q, "create submission file", `
		INSERT INTO student_homework_files (homework_id, student_id, filename, file_path, file_type, comment, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, file.HomeworkID, file.StudentID, file.Filename, file.FilePath, file.FileType, file.Comment, file.UploadedAt)
	if err != nil {
		return err
	}
	file.ID = id
	return nil
}

func (s *BaseStore) GetSubmissionFile(ctx context.Context, q DBTX, id int64) (*models.StudentHomeworkFile, error) {
	var file models.StudentHomeworkFile
	found, err := s.getOne(ctx, q, &file, "get submission file", `
		SELECT id, homework_id, student_id, filename, file_path, file_type, comment, uploaded_at
		FROM student_homework_files
		WHERE id = ?
	`, id)
	if err != nil || !found {
		return nil, err
	}
	return &file, nil
}

func (s *BaseStore) DeleteSubmissionFile(ctx context.Context, q DBTX, id int64) error {
	return s.execAffecting(ctx, q, "delete submission file", `DELETE FROM student_homework_files WHERE id = ?`, id)
}

// ListSubmissionFiles lists submission files of a homework; studentID 0 means
// every student.
func (s *BaseStore) ListSubmissionFiles(ctx context.Context, q DBTX, homeworkID, studentID int64) ([]models.StudentHomeworkFile, error) {
	var files []models.StudentHomeworkFile
	query := `
		SELECT id, homework_id, student_id, filename, file_path, file_type, comment, uploaded_at
		FROM student_homework_files
		WHERE homework_id = ?`
	args := []interface{}{homeworkID}
	if studentID != 0 {
		query += ` AND student_id = ?`
		args = append(args, studentID)
	}
	query += ` ORDER BY uploaded_at, id`

	if err := sqlx.SelectContext(ctx, q, &files, s.Converter(query), args...); err != nil {
		return nil, s.fail("list submission files", err)
	}
	return files, nil
}
