package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

func (s *BaseStore) CreateMessage(ctx context.Context, q DBTX, msg *models.Message) error {
	id, err := s.insertReturningID(ctx, q, "create message", `
		INSERT INTO messages (sender_id, recipient_id, content, is_read, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, msg.SenderID, msg.RecipientID, msg.Content, msg.IsRead, msg.CreatedAt)
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

func (s *BaseStore) CreateChatFile(ctx context.Context, q DBTX, file *models.ChatFile) error {
	id, err := s.insertReturningID(ctx, q, "create chat file", `
		INSERT INTO chat_files (message_id, filename, file_path, file_type, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, file.MessageID, file.Filename, file.FilePath, file.FileType, file.UploadedAt)
	if err != nil {
		return err
	}
	file.ID = id
	return nil
}

// ListThread returns every message between two users, oldest first.
func (s *BaseStore) ListThread(ctx context.Context, q DBTX, userA, userB int64) ([]models.Message, error) {
	var messages []models.Message
	err := sqlx.SelectContext(ctx, q, &messages, s.Converter(`
		SELECT id, sender_id, recipient_id, content, is_read, created_at
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?)
		   OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at ASC, id ASC
	`), userA, userB, userB, userA)
	if err != nil {
		return nil, s.fail("list thread", err)
	}
	return messages, nil
}

func (s *BaseStore) ListChatFiles(ctx context.Context, q DBTX, messageIDs []int64) ([]models.ChatFile, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, message_id, filename, file_path, file_type, uploaded_at
		FROM chat_files
		WHERE message_id IN (?)
		ORDER BY message_id, id
	`, messageIDs)
	if err != nil {
		return nil, s.fail("build chat files query", err)
	}

	var files []models.ChatFile
	if err := sqlx.SelectContext(ctx, q, &files, s.Converter(query), args...); err != nil {
		return nil, s.fail("list chat files", err)
	}
	return files, nil
}

// MarkThreadRead flags every unread message from other to viewer as read and
// returns how many rows changed.
func (s *BaseStore) MarkThreadRead(ctx context.Context, q DBTX, viewerID, otherID int64) (int64, error) {
	res, err := q.ExecContext(ctx, s.Converter(`
		UPDATE messages
		SET is_read = ?
		WHERE sender_id = ? AND recipient_id = ? AND is_read = ?
	`), true, otherID, viewerID, false)
	if err != nil {
		return 0, s.fail("mark thread read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.fail("mark thread read", err)
	}
	return n, nil
}

// ListChats lists everyone the viewer has exchanged messages with, along with
// how many of their messages the viewer has not read yet.
func (s *BaseStore) ListChats(ctx context.Context, q DBTX, viewerID int64) ([]models.ChatSummary, error) {
	var chats []models.ChatSummary
	err := sqlx.SelectContext(ctx, q, &chats, s.Converter(`
		SELECT u.id AS user_id, u.first_name, u.last_name,
		       COUNT(CASE WHEN m.recipient_id = ? AND m.is_read = ? THEN 1 END) AS unread_count
		FROM messages m
		JOIN users u
		  ON u.id = CASE WHEN m.sender_id = ? THEN m.recipient_id ELSE m.sender_id END
		WHERE m.sender_id = ? OR m.recipient_id = ?
		GROUP BY u.id, u.first_name, u.last_name
		ORDER BY u.last_name, u.first_name, u.id
	`), viewerID, false, viewerID, viewerID, viewerID)
	if err != nil {
		return nil, s.fail("list chats", err)
	}
	return chats, nil
}
