package models

import "time"

type Message struct {
	ID          int64      `db:"id" json:"id"`
	SenderID    int64      `db:"sender_id" json:"sender_id"`
	RecipientID int64      `db:"recipient_id" json:"recipient_id"`
	Content     string     `db:"content" json:"content"`
	IsRead      bool       `db:"is_read" json:"is_read"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	Files       []ChatFile `db:"-" json:"files"`
}

type ChatFile struct {
	ID         int64     `db:"id" json:"id"`
	MessageID  int64     `db:"message_id" json:"message_id"`
	Filename   string    `db:"filename" json:"filename"`
	FilePath   string    `db:"file_path" json:"file_path"`
	FileType   FileType  `db:"file_type" json:"file_type"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// ChatSummary is one counterpart in the viewer's chat list.
type ChatSummary struct {
	UserID      int64  `db:"user_id" json:"user_id"`
	FirstName   string `db:"first_name" json:"first_name"`
	LastName    string `db:"last_name" json:"last_name"`
	UnreadCount int    `db:"unread_count" json:"unread_count"`
}
