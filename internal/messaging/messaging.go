// Package messaging is the direct message log between two users.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/blob"
	"github.com/shrimpsizemoose/homeroom/internal/metrics"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

const chatScope = "chat"

type Service struct {
	store store.Store
	blobs blob.Store
	loc   *time.Location
	now   func() time.Time
}

// NewService renders every timestamp it returns in loc. A nil loc means UTC.
func NewService(s store.Store, blobs blob.Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: s, blobs: blobs, loc: loc, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Thread is the conversation between the viewer and one counterpart.
type Thread struct {
	With     *models.User     `json:"with"`
	Messages []models.Message `json:"messages"`
}

func (s *Service) counterpart(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.store.GetUser(ctx, s.store.Handle(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return user, nil
}

func (s *Service) render(msg *models.Message) {
	msg.CreatedAt = msg.CreatedAt.In(s.loc)
	for i := range msg.Files {
		msg.Files[i].UploadedAt = msg.Files[i].UploadedAt.In(s.loc)
	}
}

// Send stores a message with its attachments. Either all of it lands or
// none of it does, blobs included. Empty content is fine when files are
// attached.
func (s *Service) Send(ctx context.Context, sender access.Actor, recipientID int64, content string, files []models.Upload) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if recipientID == 0 {
		return nil, models.NewValidationError("no recipient", models.FieldError{Field: "recipient_id", Error: "required"})
	}
	if recipientID == sender.UserID {
		return nil, models.NewValidationError("cannot message yourself", models.FieldError{Field: "recipient_id", Error: "self"})
	}
	if content == "" && len(files) == 0 {
		return nil, models.NewValidationError("empty message", models.FieldError{Field: "content", Error: "required"})
	}
	if _, err := s.counterpart(ctx, recipientID); err != nil {
		return nil, err
	}

	now := s.now()
	msg := &models.Message{
		SenderID:    sender.UserID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   now,
		Files:       []models.ChatFile{},
	}

	stager := blob.NewStager(s.blobs)
	err := s.store.WithTx(ctx, func(tx store.DBTX) error {
		if err := s.store.CreateMessage(ctx, tx, msg); err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}
		for _, f := range files {
			key, err := stager.Put(ctx, chatScope, f)
			if err != nil {
				return err
			}
			file := models.ChatFile{
				MessageID:  msg.ID,
				Filename:   f.Filename,
				FilePath:   key,
				FileType:   blob.KindOf(f.Filename),
				UploadedAt: now,
			}
			if err := s.store.CreateChatFile(ctx, tx, &file); err != nil {
				return fmt.Errorf("failed to attach %q: %w", f.Filename, err)
			}
			msg.Files = append(msg.Files, file)
		}
		return nil
	})
	if err != nil {
		if rbErr := stager.Rollback(ctx); rbErr != nil {
			logger.Error.Printf("Leftover blobs after failed message: %v", rbErr)
		}
		return nil, err
	}

	metrics.MessagesSentTotal.Inc()
	logger.Debug.Printf("User %d sent message %d to %d with %d files", sender.UserID, msg.ID, recipientID, len(msg.Files))
	s.render(msg)
	return msg, nil
}

// OpenThread returns every message between the viewer and otherID, oldest
// first. Opening a thread marks what otherID sent to the viewer as read;
// the viewer's own messages keep their state. The returned messages show
// the state after marking.
func (s *Service) OpenThread(ctx context.Context, viewer access.Actor, otherID int64) (*Thread, error) {
	other, err := s.counterpart(ctx, otherID)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	err = s.store.WithTx(ctx, func(tx store.DBTX) error {
		n, err := s.store.MarkThreadRead(ctx, tx, viewer.UserID, otherID)
		if err != nil {
			return fmt.Errorf("failed to mark thread read: %w", err)
		}
		if n > 0 {
			logger.Debug.Printf("User %d read %d messages from %d", viewer.UserID, n, otherID)
		}

		messages, err = s.store.ListThread(ctx, tx, viewer.UserID, otherID)
		if err != nil {
			return fmt.Errorf("failed to list thread: %w", err)
		}
		return s.attachFiles(ctx, tx, messages)
	})
	if err != nil {
		return nil, err
	}

	for i := range messages {
		s.render(&messages[i])
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return &Thread{With: other, Messages: messages}, nil
}

func (s *Service) attachFiles(ctx context.Context, q store.DBTX, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(messages))
	byID := make(map[int64]int, len(messages))
	for i := range messages {
		ids = append(ids, messages[i].ID)
		byID[messages[i].ID] = i
		messages[i].Files = []models.ChatFile{}
	}

	files, err := s.store.ListChatFiles(ctx, q, ids)
	if err != nil {
		return fmt.Errorf("failed to list chat files: %w", err)
	}
	for _, f := range files {
		if i, ok := byID[f.MessageID]; ok {
			messages[i].Files = append(messages[i].Files, f)
		}
	}
	return nil
}

// ListChats lists everyone the viewer has exchanged messages with and how
// many of their messages the viewer has not read yet.
func (s *Service) ListChats(ctx context.Context, viewer access.Actor) ([]models.ChatSummary, error) {
	chats, err := s.store.ListChats(ctx, s.store.Handle(), viewer.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	if chats == nil {
		chats = []models.ChatSummary{}
	}
	return chats, nil
}
