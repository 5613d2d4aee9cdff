// internal/store/sqlite/store_test.go
package sqlite

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store"
)

// setupTestDB creates an in-memory SQLite database with the real migrations applied
func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	s, err := NewSQLiteStore(":memory:", "../../../migrations")
	require.NoError(t, err, "Failed to create store")

	cleanup := func() {
		err := s.Close()
		require.NoError(t, err, "Failed to close database")
	}

	return s, cleanup
}

type testData struct {
	store    *SQLiteStore
	now      time.Time
	teacher  *models.User
	student1 *models.User
	student2 *models.User
	group    *models.Group
}

func setupTestData(t *testing.T) (*testData, func()) {
	s, cleanup := setupTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	mkUser := func(email, first string, role models.Role) *models.User {
		u := &models.User{
			Email:        email,
			PasswordHash: "hash",
			FirstName:    first,
			LastName:     "Test",
			Role:         role,
			CreatedAt:    now,
		}
		require.NoError(t, s.CreateUser(ctx, s.DB, u), "Failed to insert user")
		return u
	}

	td := &testData{store: s, now: now}
	td.teacher = mkUser("teacher@example.com", "Tess", models.RoleTeacher)
	td.student1 = mkUser("s1@example.com", "Anna", models.RoleStudent)
	td.student2 = mkUser("s2@example.com", "Boris", models.RoleStudent)

	td.group = &models.Group{Name: "G", CreatedBy: td.teacher.ID, CreatedAt: now}
	require.NoError(t, s.CreateGroup(ctx, s.DB, td.group), "Failed to insert group")

	return td, cleanup
}

func (td *testData) addMember(t *testing.T, groupID, userID int64) {
	_, err := td.store.AddGroupMember(context.Background(), td.store.DB, &models.GroupMember{
		GroupID: groupID, UserID: userID, JoinedAt: td.now,
	})
	require.NoError(t, err)
}

func (td *testData) homework(t *testing.T, target models.Target, offset time.Duration) *models.Homework {
	hw := &models.Homework{
		Title:     "hw",
		CreatedBy: td.teacher.ID,
		CreatedAt: td.now.Add(offset),
		UpdatedAt: td.now.Add(offset),
	}
	hw.SetTarget(target)
	require.NoError(t, td.store.CreateHomework(context.Background(), td.store.DB, hw))
	return hw
}

func TestMain(m *testing.M) {
	log.Println("Starting SQLite store tests...")
	code := m.Run()
	log.Println("Finished SQLite store tests")
	os.Exit(code)
}

func TestTranslateToSQLite(t *testing.T) {
	got := translateToSQLite("id BIGSERIAL PRIMARY KEY, owner BIGINT NOT NULL, flag BOOLEAN NOT NULL DEFAULT FALSE")
	assert.Equal(t, "id INTEGER PRIMARY KEY AUTOINCREMENT, owner INTEGER NOT NULL, flag BOOLEAN NOT NULL DEFAULT 0", got)
}

func TestUserOperations(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("get user", func(t *testing.T) {
		got, err := td.store.GetUser(ctx, td.store.DB, td.student1.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "s1@example.com", got.Email)
		assert.Equal(t, models.RoleStudent, got.Role)
		assert.True(t, td.now.Equal(got.CreatedAt))
	})

	t.Run("get non-existent user", func(t *testing.T) {
		got, err := td.store.GetUser(ctx, td.store.DB, 9999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		dup := &models.User{Email: "s1@example.com", PasswordHash: "x", FirstName: "A", LastName: "B", Role: models.RoleStudent, CreatedAt: td.now}
		err := td.store.CreateUser(ctx, td.store.DB, dup)
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("list students", func(t *testing.T) {
		students, err := td.store.ListUsers(ctx, td.store.DB, models.RoleStudent)
		require.NoError(t, err)
		require.Len(t, students, 2)
		assert.Equal(t, "Anna", students[0].FirstName)
		assert.Equal(t, "Boris", students[1].FirstName)
	})

	t.Run("update missing user", func(t *testing.T) {
		err := td.store.UpdateUser(ctx, td.store.DB, &models.User{ID: 9999, Role: models.RoleStudent})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestGroupMembership(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("adding twice keeps one row", func(t *testing.T) {
		m := &models.GroupMember{GroupID: td.group.ID, UserID: td.student1.ID, JoinedAt: td.now}
		created, err := td.store.AddGroupMember(ctx, td.store.DB, m)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotZero(t, m.ID)

		created, err = td.store.AddGroupMember(ctx, td.store.DB, &models.GroupMember{GroupID: td.group.ID, UserID: td.student1.ID, JoinedAt: td.now})
		require.NoError(t, err)
		assert.False(t, created)

		members, err := td.store.ListGroupMembers(ctx, td.store.DB, td.group.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, "Anna", members[0].FirstName)
	})

	t.Run("unknown group is not found", func(t *testing.T) {
		_, err := td.store.AddGroupMember(ctx, td.store.DB, &models.GroupMember{GroupID: 9999, UserID: td.student1.ID, JoinedAt: td.now})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("list groups with counts", func(t *testing.T) {
		groups, err := td.store.ListGroups(ctx, td.store.DB)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, 1, groups[0].MemberCount)
	})

	t.Run("deleting the user drops the membership", func(t *testing.T) {
		require.NoError(t, td.store.DeleteUser(ctx, td.store.DB, td.student1.ID))
		memberships, err := td.store.ListMemberships(ctx, td.store.DB, td.student1.ID)
		require.NoError(t, err)
		assert.Empty(t, memberships)
	})
}

func TestHomeworkListingForStudent(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	td.addMember(t, td.group.ID, td.student1.ID)
	direct := td.homework(t, models.ForStudent(td.student1.ID), 0)
	viaGroup := td.homework(t, models.ForGroup(td.group.ID), time.Hour)
	td.homework(t, models.ForStudent(td.student2.ID), 2*time.Hour)
	td.homework(t, models.Untargeted(), 3*time.Hour)

	got, err := td.store.ListHomeworksForStudent(ctx, td.store.DB, td.student1.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, viaGroup.ID, got[0].ID, "newest first")
	assert.Equal(t, direct.ID, got[1].ID)

	all, err := td.store.ListHomeworks(ctx, td.store.DB)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestHomeworkRejectsTwoTargets(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	gid, sid := td.group.ID, td.student1.ID
	hw := &models.Homework{Title: "bad", GroupID: &gid, StudentID: &sid, CreatedBy: td.teacher.ID, CreatedAt: td.now, UpdatedAt: td.now}
	err := td.store.CreateHomework(context.Background(), td.store.DB, hw)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestStatusRows(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	hw := td.homework(t, models.ForStudent(td.student1.ID), 0)
	status := models.NewHomeworkStatus(hw.ID, td.student1.ID, td.now)

	t.Run("insert and read back", func(t *testing.T) {
		require.NoError(t, td.store.InsertStatus(ctx, td.store.DB, status))
		got, err := td.store.GetStatus(ctx, td.store.DB, hw.ID, td.student1.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.ProgressAssigned, got.Status)
		assert.Equal(t, models.ReviewSent, got.Review)
		assert.Nil(t, got.SubmittedAt)
	})

	t.Run("second insert is a conflict", func(t *testing.T) {
		err := td.store.InsertStatus(ctx, td.store.DB, models.NewHomeworkStatus(hw.ID, td.student1.ID, td.now))
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("progress and review columns are independent", func(t *testing.T) {
		submitted := td.now.Add(time.Hour)
		status.Status = models.ProgressCompleted
		status.SubmittedAt = &submitted
		status.UpdatedAt = submitted
		require.NoError(t, td.store.UpdateStudentProgress(ctx, td.store.DB, status))

		notes := "good"
		status.Review = models.ReviewReviewed
		status.ReviewNotes = &notes
		status.ReviewedAt = &submitted
		require.NoError(t, td.store.UpdateReview(ctx, td.store.DB, status))

		views, err := td.store.ListStatuses(ctx, td.store.DB, hw.ID)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, models.ProgressCompleted, views[0].Status)
		assert.Equal(t, models.ReviewReviewed, views[0].Review)
		require.NotNil(t, views[0].ReviewNotes)
		assert.Equal(t, "good", *views[0].ReviewNotes)
		assert.Equal(t, "Anna", views[0].FirstName)
	})

	t.Run("status for unknown homework is not found", func(t *testing.T) {
		err := td.store.InsertStatus(ctx, td.store.DB, models.NewHomeworkStatus(9999, td.student1.ID, td.now))
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestCascades(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	hw := td.homework(t, models.ForGroup(td.group.ID), 0)
	require.NoError(t, td.store.InsertStatus(ctx, td.store.DB, models.NewHomeworkStatus(hw.ID, td.student1.ID, td.now)))
	require.NoError(t, td.store.CreateHomeworkFile(ctx, td.store.DB, &models.HomeworkFile{
		HomeworkID: hw.ID, Filename: "a.pdf", FilePath: "x/a.pdf", FileType: models.FileTypeDocument, UploadedAt: td.now,
	}))

	t.Run("deleting a group untargets its homeworks", func(t *testing.T) {
		require.NoError(t, td.store.DeleteGroup(ctx, td.store.DB, td.group.ID))
		got, err := td.store.GetHomework(ctx, td.store.DB, hw.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.TargetNone, got.Target().Kind)

		status, err := td.store.GetStatus(ctx, td.store.DB, hw.ID, td.student1.ID)
		require.NoError(t, err)
		assert.NotNil(t, status, "status rows outlive the group")
	})

	t.Run("deleting a homework removes files and statuses", func(t *testing.T) {
		require.NoError(t, td.store.DeleteHomework(ctx, td.store.DB, hw.ID))

		status, err := td.store.GetStatus(ctx, td.store.DB, hw.ID, td.student1.ID)
		require.NoError(t, err)
		assert.Nil(t, status)

		files, err := td.store.ListHomeworkFiles(ctx, td.store.DB, hw.ID)
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("deleting twice is not found", func(t *testing.T) {
		err := td.store.DeleteHomework(ctx, td.store.DB, hw.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestSavepointKeepsTransactionUsable(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	hw := td.homework(t, models.ForGroup(td.group.ID), 0)
	require.NoError(t, td.store.InsertStatus(ctx, td.store.DB, models.NewHomeworkStatus(hw.ID, td.student1.ID, td.now)))

	err := td.store.WithTx(ctx, func(tx store.DBTX) error {
		err := td.store.Savepoint(ctx, tx, "dup", func() error {
			return td.store.InsertStatus(ctx, tx, models.NewHomeworkStatus(hw.ID, td.student1.ID, td.now))
		})
		require.ErrorIs(t, err, models.ErrConflict)

		return td.store.Savepoint(ctx, tx, "ok", func() error {
			return td.store.InsertStatus(ctx, tx, models.NewHomeworkStatus(hw.ID, td.student2.ID, td.now))
		})
	})
	require.NoError(t, err)

	views, err := td.store.ListStatuses(ctx, td.store.DB, hw.ID)
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestWithTxRollsBack(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	boom := errors.New("boom")
	err := td.store.WithTx(ctx, func(tx store.DBTX) error {
		hw := &models.Homework{Title: "rolled back", CreatedBy: td.teacher.ID, CreatedAt: td.now, UpdatedAt: td.now}
		if err := td.store.CreateHomework(ctx, tx, hw); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := td.store.ListHomeworks(ctx, td.store.DB)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMessages(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	send := func(from, to int64, content string, offset time.Duration) *models.Message {
		msg := &models.Message{SenderID: from, RecipientID: to, Content: content, CreatedAt: td.now.Add(offset)}
		require.NoError(t, td.store.CreateMessage(ctx, td.store.DB, msg))
		return msg
	}

	first := send(td.student1.ID, td.teacher.ID, "hello", 0)
	send(td.teacher.ID, td.student1.ID, "hi", time.Minute)
	send(td.student1.ID, td.teacher.ID, "question", 2*time.Minute)
	send(td.student2.ID, td.teacher.ID, "other", 3*time.Minute)

	require.NoError(t, td.store.CreateChatFile(ctx, td.store.DB, &models.ChatFile{
		MessageID: first.ID, Filename: "pic.png", FilePath: "chat/pic.png", FileType: models.FileTypeImage, UploadedAt: td.now,
	}))

	t.Run("thread is oldest first", func(t *testing.T) {
		thread, err := td.store.ListThread(ctx, td.store.DB, td.teacher.ID, td.student1.ID)
		require.NoError(t, err)
		require.Len(t, thread, 3)
		assert.Equal(t, "hello", thread[0].Content)
		assert.Equal(t, "question", thread[2].Content)

		files, err := td.store.ListChatFiles(ctx, td.store.DB, []int64{thread[0].ID, thread[1].ID})
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, first.ID, files[0].MessageID)
	})

	t.Run("chat list counts unread", func(t *testing.T) {
		chats, err := td.store.ListChats(ctx, td.store.DB, td.teacher.ID)
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, td.student1.ID, chats[0].UserID)
		assert.Equal(t, 2, chats[0].UnreadCount)
		assert.Equal(t, 1, chats[1].UnreadCount)
	})

	t.Run("marking read only touches incoming", func(t *testing.T) {
		n, err := td.store.MarkThreadRead(ctx, td.store.DB, td.teacher.ID, td.student1.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		chats, err := td.store.ListChats(ctx, td.store.DB, td.student1.ID)
		require.NoError(t, err)
		require.Len(t, chats, 1)
		assert.Equal(t, 1, chats[0].UnreadCount)
	})
}
