package roster

import (
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/store/sqlite"
)

type testData struct {
	svc      *Service
	teacher  access.Actor
	student1 *models.User
	student2 *models.User
}

func setupTestData(t *testing.T) (*testData, func()) {
	s, err := sqlite.NewSQLiteStore(":memory:", "../../migrations")
	require.NoError(t, err, "Failed to create store")

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	svc := NewService(s).WithClock(func() time.Time { return now })
	ctx := context.Background()

	teacher, err := svc.Register(ctx, NewUser{Email: "T@Example.com", Password: "secret1", FirstName: "Tess", LastName: "Teach", Role: models.RoleTeacher})
	require.NoError(t, err)
	s1, err := svc.Register(ctx, NewUser{Email: "s1@example.com", Password: "secret1", FirstName: "Anna", LastName: "A", Role: models.RoleStudent})
	require.NoError(t, err)
	s2, err := svc.Register(ctx, NewUser{Email: "s2@example.com", Password: "secret1", FirstName: "Boris", LastName: "B", Role: models.RoleStudent})
	require.NoError(t, err)

	cleanup := func() {
		require.NoError(t, s.Close(), "Failed to close database")
	}
	return &testData{svc: svc, teacher: access.Teacher(teacher.ID), student1: s1, student2: s2}, cleanup
}

func TestMain(m *testing.M) {
	log.Println("Starting roster tests...")
	code := m.Run()
	log.Println("Finished roster tests")
	os.Exit(code)
}

func TestAccounts(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("authenticate normalises email", func(t *testing.T) {
		user, err := td.svc.Authenticate(ctx, " t@example.COM ", "secret1")
		require.NoError(t, err)
		assert.Equal(t, td.teacher.UserID, user.ID)
	})

	t.Run("wrong password is denied", func(t *testing.T) {
		_, err := td.svc.Authenticate(ctx, "t@example.com", "nope")
		assert.ErrorIs(t, err, models.ErrPermissionDenied)
		_, err = td.svc.Authenticate(ctx, "ghost@example.com", "secret1")
		assert.ErrorIs(t, err, models.ErrPermissionDenied)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, err := td.svc.CreateUser(ctx, td.teacher, NewUser{Email: "s1@example.com", Password: "secret1", FirstName: "X", LastName: "Y", Role: models.RoleStudent})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := td.svc.Register(ctx, NewUser{Email: "bad", Password: "secret1", FirstName: "X", LastName: "Y", Role: models.RoleStudent})
		assert.ErrorIs(t, err, models.ErrValidation)
		_, err = td.svc.Register(ctx, NewUser{Email: "ok@example.com", Password: "123", FirstName: "X", LastName: "Y", Role: models.RoleStudent})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("students cannot manage accounts", func(t *testing.T) {
		student := access.Student(td.student1.ID)
		_, err := td.svc.CreateUser(ctx, student, NewUser{})
		assert.ErrorIs(t, err, models.ErrPermissionDenied)
		_, err = td.svc.ListStudents(ctx, student)
		assert.ErrorIs(t, err, models.ErrPermissionDenied)
		_, err = td.svc.GetUser(ctx, student, td.student2.ID)
		assert.ErrorIs(t, err, models.ErrPermissionDenied)
	})

	t.Run("admin edit may change role", func(t *testing.T) {
		role := models.RoleTeacher
		name := "Boris II"
		updated, err := td.svc.UpdateUser(ctx, td.teacher, td.student2.ID, UserUpdate{Role: &role, FirstName: &name})
		require.NoError(t, err)
		assert.Equal(t, models.RoleTeacher, updated.Role)

		got, err := td.svc.GetUser(ctx, td.teacher, td.student2.ID)
		require.NoError(t, err)
		assert.Equal(t, "Boris II", got.FirstName)
		assert.Equal(t, models.RoleTeacher, got.Role)
	})

	t.Run("cannot delete yourself", func(t *testing.T) {
		err := td.svc.DeleteUser(ctx, td.teacher, td.teacher.UserID)
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("delete user", func(t *testing.T) {
		require.NoError(t, td.svc.DeleteUser(ctx, td.teacher, td.student1.ID))
		_, err := td.svc.GetUser(ctx, td.teacher, td.student1.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		err = td.svc.DeleteUser(ctx, td.teacher, td.student1.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestGroupDirectory(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	group, err := td.svc.CreateGroup(ctx, td.teacher, NewGroup{Name: "Evening B2"})
	require.NoError(t, err)
	solo, err := td.svc.CreateGroup(ctx, td.teacher, NewGroup{Name: "Anna 1:1", IsIndividual: true})
	require.NoError(t, err)

	t.Run("empty name is rejected", func(t *testing.T) {
		_, err := td.svc.CreateGroup(ctx, td.teacher, NewGroup{Name: "  "})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("add members is idempotent", func(t *testing.T) {
		added, err := td.svc.AddMembers(ctx, td.teacher, group.ID, []int64{td.student1.ID, td.student2.ID})
		require.NoError(t, err)
		assert.Equal(t, 2, added)

		added, err = td.svc.AddMembers(ctx, td.teacher, group.ID, []int64{td.student1.ID})
		require.NoError(t, err)
		assert.Equal(t, 0, added)

		members, err := td.svc.Members(ctx, td.teacher, group.ID)
		require.NoError(t, err)
		assert.Len(t, members, 2)

		for _, s := range []*models.User{td.student1, td.student2} {
			memberships, err := td.svc.MembershipOf(ctx, access.Student(s.ID), s.ID)
			require.NoError(t, err)
			require.Len(t, memberships, 1)
			assert.Equal(t, group.ID, memberships[0].GroupID)
		}
	})

	t.Run("non students are skipped one by one", func(t *testing.T) {
		added, err := td.svc.AddMembers(ctx, td.teacher, solo.ID, []int64{td.teacher.UserID, td.student1.ID, 9999})
		require.NoError(t, err)
		assert.Equal(t, 1, added)

		members, err := td.svc.Members(ctx, td.teacher, solo.ID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, td.student1.ID, members[0].UserID)

		ids, err := td.svc.GroupIDsOf(ctx, td.teacher.UserID)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := td.svc.AddMembers(ctx, td.teacher, 9999, []int64{td.student1.ID})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("listing splits individual groups", func(t *testing.T) {
		listing, err := td.svc.ListGroups(ctx, td.teacher)
		require.NoError(t, err)
		require.Len(t, listing.Standard, 1)
		require.Len(t, listing.Individual, 1)
		assert.Equal(t, 2, listing.Standard[0].MemberCount)
	})

	t.Run("remove member must match group", func(t *testing.T) {
		members, err := td.svc.Members(ctx, td.teacher, group.ID)
		require.NoError(t, err)
		target := members[0]

		err = td.svc.RemoveMember(ctx, td.teacher, solo.ID, target.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		require.NoError(t, td.svc.RemoveMember(ctx, td.teacher, group.ID, target.ID))
		ids, err := td.svc.GroupIDsOf(ctx, target.UserID)
		require.NoError(t, err)
		assert.NotContains(t, ids, group.ID)
	})

	t.Run("students cannot look at other memberships", func(t *testing.T) {
		_, err := td.svc.MembershipOf(ctx, access.Student(td.student1.ID), td.student2.ID)
		assert.ErrorIs(t, err, models.ErrPermissionDenied)
	})

	t.Run("delete group", func(t *testing.T) {
		require.NoError(t, td.svc.DeleteGroup(ctx, td.teacher, group.ID))
		_, err := td.svc.Members(ctx, td.teacher, group.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestSelfService(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()
	ctx := context.Background()

	t.Run("sign up always makes a student", func(t *testing.T) {
		user, err := td.svc.SignUp(ctx, NewUser{Email: "new@example.com", Password: "secret1", FirstName: "N", LastName: "N", Role: models.RoleTeacher})
		require.NoError(t, err)
		assert.Equal(t, models.RoleStudent, user.Role)

		_, err = td.svc.SignUp(ctx, NewUser{Email: "NEW@example.com", Password: "secret1", FirstName: "N", LastName: "N"})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("profile update touches only the caller", func(t *testing.T) {
		phone := " 555-0100 "
		user, err := td.svc.UpdateProfile(ctx, access.Student(td.student1.ID), ProfileUpdate{Phone: &phone})
		require.NoError(t, err)
		assert.Equal(t, "555-0100", user.Phone)

		other, err := td.svc.GetUser(ctx, td.teacher, td.student2.ID)
		require.NoError(t, err)
		assert.Empty(t, other.Phone)

		long := strings.Repeat("9", 21)
		_, err = td.svc.UpdateProfile(ctx, access.Student(td.student1.ID), ProfileUpdate{Phone: &long})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("own groups list classmates", func(t *testing.T) {
		first, err := td.svc.CreateGroup(ctx, td.teacher, NewGroup{Name: "Morning"})
		require.NoError(t, err)
		second, err := td.svc.CreateGroup(ctx, td.teacher, NewGroup{Name: "Anna 1:1", IsIndividual: true})
		require.NoError(t, err)
		_, err = td.svc.AddMembers(ctx, td.teacher, first.ID, []int64{td.student1.ID, td.student2.ID})
		require.NoError(t, err)
		_, err = td.svc.AddMembers(ctx, td.teacher, second.ID, []int64{td.student1.ID})
		require.NoError(t, err)

		groups, err := td.svc.OwnGroups(ctx, access.Student(td.student1.ID))
		require.NoError(t, err)
		require.Len(t, groups, 2)
		assert.Equal(t, first.ID, groups[0].Group.ID)
		assert.Len(t, groups[0].Members, 2)
		assert.Equal(t, second.ID, groups[1].Group.ID)
		assert.Len(t, groups[1].Members, 1)

		groups, err = td.svc.OwnGroups(ctx, access.Student(td.student2.ID))
		require.NoError(t, err)
		require.Len(t, groups, 1)

		_, err = td.svc.OwnGroups(ctx, td.teacher)
		assert.ErrorIs(t, err, models.ErrPermissionDenied)
	})
}
