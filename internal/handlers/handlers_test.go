package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/homeroom/internal/app"
	"github.com/shrimpsizemoose/homeroom/internal/models"
	"github.com/shrimpsizemoose/homeroom/internal/roster"
)

type testEnv struct {
	router  http.Handler
	service *app.Service
	teacher *models.User
	anna    *models.User
	boris   *models.User
}

func setupTestEnv(t *testing.T) (*testEnv, func()) {
	config, err := app.ParseConfig("test.toml", []byte(fmt.Sprintf(`
[server]
port = ":0"

[database]
dsn = ":memory:"
migrations_dir = "../../migrations"

[storage]
upload_dir = %q
max_upload_mb = 1

[display]
timezone = "UTC"
`, t.TempDir())))
	require.NoError(t, err)

	service, err := app.NewServiceFromConfig(context.Background(), config)
	require.NoError(t, err)

	router, err := NewRouter(service)
	require.NoError(t, err)

	env := &testEnv{router: router, service: service}
	register := func(email, first string, role models.Role) *models.User {
		u, err := service.Roster.Register(context.Background(), roster.NewUser{
			Email: email, Password: "secret1", FirstName: first, LastName: "Test", Role: role,
		})
		require.NoError(t, err)
		return u
	}
	env.teacher = register("teacher@example.com", "Tina", models.RoleTeacher)
	env.anna = register("anna@example.com", "Anna", models.RoleStudent)
	env.boris = register("boris@example.com", "Boris", models.RoleStudent)

	return env, func() {
		require.NoError(t, service.Close())
	}
}

func (e *testEnv) do(t *testing.T, as *models.User, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if as != nil {
		req.Header.Set("X-User-ID", strconv.FormatInt(as.ID, 10))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, as *models.User, method, path string, payload interface{}) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return e.do(t, as, method, path, body, "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (io.Reader, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(filesField, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthAndAuth(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	rec := env.do(t, nil, "GET", "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, nil, "GET", "/api/v1/homeworks/", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, &models.User{ID: 9999}, "GET", "/api/v1/homeworks/", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, env.anna, "GET", "/api/v1/me", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	decode(t, rec, &me)
	assert.Equal(t, "anna@example.com", me.Email)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestLogin(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	rec := env.doJSON(t, nil, "POST", "/api/v1/auth/login", map[string]string{"email": "ANNA@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.doJSON(t, nil, "POST", "/api/v1/auth/login", map[string]string{"email": "anna@example.com", "password": "wrong!"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, nil, "POST", "/api/v1/auth/login", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelfService(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	t.Run("register is public and makes students", func(t *testing.T) {
		rec := env.doJSON(t, nil, "POST", "/api/v1/auth/register", map[string]string{
			"email": "new@example.com", "password": "secret1", "first_name": "Nina", "last_name": "New", "role": "teacher",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var user models.User
		decode(t, rec, &user)
		assert.Equal(t, models.RoleStudent, user.Role)

		rec = env.doJSON(t, nil, "POST", "/api/v1/auth/register", map[string]string{
			"email": "new@example.com", "password": "secret1", "first_name": "Nina", "last_name": "New",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("update own phone", func(t *testing.T) {
		rec := env.doJSON(t, env.anna, "PATCH", "/api/v1/me", map[string]string{"phone": " +7 900 000 00 00 "})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var user models.User
		decode(t, rec, &user)
		assert.Equal(t, "+7 900 000 00 00", user.Phone)
		assert.Equal(t, models.RoleStudent, user.Role)
	})

	t.Run("own groups", func(t *testing.T) {
		rec := env.doJSON(t, env.teacher, "POST", "/api/v1/groups/", map[string]interface{}{"name": "G"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var group models.Group
		decode(t, rec, &group)

		rec = env.doJSON(t, env.teacher, "POST", fmt.Sprintf("/api/v1/groups/%d/members", group.ID),
			map[string]interface{}{"student_ids": []int64{env.anna.ID, env.teacher.ID, env.boris.ID}})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var added struct {
			Added int `json:"added"`
		}
		decode(t, rec, &added)
		assert.Equal(t, 2, added.Added)

		rec = env.do(t, env.anna, "GET", "/api/v1/me/groups", nil, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var mine struct {
			Groups []struct {
				Group   models.Group        `json:"group"`
				Members []models.MemberView `json:"members"`
			} `json:"groups"`
		}
		decode(t, rec, &mine)
		require.Len(t, mine.Groups, 1)
		assert.Equal(t, group.ID, mine.Groups[0].Group.ID)
		assert.Len(t, mine.Groups[0].Members, 2)

		rec = env.do(t, env.teacher, "GET", "/api/v1/me/groups", nil, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHomeworkFlow(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	rec := env.doJSON(t, env.teacher, "POST", "/api/v1/groups/", map[string]interface{}{"name": "G"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var group models.Group
	decode(t, rec, &group)

	rec = env.doJSON(t, env.teacher, "POST", fmt.Sprintf("/api/v1/groups/%d/members", group.ID),
		map[string]interface{}{"student_ids": []int64{env.anna.ID, env.boris.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body, ct := multipartBody(t, map[string]string{
		"title":       "HW1",
		"description": "read chapter 1",
		"deadline":    "2030-01-01T18:00",
		"target_kind": "group",
		"target_id":   strconv.FormatInt(group.ID, 10),
	}, map[string]string{"task.pdf": "%PDF"})
	rec = env.do(t, env.teacher, "POST", "/api/v1/homeworks/", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Homework models.Homework `json:"homework"`
		Fanout   struct {
			Created int `json:"created"`
		} `json:"fanout"`
	}
	decode(t, rec, &created)
	assert.Equal(t, 2, created.Fanout.Created)
	require.NotNil(t, created.Homework.Deadline)
	assert.Equal(t, 18, created.Homework.Deadline.Hour())
	hwPath := fmt.Sprintf("/api/v1/homeworks/%d", created.Homework.ID)

	t.Run("student sees it", func(t *testing.T) {
		rec := env.do(t, env.anna, "GET", "/api/v1/homeworks/", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var list struct {
			Homeworks []models.Homework `json:"homeworks"`
		}
		decode(t, rec, &list)
		require.Len(t, list.Homeworks, 1)

		rec = env.do(t, env.anna, "GET", hwPath, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "task.pdf")
	})

	t.Run("student completes", func(t *testing.T) {
		rec := env.doJSON(t, env.anna, "PUT", fmt.Sprintf("%s/statuses/%d/progress", hwPath, env.anna.ID),
			map[string]string{"status": "completed"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = env.doJSON(t, env.boris, "PUT", fmt.Sprintf("%s/statuses/%d/progress", hwPath, env.anna.ID),
			map[string]string{"status": "has_issues"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.doJSON(t, env.anna, "PUT", fmt.Sprintf("%s/statuses/%d/progress", hwPath, env.anna.ID),
			map[string]string{"status": "nope"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("teacher reviews", func(t *testing.T) {
		rec := env.doJSON(t, env.teacher, "PUT", fmt.Sprintf("%s/statuses/%d/review", hwPath, env.anna.ID),
			map[string]string{"teacher_status": "reviewed", "review_notes": "Good job"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = env.do(t, env.teacher, "GET", hwPath+"/statuses", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Statuses []models.StatusView `json:"statuses"`
		}
		decode(t, rec, &resp)
		require.Len(t, resp.Statuses, 2)
		for _, s := range resp.Statuses {
			if s.StudentID == env.anna.ID {
				assert.Equal(t, models.ProgressCompleted, s.Status)
				assert.Equal(t, models.ReviewReviewed, s.Review)
			} else {
				assert.Equal(t, models.ProgressAssigned, s.Status)
			}
		}
	})

	t.Run("submissions", func(t *testing.T) {
		body, ct := multipartBody(t, map[string]string{"comment": "mine"}, map[string]string{"answer.txt": "42"})
		rec := env.do(t, env.anna, "POST", hwPath+"/submissions", body, ct)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp struct {
			Files []models.StudentHomeworkFile `json:"files"`
		}
		decode(t, rec, &resp)
		require.Len(t, resp.Files, 1)

		rec = env.do(t, env.boris, "DELETE", fmt.Sprintf("/api/v1/homeworks/submissions/%d", resp.Files[0].ID), nil, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = env.do(t, env.anna, "DELETE", fmt.Sprintf("/api/v1/homeworks/submissions/%d", resp.Files[0].ID), nil, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("errors map to status codes", func(t *testing.T) {
		rec := env.doJSON(t, env.anna, "POST", "/api/v1/homeworks/", map[string]interface{}{"title": "x"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.doJSON(t, env.teacher, "POST", "/api/v1/homeworks/", map[string]interface{}{"title": ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp errorResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.Fields)

		rec = env.do(t, env.teacher, "GET", "/api/v1/homeworks/9999", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = env.do(t, env.teacher, "GET", "/api/v1/homeworks/abc", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.doJSON(t, env.teacher, "POST", "/api/v1/users/", map[string]interface{}{
			"email": "anna@example.com", "password": "secret1", "first_name": "A", "last_name": "B", "role": "student",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.do(t, env.teacher, "DELETE", hwPath, nil, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = env.do(t, env.teacher, "GET", hwPath, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestChats(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	path := fmt.Sprintf("/api/v1/chats/%d", env.teacher.ID)
	rec := env.doJSON(t, env.anna, "POST", path, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body, ct := multipartBody(t, nil, map[string]string{"scan.png": "png"})
	rec = env.do(t, env.anna, "POST", path, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.doJSON(t, env.anna, "POST", path, map[string]string{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, env.teacher, "GET", "/api/v1/chats/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var chats struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	decode(t, rec, &chats)
	require.Len(t, chats.Chats, 1)
	assert.Equal(t, 2, chats.Chats[0].UnreadCount)

	rec = env.do(t, env.teacher, "GET", fmt.Sprintf("/api/v1/chats/%d", env.anna.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var thread struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, rec, &thread)
	require.Len(t, thread.Messages, 2)
	assert.Len(t, thread.Messages[1].Files, 1)
	assert.True(t, thread.Messages[0].IsRead)
}

func TestMetricsEndpoint(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	env.do(t, env.teacher, "GET", "/api/v1/homeworks/", nil, "")

	rec := env.do(t, nil, "GET", "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "api_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), `path="/api/v1/homeworks`)
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewValidationError("bad"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", models.ErrNotFound), http.StatusNotFound},
		{models.ErrPermissionDenied, http.StatusForbidden},
		{models.ErrConflict, http.StatusConflict},
		{models.ErrStorage, http.StatusInternalServerError},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFromError(tt.err), tt.err.Error())
	}
}
