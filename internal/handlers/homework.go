package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shrimpsizemoose/homeroom/internal/homework"
	"github.com/shrimpsizemoose/homeroom/internal/models"
)

const deadlineLocalFormat = "2006-01-02T15:04"

type HomeworkHandler struct {
	homework *homework.Service
	maxBytes int64
	loc      *time.Location
}

// NewHomeworkHandler takes the upload cap and the zone a deadline without an
// offset is read in.
func NewHomeworkHandler(svc *homework.Service, maxBytes int64, loc *time.Location) *HomeworkHandler {
	return &HomeworkHandler{homework: svc, maxBytes: maxBytes, loc: loc}
}

func (h *HomeworkHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{homeworkID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.delete)
		r.Post("/refanout", h.refanout)
		r.Get("/statuses", h.statuses)
		r.Get("/statuses/{studentID}", h.ensureRow)
		r.Put("/statuses/{studentID}/progress", h.studentUpdate)
		r.Put("/statuses/{studentID}/review", h.teacherReview)
		r.Get("/submissions", h.listSubmissions)
		r.Post("/submissions", h.uploadSubmission)
	})
	r.Delete("/submissions/{fileID}", h.deleteSubmission)
}

func (h *HomeworkHandler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.homework.ListFor(r.Context(), actorFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"homeworks": list})
}

func (h *HomeworkHandler) parseDeadline(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.ParseInLocation(deadlineLocalFormat, raw, h.loc)
	if err != nil {
		return nil, models.NewValidationError("invalid deadline", models.FieldError{Field: "deadline", Error: "datetime"})
	}
	t = t.UTC()
	return &t, nil
}

func formID(r *http.Request, field string) (int64, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, models.NewValidationError("invalid "+field, models.FieldError{Field: field, Error: "number"})
	}
	return id, nil
}

// readNewHomework accepts either a JSON body or a multipart form with the
// reference files under "files".
func (h *HomeworkHandler) readNewHomework(w http.ResponseWriter, r *http.Request) (homework.NewHomework, []models.Upload, error) {
	var in homework.NewHomework
	if !isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
		if !decodeJSON(w, r, &in) {
			return in, nil, errResponded
		}
		return in, nil, nil
	}

	files, err := parseMultipart(w, r, h.maxBytes)
	if err != nil {
		return in, nil, err
	}
	in.Title = r.FormValue("title")
	in.Description = r.FormValue("description")
	if in.Deadline, err = h.parseDeadline(r.FormValue("deadline")); err != nil {
		return in, nil, err
	}

	targetID, err := formID(r, "target_id")
	if err != nil {
		return in, nil, err
	}
	switch models.TargetKind(r.FormValue("target_kind")) {
	case models.TargetStudent:
		in.Target = models.ForStudent(targetID)
	case models.TargetGroup:
		in.Target = models.ForGroup(targetID)
	case models.TargetNone, "":
		in.Target = models.Untargeted()
	default:
		return in, nil, models.NewValidationError("invalid target", models.FieldError{Field: "target_kind", Error: "oneof"})
	}

	scheduleID, err := formID(r, "schedule_id")
	if err != nil {
		return in, nil, err
	}
	if scheduleID != 0 {
		in.ScheduleID = &scheduleID
	}
	return in, files, nil
}

func (h *HomeworkHandler) create(w http.ResponseWriter, r *http.Request) {
	in, files, err := h.readNewHomework(w, r)
	if err == errResponded {
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}

	hw, report, err := h.homework.Create(r.Context(), actorFrom(r.Context()), in, files)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"homework": hw,
		"fanout":   report,
	}
	if warning := report.Warning(); warning != nil {
		resp["warning"] = warning.Error()
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *HomeworkHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "homeworkID")
	if !ok {
		return
	}
	detail, err := h.homework.Get(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *HomeworkHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "homeworkID")
	if !ok {
		return
	}
	if err := h.homework.Delete(r.Context(), actorFrom(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HomeworkHandler) refanout(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "homeworkID")
	if !ok {
		return
	}
	report, err := h.homework.Refanout(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := map[string]interface{}{"fanout": report}
	if warning := report.Warning(); warning != nil {
		resp["warning"] = warning.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *HomeworkHandler) statuses(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "homeworkID")
	if !ok {
		return
	}
	views, err := h.homework.ListStatuses(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"statuses": views})
}

func (h *HomeworkHandler) ensureRow(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "homeworkID")
	if !ok {
		return
	}
	studentID, ok := idParam(w, r, "studentID")
	if !ok {
		return
	}
	status, err := h.homework.EnsureRow(r.Context(), actorFrom(r.Context()), id, studentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type progressRequest struct {
	Status models.ProgressState `json:"status"`
}

func (h *HomeworkHandler) studentUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "homeworkID")
	if !ok {
		return
	}
	studentID, ok := idParam(w, r, "studentID")
	if !ok {
		return
	}
	var req progressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := h.homework.StudentUpdate(r.Context(), actorFrom(r.Context()), id, studentID, req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type reviewRequest struct {
	TeacherStatus models.ReviewState `json:"teacher_status"`
	ReviewNotes   *string            `json:"review_notes"`
}

func (h *HomeworkHandler) teacherReview(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "homeworkID")
	if !ok {
		return
	}
	studentID, ok := idParam(w, r, "studentID")
	if !ok {
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status, err := h.homework.TeacherReview(r.Context(), actorFrom(r.Context()), id, studentID, req.TeacherStatus, req.ReviewNotes)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

func (h *HomeworkHandler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "homeworkID")
	if !ok {
		return
	}
	studentID, err := strconv.ParseInt(r.URL.Query().Get("student_id"), 10, 64)
	if err != nil {
		studentID = 0
	}
	files, err := h.homework.ListSubmissions(r.Context(), actorFrom(r.Context()), id, studentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (h *HomeworkHandler) uploadSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "homeworkID")
	if !ok {
		return
	}
	if !isMultipart(r) {
		badRequest(w, "submissions are uploaded as multipart/form-data")
		return
	}
	files, err := parseMultipart(w, r, h.maxBytes)
	if err != nil {
		respondError(w, r, err)
		return
	}
	saved, err := h.homework.UploadSubmission(r.Context(), actorFrom(r.Context()), id, files, r.FormValue("comment"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"files": saved})
}

func (h *HomeworkHandler) deleteSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "fileID")
	if !ok {
		return
	}
	if err := h.homework.DeleteSubmission(r.Context(), actorFrom(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
