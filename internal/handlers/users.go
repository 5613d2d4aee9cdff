package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/app"
	"github.com/shrimpsizemoose/homeroom/internal/roster"
)

type AuthHandler struct {
	auth   *app.Auth
	roster *roster.Service
}

func NewAuthHandler(auth *app.Auth, roster *roster.Service) *AuthHandler {
	return &AuthHandler{auth: auth, roster: roster}
}

// RegisterPublicRoutes mounts the routes that work without a session.
func (h *AuthHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.login)
	r.Post("/auth/register", h.register)
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/logout", h.logout)
	r.Get("/me", h.me)
	r.Patch("/me", h.updateProfile)
	r.Get("/me/groups", h.ownGroups)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.roster.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	session, err := h.auth.Login(r.Context(), user)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logger.Info.Printf("User %d logged in", user.ID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
		"user":    user,
	})
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req roster.NewUser
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.roster.SignUp(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	user, err := h.roster.GetUser(r.Context(), actor, actor.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req roster.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.roster.UpdateProfile(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) ownGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.roster.OwnGroups(r.Context(), actorFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

type UserHandler struct {
	auth   *app.Auth
	roster *roster.Service
}

func NewUserHandler(auth *app.Auth, roster *roster.Service) *UserHandler {
	return &UserHandler{auth: auth, roster: roster}
}

func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/students", h.listStudents)
	r.Get("/teachers", h.listTeachers)
	r.Post("/", h.create)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.delete)
		r.Get("/groups", h.memberships)
	})
}

func (h *UserHandler) listStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.roster.ListStudents(r.Context(), actorFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"students": students})
}

func (h *UserHandler) listTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.roster.ListTeachers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"teachers": teachers})
}

func (h *UserHandler) create(w http.ResponseWriter, r *http.Request) {
	var req roster.NewUser
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.roster.CreateUser(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	user, err := h.roster.GetUser(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	var req roster.UserUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.roster.UpdateUser(r.Context(), actorFrom(r.Context()), id, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if req.Role != nil || req.Password != nil {
		h.auth.Forget(r.Context(), id)
	}
	respondJSON(w, http.StatusOK, user)
}

func (h *UserHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	if err := h.roster.DeleteUser(r.Context(), actorFrom(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	h.auth.Forget(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) memberships(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	groups, err := h.roster.MembershipOf(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"memberships": groups})
}
