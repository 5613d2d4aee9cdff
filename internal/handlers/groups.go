package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shrimpsizemoose/homeroom/internal/roster"
)

type GroupHandler struct {
	roster *roster.Service
}

func NewGroupHandler(roster *roster.Service) *GroupHandler {
	return &GroupHandler{roster: roster}
}

func (h *GroupHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{groupID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.delete)
		r.Get("/members", h.members)
		r.Post("/members", h.addMembers)
		r.Delete("/members/{memberID}", h.removeMember)
	})
}

func (h *GroupHandler) list(w http.ResponseWriter, r *http.Request) {
	groups, err := h.roster.ListGroups(r.Context(), actorFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) create(w http.ResponseWriter, r *http.Request) {
	var req roster.NewGroup
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := h.roster.CreateGroup(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, group)
}

func (h *GroupHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "groupID")
	if !ok {
		return
	}
	group, err := h.roster.GetGroup(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, group)
}

func (h *GroupHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "groupID")
	if !ok {
		return
	}
	if err := h.roster.DeleteGroup(r.Context(), actorFrom(r.Context()), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupHandler) members(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "groupID")
	if !ok {
		return
	}
	members, err := h.roster.Members(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

type addMembersRequest struct {
	StudentIDs []int64 `json:"student_ids"`
}

func (h *GroupHandler) addMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "groupID")
	if !ok {
		return
	}
	var req addMembersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	added, err := h.roster.AddMembers(r.Context(), actorFrom(r.Context()), id, req.StudentIDs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"added": added})
}

func (h *GroupHandler) removeMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := idParam(w, r, "groupID")
	if !ok {
		return
	}
	memberID, ok := idParam(w, r, "memberID")
	if !ok {
		return
	}
	if err := h.roster.RemoveMember(r.Context(), actorFrom(r.Context()), groupID, memberID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
