package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shrimpsizemoose/homeroom/internal/messaging"
	"github.com/shrimpsizemoose/homeroom/internal/models"
)

type MessageHandler struct {
	messaging *messaging.Service
	maxBytes  int64
}

func NewMessageHandler(svc *messaging.Service, maxBytes int64) *MessageHandler {
	return &MessageHandler{messaging: svc, maxBytes: maxBytes}
}

func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listChats)
	r.Get("/{userID}", h.openThread)
	r.Post("/{userID}", h.send)
}

func (h *MessageHandler) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.messaging.ListChats(r.Context(), actorFrom(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

func (h *MessageHandler) openThread(w http.ResponseWriter, r *http.Request) {
	otherID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	thread, err := h.messaging.OpenThread(r.Context(), actorFrom(r.Context()), otherID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, thread)
}

type sendRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) send(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}

	var (
		content string
		files   []models.Upload
	)
	if isMultipart(r) {
		var err error
		if files, err = parseMultipart(w, r, h.maxBytes); err != nil {
			respondError(w, r, err)
			return
		}
		content = r.FormValue("content")
	} else {
		var req sendRequest
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
		if !decodeJSON(w, r, &req) {
			return
		}
		content = req.Content
	}

	msg, err := h.messaging.Send(r.Context(), actorFrom(r.Context()), recipientID, content, files)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}
