package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shrimpsizemoose/homeroom/internal/app"
)

func NewRouter(service *app.Service) (http.Handler, error) {
	loc, err := service.Config.Location()
	if err != nil {
		return nil, err
	}
	maxBytes := service.Config.MaxUploadBytes()

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(service.Auth, service.Roster)
	userHandler := NewUserHandler(service.Auth, service.Roster)
	groupHandler := NewGroupHandler(service.Roster)
	homeworkHandler := NewHomeworkHandler(service.Homework, maxBytes, loc)
	messageHandler := NewMessageHandler(service.Messaging, maxBytes)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(Metrics)

		v1.Group(authHandler.RegisterPublicRoutes)

		v1.Group(func(private chi.Router) {
			private.Use(Authenticator(service.Auth))

			authHandler.RegisterRoutes(private)
			private.Route("/users", userHandler.RegisterRoutes)
			private.Route("/groups", groupHandler.RegisterRoutes)
			private.Route("/homeworks", homeworkHandler.RegisterRoutes)
			private.Route("/chats", messageHandler.RegisterRoutes)
		})
	})

	return r, nil
}
