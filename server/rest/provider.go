package rest

import (
	"sync"

	"github.com/go-chi/chi/v5"

	middlewares "github.com/drnu/drnu-downloader/server/middleware"
)

var (
	service *Service
	handler *Handler

	serviceOnce sync.Once
	handlerOnce sync.Once
)

func ProvideService(args *ContainerArgs) *Service {
	serviceOnce.Do(func() {
		service = NewService(args)
	})
	return service
}

func ProvideHandler(svc *Service) *Handler {
	handlerOnce.Do(func() {
		handler = &Handler{
			service: svc,
		}
	})
	return handler
}

func ApplyRouter(args *ContainerArgs) func(chi.Router) {
	h := ProvideHandler(ProvideService(args))

	return func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)

		r.Post("/exec", h.Exec())
		r.Get("/running", h.Running())
		r.Get("/progress/{id}", h.Progress())
		r.Delete("/{id}", h.Kill())
		r.Post("/clear", h.ClearCompleted())
		r.Get("/program", h.ProgramID())
		r.Get("/free-space", h.FreeSpace())
		r.Get("/archive", h.Archived())
		r.Delete("/archive/{id}", h.DeleteArchived())
	}
}
