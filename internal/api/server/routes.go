package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bz888/champs/internal/api/server/handlers"
	"github.com/bz888/champs/internal/logger"
)

// accessLog routes chi's request log lines into the tagged logger so they
// never land on a terminal the UI is drawing on.
type accessLog struct {
	*logger.Logger
}

func (a accessLog) Print(v ...interface{}) {
	a.Info(v...)
}

func (s *Server) buildRouter(handler *handlers.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  accessLog{logger.NewLogger("HTTP")},
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/health", handler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", handler.Chat)
		r.Get("/chat/ws", handler.ChatWS)
	})

	return r
}
