package http

import (
	"net/http"

	"diary/internal/auth"
	"diary/internal/config"
	"diary/internal/diary"
	"diary/internal/http/handler"
	mw "diary/internal/http/middleware"
	"diary/internal/media"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	DB       *gorm.DB
	JWT      *auth.JWT
	Svc      *diary.Service
	Merger   handler.ForceMerger
	Uploader media.Uploader
	Dedupe   handler.Deduper
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	entryH := &handler.EntryHandler{Svc: d.Svc, Uploader: d.Uploader, Dedupe: d.Dedupe, Source: "http"}
	journalH := &handler.JournalHandler{Svc: d.Svc, Merger: d.Merger}
	prefH := &handler.PreferencesHandler{Svc: d.Svc}
	me := &handler.MeHandler{Svc: d.Svc}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))
		r.Use(auth.RequireAllowed(cfg.AllowedUserIDs))

		r.Get("/me", me.Me)
		r.Post("/entries", entryH.Create)

		r.Route("/journals", func(r chi.Router) {
			r.Get("/today", journalH.Today)
			r.Post("/today/end", journalH.End)
			r.Get("/{date}", journalH.Get)
			r.Post("/{date}/refresh", journalH.Refresh)
		})

		r.Get("/preferences", prefH.Get)
		r.Patch("/preferences", prefH.Patch)
	})

	return r
}
