package web

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func NewRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Request logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("REQUEST: %s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	})

	r.Use(corsMiddleware)

	r.Get("/healthz", h.HealthCheck)
	r.Get("/ws", h.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/worlds", h.ListWorlds)

		// Convenience routes over the active story.
		r.Get("/state", h.GetActiveState)
		r.Post("/chat", h.Chat)
		r.Post("/rewrite-latest", h.RewriteLatest)

		r.Route("/stories", func(r chi.Router) {
			r.Get("/", h.ListStories)
			r.Post("/", h.CreateStory)
			r.Post("/{storyID}/activate", h.ActivateStory)
		})

		r.Route("/story/{storyID}", func(r chi.Router) {
			r.Get("/state", h.GetStoryState)
			r.Get("/entries", h.GetStoryEntries)
			r.Get("/meta", h.GetStoryMeta)
			r.Get("/archive", h.GetStoryArchive)
			r.Post("/chat", h.StoryChat)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", h.ListLogs)
			r.Get("/{logID}", h.GetLog)
		})

		r.Post("/admin/clear-all", h.ClearAll)
	})

	return r
}
