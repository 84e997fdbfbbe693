// Package httpapi wires the Server's HTTP surface: health checks, the
// Agent and User WebSocket upgrade endpoints, and the embedded static
// asset bundle, behind the routing and middleware conventions the rest
// of the corpus uses.
package httpapi

import (
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wireterm/wireterm/server/internal/router"
	"github.com/wireterm/wireterm/server/internal/staticassets"
)

// Server exposes the chi-backed mux for a wireterm Server process.
type Server struct {
	mux       *chi.Mux
	logger    *slog.Logger
	startTime time.Time
}

// Options configures route registration. Assets may be nil, in which case
// the static fallback route is skipped (useful in tests and for
// development against a separately-served frontend).
type Options struct {
	Router         *router.Router
	Assets         fs.FS
	AllowedOrigins []string
	Logger         *slog.Logger
}

// New builds the HTTP mux: recovery and real-IP middleware, security
// headers, CORS, the two WebSocket upgrade routes, a health endpoint, and
// (if assets are provided) the embedded web UI with SPA fallback.
func New(opts Options) *Server {
	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)
	mux.Use(securityHeadersMiddleware)
	mux.Use(makeCORSMiddleware(opts.AllowedOrigins))

	srv := &Server{mux: mux, logger: opts.Logger, startTime: time.Now().UTC()}

	mux.Get("/health", srv.handleHealth)
	mux.Get("/ws/agent", opts.Router.HandleAgentWS)
	mux.Get("/ws/user", opts.Router.HandleUserWS)

	if opts.Assets != nil {
		mux.Handle("/*", staticassets.Handler(opts.Assets))
	}

	return srv
}

// ServeHTTP lets Server satisfy http.Handler directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
