package partysync

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/gosuda/partysync/partysync/core/proto"
)

// HTTPConfig configures the server's HTTP surface.
type HTTPConfig struct {
	// AdminKey guards the /secret routes as a bearer token. Empty disables
	// them.
	AdminKey string
	// OnRotate is called with the new secret after a rotation.
	OnRotate func(proto.JoinSecret)
	Logger   zerolog.Logger
}

// NewHTTPHandler routes /party to the WebSocket transport, serves session
// status on /healthz, and exposes the join secret to the operator.
func NewHTTPHandler(s *Server, party http.Handler, cfg HTTPConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Status())
	})
	r.Handle("/party", party)

	if cfg.AdminKey != "" {
		r.Route("/secret", func(r chi.Router) {
			r.Use(bearerAuth(cfg.AdminKey))
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				writeSecret(w, s.JoinSecret())
			})
			r.Post("/rotate", func(w http.ResponseWriter, r *http.Request) {
				secret := s.RotateJoinKey()
				if cfg.OnRotate != nil {
					cfg.OnRotate(secret)
				}
				cfg.Logger.Info().Str("remote", r.RemoteAddr).Msg("[http] Join secret rotated")
				writeSecret(w, secret)
			})
		})
	}
	return r
}

func bearerAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeSecret(w http.ResponseWriter, secret proto.JoinSecret) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(secret.String() + "\n"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
