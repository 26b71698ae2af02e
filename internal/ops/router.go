package ops

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clinicdesk/agenda-bot/pkg/logging"
)

type RouterConfig struct {
	Postgres PostgresPinger
	Redis    RedisPinger
	Logger   *logging.Logger
	Env      string
	Version  string
}

// NewRouter exposes the operational endpoints of the bot. The chat
// surface itself lives on Telegram; this router only serves probes.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	return r
}
