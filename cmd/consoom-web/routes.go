package main

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewjhunter/consoom"
	"github.com/matthewjhunter/consoom/internal/auth"
)

//go:embed templates
var embedded embed.FS

// server holds dependencies for all HTTP handler methods.
type server struct {
	engine     *consoom.Engine
	auth       *auth.Authenticator
	cronSecret string
	validate   *validator.Validate
	share      *template.Template
}

type serverConfig struct {
	CronSecret          string
	ImportRatePerMinute int
}

func newServer(engine *consoom.Engine, a *auth.Authenticator, cfg serverConfig) *server {
	return &server{
		engine:     engine,
		auth:       a,
		cronSecret: cfg.CronSecret,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		share:      template.Must(template.New("share.html").Funcs(shareFuncs).ParseFS(embedded, "templates/share.html")),
	}
}

// newRouter sets up all routes using Go 1.22+ enhanced routing.
func newRouter(s *server, cfg serverConfig) http.Handler {
	mux := http.NewServeMux()

	limit := func(h http.HandlerFunc) http.Handler { return h }
	if cfg.ImportRatePerMinute > 0 {
		limiter := httprate.LimitByIP(cfg.ImportRatePerMinute, time.Minute)
		limit = func(h http.HandlerFunc) http.Handler { return limiter(h) }
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Scheduler entry point
	mux.HandleFunc("GET /api/cron", s.requireCronSecret(s.handleCron))

	mux.HandleFunc("POST /api/sync", s.requireUser(s.handleSyncUser))
	mux.Handle("POST /api/import", limit(s.requireUser(s.handleImport)))
	mux.Handle("POST /api/import/{type}", limit(s.requireUser(s.handleImportCSV)))

	mux.HandleFunc("GET /api/accounts", s.requireUser(s.handleAccounts))
	mux.HandleFunc("POST /api/accounts", s.requireUser(s.handleLinkAccount))
	mux.HandleFunc("DELETE /api/accounts/{type}", s.requireUser(s.handleUnlinkAccount))

	mux.HandleFunc("GET /api/goals/{year}", s.requireUser(s.handleGoals))
	mux.HandleFunc("PUT /api/goals/{year}", s.requireUser(s.handleSetGoal))
	mux.HandleFunc("GET /api/years/{year}", s.requireUser(s.handleYear))
	mux.HandleFunc("GET /api/media/recent", s.requireUser(s.handleRecent))

	mux.HandleFunc("GET /share/{year}", s.requireUser(s.handleShare))
	mux.HandleFunc("GET /share/{year}/{type}", s.requireUser(s.handleShare))

	return accessLog(recovery(mux))
}
