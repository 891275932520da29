// Package server provides the HTTP server and routing for trainercal.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dtorcivia/trainercal/internal/aggregate"
	"github.com/dtorcivia/trainercal/internal/api"
	"github.com/dtorcivia/trainercal/internal/config"
	"github.com/dtorcivia/trainercal/internal/contract"
	"github.com/dtorcivia/trainercal/internal/crypto"
	"github.com/dtorcivia/trainercal/internal/database"
	"github.com/dtorcivia/trainercal/internal/google"
	"github.com/dtorcivia/trainercal/internal/notifications"
	"github.com/dtorcivia/trainercal/internal/notifications/ntfy"
	"github.com/dtorcivia/trainercal/internal/notifications/pushover"
	"github.com/dtorcivia/trainercal/internal/oauth"
	"github.com/dtorcivia/trainercal/internal/outlook"
	"github.com/dtorcivia/trainercal/internal/server/middleware"
	"github.com/dtorcivia/trainercal/internal/store"
	"github.com/dtorcivia/trainercal/internal/util"
	"github.com/dtorcivia/trainercal/internal/workers"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server is the main HTTP server for trainercal.
type Server struct {
	config          *config.Config
	db              *database.DB
	router          *http.ServeMux
	tokenHasher     *crypto.TokenHasher
	rateLimiter     *middleware.RateLimiter
	googleAuth      *oauth.Manager
	outlookAuth     *oauth.Manager
	syncer          *aggregate.Syncer
	notificationMgr *notifications.Manager
	apiHandler      *api.Handler
	cleanupWorker   *workers.CleanupWorker
}

// New creates a new Server instance.
func New(cfg *config.Config, db *database.DB) (*Server, error) {
	tokenHasher, err := crypto.NewTokenHasher(cfg.Auth.SecretKey)
	if err != nil {
		return nil, err
	}

	encryptor, err := crypto.NewEncryptor(cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, err
	}

	displayFormat, err := util.NewDisplayFormatter(
		cfg.Display.Timezone,
		cfg.Display.DateFormat,
		cfg.Display.TimeFormat,
		cfg.Display.DatetimeFormat,
	)
	if err != nil {
		return nil, err
	}
	util.SetDefaultFormatter(displayFormat)

	loc, err := time.LoadLocation(cfg.Display.Timezone)
	if err != nil {
		return nil, err
	}

	googleAuth := oauth.NewGoogleManager(cfg, db, encryptor)
	outlookAuth := oauth.NewOutlookManager(cfg, db, encryptor)

	syncer := aggregate.New(db, cfg.Sync).
		WithGoogle(googleAuth, google.NewCalendarClient(googleAuth, cfg.Google.CalendarID)).
		WithOutlook(outlookAuth, outlook.NewCalendarClient(outlookAuth, outlook.DefaultBaseURL))

	notificationMgr := notifications.NewManager()
	if cfg.Notifications.Ntfy.Enabled {
		notificationMgr.RegisterProvider(ntfy.NewProvider(&cfg.Notifications.Ntfy))
	}
	if cfg.Notifications.Pushover.Enabled {
		notificationMgr.RegisterProvider(pushover.NewProvider(&cfg.Notifications.Pushover))
	}

	apiHandler := api.NewHandler(
		cfg,
		store.New(db, loc),
		syncer,
		map[contract.Provider]api.Authorizer{
			contract.ProviderGoogle:  googleAuth,
			contract.ProviderOutlook: outlookAuth,
		},
		notificationMgr,
	)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	cleanupWorker := workers.NewCleanupWorker(db, &cfg.Retention)
	cleanupWorker.AddTask(workers.Task{
		Name: "rate-limit-buckets",
		Run:  func(context.Context) { rateLimiter.Cleanup(time.Hour) },
	})

	s := &Server{
		config:          cfg,
		db:              db,
		router:          http.NewServeMux(),
		tokenHasher:     tokenHasher,
		rateLimiter:     rateLimiter,
		googleAuth:      googleAuth,
		outlookAuth:     outlookAuth,
		syncer:          syncer,
		notificationMgr: notificationMgr,
		apiHandler:      apiHandler,
		cleanupWorker:   cleanupWorker,
	}

	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router

	handler = middleware.Recovery(handler)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.CORS(s.config.Server.CORSOrigins)(handler)
	handler = middleware.SecurityHeaders(handler)

	return handler
}

// StartBackgroundWorkers starts all background workers.
func (s *Server) StartBackgroundWorkers(ctx context.Context) error {
	go func() {
		if err := s.cleanupWorker.Start(ctx); err != nil {
			util.Error("Cleanup worker failed", "error", err)
		}
	}()

	util.Info("Background workers started")
	return nil
}

// DB returns the database connection.
func (s *Server) DB() *database.DB {
	return s.db
}

// Config returns the server configuration.
func (s *Server) Config() *config.Config {
	return s.config
}
