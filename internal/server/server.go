package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/giadinh/internal/backup"
	"github.com/dukerupert/giadinh/internal/config"
	"github.com/dukerupert/giadinh/internal/email"
	"github.com/dukerupert/giadinh/internal/handler"
	"github.com/dukerupert/giadinh/internal/metrics"
	"github.com/dukerupert/giadinh/internal/middleware"
	"github.com/dukerupert/giadinh/internal/push"
	"github.com/dukerupert/giadinh/internal/reminder"
	"github.com/dukerupert/giadinh/internal/store"
	"github.com/dukerupert/giadinh/internal/validate"
	ws "github.com/dukerupert/giadinh/internal/websocket"
)

const (
	loginLimit  = 10
	loginWindow = time.Minute
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	registry       *prometheus.Registry
	metrics        *metrics.Metrics
	originPatterns []string

	householdH *handler.HouseholdHandler
	memberH    *handler.MemberHandler
	worshipH   *handler.WorshipHandler
	toolsH     *handler.ToolsHandler
	authH      *handler.AuthHandler
	pushH      *handler.PushHandler
	settingsH  *handler.SettingsHandler
	backupH    *handler.BackupHandler

	userStore     *store.UserStore
	sessionStore  *store.SessionStore
	pushStore     *store.PushStore
	settingsStore *store.SettingsStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	reminders     *reminder.Scheduler
	emailClient   *email.Client
	logger        *slog.Logger
}

type Option func(*options)

type options struct {
	backupOpts []backup.Option
	sender     push.Sender
}

// WithBackupOptions passes options through to the backup manager.
func WithBackupOptions(opts ...backup.Option) Option {
	return func(o *options) {
		o.backupOpts = append(o.backupOpts, opts...)
	}
}

// WithPushSender replaces the web push service used for reminders.
func WithPushSender(s push.Sender) Option {
	return func(o *options) {
		o.sender = s
	}
}

// New wires stores, handlers and background services around db.
// reg receives the application metrics and is served on /metrics.
func New(cfg *config.Config, db *sql.DB, clock clockwork.Clock, reg *prometheus.Registry, logger *slog.Logger, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := metrics.New(reg)
	hub := ws.NewHub(m.WebSocketClients, logger.With("component", "websocket"))
	v := validate.New()

	householdStore := store.NewHouseholdStore(db)
	memberStore := store.NewFamilyMemberStore(db)
	worshipStore := store.NewWorshipStore(db, clock)
	settingsStore := store.NewSettingsStore(db)
	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db, clock)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db, clock)

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.EmailFrom, cfg.BaseURL)

	sender := o.sender
	if sender == nil && cfg.PushEnabled() {
		sender = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	}

	s := &Server{
		db:             db,
		hub:            hub,
		registry:       reg,
		metrics:        m,
		originPatterns: originPatterns(cfg.BaseURL),
		userStore:      userStore,
		sessionStore:   sessionStore,
		pushStore:      pushStore,
		settingsStore:  settingsStore,
		rateLimiter:    middleware.NewRateLimiter(clock),
		emailClient:    emailClient,
		logger:         logger,
	}

	s.backupManager = backup.NewManager(backup.Config{
		DBPath: cfg.DBPath,
		S3: backup.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Prefix:    cfg.S3Prefix,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
	}, backup.Deps{
		DB:        db,
		Backups:   backupStore,
		Settings:  settingsStore,
		Clock:     clock,
		Metrics:   m,
		Logger:    logger.With("component", "backup"),
		OnStatus:  s.broadcastBackupStatus,
		OnFailure: s.reportBackupFailure,
	}, o.backupOpts...)

	var mailer reminder.Mailer
	if emailClient.Configured() {
		mailer = emailClient
	}
	s.reminders = reminder.NewScheduler(clock, cfg.ReminderInterval, reminder.Stores{
		Push:       pushStore,
		Worship:    worshipStore,
		Households: householdStore,
		Members:    memberStore,
		Settings:   settingsStore,
	}, sender, mailer, m, logger.With("component", "reminder"))

	vapidKey := ""
	if cfg.PushEnabled() {
		vapidKey = cfg.VAPIDPublicKey
	}

	s.householdH = handler.NewHouseholdHandler(householdStore, memberStore, worshipStore, v, hub, logger.With("component", "household"))
	s.memberH = handler.NewMemberHandler(householdStore, memberStore, v, hub, clock, logger.With("component", "member"))
	s.worshipH = handler.NewWorshipHandler(worshipStore, householdStore, memberStore, v, hub, clock, logger.With("component", "worship"))
	s.toolsH = handler.NewToolsHandler(memberStore, clock, logger.With("component", "tools"))
	s.authH = handler.NewAuthHandler(userStore, sessionStore, v, hub, cfg.SecureCookies, logger.With("component", "auth"))
	s.pushH = handler.NewPushHandler(pushStore, vapidKey, v, logger.With("component", "push"))
	s.settingsH = handler.NewSettingsHandler(settingsStore, v, hub, logger.With("component", "settings"))
	s.backupH = handler.NewBackupHandler(s.backupManager, backupStore, v, hub, logger.With("component", "backup_handler"))

	return s
}

// originPatterns allows WebSocket upgrades from the public base URL host.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

func (s *Server) broadcastBackupStatus(st backup.Status) {
	s.hub.Broadcast(ws.Message{
		Type:   "backup_status",
		Entity: "backup",
		Action: string(st.State),
		Extra: map[string]any{
			"in_progress": st.InProgress,
			"error":       st.Error,
		},
	})
}

// reportBackupFailure emails the reminder address about a failed scheduled backup.
func (s *Server) reportBackupFailure(ctx context.Context, err error) {
	if !s.emailClient.Configured() {
		return
	}
	to, serr := s.settingsStore.Get(ctx, store.KeyReminderEmail)
	if serr != nil || to == "" {
		return
	}
	if serr := s.emailClient.SendBackupFailed(ctx, to, err.Error()); serr != nil {
		s.logger.WarnContext(ctx, "send backup failure email", "error", serr)
	}
}

// Hub returns the change notification hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// UserStore returns the user store for the admin bootstrap.
func (s *Server) UserStore() *store.UserStore {
	return s.userStore
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// PushStore returns the push store for cleanup tasks.
func (s *Server) PushStore() *store.PushStore {
	return s.pushStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// Reminders returns the reminder scheduler.
func (s *Server) Reminders() *reminder.Scheduler {
	return s.reminders
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(s.sessionStore, s.userStore, s.logger.With("component", "auth"))
	authed := func(h http.HandlerFunc) http.Handler {
		return requireAuth(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return requireAuth(middleware.RequireAdmin(h))
	}

	// Public routes
	mux.Handle("POST /api/login", s.rateLimited(s.authH.Login))
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler(s.registry))

	mux.Handle("POST /api/logout", authed(s.authH.Logout))
	mux.Handle("GET /api/me", authed(s.authH.Me))
	mux.Handle("PUT /api/me/password", authed(s.authH.ChangePassword))

	// Users
	mux.Handle("GET /api/users", admin(s.authH.ListUsers))
	mux.Handle("POST /api/users", admin(s.authH.CreateUser))
	mux.Handle("DELETE /api/users/{id}", admin(s.authH.DeleteUser))

	// Households
	mux.Handle("GET /api/households", authed(s.householdH.List))
	mux.Handle("POST /api/households", authed(s.householdH.Create))
	mux.Handle("GET /api/households/{id}", authed(s.householdH.Get))
	mux.Handle("PUT /api/households/{id}", authed(s.householdH.Update))
	mux.Handle("DELETE /api/households/{id}", admin(s.householdH.Delete))
	mux.Handle("PUT /api/households/{id}/head", authed(s.householdH.SetHead))

	// Members
	mux.Handle("GET /api/members", authed(s.memberH.List))
	mux.Handle("POST /api/households/{id}/members", authed(s.memberH.Create))
	mux.Handle("PUT /api/households/{id}/members/sort", authed(s.memberH.UpdateSortOrder))
	mux.Handle("GET /api/members/{id}", authed(s.memberH.Get))
	mux.Handle("PUT /api/members/{id}", authed(s.memberH.Update))
	mux.Handle("DELETE /api/members/{id}", admin(s.memberH.Delete))
	mux.Handle("GET /api/members/{id}/horoscope", authed(s.memberH.Horoscope))

	// Worship history
	mux.Handle("GET /api/worship", authed(s.worshipH.List))
	mux.Handle("POST /api/worship", authed(s.worshipH.Create))
	mux.Handle("GET /api/worship/upcoming", authed(s.worshipH.Upcoming))
	mux.Handle("POST /api/worship/anniversaries", authed(s.worshipH.ScheduleAnniversaries))
	mux.Handle("GET /api/worship/{id}", authed(s.worshipH.Get))
	mux.Handle("PUT /api/worship/{id}", authed(s.worshipH.Update))
	mux.Handle("DELETE /api/worship/{id}", admin(s.worshipH.Delete))
	mux.Handle("POST /api/worship/{id}/complete", authed(s.worshipH.Complete))
	mux.Handle("POST /api/worship/{id}/cancel", authed(s.worshipH.Cancel))

	// Zodiac and lunar tools
	mux.Handle("GET /api/zodiac", authed(s.toolsH.Zodiac))
	mux.Handle("GET /api/stars", authed(s.toolsH.Stars))
	mux.Handle("GET /api/lunar", authed(s.toolsH.Lunar))
	mux.Handle("GET /api/lunar/solar", authed(s.toolsH.Solar))

	// Push
	mux.Handle("GET /api/push/vapid-key", authed(s.pushH.VAPIDKey))
	mux.Handle("POST /api/push/subscribe", authed(s.pushH.Subscribe))
	mux.Handle("GET /api/push/subscriptions", authed(s.pushH.ListSubscriptions))
	mux.Handle("DELETE /api/push/subscriptions/{id}", authed(s.pushH.Unsubscribe))

	// Settings
	mux.Handle("GET /api/settings/reminders", admin(s.settingsH.GetReminders))
	mux.Handle("PUT /api/settings/reminders", admin(s.settingsH.UpdateReminders))
	mux.Handle("GET /api/settings/backups", admin(s.settingsH.GetBackups))
	mux.Handle("PUT /api/settings/backups", admin(s.settingsH.UpdateBackups))

	// Backups
	mux.Handle("PUT /api/backups/passphrase", admin(s.backupH.SetPassphrase))
	mux.Handle("POST /api/backups", admin(s.backupH.Create))
	mux.Handle("GET /api/backups", admin(s.backupH.List))
	mux.Handle("GET /api/backups/{id}/download", admin(s.backupH.Download))

	// WebSocket
	mux.Handle("GET /ws", authed(ws.HandleWebSocket(s.hub, s.originPatterns, s.logger.With("component", "websocket"))))

	logger := s.logger.With("component", "http")
	var h http.Handler = s.metrics.Middleware(mux)
	h = middleware.Recoverer(logger)(h)
	h = middleware.RequestLogger(logger)(h)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "health check ping", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":            status,
		"websocket_clients": s.hub.ClientCount(),
	})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP, loginLimit, loginWindow)(h)
}
