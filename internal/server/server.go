package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/memberqr/internal/auth"
	"github.com/dukerupert/memberqr/internal/backup"
	"github.com/dukerupert/memberqr/internal/config"
	"github.com/dukerupert/memberqr/internal/handler"
	"github.com/dukerupert/memberqr/internal/imageproxy"
	"github.com/dukerupert/memberqr/internal/metrics"
	"github.com/dukerupert/memberqr/internal/middleware"
	"github.com/dukerupert/memberqr/internal/model"
	"github.com/dukerupert/memberqr/internal/qr"
	"github.com/dukerupert/memberqr/internal/roster"
	"github.com/dukerupert/memberqr/internal/session"
	"github.com/dukerupert/memberqr/internal/store"
	"github.com/dukerupert/memberqr/internal/token"
	ws "github.com/dukerupert/memberqr/internal/websocket"
	"github.com/dukerupert/memberqr/web"
)

const (
	adminLoginLimit  = 10
	adminLoginWindow = time.Minute
)

type Server struct {
	hub            *ws.Hub
	sessions       *session.Manager
	metrics        *metrics.Metrics
	memberH        *handler.MemberHandler
	adminH         *handler.AdminHandler
	backupH        *handler.BackupHandler
	healthH        *handler.HealthHandler
	errorPages     *handler.ErrorPages
	importer       *roster.Importer
	members        *store.MemberStore
	backupManager  *backup.Manager
	rateLimiter    *middleware.RateLimiter
	clientIP       func(*http.Request) string
	originPatterns []string
	logger         *slog.Logger
}

// New wires the stores, auth flow, handlers and background services for db.
func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger)

	sessions, err := session.NewManager(session.Options{
		Secret:   cfg.SessionSecret,
		Lifetime: cfg.SessionLifetime,
		Secure:   cfg.IsProduction(),
	})
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	views, err := handler.NewRenderer(web.Templates)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	memberStore := store.NewMemberStore(db)
	attemptStore := store.NewLoginAttemptStore(db)
	adminStore := store.NewAdminStore(db)
	backupStore := store.NewBackupStore(db)

	m := metrics.New()
	codec := token.NewCodec(cfg.TokenSecret)
	codes := qr.NewGenerator(cfg.BaseURL, codec, qr.NewEncoder(cfg.QRSize), logger)
	flow := auth.NewFlow(memberStore, attemptStore, adminStore, codec, m, logger)
	validate := model.NewValidator()
	importer := roster.NewImporter(memberStore, cfg.DefaultMemberPassword, validate, logger)

	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Bucket:         cfg.S3.Bucket,
			Region:         cfg.S3.Region,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		},
		Passphrase: cfg.BackupPassphrase,
	}, db, backupStore, logger, func(s backup.Status) {
		hub.Broadcast(ws.Message{
			Type:   "backup_status",
			Entity: "backup",
			Action: string(s.State),
		})
	})

	var origins []string
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		origins = append(origins, u.Host)
	}

	return &Server{
		hub:      hub,
		sessions: sessions,
		metrics:  m,
		memberH:  handler.NewMemberHandler(views, sessions, flow, memberStore, codes, logger),
		adminH: handler.NewAdminHandler(views, sessions, flow, memberStore, importer,
			imageproxy.NewFetcher(), codes, hub, m, validate, cfg.DefaultMemberPassword, logger),
		backupH:        handler.NewBackupHandler(views, sessions, backupMgr, logger),
		healthH:        handler.NewHealthHandler(db),
		errorPages:     handler.NewErrorPages(views, sessions, logger),
		importer:       importer,
		members:        memberStore,
		backupManager:  backupMgr,
		rateLimiter:    middleware.NewRateLimiter(adminLoginLimit, adminLoginWindow),
		clientIP:       middleware.ClientIP(cfg.TrustProxy),
		originPatterns: origins,
		logger:         logger,
	}, nil
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Importer returns the roster importer for seeding at startup.
func (s *Server) Importer() *roster.Importer {
	return s.importer
}

// Members returns the roster store.
func (s *Server) Members() *store.MemberStore {
	return s.members
}

func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /{$}", s.memberH.Home)
	mux.HandleFunc("GET /login/{member_id}", s.memberH.Login)
	mux.HandleFunc("POST /login/{member_id}", s.memberH.Login)
	mux.HandleFunc("GET /secure-login/{token}", s.memberH.SecureLogin)
	mux.HandleFunc("POST /secure-login/{token}", s.memberH.SecureLogin)
	mux.HandleFunc("GET /profile/{member_id}", s.memberH.Profile)
	mux.HandleFunc("GET /logout", s.memberH.Logout)
	mux.HandleFunc("GET /admin/login", s.adminH.LoginPage)
	mux.Handle("POST /admin/login", middleware.RateLimit(s.rateLimiter, s.clientIP)(http.HandlerFunc(s.adminH.Login)))
	mux.HandleFunc("GET /admin/logout", s.adminH.Logout)
	mux.HandleFunc("GET /health", s.healthH.Health)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Member session
	requireMember := middleware.RequireMember(s.sessions)
	mux.Handle("POST /change-own-password", requireMember(http.HandlerFunc(s.memberH.ChangeOwnPassword)))

	// Admin session
	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)
	requireAdmin := middleware.RequireAdmin(s.sessions)
	for _, prefix := range []string{"/admin/", "/generate-qr-codes"} {
		mux.Handle(prefix, requireAdmin(adminMux))
	}

	mux.HandleFunc("/", s.errorPages.NotFound)

	var h http.Handler = mux
	h = middleware.Recover(s.logger, http.HandlerFunc(s.errorPages.Internal))(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"), s.clientIP)(h)
	return middleware.RequestID(h)
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/dashboard", s.adminH.Dashboard)
	mux.HandleFunc("GET /admin/users", s.adminH.Users)
	mux.HandleFunc("GET /admin/add-user", s.adminH.AddUserForm)
	mux.HandleFunc("POST /admin/add-user", s.adminH.AddUser)
	mux.HandleFunc("GET /admin/edit-user/{id}", s.adminH.EditUserForm)
	mux.HandleFunc("POST /admin/edit-user/{id}", s.adminH.EditUser)
	mux.HandleFunc("POST /admin/delete-user/{id}", s.adminH.DeleteUser)
	mux.HandleFunc("GET /admin/bulk-edit", s.adminH.BulkEditForm)
	mux.HandleFunc("POST /admin/bulk-edit", s.adminH.BulkEdit)
	mux.HandleFunc("POST /admin/import-excel", s.adminH.ImportExcel)
	mux.HandleFunc("GET /admin/reset-passwords", s.adminH.ResetPasswordsPage)
	mux.HandleFunc("POST /admin/bulk-reset-passwords", s.adminH.BulkResetPasswords)
	mux.HandleFunc("POST /admin/reset-single-password", s.adminH.ResetSinglePassword)
	mux.HandleFunc("GET /admin/view-profile/{id}", s.adminH.ViewProfile)
	mux.HandleFunc("POST /admin/reload-images", s.adminH.ReloadImages)
	mux.HandleFunc("GET /generate-qr-codes", s.adminH.QRCodes)

	mux.HandleFunc("GET /admin/backups", s.backupH.Page)
	mux.HandleFunc("POST /admin/backup", s.backupH.Run)
	mux.HandleFunc("GET /admin/backups/{id}/download", s.backupH.Download)

	mux.Handle("GET /admin/ws", ws.HandleWebSocket(s.hub, s.originPatterns, s.logger))

	mux.HandleFunc("/", s.errorPages.NotFound)
}
