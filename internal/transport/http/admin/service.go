package admin

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"cleancity-server-go/internal/app/session"
	"cleancity-server-go/internal/domain/auth"
	"cleancity-server-go/internal/domain/eventbus"
	"cleancity-server-go/internal/domain/report/ledger"
	"cleancity-server-go/internal/platform/config"
	"cleancity-server-go/internal/platform/errors"
	"cleancity-server-go/internal/platform/logging"
	httptransport "cleancity-server-go/internal/transport/http"
)

// Service exposes the operator surface: report listing, session counts,
// audit history and host health.
type Service struct {
	cfg      *config.Config
	store    ledger.Store
	sessions *session.Manager
	audit    *eventbus.AuditRecorder
	tokens   *auth.AuthToken
	logger   *logging.Logger
	started  time.Time
}

// NewService wires the admin transport.
func NewService(cfg *config.Config, store ledger.Store, sessions *session.Manager,
	audit *eventbus.AuditRecorder, logger *logging.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "admin.new", "config is required")
	}
	if store == nil {
		return nil, errors.New(errors.KindConfig, "admin.new", "ledger is required")
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		audit:    audit,
		tokens:   auth.NewAuthToken(cfg.Server.JWTSecret).WithTTL(12 * time.Hour),
		logger:   logger,
		started:  time.Now(),
	}, nil
}

// Register mounts the admin routes. Everything except login sits behind the
// auth middleware.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	adminGroup := router.Group("/admin")
	adminGroup.POST("/login", s.handleLogin)

	secured := adminGroup.Group("")
	secured.Use(s.AuthMiddleware())
	{
		secured.GET("/reports", s.handleReports)
		secured.GET("/stats", s.handleStats)
		secured.GET("/sessions", s.handleSessions)
		secured.GET("/sessions/:id/events", s.handleSessionEvents)
		secured.GET("/system", s.handleSystem)
	}

	if s.logger != nil {
		s.logger.Info("admin routes registered")
	}
	return nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin exchanges operator credentials for a JWT.
func (s *Service) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "invalid login body", nil)
		return
	}
	if req.Username == "" || req.Username != s.cfg.Server.AdminUser || req.Password != s.cfg.Server.AdminPass {
		httptransport.RespondError(c, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	token, err := s.tokens.GenerateToken(req.Username)
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to issue token", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"token": token}, "logged in")
}

// AuthMiddleware accepts either the static server token or a bearer JWT from
// login.
func (s *Service) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")

		if token == "" {
			token = c.GetHeader("Token")
		}
		if token == "" {
			httptransport.RespondError(c, http.StatusUnauthorized, "missing credentials", nil)
			c.Abort()
			return
		}

		if s.cfg.Server.Token != "" && token == s.cfg.Server.Token {
			c.Next()
			return
		}
		if _, err := s.tokens.VerifyToken(token); err == nil {
			c.Next()
			return
		}

		httptransport.RespondError(c, http.StatusUnauthorized, "invalid credentials", nil)
		c.Abort()
	}
}

func (s *Service) handleReports(c *gin.Context) {
	records, err := s.store.List(c.Request.Context())
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to list reports", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, records, "")
}

func (s *Service) handleStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to compute stats", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, stats, "")
}

func (s *Service) handleSessions(c *gin.Context) {
	count := 0
	if s.sessions != nil {
		count = s.sessions.Count()
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{"active": count}, "")
}

func (s *Service) handleSessionEvents(c *gin.Context) {
	if s.audit == nil {
		httptransport.RespondError(c, http.StatusNotFound, "audit history disabled", nil)
		return
	}
	events, err := s.audit.History(c.Param("id"))
	if err != nil {
		httptransport.RespondError(c, http.StatusInternalServerError, "failed to load events", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, events, "")
}

// handleSystem reports host health for the operator dashboard.
func (s *Service) handleSystem(c *gin.Context) {
	info := gin.H{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory_used_percent"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info["cpu_percent"] = percents[0]
	}
	if hi, err := host.Info(); err == nil {
		info["os"] = hi.OS
		info["platform"] = hi.Platform
		info["host_uptime_seconds"] = hi.Uptime
	}

	httptransport.RespondSuccess(c, http.StatusOK, info, "")
}
