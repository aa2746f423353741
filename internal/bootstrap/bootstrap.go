package bootstrap

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/swag"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"cleancity-server-go/internal/app/session"
	"cleancity-server-go/internal/domain/delivery"
	"cleancity-server-go/internal/domain/eventbus"
	domainimage "cleancity-server-go/internal/domain/image"
	"cleancity-server-go/internal/domain/report/ledger"
	reportservice "cleancity-server-go/internal/domain/report/service"
	platformconfig "cleancity-server-go/internal/platform/config"
	platformerrors "cleancity-server-go/internal/platform/errors"
	platformlogging "cleancity-server-go/internal/platform/logging"
	platformobservability "cleancity-server-go/internal/platform/observability"
	platformstorage "cleancity-server-go/internal/platform/storage"
	httptransport "cleancity-server-go/internal/transport/http"
	httpadmin "cleancity-server-go/internal/transport/http/admin"
	httpreport "cleancity-server-go/internal/transport/http/report"
	wstransport "cleancity-server-go/internal/transport/ws"
)

const scalarHTML = `<!DOCTYPE html>
<html lang="en">
	<head>
		<meta charset="utf-8" />
		<title>Clean City API Reference</title>
		<meta name="viewport" content="width=device-width, initial-scale=1" />
	</head>
	<body>
		<script
			id="api-reference"
			data-url="/openapi.json"
			data-layout="modern"
			src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"
		></script>
	</body>
</html>`

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	configPath            string
	config                *platformconfig.Config
	configOrigin          string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc

	db        *gorm.DB
	store     ledger.Store
	audit     *eventbus.AuditRecorder
	channel   delivery.Channel
	submitter *reportservice.Submitter
	tracker   *reportservice.Tracker
	verifier  *reportservice.Verifier
	sessions  *session.Manager
	stream    *wstransport.Stream
}

// Run starts the whole service lifecycle: configuration, dependencies, HTTP
// transport and graceful shutdown.
func Run(ctx context.Context, configPath string) error {
	state := &appState{configPath: configPath}

	if err := executeInitSteps(ctx, InitGraph(), state); err != nil {
		return err
	}

	logger := state.logger
	logBootstrapGraph(InitGraph(), logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("observability did not shut down cleanly: %v", err)
			}
		}()
	}

	defer func() {
		eventbus.Shutdown()
		if state.stream != nil {
			state.stream.Close()
		}
		if state.sessions != nil {
			_ = state.sessions.Close(context.Background())
		}
		if state.store != nil {
			if err := state.store.Close(); err != nil {
				logger.Error("ledger did not close cleanly: %v", err)
			}
		}
	}()

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.Info("server stopped")
	_ = logger.Close()
	return nil
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.Info("bootstrap steps completed:")
	for _, step := range steps {
		logger.Info("  %s", step.Title)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					"dependency "+dep+" not satisfied",
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(platformerrors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if platformerrors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph declares the dependency-ordered bootstrap steps.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load-file",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load-file"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load-file", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "ledger:init-store",
			Title:     "Initialise report ledger",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initLedgerStep,
		},
		{
			ID:        "delivery:init-channel",
			Title:     "Initialise delivery channel",
			DependsOn: []string{"config:load-file", "logging:init-provider"},
			Kind:      platformerrors.KindDelivery,
			Execute:   initDeliveryStep,
		},
		{
			ID:        "domain:init-services",
			Title:     "Initialise report services",
			DependsOn: []string{"ledger:init-store", "delivery:init-channel"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initServicesStep,
		},
		{
			ID:        "audit:register-recorder",
			Title:     "Register lifecycle audit recorder",
			DependsOn: []string{"storage:init-database", "domain:init-services"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   registerAuditStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader(state.configPath).Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load-file", "failed to load configuration", err)
	}
	state.config = result.Config
	state.configOrigin = result.Path
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.config == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "logging:init-provider", "config not loaded")
	}

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialise logging", err)
	}
	state.logger = logger
	logger.Info("logging ready [%s], config from %s", state.config.Log.Level, state.configOrigin)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}
	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

// initDatabaseStep opens the platform database. The sqlite ledger and the
// audit recorder both ride on it; the redis and memory drivers only need it
// for auditing.
func initDatabaseStep(_ context.Context, state *appState) error {
	db, err := platformstorage.Open(state.config.Ledger.SQLite.Path)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to open database", err)
	}
	state.db = db
	return nil
}

func initLedgerStep(_ context.Context, state *appState) error {
	store, err := ledger.New(state.config.Ledger, ledger.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return err
	}
	state.store = store
	state.logger.Info("report ledger ready (driver=%s)", state.config.Ledger.Driver)
	return nil
}

func initDeliveryStep(_ context.Context, state *appState) error {
	cfg := state.config.Delivery
	if cfg.ServiceID == "" || cfg.TemplateID == "" || cfg.PublicKey == "" {
		state.logger.Warn("delivery channel credentials missing, submissions will fail until configured")
	}
	state.channel = delivery.NewClient(cfg, state.logger)
	return nil
}

func initServicesStep(_ context.Context, state *appState) error {
	state.submitter = reportservice.NewSubmitter(state.store, state.channel, state.logger).
		WithVerifyBase(state.config.Verification.BaseURL)
	state.tracker = reportservice.NewTracker(state.store, state.config.Tracking)
	state.verifier = reportservice.NewVerifier(state.store, state.logger)
	state.sessions = session.NewManager(state.submitter, state.verifier, state.config.Lifecycle, state.logger)
	return nil
}

func registerAuditStep(_ context.Context, state *appState) error {
	recorder := eventbus.NewAuditRecorder(state.db)
	if err := recorder.Register(); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "audit:register-recorder", "failed to subscribe audit recorder", err)
	}
	state.audit = recorder
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config:     config,
		Logger:     logger,
		StaticRoot: config.Web.StaticDir,
	})
	if err != nil {
		return err
	}
	router := httpRouter.Engine
	apiGroup := httpRouter.API

	router.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "api not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.File(config.Web.StaticDir + "/index.html")
	})

	compressor := domainimage.NewCompressor(domainimage.Options{
		TargetBytes:  config.Compression.TargetKB * 1024,
		MaxDimension: config.Compression.MaxDimension,
		QualityStart: config.Compression.QualityStart,
		QualityFloor: config.Compression.QualityFloor,
		QualityStep:  config.Compression.QualityStep,
		Logger:       logger,
	})

	reportSvc, err := httpreport.NewService(state.sessions, compressor, state.tracker, state.verifier, logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "report:new-service", "failed to create report service", err)
	}

	adminSvc, err := httpadmin.NewService(config, state.store, state.sessions, state.audit, logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "admin:new-service", "failed to create admin service", err)
	}

	stream, err := wstransport.NewStream(state.sessions, logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "ws:new-stream", "failed to create event stream", err)
	}
	state.stream = stream

	if err := reportSvc.Register(groupCtx, apiGroup); err != nil {
		return err
	}
	if err := adminSvc.Register(groupCtx, apiGroup); err != nil {
		return err
	}
	if err := stream.Register(groupCtx, router.Group("/ws")); err != nil {
		return err
	}

	router.GET("/openapi.json", func(c *gin.Context) {
		doc, err := swag.ReadDoc()
		if err != nil {
			logger.Error("failed to generate openapi spec: %v", err)
			c.JSON(http.StatusInternalServerError, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{"error": err.Error()},
				Message: "failed to generate openapi spec",
				Code:    http.StatusInternalServerError,
			})
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(doc))
	})

	router.GET("/docs", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(scalarHTML))
	})

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info("http server listening on http://localhost:%d", config.Web.Port)
		logger.Info("api docs at http://localhost:%d/docs", config.Web.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown failed: %v", err)
			} else {
				logger.Info("http server shut down cleanly")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !platformerrors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed: %v", err)
			return err
		}
		return nil
	})

	return nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.Info("shutdown signal received (%v), cleaning up", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("error during shutdown: %v", err)
			return err
		}
		logger.Info("all services stopped")
	case <-time.After(15 * time.Second):
		logger.Error("shutdown timed out, forcing exit")
		return platformerrors.New(platformerrors.KindBootstrap, "bootstrap:shutdown", "shutdown timed out")
	}
	return nil
}
