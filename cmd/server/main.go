package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	"github.com/containerd/errdefs"
	"github.com/enrichman/httpgrace"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/bassista/go_coalesce/internal/api/middleware"
	route "github.com/bassista/go_coalesce/internal/api/route"
	appctx "github.com/bassista/go_coalesce/internal/app"
	"github.com/bassista/go_coalesce/internal/autosave"
	"github.com/bassista/go_coalesce/internal/config"
	"github.com/bassista/go_coalesce/internal/document"
	"github.com/bassista/go_coalesce/internal/logger"
	"github.com/bassista/go_coalesce/internal/repository"
)

func main() {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithComponent("main").Fatalf("configuration error: %v", err)
	}

	// Set log level from configuration
	logLevel, err := logrus.ParseLevel(cfg.Misc.LogLevel)
	if err != nil {
		logger.WithComponent("main").Warnf("invalid log level '%s', using 'info': %v", cfg.Misc.LogLevel, err)
		logLevel = logrus.InfoLevel
	}
	logger.Logger.SetLevel(logLevel)
	logger.WithComponent("main").Infof("App will run on port: %d", cfg.Server.Port)

	repo, err := repository.NewJSONRepository(cfg.Data.FilePath, cfg.Data.WatcherDebounce)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init repository: %v", err)
	}

	doc, err := loadOrCreateDocument(repo)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot load document file: %v", err)
	}

	store := document.NewStore(*doc)

	sched, err := autosave.New(context.Background(), doc.Content(),
		appctx.NewPersistFunc(repo, store),
		autosave.Options{
			IdleInterval:   cfg.Autosave.IdleInterval,
			ImmediateFirst: cfg.Autosave.ImmediateFirst,
			Disabled:       cfg.Autosave.Disabled,
		})
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init autosave scheduler: %v", err)
	}

	app, err := appctx.New(cfg, repo, store, sched)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init app: %v", err)
	}
	defer app.Shutdown()

	if err := app.StartWatchers(); err != nil {
		logger.WithComponent("main").Fatalf("cannot start document file watcher: %v", err)
	}

	gin.SetMode(cfg.Misc.GinMode)
	gin.DefaultWriter = logger.Logger.Writer()
	gin.DefaultErrorWriter = logger.Logger.Writer()

	r := gin.New()
	r.Use(middleware.HoneybadgerMiddleware(logger.Logger))
	r.Use(gin.Recovery())
	route.SetupRoutes(r, app)

	srv := createGraceHTTPServer(app.BaseCtx, "main-server", cfg.Server, r)
	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithComponent("main").Fatal(err)
	}
}

// loadOrCreateDocument loads the document file, seeding an empty document on
// first run.
func loadOrCreateDocument(repo repository.Repository) (*repository.Document, error) {
	doc, err := repo.Load(context.Background())
	if err == nil {
		return doc, nil
	}
	if !errdefs.IsNotFound(err) {
		return nil, err
	}

	logger.WithComponent("main").Info("no document file found, creating an empty one")
	fresh := &repository.Document{Title: "Untitled"}
	fresh.ApplyDefaults()
	if err := repo.Save(context.Background(), fresh); err != nil {
		return nil, fmt.Errorf("create document file: %w", err)
	}
	return fresh, nil
}

func createGraceHTTPServer(ctx context.Context, name string, serverConfig config.ServerConfig, r *gin.Engine) *httpgrace.Server {
	slogLogger := slog.New(slog.NewTextHandler(logger.Logger.Writer(), nil))

	srv := httpgrace.NewServer(r,
		httpgrace.WithTimeout(serverConfig.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogLogger),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("Shutting down %s server....", name)
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(serverConfig.ReadTimeout),
			httpgrace.WithWriteTimeout(serverConfig.WriteTimeout),
			httpgrace.WithIdleTimeout(serverConfig.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(_ net.Listener) context.Context {
					return ctx
				}
			},
			func(srv *http.Server) {
				srv.ErrorLog = log.New(logger.Logger.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags)
			},
		),
	)
	return srv
}
