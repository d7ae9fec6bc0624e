package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "portal/api/swagger" // swagger docs
	"portal/internal/config"
	"portal/internal/database"
	"portal/internal/document"
	"portal/internal/handler"
	"portal/internal/logging"
	"portal/internal/repository"
	"portal/internal/service"
	"portal/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

type serveOptions struct {
	AutoMigrate     bool
	ShutdownTimeout time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket hub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(root)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.AutoMigrate, "auto-migrate", true, "migrate the schema before serving")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts serveOptions) error {
	db, err := database.NewConnection(cfg.Database.DSN(), log)
	if err != nil {
		return err
	}
	if opts.AutoMigrate {
		if err := database.Migrate(db, log); err != nil {
			return err
		}
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log.WithField("component", "ws"))
	go wsHub.Run(ctx)

	approvalService := newApprovalService(db, cfg, wsHub, log)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinMiddleware(log))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": wsHub.Connected()})
	})
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, cfg.Secret())
	})

	api := router.Group("")
	handler.NewRequestHandler(approvalService, cfg.Secret()).RegisterRoutes(api)
	handler.NewApprovalHandler(approvalService, cfg.Secret()).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newApprovalService wires repositories, the notifier and the document client.
func newApprovalService(db *gorm.DB, cfg *config.Config, notifier service.Notifier, log *logrus.Logger) service.ApprovalService {
	var resigner service.Resigner = service.NopResigner{}
	if cfg.Document.URL != "" {
		resigner = document.NewClient(cfg.Document.URL, cfg.Document.Timeout)
	} else {
		log.Warn("DOCUMENT_SERVICE_URL not set, approved documents will not be re-signed")
	}

	return service.NewApprovalService(service.Dependencies{
		Stages:       repository.NewStageRepository(db),
		Requests:     repository.NewRequestRepository(db),
		Equipment:    repository.NewEquipmentRepository(db),
		Reservations: repository.NewReservationRepository(db),
		Audit:        repository.NewAuditRepository(db),
		Users:        repository.NewUserRepository(db),
		TxManager:    repository.NewTransactionManager(db),
		Notifier:     notifier,
		Resigner:     resigner,
		Logger:       log.WithField("component", "approval"),
		Boundary:     cfg.Boundary(),
	})
}
