package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"procurement/internal/config"
	"procurement/internal/database"
	"procurement/internal/document"
	"procurement/internal/handler"
	"procurement/internal/identity"
	"procurement/internal/middleware"
	"procurement/internal/repository"
	"procurement/internal/repository/memory"
	"procurement/internal/service"
	"procurement/internal/storage"
	"procurement/internal/websocket"

	"github.com/NYTimes/gziphandler"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// stores groups the repositories of one backend.
type stores struct {
	tx        repository.TransactionManager
	requests  repository.RequestRepository
	approvals repository.ApprovalRepository
	audit     repository.AuditRepository
	close     func() error
}

func openStores(cfg *config.Config, logger *logrus.Logger, migrate bool) (stores, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("using the in-memory store; data is lost on restart")
		store := memory.NewStore()
		return stores{
			tx:        memory.NewTransactionManager(store),
			requests:  memory.NewRequestRepository(store),
			approvals: memory.NewApprovalRepository(store),
			audit:     memory.NewAuditRepository(store),
			close:     func() error { return nil },
		}, nil
	}

	db, err := database.NewConnection(cfg.Database.DSN(), logger)
	if err != nil {
		return stores{}, err
	}
	if migrate {
		if err := database.Migrate(db); err != nil {
			return stores{}, err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return stores{}, fmt.Errorf("failed to get connection pool: %w", err)
	}
	logger.Info("connected to PostgreSQL")
	return stores{
		tx:        repository.NewTransactionManager(db),
		requests:  repository.NewRequestRepository(db),
		approvals: repository.NewApprovalRepository(db),
		audit:     repository.NewAuditRepository(db),
		close:     sqlDB.Close,
	}, nil
}

func openRedis(ctx context.Context, opts config.RedisOptions, logger *logrus.Logger) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, nil
	}
	parsed, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(parsed)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis is not reachable yet")
	}
	return client, nil
}

// collaborators returns the document analyzers. Without an API key analysis is unavailable and
// requests carry no advisory data.
func collaborators(cfg config.AIOptions, rdb *redis.Client, cacheTTL time.Duration, logger *logrus.Logger) (document.Extractor, document.ReceiptValidator) {
	if !cfg.Enabled() {
		logger.Warn("OPENAI_API_KEY is not set; document analysis is disabled")
		return document.Unavailable{}, document.Unavailable{}
	}
	analyzer := document.NewOpenAIAnalyzer(cfg.APIKey, cfg.BaseURL, cfg.Model, option.WithMaxRetries(1))
	var extractor document.Extractor = analyzer
	if rdb != nil {
		extractor = document.NewCachedExtractor(analyzer, document.NewRedisCache(rdb), cacheTTL, logger)
	}
	return extractor, analyzer
}

type routes struct {
	cfg       *config.Config
	logger    *logrus.Logger
	resolver  identity.Resolver
	hub       *websocket.Hub
	registry  *prometheus.Registry
	limiter   gin.HandlerFunc
	requests  *handler.RequestHandler
	documents *handler.DocumentHandler
}

func newRouter(r routes) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(r.logger), middleware.RequestLogger(r.logger))
	if r.cfg.Tracing.Enabled {
		router.Use(middleware.Tracing())
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = r.cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	if r.cfg.Metrics.Enabled {
		router.GET(r.cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
	}
	router.GET("/ws", r.hub.ServeWs)

	var upload []gin.HandlerFunc
	if r.limiter != nil {
		upload = append(upload, r.limiter)
	}
	api := router.Group("/api", middleware.Authenticate(r.resolver))
	r.requests.RegisterRoutes(api, upload...)
	r.documents.RegisterRoutes(api, upload...)
	return router
}

// compress gzips responses except on the websocket endpoint, which needs the raw connection.
func compress(next http.Handler) http.Handler {
	gz := gziphandler.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/ws" {
			next.ServeHTTP(w, req)
			return
		}
		gz.ServeHTTP(w, req)
	})
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newFileStore(cfg *config.Config) (*storage.FileStore, error) {
	files, err := storage.NewFileStore(cfg.UploadsDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare uploads directory: %w", err)
	}
	return files, nil
}

func newHandlers(d service.Deps, logger *logrus.Logger) (*handler.RequestHandler, *handler.DocumentHandler) {
	requests := handler.NewRequestHandler(service.NewRequestService(d), service.NewApprovalService(d), logger)
	documents := handler.NewDocumentHandler(service.NewDocumentService(d), logger)
	return requests, documents
}
