package server

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"schemagraph/internal/config"
	"schemagraph/internal/database"
	"schemagraph/internal/handlers"
	"schemagraph/internal/layout"
	"schemagraph/internal/middlewares"
	"schemagraph/internal/models"
	"schemagraph/internal/repositories"
	"schemagraph/internal/routes"
	"schemagraph/internal/services"
	"schemagraph/internal/signals"
)

// Server wires the graph engine to its collaborators and the HTTP API.
type Server struct {
	*http.Server

	logger     *zap.Logger
	controller *services.GraphViewController
	cancel     context.CancelFunc
	closers    []func()
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{logger: logger, cancel: cancel}

	if err := s.build(ctx, cfg); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, cfg *config.Config) error {
	defaultLayout, err := layout.ParseKind(cfg.DefaultLayout)
	if err != nil {
		return fmt.Errorf("LAYOUT_DEFAULT: %w", err)
	}

	resolve := s.targetResolver(cfg)

	// control plane: persisted context and rebuild history
	var store services.ContextStore = repositories.NewMemoryContextRepository()
	var recorder services.RebuildRecorder
	var history handlers.HistoryLister
	if cfg.Control != nil {
		cp, err := database.ConnectControlPlane(ctx, *cfg.Control, s.logger)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, cp.Close)

		if err := database.RunMigrations(ctx, cp.Pool, s.logger); err != nil {
			return fmt.Errorf("control plane migrations: %w", err)
		}
		historyRepo := repositories.NewRebuildHistoryRepository(cp.Pool)
		store = repositories.NewContextRepository(cp.Gorm)
		recorder = historyRepo
		history = historyRepo
	} else {
		s.logger.Info("no control-plane database configured, keeping context in memory")
	}

	bus := signals.NewBus()
	var publisher signals.Publisher = bus
	if cfg.RedisAddr != "" {
		relay, err := s.startRelay(ctx, cfg, bus)
		if err != nil {
			return err
		}
		publisher = relay
	}

	var contextOpts []services.ContextOption
	if cfg.Target.Driver == config.DriverMySQL {
		contextOpts = append(contextOpts, services.WithSchemaPerDatabase())
	}
	contextService, err := services.NewContextService(ctx, store, publisher, models.ActiveContext{
		Database: cfg.Target.Database,
		Schema:   cfg.DefaultSchema,
	}, s.logger.Named("context"), contextOpts...)
	if err != nil {
		return err
	}

	aggregator := services.NewMetadataAggregator(resolve, services.AggregatorOptions{
		Concurrency:    cfg.AggregateConcurrency,
		RequestTimeout: cfg.AggregateRequestTimeout,
	}, s.logger.Named("aggregator"))

	s.controller = services.NewGraphViewController(aggregator, contextService, bus, services.ControllerOptions{
		Layout:   defaultLayout,
		Recorder: recorder,
	}, s.logger.Named("graph"))
	s.controller.Activate(ctx)

	schemaService := services.NewSchemaService(resolve, contextService)

	s.Server = &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router(cfg, routes.Handlers{
			Schema:  handlers.NewSchemaHandler(schemaService, s.logger),
			Graph:   handlers.NewGraphHandler(s.controller, history, s.logger),
			Context: handlers.NewContextHandler(contextService),
			Signal:  handlers.NewSignalHandler(publisher),
		}),
		IdleTimeout: time.Minute,
		ReadTimeout: 10 * time.Second,
		// no WriteTimeout: /graph/events is a long-lived stream
	}
	return nil
}

// targetResolver returns the provider lookup for the configured driver.
func (s *Server) targetResolver(cfg *config.Config) services.ResolverFunc {
	if cfg.Target.Driver == config.DriverMySQL {
		pools := database.NewSQLPoolManager(cfg.Target, s.logger)
		s.closers = append(s.closers, pools.Close)
		providers := repositories.NewMySQLProviders(pools)
		return func(ctx context.Context, db string) (services.MetadataProvider, error) {
			repo, err := providers.Provider(ctx, db)
			if err != nil {
				return nil, err
			}
			return repo, nil
		}
	}

	pools := database.NewPoolManager(cfg.Target, s.logger)
	s.closers = append(s.closers, pools.Close)
	providers := repositories.NewPostgresProviders(pools)
	return func(ctx context.Context, db string) (services.MetadataProvider, error) {
		repo, err := providers.Provider(ctx, db)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

func (s *Server) startRelay(ctx context.Context, cfg *config.Config, bus *signals.Bus) (*signals.RedisRelay, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	// fail fast with a clear message
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}
	s.logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr), zap.String("channel", cfg.SignalChannel))
	s.closers = append(s.closers, func() { rdb.Close() })

	relay := signals.NewRedisRelay(rdb, bus, cfg.SignalChannel, s.logger.Named("relay"))
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("signal relay stopped", zap.Error(err))
		}
	}()
	return relay, nil
}

func (s *Server) router(cfg *config.Config, h routes.Handlers) *gin.Engine {
	if cfg.LogFormat == "json" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middlewares.Recovery(s.logger), middlewares.RequestLogger(s.logger.Named("http")))

	corsCfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	router.Use(cors.New(corsCfg))

	routes.RegisterRoutes(router, h)
	return router
}

// Shutdown stops the HTTP server, then the graph controller and the relay,
// and finally closes every database connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.controller != nil {
		s.controller.Close()
	}
	s.cancel()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
