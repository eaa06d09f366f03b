package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/aquaflow/shop/internal/authz"
	"github.com/aquaflow/shop/internal/cart"
	"github.com/aquaflow/shop/internal/checkout"
	"github.com/aquaflow/shop/internal/config"
	"github.com/aquaflow/shop/internal/es"
	"github.com/aquaflow/shop/internal/events"
	"github.com/aquaflow/shop/internal/handlers"
	"github.com/aquaflow/shop/internal/logging"
	"github.com/aquaflow/shop/internal/mux"
	"github.com/aquaflow/shop/internal/notify"
	"github.com/aquaflow/shop/internal/routeopt"
	"github.com/aquaflow/shop/internal/service/token"
	"github.com/aquaflow/shop/internal/store"
	"github.com/aquaflow/shop/internal/store/gormstore"
	httpserver "github.com/aquaflow/shop/internal/transport/http"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.LOG_LEVEL)

	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Error("database init failed", "error", err)
		os.Exit(1)
	}

	esClient, err := es.NewClient(cfg, logger)
	if err != nil {
		logger.Error("elasticsearch init failed", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.REDIS_ADDRESS,
		Password: cfg.REDIS_PASSWORD,
	})

	producer := events.NewProducer([]string{cfg.KAFKA_ADDRESS})

	orders := gormstore.New(db)
	orderMux := mux.New(orders, logger)

	adminSink := notify.Fanout{
		&notify.LogSink{Log: logger},
		&notify.KafkaSink{Producer: producer, Log: logger},
	}
	admin := notify.NewAdminDispatcher(adminSink, nil, nil, logger)
	rootCtx, stop := context.WithCancel(context.Background())
	adminObs := orderMux.Watch(rootCtx, store.QuerySpec{OrderByDateDesc: true})
	admin.SeedProcessing(adminObs.Snapshot())
	go admin.Run(rootCtx, adminObs)

	authzSvc := authz.New(db, logger)
	tokenSvc := &token.Service{
		DB:            db,
		Authz:         authzSvc,
		JWTSecret:     []byte(cfg.JWT_SECRET),
		RefreshSecret: []byte(cfg.REFRESH_SECRET),
	}
	cartRepo := cart.NewRepo(rdb)

	var completer routeopt.Completer
	if cfg.LLM_API_KEY != "" {
		completer, err = routeopt.NewClient(cfg.LLM_API_URL, cfg.LLM_API_KEY, cfg.LLM_MODEL)
		if err != nil {
			logger.Error("route optimizer init failed", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("LLM_API_KEY not set, route optimization uses the mock completer")
		completer = routeopt.NewMockCompleter(cfg.LLM_MODEL)
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := logging.IntoContext(c.Request().Context(), logger)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		AuthHandler: &handlers.AuthHandler{
			DB:            db,
			JWTSecret:     []byte(cfg.JWT_SECRET),
			RefreshSecret: []byte(cfg.REFRESH_SECRET),
			Producer:      producer,
		},
		ProductHandler: &handlers.ProductHandler{DB: db, ES: esClient, Index: cfg.ES_INDEX, Producer: producer},
		CartHandler:    &handlers.CartHandler{DB: db, Cart: cartRepo},
		OrderHandler: &handlers.OrderHandler{
			Store:    orders,
			Cart:     cartRepo,
			Writer:   checkout.NewWriter(orders),
			Mux:      orderMux,
			Admin:    admin,
			Producer: producer,
		},
		SearchHandler: &handlers.SearchHandler{ES: esClient, Index: cfg.ES_INDEX},
		RouteHandler: &handlers.RouteHandler{
			Store:        orders,
			Optimizer:    routeopt.NewOptimizer(completer),
			DepotAddress: cfg.DEPOT_ADDRESS,
		},
		UserHandler:  &handlers.UserHandler{DB: db, Store: orders},
		TokenService: tokenSvc,
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + cfg.PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stop()
	adminObs.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}
	if err := producer.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}
