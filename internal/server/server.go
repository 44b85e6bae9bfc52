// Package server assembles the imaging gateway: admission store, ingestion
// service, annotator, mapper, workqueue and the HTTP routes over them.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gcasillas/clinical-imaging/internal/config"
	"github.com/gcasillas/clinical-imaging/internal/domain/admission"
	"github.com/gcasillas/clinical-imaging/internal/domain/annotation"
	"github.com/gcasillas/clinical-imaging/internal/domain/imaging"
	"github.com/gcasillas/clinical-imaging/internal/domain/workqueue"
	"github.com/gcasillas/clinical-imaging/internal/platform/db"
	"github.com/gcasillas/clinical-imaging/internal/platform/hl7v2"
	"github.com/gcasillas/clinical-imaging/internal/platform/middleware"
	"github.com/gcasillas/clinical-imaging/internal/platform/websocket"
)

// Store bundles an admission store with its health probe and cleanup.
type Store struct {
	admission.Store
	Pinger db.Pinger
	close  func()
}

// Close releases the underlying connection or database handle.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore constructs the admission store selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		return &Store{Store: admission.NewPGStore(pool), Pinger: pool, close: pool.Close}, nil

	case config.DriverRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("connected to redis")
		ping := db.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
		return &Store{Store: admission.NewRedisStore(client), Pinger: ping, close: func() { client.Close() }}, nil

	case config.DriverLevelDB:
		store, err := admission.OpenLevelDBStore(cfg.LevelDBPath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.LevelDBPath).Msg("opened leveldb store")
		return &Store{Store: store, Pinger: store, close: func() { store.Close() }}, nil

	case config.DriverMemory, "":
		return &Store{
			Store:  admission.NewMemoryStore(),
			Pinger: db.PingFunc(func(context.Context) error { return nil }),
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Gateway holds the wired components behind the HTTP server.
type Gateway struct {
	Echo        *echo.Echo
	Admissions  *admission.Service
	Live        *admission.LiveList
	Hub         *websocket.Hub
	Coordinator *workqueue.Coordinator
}

// New builds the gateway over store. Publishers other than the live list,
// such as Kafka, are added by the caller through Admissions.AddPublisher.
func New(cfg *config.Config, store *Store, logger zerolog.Logger) (*Gateway, error) {
	rules, err := annotation.LoadRules(cfg.AnnotatorRulesFile)
	if err != nil {
		return nil, err
	}
	annotator := annotation.NewRuleAnnotator(rules)
	mapper := imaging.NewMapper(nil)

	svc := admission.NewService(store.Store, logger)
	live := admission.NewLiveList(store.Store)
	svc.AddPublisher(live)

	catalog := workqueue.NewStudyCatalog()
	if cfg.SeedDemoStudy {
		catalog.Add(workqueue.DemoStudy())
	}
	coord := workqueue.NewCoordinator(annotator, mapper, catalog, store.Store, logger)
	hub := websocket.NewHub(logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/store", db.HealthHandler(store.Pinger))

	api := e.Group("/api")
	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")

	admission.NewHandler(svc).RegisterRoutes(api, apiV1)
	hl7v2.NewHandler().RegisterRoutes(apiV1)
	annotation.NewHandler(annotator).RegisterRoutes(apiV1)
	workqueue.NewHandler(coord).RegisterRoutes(apiV1)
	imaging.NewHandler(mapper).RegisterRoutes(fhirGroup)
	websocket.NewHandler(hub, OriginChecker(cfg.CORSOrigins)).RegisterRoutes(apiV1)

	return &Gateway{Echo: e, Admissions: svc, Live: live, Hub: hub, Coordinator: coord}, nil
}

// RunFeed pushes admission list snapshots to websocket subscribers until ctx
// is done.
func (g *Gateway) RunFeed(ctx context.Context) error {
	return websocket.RunAdmissionFeed(ctx, g.Hub, g.Live)
}

// OriginChecker allows websocket upgrades from the configured CORS origins.
func OriginChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
