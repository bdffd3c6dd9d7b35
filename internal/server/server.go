package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appconfig "github.com/shopscout/shopscout/config"
	"github.com/shopscout/shopscout/internal/coordinator"
	"github.com/shopscout/shopscout/internal/memory"
	"github.com/shopscout/shopscout/internal/runtime"
	redis_session "github.com/shopscout/shopscout/internal/session/redis"
	"github.com/shopscout/shopscout/internal/store"
	"github.com/shopscout/shopscout/internal/telemetry"
	"github.com/shopscout/shopscout/internal/transport"
	"github.com/shopscout/shopscout/provider"
)

func authMiddleware(secret []byte) echo.MiddlewareFunc {
	return runtime.EchoAuthMiddleware(secret)
}

// newEcho builds the shared echo instance with recovery, CORS and the
// unified JSON error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))
	return e
}

// Run starts the chat API server. It owns the store, session cache,
// coordinator and agent client, and blocks until the listener stops.
func Run(cfg *appconfig.Config, addr string) error {
	e := newEcho()

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })

	_ = Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0)

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	llm, err := provider.NewProvider(cfg.LLM)
	if err != nil {
		return err
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
	sessions := redis_session.NewStore(cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
	agents := transport.NewAgentClient(cfg.Agents)

	coord := coordinator.New(coordinator.Options{
		LLM:           llm,
		Verifier:      agents,
		Searcher:      agents,
		Sessions:      sessions,
		Metrics:       metrics,
		SearchTimeout: cfg.General.DefaultTimeout,
		PendingTTL:    cfg.Memory.SessionTTL,
	})

	var recaller *memory.Recaller
	if cfg.Memory.Enabled {
		recaller = memory.NewRecaller(llm, st, cfg.Memory.TopK, cfg.Memory.ContextLimit, cfg.Memory.EmbeddingDimensions)
	}

	api := e.Group("/api")

	auth := &AuthHandler{Store: st, Secret: secret}
	auth.Register(api.Group("/auth"))

	me := api.Group("/me", authMiddleware(secret))
	me.GET("", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"user_id": c.Get("user_id").(string)})
	})

	ch := &ChatHandler{
		Store:       st,
		Coordinator: coord,
		Recaller:    recaller,
		Logger:      log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
	ch.Register(api, secret)

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":10001"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
