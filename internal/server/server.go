package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mindwell/buddy/config"
	"github.com/mindwell/buddy/internal/answer"
	"github.com/mindwell/buddy/internal/cache"
	"github.com/mindwell/buddy/internal/intent"
	"github.com/mindwell/buddy/internal/kb"
	"github.com/mindwell/buddy/internal/linkcheck"
	"github.com/mindwell/buddy/internal/registry"
	"github.com/mindwell/buddy/internal/runtime"
	"github.com/mindwell/buddy/internal/safety"
	"github.com/mindwell/buddy/internal/sources"
)

// Run wires the full pipeline and serves it until SIGINT/SIGTERM.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
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
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	tele, err := runtime.SetupTracing(context.Background(), cfg.Telemetry.OTLPEndpoint, runtime.TelemetryOptions{
		ServiceName:    "buddy",
		ServiceVersion: "1.0",
	})
	if err != nil {
		return err
	}

	store, err := buildStore(cfg.Cache)
	if err != nil {
		return err
	}
	recording := cache.NewRecording(store)

	regSource, routeSet, err := registry.LoadDir(cfg.Registry.Dir)
	if err != nil {
		return fmt.Errorf("loading registries from %s: %w", cfg.Registry.Dir, err)
	}

	index := kb.New(regSource, routeSet,
		log.New(log.Writer(), "[KB] ", log.LstdFlags),
		kb.WithTTL(cfg.Index.TTL))

	srcLogger := log.New(log.Writer(), "[SOURCES] ", log.LstdFlags)
	nhs := sources.NewNHSResolver(cfg.Sources.NHS, recording, srcLogger)
	medline := sources.NewMedlinePlusClient(cfg.Sources.MedlinePlus, recording, srcLogger)
	pubmed := sources.NewPubMedClient(cfg.Sources.PubMed, recording, srcLogger)

	links := linkcheck.New(recording, cfg.Links.Timeout, cfg.Links.UserAgent,
		log.New(log.Writer(), "[LINKS] ", log.LstdFlags),
		linkcheck.WithTTL(cfg.Links.CacheTTL))

	orch := answer.New(answer.Deps{
		Safety:              safety.NewRules(),
		Intent:              intent.NewRules(),
		Index:               index,
		Routes:              routeSet,
		Manifest:            nhs,
		Summaries:           medline,
		Literature:          pubmed,
		Links:               links,
		DefaultJurisdiction: cfg.Safety.DefaultJurisdiction,
		Logger:              log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	})

	ah := &AskHandler{
		Orch:    orch,
		Timeout: cfg.General.DefaultTimeout,
	}
	ah.Register(e.Group("/api"))

	sched := &Refresher{
		Cron:   cfg.Server.RefreshCron,
		Logger: log.New(log.Writer(), "[REFRESH] ", log.LstdFlags),
		Jobs: []func(context.Context){
			index.Refresh,
			func(ctx context.Context) { nhs.Manifest(ctx) },
		},
	}
	sched.Start()
	defer sched.StopNow()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- e.Start(cfg.Server.Address) }()
	log.Printf("listening on %s", cfg.Server.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return tele.Shutdown(shutdownCtx)
}

func buildStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemory(), nil
	case "redis":
		store, err := cache.NewRedis(context.Background(),
			cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			log.New(log.Writer(), "[CACHE] ", log.LstdFlags))
		if err != nil {
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Redis.Addr, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
