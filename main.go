package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cafe-pos/config"
	"cafe-pos/gateway"
	"cafe-pos/handlers"
	"cafe-pos/kitchen"
	"cafe-pos/logger"
	"cafe-pos/metrics"
	"cafe-pos/middleware"
	"cafe-pos/routes"
	"cafe-pos/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "cafe-pos:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New("cafe-pos", os.Stdout, logger.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.OpenDB(cfg.Database)
	if err != nil {
		return err
	}
	if err := config.Migrate(db); err != nil {
		return err
	}
	if err := config.Seed(ctx, db, cfg); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	log.Info("db.ready", "", "database connected and migrated", slog.String("driver", cfg.Database.Driver))

	m := metrics.New()
	hub := kitchen.NewHub(kitchen.HubOptions{
		QueueSize:        cfg.Kitchen.QueueSize,
		SubscriberBuffer: cfg.Kitchen.SubscriberBuffer,
		Observer:         m,
		Logger:           log,
	})

	var gw gateway.Gateway
	if cfg.GatewayConfigured() {
		gw = gateway.NewClient(gateway.Options{
			BaseURL:   cfg.Gateway.BaseURL,
			KeyID:     cfg.Gateway.KeyID,
			KeySecret: cfg.Gateway.KeySecret,
			Timeout:   cfg.Gateway.Timeout,
		})
	} else {
		log.Warn("gateway.config", "", "payment gateway keys not set; online payments disabled")
	}

	svc := service.New(service.Options{
		DB:          db,
		Broadcaster: hub,
		Recorder:    m,
		Gateway:     gw,
		Verifier:    gateway.NewVerifier(cfg.Gateway.KeySecret),
		Logger:      log,
		Settings: service.Settings{
			Currency:          cfg.Gateway.Currency,
			GatewayMethodCode: cfg.Gateway.MethodCode,
			PayeeName:         cfg.Payee.Name,
			FrontendURL:       cfg.FrontendURL,
		},
	})
	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	gin.SetMode(cfg.HTTP.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(log), cors(cfg.FrontendURL))
	routes.SetupRoutes(r, routes.Deps{
		Handler: handlers.New(svc, auth, log),
		Auth:    auth,
		Hub:     hub,
		Metrics: m,
		Logger:  log,
	})

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if cfg.Kitchen.AMQPURL != "" {
		conn, ch, err := kitchen.DialAMQP(ctx, cfg.Kitchen.AMQPURL, 5, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer ch.Close()
		relay := kitchen.NewRelay(hub, ch, log)
		g.Go(func() error { return relay.Run(gctx) })
		log.Info("kitchen.relay", "", "relaying kitchen events to broker", slog.String("exchange", kitchen.Topic))
	}

	g.Go(func() error {
		log.Info("http.start", "", "server listening", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		log.Info("http.stop", "", "shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cors allows the configured frontend origin.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
