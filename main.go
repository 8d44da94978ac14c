package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/taskhive/backend/internal/config"
	"github.com/taskhive/backend/internal/db"
	"github.com/taskhive/backend/internal/handler"
	"github.com/taskhive/backend/internal/realtime"
	"github.com/taskhive/backend/internal/service"
	"github.com/taskhive/backend/internal/token"
	"golang.org/x/sync/errgroup"
)

const sessionSweepInterval = time.Hour

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	codec, err := token.NewCodec(cfg.Auth.AccessSecret, cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		log.WithError(err).Fatal("invalid auth config")
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		log.WithError(err).Fatal("failed to ensure schema")
	}

	authSvc := service.NewAuthService(pg, pg, codec, log)

	cookieCfg := handler.ProdCookieConfig(cfg.Auth.CookieDomain)
	if cfg.IsDev() {
		cookieCfg = handler.DevCookieConfig(cfg.Auth.CookieDomain)
	}

	origins := strings.Split(cfg.Server.AllowedOrigins, ",")
	hub := realtime.NewHub(log)
	gate := realtime.NewGate(authSvc, hub, origins, log)
	authHandler := handler.NewAuthHandler(authSvc, cookieCfg)

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.CORSMiddleware(origins))

	router.GET("/healthz", handler.Healthz)

	auth := router.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/refresh", authHandler.Refresh)

		protected := auth.Group("")
		protected.Use(handler.RequireAuth(authSvc))
		protected.POST("/logout-all", authHandler.LogoutAll)
		protected.GET("/me", authHandler.Me)
		protected.PATCH("/me", authHandler.UpdateProfile)
	}

	router.GET("/ws", gate.Handle)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", cfg.Server.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := authSvc.SweepExpiredSessions(gctx); err != nil {
					log.WithError(err).Warn("session sweep failed")
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server exited")
	}
	log.Info("server stopped")
}
