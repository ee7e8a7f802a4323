package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"voyago/config"
	"voyago/internal/cache"
	"voyago/internal/database"
	"voyago/internal/domain"
	"voyago/internal/jobs"
	"voyago/internal/repository"
	"voyago/internal/router"
	"voyago/internal/ws"
	"voyago/pkg/cloudinary"
	"voyago/pkg/logger"
	"voyago/pkg/pinetwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	database.SeedAdmin(db, &cfg.Admin, log)
	if err := repository.NewSettingRepository(db).SeedDefaults(map[string]string{
		domain.SettingReferralBonusReferrer: domain.DefaultReferralBonusReferrer.String(),
		domain.SettingReferralBonusReferred: domain.DefaultReferralBonusReferred.String(),
	}); err != nil {
		log.Warn("seed settings", zap.Error(err))
	}

	rdb, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		// Cache reads miss and the rate limiter fails open; the API
		// itself stays up.
		log.Warn("redis unavailable", zap.Error(err))
		rdb = nil
	}

	var cloud cloudinary.Client
	if cfg.Cloudinary.CloudName != "" {
		cloud, err = cloudinary.NewClientFromParams(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		if err != nil {
			log.Fatal("cloudinary", zap.Error(err))
		}
	} else {
		log.Info("cloudinary not configured, media uploads disabled")
	}

	pi := pinetwork.NewClient(cfg.Pi.BaseURL, cfg.Pi.APIKey, cfg.Pi.Timeout, log)
	hub := ws.NewHub()

	jobsClient := jobs.NewClient(&cfg.Redis, log)
	defer jobsClient.Close()

	engine, paymentSvc := router.Setup(cfg, db, rdb, cloud, pi, hub, jobsClient, log)

	worker := jobs.NewWorker(&cfg.Redis, &cfg.Jobs, paymentSvc, log)
	go func() {
		if err := worker.Run(); err != nil {
			log.Error("task worker stopped", zap.Error(err))
		}
	}()
	scheduler, err := jobs.NewScheduler(&cfg.Redis, cfg.Jobs.ReconcileInterval, log)
	if err != nil {
		log.Fatal("scheduler", zap.Error(err))
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			log.Error("scheduler stopped", zap.Error(err))
		}
	}()
	if cfg.Jobs.MonitorEnabled {
		go func() {
			if err := jobs.StartMonitor(&cfg.Redis, cfg.Jobs.MonitorAddr, log); err != nil {
				log.Error("task monitor stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	scheduler.Shutdown()
	worker.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
