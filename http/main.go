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

	"github.com/joho/godotenv"
	"github.com/tnqbao/gau-site-director/config"
	"github.com/tnqbao/gau-site-director/http/controller"
	"github.com/tnqbao/gau-site-director/http/hub"
	"github.com/tnqbao/gau-site-director/http/middleware"
	"github.com/tnqbao/gau-site-director/http/route"
	infraPkg "github.com/tnqbao/gau-site-director/infra"
	"github.com/tnqbao/gau-site-director/provider"
	"github.com/tnqbao/gau-site-director/repository"
)

func main() {
	err := godotenv.Load("staging.env")
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(infra)
	svc := provider.InitProvider(cfg, infra, repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run events are published by the workers through Redis
	eventHub := hub.New(middlewares.AllowedOrigins(cfg.EnvConfig))
	go eventHub.Run(ctx)
	go eventHub.Relay(ctx, infra.Redis.SubscribeSiteEvents(ctx))

	ctrl := controller.NewController(cfg, infra, repo, svc, eventHub)
	router := routes.SetupRouter(ctrl)

	srv := &http.Server{
		Addr:    ":" + cfg.EnvConfig.HTTPPort,
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()
	infra.Logger.InfoWithContextf(ctx, "Director API listening on :%s", cfg.EnvConfig.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	infra.Logger.InfoWithContextf(ctx, "Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := infra.RabbitMQ.Close(); err != nil {
		log.Printf("Failed to close RabbitMQ: %v", err)
	}
	if err := infra.Telemetry.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown telemetry: %v", err)
	}
	_ = infra.Logger.Shutdown(shutdownCtx)
}
