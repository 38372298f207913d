package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tnqbao/gau-site-director/config"
	"github.com/tnqbao/gau-site-director/consumer/worker"
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

	// Initialize context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Settle runs a previous worker left behind before taking new ones
	failed, err := svc.Runner.RecoverInterrupted(ctx)
	if err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to recover interrupted operations: %v", err)
	} else {
		infra.Logger.InfoWithContextf(ctx, "Recovered interrupted operations, %d actions marked failed", failed)
	}

	operationConsumer := worker.NewOperationConsumer(infra.RabbitMQ.Channel, infra, svc.Runner, cfg.EnvConfig.Director.WorkerConcurrency)
	if err := operationConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Operation consumer: %v", err)
		log.Fatalf("Failed to start Operation consumer: %v", err)
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	infra.Logger.InfoWithContextf(ctx, "Shutting down consumer...")
	cancel() // Cancel context to stop consumers

	// Operations in flight always run to completion
	operationConsumer.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := infra.RabbitMQ.Close(); err != nil {
		log.Printf("Failed to close RabbitMQ: %v", err)
	}
	if err := infra.Telemetry.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown telemetry: %v", err)
	}
	infra.Logger.InfoWithContextf(ctx, "Consumer exited properly")
	_ = infra.Logger.Shutdown(shutdownCtx)
}
