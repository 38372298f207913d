package provider

import (
	"time"

	"github.com/tnqbao/gau-site-director/actions"
	"github.com/tnqbao/gau-site-director/config"
	"github.com/tnqbao/gau-site-director/infra"
	"github.com/tnqbao/gau-site-director/operation"
	"github.com/tnqbao/gau-site-director/repository"
)

const (
	// Queued operations older than this are republished on worker start.
	requeueAfter = 5 * time.Minute
	// A worker that stops refreshing its operation lease loses it after this.
	leaseTTL = 30 * time.Second
)

type Provider struct {
	Library   *actions.Library
	Builder   *operation.Builder
	Scheduler *operation.Scheduler
	Runner    *operation.Runner
}

var provider *Provider

func InitProvider(cfg *config.Config, infra *infra.Infra, repo *repository.Repository) *Provider {
	if provider != nil {
		return provider
	}
	env := cfg.EnvConfig

	library := actions.NewLibrary(
		infra.Fleet,
		repo.SiteRepo,
		repo.DatabaseRepo,
		repo.DockerImageRepo,
		actions.Settings{
			SitesDomain:        env.Director.SitesDomain,
			RegistryURL:        env.Director.DockerRegistryURL,
			Production:         env.Director.Production,
			PingTimeout:        env.Fleet.PingTimeout,
			RequestTimeout:     env.Fleet.RequestTimeout,
			LongRequestTimeout: env.Fleet.LongRequestTimeout,
		},
	)

	builder := operation.NewBuilder(library, repo.PipelineStore())
	validator := operation.NewValidator(repo.SiteRepo, repo.DockerImageRepo, env.Director.SiteNameBlocklist)
	scheduler := operation.NewScheduler(repo.OperationRepo, validator, infra.Produce.OperationService, infra.Logger)
	runner := operation.NewRunner(repo.OperationRepo, repo.ActionRepo, builder, infra.Logger,
		operation.WithNotifier(infra.Redis),
		operation.WithArchiver(infra.Minio),
		operation.WithAlerter(infra.Produce.EmailService, env.Director.OperatorEmail),
		operation.WithRequeue(infra.Produce.OperationService, requeueAfter),
		operation.WithLeases(infra.Redis, leaseTTL),
	)

	provider = &Provider{
		Library:   library,
		Builder:   builder,
		Scheduler: scheduler,
		Runner:    runner,
	}
	return provider
}

func GetProvider() *Provider {
	if provider == nil {
		panic("Provider not initialized")
	}
	return provider
}
