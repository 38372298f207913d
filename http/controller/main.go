package controller

import (
	"github.com/tnqbao/gau-site-director/config"
	"github.com/tnqbao/gau-site-director/http/hub"
	"github.com/tnqbao/gau-site-director/infra"
	"github.com/tnqbao/gau-site-director/provider"
	"github.com/tnqbao/gau-site-director/repository"
)

type Controller struct {
	Config     *config.Config
	Infra      *infra.Infra
	Repository *repository.Repository
	Provider   *provider.Provider
	Hub        *hub.Hub
}

func NewController(config *config.Config, infra *infra.Infra, repo *repository.Repository, provider *provider.Provider, hub *hub.Hub) *Controller {
	if repo == nil {
		panic("Failed to initialize Repository")
	}
	return &Controller{
		Config:     config,
		Infra:      infra,
		Repository: repo,
		Provider:   provider,
		Hub:        hub,
	}
}
