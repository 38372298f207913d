package operation

import (
	"context"
	"fmt"

	"github.com/tnqbao/gau-site-director/actions"
	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/pipeline"
)

// Builder turns an operation into its ordered action list.
type Builder struct {
	lib   *actions.Library
	store pipeline.Store
}

func NewBuilder(lib *actions.Library, store pipeline.Store) *Builder {
	return &Builder{lib: lib, store: store}
}

// Build registers the actions for op (persisting them) and returns the
// pipeline with a scope seeded from the operation params.
func (b *Builder) Build(ctx context.Context, op *entity.Operation, site *entity.Site, opts ...pipeline.Option) (*pipeline.Pipeline, pipeline.Scope, error) {
	steps, err := b.Steps(op, site)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(op, b.store, opts...)
	if err := p.Register(ctx, steps...); err != nil {
		return nil, nil, fmt.Errorf("failed to register actions: %w", err)
	}

	scope := pipeline.Scope{}
	for k, v := range op.Params {
		scope[k] = v
	}
	return p, scope, nil
}

// Steps lists the actions of an operation type in execution order. Every
// list starts by probing the appservers.
func (b *Builder) Steps(op *entity.Operation, site *entity.Site) ([]pipeline.Step, error) {
	l := b.lib
	steps := []pipeline.Step{l.FindPingableAppservers()}
	add := func(s ...pipeline.Step) { steps = append(steps, s...) }

	balancerConfig := func(certbot bool) {
		if !l.HasBalancers() {
			return
		}
		add(l.FindPingableBalancers(), l.UpdateBalancerNginx())
		if certbot {
			add(l.SetupBalancerCertbot())
		}
	}
	dockerIfDynamic := func() {
		if site.IsDynamic() {
			add(l.UpdateDockerService())
		}
	}

	switch op.Type {
	case entity.OperationCreateSite:
		add(l.EnsureSiteDirectories(), l.UpdateAppserverNginx())
		if site.IsDynamic() {
			add(l.WriteRunScript(), l.UpdateDockerService())
		}
		balancerConfig(false)

	case entity.OperationRenameSite:
		add(l.ChangeSiteName(), l.UpdateAppserverNginx())
		dockerIfDynamic()
		balancerConfig(false)

	case entity.OperationEditSiteNames:
		add(l.UpdateSiteDomains(), l.UpdateAppserverNginx())
		balancerConfig(true)

	case entity.OperationChangeSiteType:
		add(l.ChangeSiteType(), l.UpdateAppserverNginx())
		if newType, _ := op.Params[actions.ScopeNewType].(string); entity.SiteType(newType) == entity.SiteTypeDynamic {
			add(l.WriteRunScript())
		}
		// Switching to static tears the service down; to dynamic creates it.
		add(l.UpdateDockerService())

	case entity.OperationRegenNginxConfig:
		add(l.UpdateAppserverNginx())
		balancerConfig(false)

	case entity.OperationCreateSiteDatabase:
		add(l.CreateSiteDatabase())
		dockerIfDynamic()

	case entity.OperationDeleteSiteDatabase:
		add(l.DeleteSiteDatabase())
		dockerIfDynamic()

	case entity.OperationRegenSiteSecrets:
		if site.HasDatabase() {
			add(l.RegenDatabasePassword())
		}
		dockerIfDynamic()

	case entity.OperationUpdateResourceLimits:
		add(l.UpdateResourceLimits())
		dockerIfDynamic()

	case entity.OperationUpdateDockerImage:
		add(l.SetDockerImage(), l.BuildDockerImage(), l.PushDockerImage())
		dockerIfDynamic()

	case entity.OperationDeleteSite:
		add(
			l.RemoveDockerService(),
			l.RemoveDockerImage(),
			l.DeleteSiteDatabase(),
			l.RemoveAppserverNginx(),
		)
		if l.HasBalancers() {
			add(l.FindPingableBalancers(), l.RemoveBalancerNginx(), l.RemoveBalancerCertbot())
		}
		add(l.DeleteSiteFiles(), l.DeleteSiteRecord())

	case entity.OperationRestartSite:
		add(l.RestartDockerService())

	case entity.OperationFixSite:
		add(l.EnsureSiteDirectories(), l.UpdateAppserverNginx())
		if site.IsDynamic() {
			add(l.BuildDockerImage(), l.PushDockerImage(), l.WriteRunScript(), l.UpdateDockerService())
		}
		balancerConfig(true)

	default:
		return nil, fmt.Errorf("unknown operation type %q", op.Type)
	}

	return steps, nil
}
