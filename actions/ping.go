package actions

import (
	"context"
	"fmt"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/infra/fleet"
	"github.com/tnqbao/gau-site-director/pipeline"
)

func (l *Library) FindPingableAppservers() pipeline.Step {
	return l.step(SpecFindPingableAppservers, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return l.findPingable(ctx, l.fleet.Appservers, scope, ScopePingableAppservers, ErrNoPingableAppservers)
	})
}

func (l *Library) FindPingableBalancers() pipeline.Step {
	return l.step(SpecFindPingableBalancers, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return l.findPingable(ctx, l.fleet.Balancers, scope, ScopePingableBalancers, ErrNoPingableBalancers)
	})
}

func (l *Library) findPingable(ctx context.Context, client *fleet.Client, scope pipeline.Scope, key string, none error) pipeline.Sequence {
	return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
		out.Messagef("Pinging %d %s", client.Len(), client.Pool())

		reachable := []int{}
		for i := range client.Reachable(ctx, l.settings.PingTimeout) {
			reachable = append(reachable, i)
		}
		scope[key] = reachable

		out.Messagef("Pingable %s: %v", client.Pool(), reachable)
		if len(reachable) == 0 {
			return fmt.Errorf("%w (%d configured)", none, client.Len())
		}
		return nil
	})
}
