package actions

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/pipeline"
)

// UpdateBalancerNginx pushes the site's config to every pingable balancer
// and reloads each one.
func (l *Library) UpdateBalancerNginx() pipeline.Step {
	return l.step(SpecUpdateBalancerNginx, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			nodes := scope.GetInts(ScopePingableBalancers)
			if len(nodes) == 0 {
				return ErrNoPingableBalancers
			}
			data, err := l.siteJSON(site)
			if err != nil {
				return fmt.Errorf("failed to encode site: %w", err)
			}

			for _, i := range nodes {
				out.Messagef("Updating Nginx config on balancer %d", i)
				if err := l.post(ctx, l.fleet.Balancers, i, fmt.Sprintf("/sites/%d/update-nginx", site.ID), url.Values{"data": {data}}, l.settings.RequestTimeout); err != nil {
					out.Messagef("Error updating Nginx config on balancer %d: %v", i, err)
					return err
				}
				if err := l.post(ctx, l.fleet.Balancers, i, "/sites/reload-nginx", nil, l.settings.RequestTimeout); err != nil {
					out.Messagef("Error reloading Nginx config on balancer %d: %v", i, err)
					return err
				}
			}
			out.Message("Updated Nginx config on all pingable balancers")
			return nil
		})
	})
}

func (l *Library) RemoveBalancerNginx() pipeline.Step {
	return l.step(SpecRemoveBalancerNginx, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			nodes := scope.GetInts(ScopePingableBalancers)
			if len(nodes) == 0 {
				return ErrNoPingableBalancers
			}

			for _, i := range nodes {
				out.Messagef("Removing Nginx config from balancer %d", i)
				if err := l.post(ctx, l.fleet.Balancers, i, fmt.Sprintf("/sites/%d/remove-nginx", site.ID), nil, l.settings.RequestTimeout); err != nil {
					out.Messagef("Error removing Nginx config on balancer %d: %v", i, err)
					return err
				}
				if err := l.post(ctx, l.fleet.Balancers, i, "/sites/reload-nginx", nil, l.settings.RequestTimeout); err != nil {
					out.Messagef("Error reloading Nginx config on balancer %d: %v", i, err)
					return err
				}
			}
			return nil
		})
	})
}

// SetupBalancerCertbot requests certificates for custom domains. Only
// production deployments can pass ACME validation.
func (l *Library) SetupBalancerCertbot() pipeline.Step {
	return l.step(SpecSetupBalancerCertbot, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			if !l.settings.Production {
				out.Message("Not in production; skipping certificate setup")
				return nil
			}
			if len(site.CustomDomains) == 0 {
				out.Message("Site has no custom domains; no certificates needed")
				return nil
			}

			node, err := l.pick(scope, ScopePingableBalancers)
			if err != nil {
				return err
			}

			out.Messagef("Requesting certificates for %s via balancer %d", strings.Join(site.CustomDomains, ", "), node)
			form := url.Values{"domains": site.CustomDomains}
			if err := l.post(ctx, l.fleet.Balancers, node, fmt.Sprintf("/sites/%d/certbot-setup", site.ID), form, l.settings.LongRequestTimeout); err != nil {
				out.Messagef("Error setting up certificates: %v", err)
				return err
			}
			out.Message("Certificates ready")
			return nil
		})
	})
}

func (l *Library) RemoveBalancerCertbot() pipeline.Step {
	return l.step(SpecRemoveBalancerCertbot, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			if !l.settings.Production {
				out.Message("Not in production; skipping certificate removal")
				return nil
			}
			if len(site.CustomDomains) == 0 {
				out.Message("Site has no custom domains; no certificates to remove")
				return nil
			}

			node, err := l.pick(scope, ScopePingableBalancers)
			if err != nil {
				return err
			}

			out.Messagef("Removing certificates via balancer %d", node)
			form := url.Values{"domains": site.CustomDomains}
			if err := l.post(ctx, l.fleet.Balancers, node, fmt.Sprintf("/sites/%d/certbot-remove", site.ID), form, l.settings.LongRequestTimeout); err != nil {
				out.Messagef("Error removing certificates: %v", err)
				return err
			}
			return nil
		})
	})
}
