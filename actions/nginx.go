package actions

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/infra/fleet"
	"github.com/tnqbao/gau-site-director/pipeline"
)

func (l *Library) post(ctx context.Context, client *fleet.Client, node int, path string, form url.Values, timeout time.Duration) error {
	_, err := client.Request(ctx, fleet.Index(node), path, fleet.RequestOptions{
		Method:  http.MethodPost,
		Form:    form,
		Timeout: timeout,
	})
	return err
}

// UpdateAppserverNginx pushes the vhost to one appserver and reloads every
// pingable appserver. Any node that cannot take the new config gets the
// site disabled instead of serving a broken config.
func (l *Library) UpdateAppserverNginx() pipeline.Step {
	return l.step(SpecUpdateAppserverNginx, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			appservers := l.fleet.Appservers
			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}

			data, err := l.siteJSON(site)
			if err != nil {
				return fmt.Errorf("failed to encode site: %w", err)
			}

			out.Messagef("Pushing new Nginx configuration to appserver %d", node)
			err = l.post(ctx, appservers, node, fmt.Sprintf("/sites/%d/update-nginx", site.ID), url.Values{"data": {data}}, l.settings.RequestTimeout)
			if err != nil {
				out.Messagef("Error updating Nginx config on appserver %d: %v", node, err)
				l.disableAppserverNginx(ctx, out, site, node)
				return err
			}

			out.Message("Reloading Nginx config on all pingable appservers")
			var firstErr error
			for _, i := range scope.GetInts(ScopePingableAppservers) {
				if err := l.post(ctx, appservers, i, "/sites/reload-nginx", nil, l.settings.RequestTimeout); err != nil {
					out.Messagef("Error reloading Nginx config on appserver %d: %v", i, err)
					l.disableAppserverNginx(ctx, out, site, i)
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				out.Messagef("Reloaded Nginx config on appserver %d", i)
			}
			return firstErr
		})
	})
}

func (l *Library) disableAppserverNginx(ctx context.Context, out *pipeline.Emitter, site *entity.Site, node int) {
	out.Messagef("Disabling site Nginx config on appserver %d", node)
	if err := l.post(ctx, l.fleet.Appservers, node, fmt.Sprintf("/sites/%d/disable-nginx", site.ID), nil, l.settings.RequestTimeout); err != nil {
		out.Messagef("Error disabling site Nginx config on appserver %d: %v", node, err)
	}
}

func (l *Library) RemoveAppserverNginx() pipeline.Step {
	return l.step(SpecRemoveAppserverNginx, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}

			out.Messagef("Removing Nginx configuration via appserver %d", node)
			if err := l.post(ctx, l.fleet.Appservers, node, fmt.Sprintf("/sites/%d/remove-nginx", site.ID), nil, l.settings.RequestTimeout); err != nil {
				out.Messagef("Error removing Nginx config: %v", err)
				return err
			}

			for _, i := range scope.GetInts(ScopePingableAppservers) {
				if err := l.post(ctx, l.fleet.Appservers, i, "/sites/reload-nginx", nil, l.settings.RequestTimeout); err != nil {
					out.Messagef("Error reloading Nginx config on appserver %d: %v", i, err)
					return err
				}
			}
			out.Message("Reloaded Nginx config on all pingable appservers")
			return nil
		})
	})
}
