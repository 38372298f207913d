package actions

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/infra/fleet"
	"github.com/tnqbao/gau-site-director/pipeline"
)

// UpdateDockerService creates or updates the site's container service.
// Static and disabled sites take the removal path instead.
func (l *Library) UpdateDockerService() pipeline.Step {
	return l.step(SpecUpdateDockerService, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			if !site.IsDynamic() || !site.IsServed() {
				out.Messagef("Site is %s/%s; removing any existing Docker service", site.Type, site.Availability)
				return l.removeDockerService(ctx, out, site, scope)
			}

			data, err := l.siteJSON(site)
			if err != nil {
				return fmt.Errorf("failed to encode site: %w", err)
			}

			out.Message("Updating Docker service")
			node, err := l.postSwarm(ctx, out, scope, fmt.Sprintf("/sites/%d/update-docker-service", site.ID), url.Values{"data": {data}})
			if err != nil {
				out.Messagef("Error updating Docker service: %v", err)
				return err
			}
			out.Messagef("Updated Docker service via appserver %d", node)
			return nil
		})
	})
}

func (l *Library) RestartDockerService() pipeline.Step {
	return l.step(SpecRestartDockerService, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			if !site.IsDynamic() {
				out.Message("Static sites have no Docker service; nothing to restart")
				return nil
			}

			out.Message("Restarting Docker service")
			node, err := l.postSwarm(ctx, out, scope, fmt.Sprintf("/sites/%d/restart-docker-service", site.ID), nil)
			if err != nil {
				out.Messagef("Error restarting Docker service: %v", err)
				return err
			}
			out.Messagef("Restarted Docker service via appserver %d", node)
			return nil
		})
	})
}

func (l *Library) RemoveDockerService() pipeline.Step {
	return l.step(SpecRemoveDockerService, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			return l.removeDockerService(ctx, out, site, scope)
		})
	})
}

func (l *Library) removeDockerService(ctx context.Context, out *pipeline.Emitter, site *entity.Site, scope pipeline.Scope) error {
	out.Message("Removing Docker service")
	node, err := l.postSwarm(ctx, out, scope, fmt.Sprintf("/sites/%d/remove-docker-service", site.ID), nil)
	if err != nil {
		out.Messagef("Error removing Docker service: %v", err)
		return err
	}
	out.Messagef("Removed Docker service via appserver %d", node)
	return nil
}

// postSwarm sends a swarm-wide request through one pingable appserver. Any
// manager can serve it, so a node that is unreachable or times out is
// skipped in favour of the next one; an answer from a node, even an
// error status, ends the attempt.
func (l *Library) postSwarm(ctx context.Context, out *pipeline.Emitter, scope pipeline.Scope, path string, form url.Values) (int, error) {
	first, err := l.pick(scope, ScopePingableAppservers)
	if err != nil {
		return 0, err
	}
	order := []int{first}
	for _, n := range scope.GetInts(ScopePingableAppservers) {
		if n != first {
			order = append(order, n)
		}
	}

	for i, node := range order {
		err = l.post(ctx, l.fleet.Appservers, node, path, form, l.settings.LongRequestTimeout)
		if err == nil || !fleet.IsTransient(err) || i == len(order)-1 {
			return node, err
		}
		out.Messagef("Appserver %d unavailable (%v); trying appserver %d", node, err, order[i+1])
	}
	return first, err
}

// BuildDockerImage builds the site's custom image and remembers the node so
// the push happens where the image now lives.
func (l *Library) BuildDockerImage() pipeline.Step {
	return l.step(SpecBuildDockerImage, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			img := site.DockerImage
			if img == nil || !img.IsCustom {
				out.Message("Site does not use a custom image; nothing to build")
				return nil
			}

			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}
			scope[ScopeDockerBuildNode] = node

			data, err := l.siteJSON(site)
			if err != nil {
				return fmt.Errorf("failed to encode site: %w", err)
			}

			out.Messagef("Building image %s on appserver %d", img.Name, node)
			if err := l.post(ctx, l.fleet.Appservers, node, fmt.Sprintf("/sites/%d/build-docker-image", site.ID), url.Values{"data": {data}}, l.settings.LongRequestTimeout); err != nil {
				out.Messagef("Error building image: %v", err)
				return err
			}
			out.Messagef("Built image %s", img.Name)
			return nil
		})
	})
}

func (l *Library) PushDockerImage() pipeline.Step {
	return l.step(SpecPushDockerImage, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			img := site.DockerImage
			if img == nil || !img.IsCustom {
				out.Message("Site does not use a custom image; nothing to push")
				return nil
			}

			node, ok := scope.GetInt(ScopeDockerBuildNode)
			if !ok {
				var err error
				if node, err = l.pick(scope, ScopePingableAppservers); err != nil {
					return err
				}
			}

			out.Messagef("Pushing image %s to %s from appserver %d", img.Name, l.registryName(img), node)
			if err := l.post(ctx, l.fleet.Appservers, node, fmt.Sprintf("/sites/%d/push-docker-image", site.ID), url.Values{"name": {img.Name}}, l.settings.LongRequestTimeout); err != nil {
				out.Messagef("Error pushing image: %v", err)
				return err
			}
			out.Message("Pushed image")
			return nil
		})
	})
}

// RemoveDockerImage drops the local copies of a custom image and its
// registry entry.
func (l *Library) RemoveDockerImage() pipeline.Step {
	return l.step(SpecRemoveDockerImage, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			img := site.DockerImage
			if img == nil || !img.IsCustom {
				out.Message("Site does not use a custom image; nothing to remove")
				return nil
			}

			form := url.Values{"name": {img.Name}}
			for _, i := range scope.GetInts(ScopePingableAppservers) {
				out.Messagef("Removing image %s from appserver %d", img.Name, i)
				if err := l.post(ctx, l.fleet.Appservers, i, "/sites/remove-docker-image", form, l.settings.LongRequestTimeout); err != nil {
					out.Messagef("Error removing image from appserver %d: %v", i, err)
					return err
				}
			}

			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}
			out.Messagef("Removing image %s from the registry", img.Name)
			if err := l.post(ctx, l.fleet.Appservers, node, "/sites/remove-registry-image", form, l.settings.LongRequestTimeout); err != nil {
				out.Messagef("Error removing registry image: %v", err)
				return err
			}
			return nil
		})
	})
}
