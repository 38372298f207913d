package actions

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/pipeline"
)

func (l *Library) ChangeSiteName() pipeline.Step {
	return l.step(SpecChangeSiteName, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			name, ok := scope.GetString(ScopeNewName)
			if !ok || name == "" {
				return fmt.Errorf("%w: %s", ErrMissingScopeValue, ScopeNewName)
			}

			out.BeforeState(site.Name)
			if site.Name == name {
				out.Message("Site already has this name")
				out.AfterState(name)
				return nil
			}

			old := site.Name
			site.Name = name
			if err := l.sites.UpdateFields(ctx, site, "name"); err != nil {
				site.Name = old
				return fmt.Errorf("failed to rename site: %w", err)
			}
			out.AfterState(site.Name)
			out.Messagef("Renamed site from %s to %s", old, name)
			return nil
		})
	})
}

func (l *Library) ChangeSiteType() pipeline.Step {
	return l.step(SpecChangeSiteType, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			raw, _ := scope.GetString(ScopeNewType)
			newType := entity.SiteType(raw)
			if !newType.Valid() {
				return fmt.Errorf("%w: %s", ErrMissingScopeValue, ScopeNewType)
			}

			out.BeforeState(string(site.Type))
			if site.Type == newType {
				out.Message("Site already has this type")
				out.AfterState(string(newType))
				return nil
			}

			old := site.Type
			site.Type = newType
			if err := l.sites.UpdateFields(ctx, site, "type"); err != nil {
				site.Type = old
				return fmt.Errorf("failed to change site type: %w", err)
			}
			out.AfterState(string(site.Type))
			return nil
		})
	})
}

func (l *Library) UpdateSiteDomains() pipeline.Step {
	return l.step(SpecUpdateSiteDomains, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			if _, ok := scope[ScopeDomains]; !ok {
				return fmt.Errorf("%w: %s", ErrMissingScopeValue, ScopeDomains)
			}
			domains := slices.Clone(scope.GetStrings(ScopeDomains))
			for i, d := range domains {
				domains[i] = strings.ToLower(strings.TrimSpace(d))
			}
			slices.Sort(domains)
			domains = slices.Compact(domains)

			out.BeforeState(strings.Join(site.CustomDomains, ", "))
			old := site.CustomDomains
			site.CustomDomains = domains
			if err := l.sites.UpdateFields(ctx, site, "custom_domains"); err != nil {
				site.CustomDomains = old
				return fmt.Errorf("failed to update domains: %w", err)
			}
			out.AfterState(strings.Join(site.CustomDomains, ", "))
			return nil
		})
	})
}

func (l *Library) UpdateResourceLimits() pipeline.Step {
	return l.step(SpecUpdateResourceLimits, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			cpus, ok := scope.GetFloat(ScopeCPUs)
			if !ok {
				return fmt.Errorf("%w: %s", ErrMissingScopeValue, ScopeCPUs)
			}
			memory, ok := scope.GetInt(ScopeMemoryMB)
			if !ok {
				return fmt.Errorf("%w: %s", ErrMissingScopeValue, ScopeMemoryMB)
			}

			out.BeforeState(site.Limits.String())
			old := site.Limits
			site.Limits = entity.ResourceLimits{CPUs: cpus, MemoryMB: memory}
			if err := l.sites.UpdateFields(ctx, site, "limit_cpus", "limit_memory_mb"); err != nil {
				site.Limits = old
				return fmt.Errorf("failed to update resource limits: %w", err)
			}
			out.AfterState(site.Limits.String())
			return nil
		})
	})
}

func (l *Library) SetDockerImage() pipeline.Step {
	return l.step(SpecSetDockerImage, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			name, ok := scope.GetString(ScopeDockerImage)
			if !ok || name == "" {
				return fmt.Errorf("%w: %s", ErrMissingScopeValue, ScopeDockerImage)
			}

			if site.DockerImage != nil {
				out.BeforeState(site.DockerImage.Name)
			} else {
				out.BeforeState("")
			}

			img, err := l.images.FindByName(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to find image %s: %w", name, err)
			}

			oldID, oldImage := site.DockerImageID, site.DockerImage
			site.DockerImageID = &img.ID
			site.DockerImage = img
			if err := l.sites.UpdateFields(ctx, site, "docker_image_id"); err != nil {
				site.DockerImageID, site.DockerImage = oldID, oldImage
				return fmt.Errorf("failed to set image: %w", err)
			}
			out.AfterState(img.Name)
			return nil
		})
	})
}

func (l *Library) DeleteSiteRecord() pipeline.Step {
	return l.step(SpecDeleteSiteRecord, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			if err := l.sites.Delete(ctx, site); err != nil {
				return fmt.Errorf("failed to delete site record: %w", err)
			}
			out.Messagef("Deleted site %s", site.Name)
			return nil
		})
	})
}
