package actions

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/pipeline"
)

const defaultRunScript = `#!/bin/sh
# Start your application here. This file is run inside the site container.
echo "Edit run.sh to start your application."
exec sleep infinity
`

func (l *Library) EnsureSiteDirectories() pipeline.Step {
	return l.step(SpecEnsureSiteDirectories, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}

			out.Messagef("Creating site directories via appserver %d", node)
			if err := l.post(ctx, l.fleet.Appservers, node, fmt.Sprintf("/sites/%d/ensure-directories", site.ID), nil, l.settings.RequestTimeout); err != nil {
				out.Messagef("Error creating directories: %v", err)
				return err
			}
			out.Message("Site directories exist")
			return nil
		})
	})
}

// WriteRunScript never overwrites a run.sh the site already has.
func (l *Library) WriteRunScript() pipeline.Step {
	return l.step(SpecWriteRunScript, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			if !site.IsDynamic() {
				out.Message("Static sites do not need run.sh")
				return nil
			}

			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}

			form := url.Values{
				"path":            {"run.sh"},
				"contents":        {defaultRunScript},
				"mode":            {"0755"},
				"only_if_missing": {"true"},
			}
			out.Messagef("Writing default run.sh via appserver %d", node)
			if err := l.post(ctx, l.fleet.Appservers, node, fmt.Sprintf("/sites/%d/files/write", site.ID), form, l.settings.RequestTimeout); err != nil {
				out.Messagef("Error writing run.sh: %v", err)
				return err
			}
			return nil
		})
	})
}

func (l *Library) DeleteSiteFiles() pipeline.Step {
	return l.step(SpecDeleteSiteFiles, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}

			out.Messagef("Deleting all site files via appserver %d", node)
			if err := l.post(ctx, l.fleet.Appservers, node, fmt.Sprintf("/sites/%d/remove-all-site-files-dangerous", site.ID), nil, l.settings.LongRequestTimeout); err != nil {
				out.Messagef("Error deleting site files: %v", err)
				return err
			}
			out.Message("Deleted site files")
			return nil
		})
	})
}
