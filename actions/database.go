package actions

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/pipeline"
)

// CreateSiteDatabase records the database (with a fresh password) locally
// before asking an appserver to create it, so a retry reuses the same row.
func (l *Library) CreateSiteDatabase() pipeline.Step {
	return l.step(SpecCreateSiteDatabase, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			if site.Database == nil {
				dbms := entity.DBMSPostgres
				if raw, ok := scope.GetString(ScopeDBMS); ok && raw != "" {
					dbms = entity.DBMS(raw)
				}

				host, err := l.databases.FindHostByDBMS(ctx, dbms)
				if err != nil {
					return fmt.Errorf("no %s database host: %w", dbms, err)
				}
				password, err := l.password()
				if err != nil {
					return fmt.Errorf("failed to generate database password: %w", err)
				}

				db := &entity.Database{SiteID: site.ID, HostID: host.ID, Host: host, Password: password}
				if err := l.databases.Create(ctx, db); err != nil {
					return fmt.Errorf("failed to create database record: %w", err)
				}
				site.Database = db
				out.Messagef("Created %s database record %s on %s", dbms, db.Name(), host.Hostname)
			} else {
				out.Messagef("Database record %s already exists", site.Database.Name())
			}

			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}
			data, err := databaseJSON(site.Database)
			if err != nil {
				return fmt.Errorf("failed to encode database: %w", err)
			}

			out.Messagef("Creating database via appserver %d", node)
			if err := l.post(ctx, l.fleet.Appservers, node, "/sites/databases/create", url.Values{"data": {data}}, l.settings.RequestTimeout); err != nil {
				out.Messagef("Error creating database: %v", err)
				return err
			}
			out.Message("Created database")
			return nil
		})
	})
}

// DeleteSiteDatabase succeeds without doing anything when the site has no
// database.
func (l *Library) DeleteSiteDatabase() pipeline.Step {
	return l.step(SpecDeleteSiteDatabase, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			db := site.Database
			if db == nil {
				out.Message("Site has no database; nothing to delete")
				return nil
			}

			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}
			data, err := databaseJSON(db)
			if err != nil {
				return fmt.Errorf("failed to encode database: %w", err)
			}

			out.Messagef("Dropping database %s via appserver %d", db.Name(), node)
			if err := l.post(ctx, l.fleet.Appservers, node, "/sites/databases/delete", url.Values{"data": {data}}, l.settings.RequestTimeout); err != nil {
				out.Messagef("Error dropping database: %v", err)
				return err
			}

			if err := l.databases.Delete(ctx, db); err != nil {
				return fmt.Errorf("failed to delete database record: %w", err)
			}
			site.Database = nil
			out.Message("Deleted database record")
			return nil
		})
	})
}

func (l *Library) RegenDatabasePassword() pipeline.Step {
	return l.step(SpecRegenDatabasePassword, func(ctx context.Context, site *entity.Site, scope pipeline.Scope) pipeline.Sequence {
		return pipeline.Stream(ctx, func(ctx context.Context, out *pipeline.Emitter) error {
			db := site.Database
			if db == nil {
				out.Message("Site has no database; no password to regenerate")
				return nil
			}

			password, err := l.password()
			if err != nil {
				return fmt.Errorf("failed to generate database password: %w", err)
			}
			db.Password = password
			if err := l.databases.UpdatePassword(ctx, db); err != nil {
				return fmt.Errorf("failed to store database password: %w", err)
			}
			out.Message("Stored new database password")

			node, err := l.pick(scope, ScopePingableAppservers)
			if err != nil {
				return err
			}
			data, err := databaseJSON(db)
			if err != nil {
				return fmt.Errorf("failed to encode database: %w", err)
			}

			out.Messagef("Updating database password via appserver %d", node)
			if err := l.post(ctx, l.fleet.Appservers, node, "/sites/databases/update-password", url.Values{"data": {data}}, l.settings.RequestTimeout); err != nil {
				out.Messagef("Error updating database password: %v", err)
				return err
			}
			return nil
		})
	})
}
