package actions

import "github.com/tnqbao/gau-site-director/pipeline"

// Every action the library offers. UserRecoverable marks failures a site
// member may clear without an administrator.
var (
	SpecFindPingableAppservers = pipeline.ActionSpec{
		Slug:              "find_pingable_appservers",
		Name:              "Find pingable appservers",
		EquivalentCommand: "curl https://<appserver>/ping",
		UserRecoverable:   true,
	}
	SpecFindPingableBalancers = pipeline.ActionSpec{
		Slug:              "find_pingable_balancers",
		Name:              "Find pingable balancers",
		EquivalentCommand: "curl https://<balancer>/ping",
		UserRecoverable:   true,
	}
	SpecEnsureSiteDirectories = pipeline.ActionSpec{
		Slug:              "ensure_site_directories",
		Name:              "Ensure site directories exist",
		EquivalentCommand: "mkdir -p /data/sites/<name>/{public,private}",
	}
	SpecUpdateAppserverNginx = pipeline.ActionSpec{
		Slug:              "update_appserver_nginx_config",
		Name:              "Update appserver Nginx config",
		EquivalentCommand: "nginx -t && nginx -s reload",
		UserRecoverable:   true,
	}
	SpecRemoveAppserverNginx = pipeline.ActionSpec{
		Slug:              "remove_appserver_nginx_config",
		Name:              "Remove appserver Nginx config",
		EquivalentCommand: "rm /etc/nginx/director.d/<id>.conf && nginx -s reload",
	}
	SpecUpdateDockerService = pipeline.ActionSpec{
		Slug:              "update_docker_service",
		Name:              "Create or update Docker service",
		EquivalentCommand: "docker service update site_<id> || docker service create --name=site_<id> ...",
		UserRecoverable:   true,
	}
	SpecRestartDockerService = pipeline.ActionSpec{
		Slug:              "restart_docker_service",
		Name:              "Restart Docker service",
		EquivalentCommand: "docker service update --force site_<id>",
		UserRecoverable:   true,
	}
	SpecRemoveDockerService = pipeline.ActionSpec{
		Slug:              "remove_docker_service",
		Name:              "Remove Docker service",
		EquivalentCommand: "docker service rm site_<id>",
	}
	SpecBuildDockerImage = pipeline.ActionSpec{
		Slug:              "build_docker_image",
		Name:              "Build Docker image",
		EquivalentCommand: "docker build -t <image> .",
		UserRecoverable:   true,
	}
	SpecPushDockerImage = pipeline.ActionSpec{
		Slug:              "push_docker_image",
		Name:              "Push Docker image",
		EquivalentCommand: "docker push <registry>/<image>",
		UserRecoverable:   true,
	}
	SpecRemoveDockerImage = pipeline.ActionSpec{
		Slug:              "remove_docker_image",
		Name:              "Remove Docker image",
		EquivalentCommand: "docker image rm <image>",
	}
	SpecWriteRunScript = pipeline.ActionSpec{
		Slug:              "write_run_script",
		Name:              "Write default run.sh",
		EquivalentCommand: "test -e run.sh || echo '...' > run.sh",
	}
	SpecCreateSiteDatabase = pipeline.ActionSpec{
		Slug:              "create_site_database",
		Name:              "Create site database",
		EquivalentCommand: "CREATE USER site_<id>; CREATE DATABASE site_<id> OWNER site_<id>;",
	}
	SpecDeleteSiteDatabase = pipeline.ActionSpec{
		Slug:              "delete_site_database",
		Name:              "Delete site database",
		EquivalentCommand: "DROP DATABASE site_<id>; DROP USER site_<id>;",
	}
	SpecRegenDatabasePassword = pipeline.ActionSpec{
		Slug:              "regen_database_password",
		Name:              "Regenerate database password",
		EquivalentCommand: "ALTER USER site_<id> WITH PASSWORD '<new>';",
	}
	SpecChangeSiteName = pipeline.ActionSpec{
		Slug:              "change_site_name",
		Name:              "Change site name",
		EquivalentCommand: "UPDATE sites SET name = <new> WHERE id = <id>;",
	}
	SpecChangeSiteType = pipeline.ActionSpec{
		Slug:              "change_site_type",
		Name:              "Change site type",
		EquivalentCommand: "UPDATE sites SET type = <new> WHERE id = <id>;",
	}
	SpecUpdateSiteDomains = pipeline.ActionSpec{
		Slug:              "update_site_domains",
		Name:              "Update custom domains",
		EquivalentCommand: "UPDATE sites SET custom_domains = <domains> WHERE id = <id>;",
	}
	SpecUpdateResourceLimits = pipeline.ActionSpec{
		Slug:              "update_resource_limits",
		Name:              "Update resource limits",
		EquivalentCommand: "UPDATE sites SET limit_cpus = <cpus>, limit_memory_mb = <mb> WHERE id = <id>;",
	}
	SpecSetDockerImage = pipeline.ActionSpec{
		Slug:              "set_docker_image",
		Name:              "Select Docker image",
		EquivalentCommand: "UPDATE sites SET docker_image_id = <image> WHERE id = <id>;",
	}
	SpecUpdateBalancerNginx = pipeline.ActionSpec{
		Slug:              "update_balancer_nginx_config",
		Name:              "Update balancer Nginx config",
		EquivalentCommand: "nginx -t && nginx -s reload",
		UserRecoverable:   true,
	}
	SpecRemoveBalancerNginx = pipeline.ActionSpec{
		Slug:              "remove_balancer_nginx_config",
		Name:              "Remove balancer Nginx config",
		EquivalentCommand: "rm /etc/nginx/director.d/<id>.conf && nginx -s reload",
	}
	SpecSetupBalancerCertbot = pipeline.ActionSpec{
		Slug:              "setup_balancer_certbot",
		Name:              "Request TLS certificates",
		EquivalentCommand: "certbot certonly --webroot -d <domain> ...",
	}
	SpecRemoveBalancerCertbot = pipeline.ActionSpec{
		Slug:              "remove_balancer_certbot",
		Name:              "Remove TLS certificates",
		EquivalentCommand: "certbot delete --cert-name <domain>",
	}
	SpecDeleteSiteFiles = pipeline.ActionSpec{
		Slug:              "delete_site_files",
		Name:              "Delete site files",
		EquivalentCommand: "rm -rf /data/sites/<name>",
	}
	SpecDeleteSiteRecord = pipeline.ActionSpec{
		Slug:              "delete_site_record",
		Name:              "Delete site record",
		EquivalentCommand: "DELETE FROM sites WHERE id = <id>;",
	}
)
