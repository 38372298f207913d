package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type EnvConfig struct {
	Postgres struct {
		HOST     string
		Database string
		Username string
		Password string
		Port     string
	}
	JWT struct {
		SecretKey string
	}
	CORS struct {
		AllowDomains string
		GlobalDomain string
	}
	Redis struct {
		Password  string
		Database  int
		RedisHost string
		RedisPort string
	}
	RabbitMQ struct {
		Host     string
		Port     string
		Username string
		Password string
	}
	Minio struct {
		Endpoint      string
		RootUser      string
		RootPassword  string
		UseSSL        bool
		ArchiveBucket string
	}
	Grafana struct {
		OTLPEndpoint string
		ServiceName  string
	}
	Environment struct {
		Mode  string
		Group string
	}
	Fleet struct {
		Appservers         []string
		Balancers          []string
		SSLCAFile          string
		SSLCertFile        string
		SSLKeyFile         string
		SharedSecret       string
		PingTimeout        time.Duration
		RequestTimeout     time.Duration
		LongRequestTimeout time.Duration
	}
	Director struct {
		SitesDomain       string
		SiteNameBlocklist []string
		DockerRegistryURL string
		WorkerConcurrency int
		Production        bool
		OperatorEmail     string
	}
	HTTPPort string
}

func LoadEnvConfig() *EnvConfig {
	var config EnvConfig

	// Postgres
	config.Postgres.HOST = os.Getenv("PGPOOL_HOST")
	config.Postgres.Database = os.Getenv("PGPOOL_DB")
	config.Postgres.Username = os.Getenv("PGPOOL_USER")
	config.Postgres.Password = os.Getenv("PGPOOL_PASSWORD")
	config.Postgres.Port = os.Getenv("PGPOOL_PORT")
	if config.Postgres.Port == "" {
		config.Postgres.Port = "5432"
	}

	// JWT
	config.JWT.SecretKey = os.Getenv("JWT_SECRET_KEY")

	config.CORS.AllowDomains = os.Getenv("ALLOWED_DOMAINS")
	config.CORS.GlobalDomain = os.Getenv("GLOBAL_DOMAIN")

	config.Redis.Password = os.Getenv("REDIS_PASSWORD")
	config.Redis.Database, _ = strconv.Atoi(os.Getenv("REDIS_DB"))
	config.Redis.RedisHost = os.Getenv("REDIS_HOST")
	if config.Redis.RedisHost == "" {
		config.Redis.RedisHost = "localhost"
	}
	config.Redis.RedisPort = os.Getenv("REDIS_PORT")
	if config.Redis.RedisPort == "" {
		config.Redis.RedisPort = "6379"
	}

	// RabbitMQ
	config.RabbitMQ.Host = os.Getenv("RABBITMQ_HOST")
	if config.RabbitMQ.Host == "" {
		config.RabbitMQ.Host = "localhost"
	}
	config.RabbitMQ.Port = os.Getenv("RABBITMQ_PORT")
	if config.RabbitMQ.Port == "" {
		config.RabbitMQ.Port = "5672"
	}
	config.RabbitMQ.Username = os.Getenv("RABBITMQ_USER")
	if config.RabbitMQ.Username == "" {
		config.RabbitMQ.Username = "guest"
	}
	config.RabbitMQ.Password = os.Getenv("RABBITMQ_PASSWORD")
	if config.RabbitMQ.Password == "" {
		config.RabbitMQ.Password = "guest"
	}

	// MinIO keeps the archived operation traces
	config.Minio.Endpoint = os.Getenv("MINIO_ENDPOINT")
	config.Minio.RootUser = os.Getenv("MINIO_ROOT_USER")
	config.Minio.RootPassword = os.Getenv("MINIO_ROOT_PASSWORD")
	config.Minio.UseSSL = parseBool(os.Getenv("MINIO_USE_SSL"))
	config.Minio.ArchiveBucket = os.Getenv("OPERATION_ARCHIVE_BUCKET")
	if config.Minio.ArchiveBucket == "" {
		config.Minio.ArchiveBucket = "operation-traces"
	}

	// Grafana/OpenTelemetry
	grafanaEndpoint := os.Getenv("GRAFANA_OTLP_ENDPOINT")
	// Remove protocol for OpenTelemetry client to avoid duplicate protocols
	if strings.HasPrefix(grafanaEndpoint, "https://") {
		config.Grafana.OTLPEndpoint = strings.TrimPrefix(grafanaEndpoint, "https://")
	} else if strings.HasPrefix(grafanaEndpoint, "http://") {
		config.Grafana.OTLPEndpoint = strings.TrimPrefix(grafanaEndpoint, "http://")
	} else {
		config.Grafana.OTLPEndpoint = grafanaEndpoint
	}
	config.Grafana.ServiceName = os.Getenv("SERVICE_NAME")
	if config.Grafana.ServiceName == "" {
		config.Grafana.ServiceName = "gau-site-director"
	}

	config.Environment.Mode = os.Getenv("DEPLOY_ENV")
	if config.Environment.Mode == "" {
		config.Environment.Mode = "development"
	}
	config.Environment.Group = os.Getenv("GROUP_NAME")
	if config.Environment.Group == "" {
		config.Environment.Group = "local"
	}

	// Fleet
	config.Fleet.Appservers = splitList(os.Getenv("APPSERVERS"))
	config.Fleet.Balancers = splitList(os.Getenv("BALANCERS"))
	config.Fleet.SSLCAFile = os.Getenv("FLEET_SSL_CA_FILE")
	config.Fleet.SSLCertFile = os.Getenv("FLEET_SSL_CERT_FILE")
	config.Fleet.SSLKeyFile = os.Getenv("FLEET_SSL_KEY_FILE")
	config.Fleet.SharedSecret = os.Getenv("FLEET_SHARED_SECRET")
	config.Fleet.PingTimeout = parseDuration(os.Getenv("FLEET_PING_TIMEOUT"), time.Second)
	config.Fleet.RequestTimeout = parseDuration(os.Getenv("FLEET_REQUEST_TIMEOUT"), 30*time.Second)
	config.Fleet.LongRequestTimeout = parseDuration(os.Getenv("FLEET_LONG_REQUEST_TIMEOUT"), 10*time.Minute)

	// Director
	config.Director.SitesDomain = os.Getenv("SITES_DOMAIN")
	if config.Director.SitesDomain == "" {
		config.Director.SitesDomain = "sites.localhost"
	}
	config.Director.SiteNameBlocklist = splitList(os.Getenv("SITE_NAME_BLOCKLIST"))
	if len(config.Director.SiteNameBlocklist) == 0 {
		config.Director.SiteNameBlocklist = []string{"www", "api", "admin", "director", "mail", "ftp"}
	}
	config.Director.DockerRegistryURL = os.Getenv("DOCKER_REGISTRY_URL")
	if config.Director.DockerRegistryURL == "" {
		config.Director.DockerRegistryURL = "localhost:4433"
	}
	config.Director.WorkerConcurrency, _ = strconv.Atoi(os.Getenv("WORKER_CONCURRENCY"))
	if config.Director.WorkerConcurrency <= 0 {
		config.Director.WorkerConcurrency = 4
	}
	config.Director.Production = parseBool(os.Getenv("PRODUCTION"))
	config.Director.OperatorEmail = os.Getenv("OPERATOR_EMAIL")

	config.HTTPPort = os.Getenv("HTTP_PORT")
	if config.HTTPPort == "" {
		config.HTTPPort = "8080"
	}

	return &config
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

// parseDuration accepts Go durations ("1500ms") as well as bare seconds ("2").
func parseDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
