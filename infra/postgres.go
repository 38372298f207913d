package infra

import (
	"fmt"
	"log"

	"github.com/tnqbao/gau-site-director/config"
	"github.com/tnqbao/gau-site-director/entity"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type PostgresClient struct {
	DB *gorm.DB
}

func InitPostgresClient(cfg *config.EnvConfig) *PostgresClient {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.Postgres.HOST,
		cfg.Postgres.Username,
		cfg.Postgres.Password,
		cfg.Postgres.Database,
		cfg.Postgres.Port,
	)

	// TranslateError turns unique violations into gorm.ErrDuplicatedKey; the
	// one-operation-per-site index relies on it.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Postgres connection failed: %v", err)
	}

	if err := db.AutoMigrate(
		&entity.User{},
		&entity.DockerImage{},
		&entity.DatabaseHost{},
		&entity.Site{},
		&entity.Database{},
		&entity.Operation{},
		&entity.Action{},
	); err != nil {
		log.Fatalf("Postgres migration failed: %v", err)
	}

	log.Println("Connected to Postgres:", cfg.Postgres.Port+" on "+cfg.Postgres.HOST)

	return &PostgresClient{DB: db}
}
