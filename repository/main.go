package repository

import (
	"github.com/tnqbao/gau-site-director/infra"
	"gorm.io/gorm"
)

type Repository struct {
	SiteRepo        *SiteRepository
	OperationRepo   *OperationRepository
	ActionRepo      *ActionRepository
	DatabaseRepo    *DatabaseRepository
	DockerImageRepo *DockerImageRepository
	UserRepo        *UserRepository
}

var repository *Repository

func InitRepository(infra *infra.Infra) *Repository {
	repository = NewRepository(infra.Postgres.DB)
	return repository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		SiteRepo:        NewSiteRepository(db),
		OperationRepo:   NewOperationRepository(db),
		ActionRepo:      NewActionRepository(db),
		DatabaseRepo:    NewDatabaseRepository(db),
		DockerImageRepo: NewDockerImageRepository(db),
		UserRepo:        NewUserRepository(db),
	}
}

func GetRepository() *Repository {
	if repository == nil {
		panic("repository not initialized")
	}
	return repository
}

func (r *Repository) BeginTransaction(db *gorm.DB) *gorm.DB {
	return db.Begin()
}

func (r *Repository) WithTransaction(tx *gorm.DB) *Repository {
	return NewRepository(tx)
}
