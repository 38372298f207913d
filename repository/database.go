package repository

import (
	"context"

	"github.com/tnqbao/gau-site-director/entity"
	"gorm.io/gorm"
)

type DatabaseRepository struct {
	db *gorm.DB
}

func NewDatabaseRepository(db *gorm.DB) *DatabaseRepository {
	return &DatabaseRepository{db: db}
}

// FindHostByDBMS picks the host with the fewest site databases.
func (r *DatabaseRepository) FindHostByDBMS(ctx context.Context, dbms entity.DBMS) (*entity.DatabaseHost, error) {
	var host entity.DatabaseHost
	err := r.db.WithContext(ctx).
		Model(&entity.DatabaseHost{}).
		Select("database_hosts.*").
		Joins("LEFT JOIN databases ON databases.host_id = database_hosts.id").
		Where("database_hosts.dbms = ?", dbms).
		Group("database_hosts.id").
		Order("COUNT(databases.id) ASC, database_hosts.id ASC").
		First(&host).Error
	if err != nil {
		return nil, err
	}
	return &host, nil
}

func (r *DatabaseRepository) FindBySiteID(ctx context.Context, siteID uint) (*entity.Database, error) {
	var db entity.Database
	err := r.db.WithContext(ctx).Preload("Host").Where("site_id = ?", siteID).First(&db).Error
	if err != nil {
		return nil, err
	}
	return &db, nil
}

func (r *DatabaseRepository) Create(ctx context.Context, db *entity.Database) error {
	return r.db.WithContext(ctx).Omit("Host").Create(db).Error
}

func (r *DatabaseRepository) UpdatePassword(ctx context.Context, db *entity.Database) error {
	return r.db.WithContext(ctx).Model(&entity.Database{}).Where("id = ?", db.ID).Update("password", db.Password).Error
}

func (r *DatabaseRepository) Delete(ctx context.Context, db *entity.Database) error {
	return r.db.WithContext(ctx).Delete(&entity.Database{}, db.ID).Error
}
