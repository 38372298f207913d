package repository

import (
	"context"
	"errors"

	"github.com/tnqbao/gau-site-director/entity"
	"gorm.io/gorm"
)

var ErrNoFields = errors.New("no fields to update")

type SiteRepository struct {
	db *gorm.DB
}

func NewSiteRepository(db *gorm.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

// withAssociations loads everything the action library reads from a site.
func withAssociations(db *gorm.DB) *gorm.DB {
	return db.Preload("DockerImage").Preload("Database.Host").Preload("Users")
}

func (r *SiteRepository) FindByID(ctx context.Context, id uint) (*entity.Site, error) {
	var site entity.Site
	err := withAssociations(r.db.WithContext(ctx)).Where("id = ?", id).First(&site).Error
	if err != nil {
		return nil, err
	}
	return &site, nil
}

func (r *SiteRepository) FindByName(ctx context.Context, name string) (*entity.Site, error) {
	var site entity.Site
	err := withAssociations(r.db.WithContext(ctx)).Where("name = ?", name).First(&site).Error
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// ExistsByName ignores the site with excludeID so a site never collides
// with itself.
func (r *SiteRepository) ExistsByName(ctx context.Context, name string, excludeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Site{}).
		Where("name = ? AND id <> ?", name, excludeID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateFields writes only the named columns, leaving concurrent edits to
// other columns alone.
func (r *SiteRepository) UpdateFields(ctx context.Context, site *entity.Site, fields ...string) error {
	if len(fields) == 0 {
		return ErrNoFields
	}
	return r.db.WithContext(ctx).Model(site).Select(fields).Updates(site).Error
}

// Delete drops the site's user memberships together with the row, so
// join rows never block the delete on schemas created without a cascade.
func (r *SiteRepository) Delete(ctx context.Context, site *entity.Site) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM site_users WHERE site_id = ?", site.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&entity.Site{}, site.ID).Error
	})
}
