package repository

import (
	"context"

	"github.com/tnqbao/gau-site-director/entity"
	"gorm.io/gorm"
)

type DockerImageRepository struct {
	db *gorm.DB
}

func NewDockerImageRepository(db *gorm.DB) *DockerImageRepository {
	return &DockerImageRepository{db: db}
}

func (r *DockerImageRepository) FindByName(ctx context.Context, name string) (*entity.DockerImage, error) {
	var img entity.DockerImage
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&img).Error
	if err != nil {
		return nil, err
	}
	return &img, nil
}
