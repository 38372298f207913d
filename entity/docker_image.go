package entity

import "gorm.io/datatypes"

type DockerImage struct {
	ID           uint                        `json:"id" gorm:"primaryKey"`
	Name         string                      `json:"name" gorm:"uniqueIndex;not null"`
	FriendlyName string                      `json:"friendly_name"`
	IsCustom     bool                        `json:"is_custom" gorm:"not null;default:false"`
	ParentName   string                      `json:"parent_name"`
	Packages     datatypes.JSONSlice[string] `json:"packages" gorm:"type:jsonb"`
}
