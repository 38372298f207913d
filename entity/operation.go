package entity

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

type OperationType string

const (
	OperationCreateSite           OperationType = "create_site"
	OperationRenameSite           OperationType = "rename_site"
	OperationEditSiteNames        OperationType = "edit_site_names"
	OperationChangeSiteType       OperationType = "change_site_type"
	OperationRegenNginxConfig     OperationType = "regen_nginx_config"
	OperationCreateSiteDatabase   OperationType = "create_site_database"
	OperationDeleteSiteDatabase   OperationType = "delete_site_database"
	OperationRegenSiteSecrets     OperationType = "regen_site_secrets"
	OperationUpdateResourceLimits OperationType = "update_resource_limits"
	OperationUpdateDockerImage    OperationType = "update_docker_image"
	OperationDeleteSite           OperationType = "delete_site"
	OperationRestartSite          OperationType = "restart_site"
	OperationFixSite              OperationType = "fix_site"
)

var OperationTypes = []OperationType{
	OperationCreateSite,
	OperationRenameSite,
	OperationEditSiteNames,
	OperationChangeSiteType,
	OperationRegenNginxConfig,
	OperationCreateSiteDatabase,
	OperationDeleteSiteDatabase,
	OperationRegenSiteSecrets,
	OperationUpdateResourceLimits,
	OperationUpdateDockerImage,
	OperationDeleteSite,
	OperationRestartSite,
	OperationFixSite,
}

func (t OperationType) Valid() bool {
	return slices.Contains(OperationTypes, t)
}

var databaseLockingTypes = []OperationType{
	OperationCreateSiteDatabase,
	OperationDeleteSiteDatabase,
	OperationDeleteSite,
}

// Types that leave the running container alone.
var containerSafeTypes = []OperationType{
	OperationEditSiteNames,
	OperationRegenNginxConfig,
	OperationCreateSiteDatabase,
}

// Operation is the in-flight change to a site. A site has at most one.
type Operation struct {
	ID          uint              `json:"id" gorm:"primaryKey"`
	SiteID      uint              `json:"site_id" gorm:"uniqueIndex;not null"`
	Site        *Site             `json:"site,omitempty" gorm:"foreignKey:SiteID;constraint:OnDelete:CASCADE"`
	Type        OperationType     `json:"type" gorm:"size:32;not null"`
	Params      datatypes.JSONMap `json:"params" gorm:"type:jsonb"`
	CreatedTime time.Time         `json:"created_time" gorm:"autoCreateTime"`
	StartedTime *time.Time        `json:"started_time"`
	Actions     []Action          `json:"actions,omitempty" gorm:"foreignKey:OperationID;constraint:OnDelete:CASCADE"`
}

func (o *Operation) HasStarted() bool {
	return o.StartedTime != nil
}

func (o *Operation) LocksDatabase() bool {
	return slices.Contains(databaseLockingTypes, o.Type)
}

func (o *Operation) LocksContainer(siteHasDatabase bool) bool {
	if o.LocksDatabase() && siteHasDatabase {
		return true
	}
	return !slices.Contains(containerSafeTypes, o.Type)
}

func (o *Operation) FailedAction() *Action {
	for i := range o.Actions {
		if o.Actions[i].Failed() {
			return &o.Actions[i]
		}
	}
	return nil
}

func (o *Operation) HasFailed() bool {
	return o.FailedAction() != nil
}

// UserCanClear reports whether a non-admin may clear the failed operation.
func (o *Operation) UserCanClear() bool {
	failed := o.FailedAction()
	return failed != nil && failed.UserRecoverable
}
