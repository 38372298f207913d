package entity

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"gorm.io/datatypes"
)

type SiteType string

const (
	SiteTypeStatic  SiteType = "static"
	SiteTypeDynamic SiteType = "dynamic"
)

func (t SiteType) Valid() bool {
	return t == SiteTypeStatic || t == SiteTypeDynamic
}

type SitePurpose string

const (
	SitePurposeUser     SitePurpose = "user"
	SitePurposeActivity SitePurpose = "activity"
	SitePurposeProject  SitePurpose = "project"
	SitePurposeLegacy   SitePurpose = "legacy"
	SitePurposeOther    SitePurpose = "other"
)

type SiteAvailability string

const (
	SiteAvailabilityEnabled   SiteAvailability = "enabled"
	SiteAvailabilityNotListed SiteAvailability = "not-listed"
	SiteAvailabilityDisabled  SiteAvailability = "disabled"
)

const (
	SiteNameMinLength = 2
	SiteNameMaxLength = 32
)

var siteNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var (
	ErrSiteNameLength    = fmt.Errorf("site name must be between %d and %d characters", SiteNameMinLength, SiteNameMaxLength)
	ErrSiteNamePattern   = errors.New("site name may only contain lowercase letters, digits and single dashes")
	ErrSiteNameBlocklist = errors.New("site name is reserved")
)

type ResourceLimits struct {
	CPUs     float64 `json:"cpus" gorm:"column:cpus;not null;default:0"`
	MemoryMB int     `json:"memory_mb" gorm:"column:memory_mb;not null;default:0"`
}

func (l ResourceLimits) String() string {
	if l.CPUs == 0 && l.MemoryMB == 0 {
		return "default"
	}
	return fmt.Sprintf("cpus=%g memory=%dMB", l.CPUs, l.MemoryMB)
}

type Site struct {
	ID             uint                        `json:"id" gorm:"primaryKey"`
	Name           string                      `json:"name" gorm:"size:32;uniqueIndex;not null"`
	Type           SiteType                    `json:"type" gorm:"size:16;not null"`
	Purpose        SitePurpose                 `json:"purpose" gorm:"size:16;not null"`
	Availability   SiteAvailability            `json:"availability" gorm:"size:16;not null;default:enabled"`
	DomainsEnabled bool                        `json:"domains_enabled" gorm:"not null;default:true"`
	CustomDomains  datatypes.JSONSlice[string] `json:"custom_domains" gorm:"type:jsonb"`
	DockerImageID  *uint                       `json:"docker_image_id"`
	DockerImage    *DockerImage                `json:"docker_image,omitempty" gorm:"foreignKey:DockerImageID"`
	Database       *Database                   `json:"database,omitempty" gorm:"foreignKey:SiteID;constraint:OnDelete:CASCADE"`
	Users          []User                      `json:"users,omitempty" gorm:"many2many:site_users;constraint:OnDelete:CASCADE"`
	Limits         ResourceLimits              `json:"resource_limits" gorm:"embedded;embeddedPrefix:limit_"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

func (s *Site) IsServed() bool {
	return s.Availability != SiteAvailabilityDisabled
}

func (s *Site) IsDynamic() bool {
	return s.Type == SiteTypeDynamic
}

func (s *Site) HasDatabase() bool {
	return s.Database != nil
}

// URL is the default address the site is served on under the given domain.
func (s *Site) URL(domain string) string {
	if s.Purpose == SitePurposeLegacy {
		return fmt.Sprintf("https://%s/%s", domain, s.Name)
	}
	return fmt.Sprintf("https://%s.%s", s.Name, domain)
}

func (s *Site) HasUser(userID uint) bool {
	return slices.ContainsFunc(s.Users, func(u User) bool { return u.ID == userID })
}

func ValidateSiteName(name string, blocklist []string) error {
	if len(name) < SiteNameMinLength || len(name) > SiteNameMaxLength {
		return ErrSiteNameLength
	}
	if !siteNamePattern.MatchString(name) {
		return ErrSiteNamePattern
	}
	if slices.Contains(blocklist, name) {
		return ErrSiteNameBlocklist
	}
	return nil
}
