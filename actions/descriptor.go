package actions

import (
	"encoding/json"

	"github.com/tnqbao/gau-site-director/entity"
)

type imageDescriptor struct {
	Name         string   `json:"name"`
	ParentName   string   `json:"parent_name,omitempty"`
	IsCustom     bool     `json:"is_custom"`
	Packages     []string `json:"packages,omitempty"`
	RegistryName string   `json:"registry_name,omitempty"`
}

type siteDescriptor struct {
	PK             uint                  `json:"pk"`
	Name           string                `json:"name"`
	Type           entity.SiteType       `json:"type"`
	Purpose        entity.SitePurpose    `json:"purpose"`
	IsBeingServed  bool                  `json:"is_being_served"`
	URL            string                `json:"url"`
	DomainsEnabled bool                  `json:"domains_enabled"`
	CustomDomains  []string              `json:"custom_domains"`
	DockerImage    *imageDescriptor      `json:"docker_image,omitempty"`
	ResourceLimits entity.ResourceLimits `json:"resource_limits"`
	DatabaseURL    string                `json:"database_url,omitempty"`
}

type databaseDescriptor struct {
	SiteID   uint        `json:"site_id"`
	Name     string      `json:"name"`
	Username string      `json:"username"`
	Password string      `json:"password"`
	Host     string      `json:"host"`
	Port     int         `json:"port"`
	DBMS     entity.DBMS `json:"dbms"`
}

func (l *Library) describeImage(img *entity.DockerImage) *imageDescriptor {
	if img == nil {
		return nil
	}
	d := &imageDescriptor{
		Name:       img.Name,
		ParentName: img.ParentName,
		IsCustom:   img.IsCustom,
		Packages:   img.Packages,
	}
	if img.IsCustom {
		d.RegistryName = l.registryName(img)
	}
	return d
}

func (l *Library) registryName(img *entity.DockerImage) string {
	return l.settings.RegistryURL + "/" + img.Name
}

func (l *Library) siteJSON(site *entity.Site) (string, error) {
	d := siteDescriptor{
		PK:             site.ID,
		Name:           site.Name,
		Type:           site.Type,
		Purpose:        site.Purpose,
		IsBeingServed:  site.IsServed(),
		URL:            site.URL(l.settings.SitesDomain),
		DomainsEnabled: site.DomainsEnabled,
		CustomDomains:  site.CustomDomains,
		DockerImage:    l.describeImage(site.DockerImage),
		ResourceLimits: site.Limits,
	}
	if d.CustomDomains == nil {
		d.CustomDomains = []string{}
	}
	if site.Database != nil {
		d.DatabaseURL = site.Database.URL()
	}
	raw, err := json.Marshal(d)
	return string(raw), err
}

func databaseJSON(db *entity.Database) (string, error) {
	d := databaseDescriptor{
		SiteID:   db.SiteID,
		Name:     db.Name(),
		Username: db.Username(),
		Password: db.Password,
	}
	if db.Host != nil {
		d.Host = db.Host.Hostname
		d.Port = db.Host.Port
		d.DBMS = db.Host.DBMS
	}
	raw, err := json.Marshal(d)
	return string(raw), err
}
