package entity

import (
	"fmt"
	"net/url"
	"strconv"
)

type DBMS string

const (
	DBMSPostgres DBMS = "postgres"
	DBMSMySQL    DBMS = "mysql"
)

func (d DBMS) Valid() bool {
	return d == DBMSPostgres || d == DBMSMySQL
}

type DatabaseHost struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Hostname string `json:"hostname" gorm:"not null"`
	Port     int    `json:"port" gorm:"not null"`
	DBMS     DBMS   `json:"dbms" gorm:"size:16;not null;index"`
}

type Database struct {
	ID       uint          `json:"id" gorm:"primaryKey"`
	SiteID   uint          `json:"site_id" gorm:"uniqueIndex;not null"`
	HostID   uint          `json:"host_id" gorm:"not null"`
	Host     *DatabaseHost `json:"host,omitempty" gorm:"foreignKey:HostID"`
	Password string        `json:"-" gorm:"not null"`
}

func (d *Database) Name() string {
	return fmt.Sprintf("site_%d", d.SiteID)
}

func (d *Database) Username() string {
	return d.Name()
}

func (d *Database) URL() string {
	if d.Host == nil {
		return ""
	}
	u := url.URL{
		Scheme: string(d.Host.DBMS),
		User:   url.UserPassword(d.Username(), d.Password),
		Host:   d.Host.Hostname + ":" + strconv.Itoa(d.Host.Port),
		Path:   "/" + d.Name(),
	}
	return u.String()
}
