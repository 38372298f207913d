package controller

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-site-director/utils"
)

func (ctrl *Controller) CheckHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if sqlDB, err := ctrl.Infra.Postgres.DB.DB(); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := ctrl.Infra.Redis.Client.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	if ctrl.Infra.RabbitMQ.Connection.IsClosed() {
		checks["rabbitmq"] = "connection closed"
		healthy = false
	} else {
		checks["rabbitmq"] = "ok"
	}

	// the archive only holds history, so it never fails the check
	if archive, err := ctrl.Infra.Minio.Health(ctx); err != nil {
		checks["archive"] = err.Error()
	} else {
		checks["archive"] = archive
	}

	if !healthy {
		utils.JSON503(c, gin.H{"status": "unhealthy", "checks": checks})
		return
	}
	utils.JSON200(c, gin.H{"status": "ok", "checks": checks})
}
