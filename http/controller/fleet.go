package controller

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-site-director/http/controller/dto"
	"github.com/tnqbao/gau-site-director/infra"
	"github.com/tnqbao/gau-site-director/utils"
)

const fleetStatusTTL = 15 * time.Second

func fleetStatusKey(pool string) string {
	return "director:fleet-status:" + pool
}

// GetFleetStatus pings every node of a pool. Results are cached briefly so
// a busy status page does not hammer the fleet; ?refresh=true skips it.
func (ctrl *Controller) GetFleetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}
	if !user.IsSuperuser {
		utils.JSON403(c, "Administrator access required")
		return
	}

	pool := c.Param("pool")
	client, ok := ctrl.Infra.Fleet.Pool(pool)
	if !ok {
		utils.JSON404(c, "Unknown pool")
		return
	}

	key := fleetStatusKey(pool)
	if c.Query("refresh") != "true" {
		var cached dto.FleetStatusResponseDTO
		err := ctrl.Infra.Redis.Get(ctx, key, &cached)
		if err == nil {
			utils.JSON200(c, cached)
			return
		}
		if !errors.Is(err, infra.ErrCacheMiss) {
			ctrl.Infra.Logger.WarningWithContextf(ctx, "[Fleet] Failed to read cached status of %s: %v", pool, err)
		}
	}

	status := dto.FleetStatusResponseDTO{
		Pool:      pool,
		Nodes:     client.Addrs(),
		Reachable: client.PingAll(ctx, ctrl.Config.EnvConfig.Fleet.PingTimeout),
		CheckedAt: time.Now().UTC(),
	}
	if status.Reachable == nil {
		status.Reachable = []int{}
	}
	if err := ctrl.Infra.Redis.Set(ctx, key, status, fleetStatusTTL); err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Fleet] Failed to cache status of %s: %v", pool, err)
	}

	utils.JSON200(c, status)
}
