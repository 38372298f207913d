package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-site-director/utils"
)

// SiteEvents streams live site events over a websocket. Users must pick one
// of their sites with ?site_id=; superusers may omit it to watch everything.
func (ctrl *Controller) SiteEvents(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}

	var siteID uint
	if raw := c.Query("site_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			utils.JSON400(c, "Invalid site_id")
			return
		}
		siteID = uint(id)
	}

	if !user.IsSuperuser {
		if siteID == 0 {
			utils.JSON400(c, "site_id is required")
			return
		}
		site, err := ctrl.Repository.SiteRepo.FindByID(ctx, siteID)
		if err != nil || !site.HasUser(user.ID) {
			utils.JSON403(c, "You do not have access to this site")
			return
		}
	}

	if err := ctrl.Hub.HandleConnect(c.Writer, c.Request, siteID); err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Events] Websocket upgrade failed: %v", err)
	}
}
