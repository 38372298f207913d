package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/operation"
	"github.com/tnqbao/gau-site-director/utils"
	"gorm.io/gorm"
)

func parseUintParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + name)
	}
	return uint(id), nil
}

// currentUser loads the authenticated user. The superuser flag may also be
// granted through the token claims.
func (ctrl *Controller) currentUser(c *gin.Context) (*entity.User, bool) {
	ctx := c.Request.Context()
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return nil, false
	}

	user, err := ctrl.Repository.UserRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON401(c, "Unknown user")
			return nil, false
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Auth] Failed to load user %d: %v", userID, err)
		utils.JSON500(c, "Failed to load user")
		return nil, false
	}
	if c.GetBool("is_superuser") {
		user.IsSuperuser = true
	}
	return user, true
}

// loadSite resolves :id and checks that user may manage the site.
func (ctrl *Controller) loadSite(c *gin.Context, user *entity.User) (*entity.Site, bool) {
	ctx := c.Request.Context()
	siteID, err := parseUintParam(c, "id")
	if err != nil {
		utils.JSON400(c, "Invalid site id")
		return nil, false
	}

	site, err := ctrl.Repository.SiteRepo.FindByID(ctx, siteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Site not found")
			return nil, false
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Site] Failed to load site %d: %v", siteID, err)
		utils.JSON500(c, "Failed to load site")
		return nil, false
	}

	if !user.IsSuperuser && !site.HasUser(user.ID) {
		utils.JSON403(c, "You do not have access to this site")
		return nil, false
	}
	return site, true
}

// operationErrorStatus maps scheduler errors to a response.
func operationErrorStatus(err error) (int, string) {
	var verr *operation.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, operation.ErrOperationInProgress):
		return http.StatusConflict, "Site already has an operation in progress"
	case errors.Is(err, operation.ErrOperationRunning):
		return http.StatusConflict, "Operation is still running"
	case errors.Is(err, operation.ErrOperationNotFound):
		return http.StatusNotFound, "Site has no operation"
	case errors.Is(err, operation.ErrNotClearable):
		return http.StatusForbidden, "Only an administrator can clear this operation"
	}
	return http.StatusInternalServerError, "Failed to schedule operation"
}

func respondOperationError(c *gin.Context, err error) {
	status, message := operationErrorStatus(err)
	switch status {
	case http.StatusBadRequest:
		utils.JSON400(c, message)
	case http.StatusConflict:
		utils.JSON409(c, message)
	case http.StatusForbidden:
		utils.JSON403(c, message)
	case http.StatusNotFound:
		utils.JSON404(c, message)
	default:
		utils.JSON500(c, message)
	}
}
