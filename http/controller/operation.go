package controller

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-site-director/entity"
	"github.com/tnqbao/gau-site-director/http/controller/dto"
	"github.com/tnqbao/gau-site-director/utils"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (ctrl *Controller) ScheduleOperation(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}
	site, ok := ctrl.loadSite(c, user)
	if !ok {
		return
	}

	var req dto.ScheduleOperationRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Operation] Failed to bind JSON: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Operation] User %d requested %s on site %d", user.ID, req.Type, site.ID)

	op, err := ctrl.Provider.Scheduler.Schedule(ctx, site, entity.OperationType(req.Type), req.Params)
	if err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Operation] Refused %s on site %d: %v", req.Type, site.ID, err)
		respondOperationError(c, err)
		return
	}

	utils.JSON201(c, dto.NewOperationResponse(op, user.IsSuperuser))
}

func (ctrl *Controller) GetSiteOperation(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}
	site, ok := ctrl.loadSite(c, user)
	if !ok {
		return
	}

	op, err := ctrl.Repository.OperationRepo.FindBySiteID(ctx, site.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Site has no operation")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Operation] Failed to load operation of site %d: %v", site.ID, err)
		utils.JSON500(c, "Failed to load operation")
		return
	}
	op.Site = site

	utils.JSON200(c, dto.NewOperationResponse(op, user.IsSuperuser))
}

func (ctrl *Controller) ClearSiteOperation(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}
	site, ok := ctrl.loadSite(c, user)
	if !ok {
		return
	}

	op, err := ctrl.Repository.OperationRepo.FindBySiteID(ctx, site.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Site has no operation")
			return
		}
		utils.JSON500(c, "Failed to load operation")
		return
	}

	if err := ctrl.Provider.Scheduler.Clear(ctx, op, user); err != nil {
		respondOperationError(c, err)
		return
	}

	utils.JSON200(c, gin.H{"message": "Operation cleared"})
}

func (ctrl *Controller) RetrySiteOperation(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}
	site, ok := ctrl.loadSite(c, user)
	if !ok {
		return
	}

	op, err := ctrl.Repository.OperationRepo.FindBySiteID(ctx, site.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Site has no operation")
			return
		}
		utils.JSON500(c, "Failed to load operation")
		return
	}
	if !op.HasFailed() {
		utils.JSON409(c, "Only a failed operation can be retried")
		return
	}

	retried, err := ctrl.Provider.Scheduler.Retry(ctx, site, op, user)
	if err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Operation] Retry of operation %d failed: %v", op.ID, err)
		respondOperationError(c, err)
		return
	}

	utils.JSON201(c, dto.NewOperationResponse(retried, user.IsSuperuser))
}

// GetSiteHistory lists the most recent archived runs of the site, oldest first.
func (ctrl *Controller) GetSiteHistory(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}
	site, ok := ctrl.loadSite(c, user)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			utils.JSON400(c, "Invalid limit")
			return
		}
		limit = n
	}

	traces, err := ctrl.Infra.Minio.ListOperationTraces(ctx, site.ID, limit)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Operation] Failed to list history of site %d: %v", site.ID, err)
		utils.JSON500(c, "Failed to load operation history")
		return
	}
	if !user.IsSuperuser {
		for i := range traces {
			for j := range traces[i].Actions {
				traces[i].Actions[j].Message = ""
			}
		}
	}

	utils.JSON200(c, gin.H{"traces": traces})
}

// ListOperations is the administrator overview of every pending operation.
func (ctrl *Controller) ListOperations(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}
	if !user.IsSuperuser {
		utils.JSON403(c, "Administrator access required")
		return
	}

	ops, err := ctrl.Repository.OperationRepo.List(ctx)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Operation] Failed to list operations: %v", err)
		utils.JSON500(c, "Failed to list operations")
		return
	}

	out := make([]dto.OperationResponseDTO, 0, len(ops))
	for i := range ops {
		out = append(out, dto.NewOperationResponse(&ops[i], true))
	}
	utils.JSON200(c, gin.H{"operations": out})
}
