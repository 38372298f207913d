package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-site-director/http/controller"
	"github.com/tnqbao/gau-site-director/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}
	r.Use(middles.CORSMiddleware)

	apiRoutes := r.Group("/api/v1/director")
	{
		apiRoutes.GET("/health", ctrl.CheckHealth)

		authed := apiRoutes.Group("/")
		authed.Use(middles.AuthMiddleware)

		siteRoutes := authed.Group("/sites/:id")
		{
			siteRoutes.POST("/operations", ctrl.ScheduleOperation)
			siteRoutes.GET("/operation", ctrl.GetSiteOperation)
			siteRoutes.DELETE("/operation", ctrl.ClearSiteOperation)
			siteRoutes.POST("/operation/retry", ctrl.RetrySiteOperation)
			siteRoutes.GET("/history", ctrl.GetSiteHistory)
		}

		authed.GET("/operations", ctrl.ListOperations)
		authed.GET("/fleet/:pool", ctrl.GetFleetStatus)
		authed.GET("/ws", ctrl.SiteEvents)
	}
	return r
}
