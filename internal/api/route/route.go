package route

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_coalesce/internal/api/controller"
	"github.com/bassista/go_coalesce/internal/api/middleware"
	"github.com/bassista/go_coalesce/internal/app"
)

// SetupRoutes registers all HTTP routes on the given engine.
func SetupRoutes(r *gin.Engine, appCtx *app.App) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
		})
	})

	publicRouter := r.Group("")
	publicRouter.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSAllowedOrigins))
	publicRouter.Use(middleware.RequestTimeout(appCtx.Config.Server.RequestTimeout))

	dc := controller.NewDocumentController(appCtx.Store, appCtx.Autosave)
	publicRouter.GET("/document", dc.GetDocument)
	publicRouter.PUT("/document", dc.PutDocument)
	publicRouter.POST("/document/sections", dc.UpsertSection)
	publicRouter.DELETE("/document/sections/:id", dc.DeleteSection)

	ac := controller.NewAutosaveController(appCtx.Autosave)
	publicRouter.GET("/autosave/status", ac.Status)
	publicRouter.POST("/autosave/flush", ac.Flush)
}
