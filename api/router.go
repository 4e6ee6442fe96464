package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/modsearch/api/handlers"
	"github.com/meghashyamc/modsearch/db/searchdb"
	"github.com/meghashyamc/modsearch/logger"
	"github.com/meghashyamc/modsearch/services/index"
	"github.com/meghashyamc/modsearch/services/mods"
	"github.com/meghashyamc/modsearch/validation"
)

func setupRoutes(router *gin.Engine, logger logger.Logger, searchDB searchdb.DB, indexService *index.Service, modsService *mods.Service, validator *validation.Validator) {
	router.GET("/health", health())

	handlers.SetupSearch(router, logger, searchDB, validator)
	handlers.SetupMods(router, logger, modsService, validator)
	handlers.SetupIndex(router, logger, indexService, validator)

}

func health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

func newRouter() *gin.Engine {
	router := gin.New()
	router.UseRawPath = true
	router.Use(_CORSMiddleware())
	router.Use(gin.Recovery())

	return router
}
