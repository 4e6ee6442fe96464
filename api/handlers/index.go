package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meghashyamc/modsearch/logger"
	"github.com/meghashyamc/modsearch/services/index"
	"github.com/meghashyamc/modsearch/validation"
)

type ReindexResponse struct {
	ID string `json:"id"`
}

type RunRequest struct {
	ID string `uri:"id" json:"id" validate:"required,uuid4"`
}

func SetupIndex(router *gin.Engine, logger logger.Logger, service *index.Service, validator *validation.Validator) {
	router.POST("/index/reindex", handleReindex(service, logger))
	router.GET("/index/reindex/:id", handleGetRun(service, logger, validator))
	router.POST("/index/flush", handleFlush(service, logger))
	router.GET("/index/stats", handleStats(service, logger))

}

func handleReindex(service *index.Service, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := uuid.NewString()

		if err := service.StartReindex(runID); err != nil {
			c.Abort()
			if errors.Is(err, index.ErrReindexInProgress) {
				writeResponse(c, nil, http.StatusConflict, []string{err.Error()})
				return
			}
			logger.Error("could not start reindex", "run_id", runID, "err", err.Error())
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, ReindexResponse{ID: runID}, http.StatusAccepted, nil)
	}
}

func handleGetRun(service *index.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := RunRequest{}
		if err := c.ShouldBindUri(&request); err != nil {
			logger.Warn("could not extract run id", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract run id"})
			return
		}

		if err := validator.Validate(request); err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		run, err := service.GetRun(request.ID)
		if err != nil {
			c.Abort()
			if errors.Is(err, index.ErrRunNotFound) {
				writeResponse(c, nil, http.StatusNotFound, []string{err.Error()})
				return
			}
			logger.Error("could not get reindex run", "run_id", request.ID, "err", err.Error())
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, run, http.StatusOK, nil)
	}
}

func handleFlush(service *index.Service, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := service.Flush(c.Request.Context())
		if err != nil {
			c.Abort()
			writeResponse(c, report, http.StatusBadGateway, []string{err.Error()})
			return
		}

		writeResponse(c, report, http.StatusOK, nil)
	}
}

func handleStats(service *index.Service, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := service.Stats(c.Request.Context())
		if err != nil {
			logger.Error("could not get index stats", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, stats, http.StatusOK, nil)
	}
}
