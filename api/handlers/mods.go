package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/modsearch/db/primarydb"
	"github.com/meghashyamc/modsearch/logger"
	"github.com/meghashyamc/modsearch/services/mods"
	"github.com/meghashyamc/modsearch/validation"
)

type ModIDRequest struct {
	ID string `uri:"id" json:"id" validate:"required,valid_mod_id"`
}

type CreateModRequest struct {
	TeamID      int64    `json:"team_id" validate:"required,min=1"`
	Title       string   `json:"title" validate:"required,min=3,max=256"`
	Description string   `json:"description" validate:"required,min=3,max=2048"`
	Categories  []string `json:"categories" validate:"max=16,dive,min=1,max=64"`
	Status      string   `json:"status" validate:"omitempty,valid_status"`
	IconURL     string   `json:"icon_url" validate:"omitempty,url"`
	Slug        string   `json:"slug" validate:"omitempty,min=3,max=64"`
	IsNSFW      bool     `json:"is_nsfw"`
}

// UpdateModRequest leaves fields that are absent from the body untouched.
type UpdateModRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=3,max=256"`
	Description *string  `json:"description" validate:"omitempty,min=3,max=2048"`
	Status      *string  `json:"status" validate:"omitempty,valid_status"`
	Categories  []string `json:"categories" validate:"omitempty,max=16,dive,min=1,max=64"`
}

type ModResponse struct {
	ID          string    `json:"id"`
	TeamID      int64     `json:"team_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Categories  []string  `json:"categories"`
	Downloads   int64     `json:"downloads"`
	Follows     int64     `json:"follows"`
	IconURL     string    `json:"icon_url,omitempty"`
	Slug        string    `json:"slug,omitempty"`
	IsNSFW      bool      `json:"is_nsfw"`
	Published   time.Time `json:"published"`
	Updated     time.Time `json:"updated"`
}

func newModResponse(view *mods.ModView) ModResponse {
	return ModResponse{
		ID:          view.ID.String(),
		TeamID:      view.TeamID,
		Title:       view.Title,
		Description: view.Description,
		Status:      view.Status.String(),
		Categories:  view.Categories,
		Downloads:   view.Downloads,
		Follows:     view.Follows,
		IconURL:     view.IconURL,
		Slug:        view.Slug,
		IsNSFW:      view.IsNSFW,
		Published:   view.Published.UTC(),
		Updated:     view.Updated.UTC(),
	}
}

func SetupMods(router *gin.Engine, logger logger.Logger, service *mods.Service, validator *validation.Validator) {
	router.POST("/mods", handleCreateMod(service, logger, validator))
	router.GET("/mods/:id", handleGetMod(service, logger, validator))
	router.PATCH("/mods/:id", handleUpdateMod(service, logger, validator))
	router.DELETE("/mods/:id", handleDeleteMod(service, logger, validator))

}

func handleCreateMod(service *mods.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := CreateModRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected params from create mod request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		status := primarydb.StatusDraft
		if request.Status != "" {
			status = primarydb.ParseStatus(request.Status)
		}

		view, err := service.Create(c.Request.Context(), primarydb.NewMod{
			TeamID:      request.TeamID,
			Title:       request.Title,
			Description: request.Description,
			IconURL:     request.IconURL,
			Status:      status,
			Slug:        request.Slug,
			IsNSFW:      request.IsNSFW,
			Categories:  request.Categories,
		})
		if err != nil {
			writeModError(c, logger, err)
			return
		}

		writeResponse(c, newModResponse(view), http.StatusCreated, nil)
	}
}

func handleGetMod(service *mods.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := bindModID(c, logger, validator)
		if !ok {
			return
		}

		view, err := service.Get(c.Request.Context(), id)
		if err != nil {
			writeModError(c, logger, err)
			return
		}

		writeResponse(c, newModResponse(view), http.StatusOK, nil)
	}
}

func handleUpdateMod(service *mods.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := bindModID(c, logger, validator)
		if !ok {
			return
		}

		request := UpdateModRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected params from update mod request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		update := primarydb.ModUpdate{
			Title:       request.Title,
			Description: request.Description,
			Categories:  request.Categories,
		}
		if request.Status != nil {
			status := primarydb.ParseStatus(*request.Status)
			update.Status = &status
		}
		if update.IsEmpty() {
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{"nothing to update"})
			return
		}

		view, err := service.Update(c.Request.Context(), id, update)
		if err != nil {
			writeModError(c, logger, err)
			return
		}

		writeResponse(c, newModResponse(view), http.StatusOK, nil)
	}
}

func handleDeleteMod(service *mods.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := bindModID(c, logger, validator)
		if !ok {
			return
		}

		if err := service.Delete(c.Request.Context(), id); err != nil {
			writeModError(c, logger, err)
			return
		}

		writeResponse(c, nil, http.StatusNoContent, nil)
	}
}

func bindModID(c *gin.Context, logger logger.Logger, validator *validation.Validator) (primarydb.ModID, bool) {
	request := ModIDRequest{}
	if err := c.ShouldBindUri(&request); err != nil {
		logger.Warn("could not extract mod id", "err", err.Error())
		c.Abort()
		writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract mod id"})
		return 0, false
	}

	if err := validator.Validate(request); err != nil {
		c.Abort()
		writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
		return 0, false
	}

	id, _ := primarydb.ParseModID(request.ID)
	return id, true
}

func writeModError(c *gin.Context, logger logger.Logger, err error) {
	c.Abort()
	switch {
	case errors.Is(err, primarydb.ErrNotFound):
		writeResponse(c, nil, http.StatusNotFound, []string{err.Error()})
	case errors.Is(err, primarydb.ErrUnknownCategory):
		writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
	default:
		logger.Error("mod request failed", "err", err.Error())
		writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
	}
}
