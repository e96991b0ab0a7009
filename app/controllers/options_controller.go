package controllers

import (
	"errors"

	"github.com/ManuelReschke/ReplyFox/app/models"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/apperror"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/cache"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const optionsCacheKey = "options:catalog"

type optionCatalog struct {
	Scenes []string `json:"scenes"`
	Roles  []string `json:"roles"`
	Styles []string `json:"styles"`
}

// HandleGetOptions serves the composer presets, cached in Redis.
func (a *API) HandleGetOptions(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var catalog optionCatalog
	if a.OptionsCacheTTL > 0 {
		err := cache.GetJSON(ctx, optionsCacheKey, &catalog)
		if err == nil {
			return c.JSON(fiber.Map{"options": catalog})
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warnf("[Options] cache read failed: %v", err)
		}
	}

	entries, err := a.Options.ListActive(ctx)
	if err != nil {
		return apperror.Respond(c, apperror.Internal("db_error", err))
	}
	catalog = optionCatalog{Scenes: []string{}, Roles: []string{}, Styles: []string{}}
	for _, e := range entries {
		switch e.Category {
		case models.OptionCategoryScene:
			catalog.Scenes = append(catalog.Scenes, e.Label)
		case models.OptionCategoryRole:
			catalog.Roles = append(catalog.Roles, e.Label)
		case models.OptionCategoryStyle:
			catalog.Styles = append(catalog.Styles, e.Label)
		}
	}

	if a.OptionsCacheTTL > 0 {
		if err := cache.SetJSON(ctx, optionsCacheKey, catalog, a.OptionsCacheTTL); err != nil {
			log.Warnf("[Options] cache write failed: %v", err)
		}
	}
	return c.JSON(fiber.Map{"options": catalog})
}
