package controller

import (
	"github.com/gofiber/fiber/v2"

	"multimodal-chat-be/internal/dto"
	"multimodal-chat-be/internal/pkg/serverutils"
	"multimodal-chat-be/internal/service"
)

type ISearchController interface {
	RegisterRoutes(r fiber.Router)
	Text(ctx *fiber.Ctx) error
}

type searchController struct {
	searchService service.ISearchService
}

func NewSearchController(searchService service.ISearchService) ISearchController {
	return &searchController{
		searchService: searchService,
	}
}

func (c *searchController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/search/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Get("text", c.Text)
}

func (c *searchController) Text(ctx *fiber.Ctx) error {
	ownerID := ctx.Locals("user_id").(string)

	var req dto.TextSearchRequest
	if err := ctx.QueryParser(&req); err != nil {
		return serverutils.BadRequest("Invalid query parameters")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.searchService.Text(ctx.Context(), ownerID, &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success", res))
}
