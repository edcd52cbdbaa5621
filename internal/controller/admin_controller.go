package controller

import (
	"github.com/gofiber/fiber/v2"

	"multimodal-chat-be/internal/pkg/serverutils"
	"multimodal-chat-be/internal/service"
)

type IAdminController interface {
	RegisterRoutes(r fiber.Router)
	BootstrapSparse(ctx *fiber.Ctx) error
}

type adminController struct {
	sparseService service.ISparseAdminService
}

func NewAdminController(sparseService service.ISparseAdminService) IAdminController {
	return &adminController{
		sparseService: sparseService,
	}
}

func (c *adminController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/admin/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("sparse/bootstrap", c.BootstrapSparse)
}

func (c *adminController) BootstrapSparse(ctx *fiber.Ctx) error {
	res, err := c.sparseService.Bootstrap(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("TF-IDF vocabulary initialized", res))
}
