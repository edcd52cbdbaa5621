package controller

import (
	"mime/multipart"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"multimodal-chat-be/internal/dto"
	"multimodal-chat-be/internal/pkg/serverutils"
	"multimodal-chat-be/internal/service"
	"multimodal-chat-be/pkg/rag/normalize"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	End(ctx *fiber.Ctx) error
	Citation(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("", c.Chat)
	h.Post("end", c.End)
	h.Get("citations/:sessionId/:citationId", c.Citation)
}

func (c *chatController) Chat(ctx *fiber.Ctx) error {
	ownerID := ctx.Locals("user_id").(string)

	var req dto.ChatTurnRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest("Invalid request payload")
	}

	image, err := formUpload(ctx, "image")
	if err != nil {
		return err
	}
	audio, err := formUpload(ctx, "audio")
	if err != nil {
		return err
	}
	defer closeUpload(image)
	defer closeUpload(audio)

	if req.Message == "" && image == nil && audio == nil {
		return serverutils.BadRequest("At least one of message, image, or audio must be provided")
	}

	res, err := c.chatService.Chat(ctx.Context(), ownerID, &req, uploadOf(image), uploadOf(audio))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success", res))
}

func (c *chatController) End(ctx *fiber.Ctx) error {
	ownerID := ctx.Locals("user_id").(string)

	var req dto.EndSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.BadRequest("Invalid request payload")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.chatService.EndSession(ctx.Context(), ownerID, req.SessionID); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Session ended and cleaned up", fiber.Map{
		"session_id": req.SessionID,
	}))
}

func (c *chatController) Citation(ctx *fiber.Ctx) error {
	ownerID := ctx.Locals("user_id").(string)
	sessionID := ctx.Params("sessionId")

	citationID, err := strconv.Atoi(ctx.Params("citationId"))
	if err != nil {
		return serverutils.BadRequest("Citation id must be an integer")
	}

	citation, err := c.chatService.Citation(ctx.Context(), ownerID, sessionID, citationID)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success", citation))
}

// openedUpload pairs a multipart file with its open handle so the controller
// can close it after the service consumed the stream.
type openedUpload struct {
	header *multipart.FileHeader
	file   multipart.File
}

func formUpload(ctx *fiber.Ctx, field string) (*openedUpload, error) {
	header, err := ctx.FormFile(field)
	if err != nil {
		// Absent file fields are fine; the turn may be text-only.
		return nil, nil
	}
	file, err := header.Open()
	if err != nil {
		return nil, serverutils.BadRequest("Could not read uploaded " + field)
	}
	return &openedUpload{header: header, file: file}, nil
}

func closeUpload(u *openedUpload) {
	if u != nil {
		u.file.Close()
	}
}

func uploadOf(u *openedUpload) *normalize.Upload {
	if u == nil {
		return nil
	}
	return &normalize.Upload{
		Filename:    u.header.Filename,
		ContentType: u.header.Header.Get("Content-Type"),
		Body:        u.file,
	}
}
