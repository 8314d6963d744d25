package messages

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier/internal/logger"
	"courier/pkg/errors"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		msgs := v1.Group("/messages")
		{
			msgs.POST("", h.CreateMessage)
			msgs.GET("/:id/status", h.GetMessageStatus)
		}
	}
}

// CreateMessage godoc
// @Summary      Create a message
// @Description  Durably records the message and publishes a message.created event
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        message  body      CreateMessageRequest  true  "Message content and optional metadata"
// @Success      201      {object}  CreateMessageResponse
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      502      {object}  errors.ErrorResponse
// @Failure      503      {object}  errors.ErrorResponse
// @Router       /messages [post]
func (h *Handler) CreateMessage(c *gin.Context) {
	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	resp, err := h.Service.CreateMessage(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetMessageStatus godoc
// @Summary      Get message status
// @Description  Returns the current status and the ordered status history; unknown ids answer not_found
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Message idempotency id"
// @Success      200  {object}  StatusView
// @Failure      503  {object}  errors.ErrorResponse
// @Router       /messages/{id}/status [get]
func (h *Handler) GetMessageStatus(c *gin.Context) {
	id := c.Param("id")

	view, err := h.Service.GetMessageStatus(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
