package api

import (
	stderrors "errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatrelay/chatrelay/internal/common/errors"
	"github.com/chatrelay/chatrelay/internal/common/logger"
	"github.com/chatrelay/chatrelay/internal/message"
	"github.com/chatrelay/chatrelay/internal/relay/service"
)

// Handler contains HTTP handlers for the relay API
type Handler struct {
	service *service.Service
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{
		service: svc,
		logger:  log,
	}
}

// Submit accepts a client submission with optional text and image
// POST /upload
func (h *Handler) Submit(c *gin.Context) {
	description := c.PostForm("description")

	payload, appErr := h.formFilePayload(c, "image")
	if appErr != nil {
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	result, err := h.service.Submit(c.Request.Context(), &service.SubmitRequest{
		Description: description,
		Image:       payload,
	})
	if err != nil {
		h.respondError(c, err, "failed to process message")
		return
	}

	c.JSON(http.StatusOK, SubmitResponse{
		Success: true,
		Message: "Message processed successfully",
		Data: SubmitData{
			MessageID:   result.MessageID,
			HasImage:    result.HasImage,
			Description: result.Description,
			Timestamp:   result.Timestamp,
		},
	})
}

// Webhook receives the worker's reply for a message
// POST /webhook/response/:messageId
func (h *Handler) Webhook(c *gin.Context) {
	messageID := c.Param("messageId")
	text := c.PostForm("text")

	attachment, appErr := h.formFilePayload(c, "data")
	if appErr != nil {
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.service.AttachResponse(c.Request.Context(), messageID, text, attachment); err != nil {
		h.respondError(c, err, "failed to process webhook response")
		return
	}

	c.JSON(http.StatusOK, WebhookAck{
		Success:   true,
		Message:   "Response received and stored",
		MessageID: messageID,
	})
}

// GetResponse reports whether a response has arrived for a message
// GET /api/response/:messageId
func (h *Handler) GetResponse(c *gin.Context) {
	messageID := c.Param("messageId")

	resolution, err := h.service.Resolve(c.Request.Context(), messageID)
	if err != nil {
		h.respondError(c, err, "failed to get response")
		return
	}

	c.JSON(http.StatusOK, ResolutionResponse{
		Success: true,
		Data: ResolutionData{
			MessageID:         resolution.MessageID,
			HasResponse:       resolution.HasResponse,
			Response:          resolution.Response,
			ResponseTimestamp: resolution.ResponseAt,
		},
	})
}

// DebugMessages lists all stored entries
// GET /api/debug/messages
func (h *Handler) DebugMessages(c *gin.Context) {
	entries := h.service.ListEntries(c.Request.Context())

	messages := make([]*DebugMessage, 0, len(entries))
	for _, entry := range entries {
		messages = append(messages, &DebugMessage{
			MessageID:         entry.MessageID,
			HasResponse:       entry.HasResponse,
			Timestamp:         entry.Timestamp,
			ResponseTimestamp: entry.ResponseAt,
		})
	}

	c.JSON(http.StatusOK, DebugMessagesResponse{
		Success:       true,
		TotalMessages: len(messages),
		Messages:      messages,
	})
}

// HealthCheck reports liveness and broker connectivity
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	health := h.service.Health(c.Request.Context())

	c.JSON(http.StatusOK, HealthResponse{
		Status:          health.Status,
		BrokerConnected: health.BrokerConnected,
		Timestamp:       health.Timestamp,
	})
}

// formFilePayload extracts an optional multipart file field. Returns nil
// when the field is absent. Size is capped before the body is read so an
// oversize upload never gets buffered in full.
func (h *Handler) formFilePayload(c *gin.Context, field string) (*message.ImagePayload, *errors.AppError) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		if stderrors.Is(err, http.ErrMissingFile) || stderrors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, errors.BadRequest(err.Error())
	}

	if fileHeader.Size > service.MaxImageSize {
		return nil, errors.ValidationError(field, "file exceeds the 10MiB size limit")
	}

	data, appErr := readFile(fileHeader)
	if appErr != nil {
		return nil, appErr
	}

	return &message.ImagePayload{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		Data:     data,
	}, nil
}

func readFile(fileHeader *multipart.FileHeader) ([]byte, *errors.AppError) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, errors.BadRequest("failed to open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, service.MaxImageSize+1))
	if err != nil {
		return nil, errors.BadRequest("failed to read uploaded file")
	}
	if int64(len(data)) > service.MaxImageSize {
		return nil, errors.ValidationError("file", "file exceeds the 10MiB size limit")
	}
	return data, nil
}

// respondError maps service errors onto HTTP responses, hiding internals
// behind a generic message for unexpected failures.
func (h *Handler) respondError(c *gin.Context, err error, genericMsg string) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			h.logger.Error(genericMsg, zap.Error(err))
			c.JSON(appErr.HTTPStatus, errors.InternalError(genericMsg, nil))
			return
		}
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	h.logger.Error(genericMsg, zap.Error(err))
	internal := errors.InternalError(genericMsg, nil)
	c.JSON(internal.HTTPStatus, internal)
}
