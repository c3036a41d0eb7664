// Package service implements the correlation flow between client
// submissions, the broker hand-off, and worker webhook replies.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/chatrelay/chatrelay/internal/common/errors"
	"github.com/chatrelay/chatrelay/internal/common/logger"
	"github.com/chatrelay/chatrelay/internal/message"
)

// MaxImageSize is the upload size ceiling for binary payloads.
const MaxImageSize = 10 << 20 // 10 MiB

// DefaultResponseText is recorded when a webhook reply carries neither text
// nor an attachment.
const DefaultResponseText = "Imagen procesada exitosamente"

// QueuePublisher is the broker hand-off the service depends on.
type QueuePublisher interface {
	Publish(ctx context.Context, env *message.Envelope) error
	IsConnected() bool
}

// Service coordinates the correlation store and the queue publisher.
type Service struct {
	store     *message.Store
	publisher QueuePublisher
	baseURL   string
	logger    *logger.Logger
}

// NewService creates the relay service. baseURL is the externally visible
// address used when building callback URLs for the worker.
func NewService(store *message.Store, publisher QueuePublisher, baseURL string, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    log,
	}
}

// SubmitRequest is a validated client submission.
type SubmitRequest struct {
	Description string
	Image       *message.ImagePayload
}

// SubmitResult echoes what was accepted for a submission.
type SubmitResult struct {
	MessageID   string
	HasImage    bool
	Description string
	Timestamp   time.Time
}

// Submit validates a submission, stores a pending entry, and hands the
// envelope to the broker. Publish failure is logged but never propagated:
// the submission is accepted either way so polling can proceed.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	if req.Description == "" && req.Image == nil {
		return nil, apperrors.BadRequest("description or image is required")
	}

	if req.Image != nil {
		if !strings.HasPrefix(req.Image.MimeType, "image/") {
			return nil, apperrors.ValidationError("image", "only image files are allowed")
		}
		if req.Image.Size > MaxImageSize {
			return nil, apperrors.ValidationError("image", "file exceeds the 10MiB size limit")
		}
	}

	id := message.NewMessageID()
	now := time.Now().UTC()

	sub := &message.Submission{
		ID:         id,
		Text:       req.Description,
		Image:      req.Image,
		CreatedAt:  now,
		WebhookURL: fmt.Sprintf("%s/webhook/response/%s", s.baseURL, id),
	}

	if _, err := s.store.Put(sub); err != nil {
		return nil, apperrors.InternalError("failed to store submission", err)
	}

	env := message.NewEnvelope(sub)
	if err := s.publisher.Publish(ctx, env); err != nil {
		// Fire-and-forget: the worker simply never sees this message.
		s.logger.Error("Message not handed to broker",
			zap.String("message_id", id),
			zap.Error(err),
		)
	}

	s.logger.Info("Submission accepted",
		zap.String("message_id", id),
		zap.Bool("has_image", sub.HasImage()),
		zap.String("webhook_url", sub.WebhookURL),
	)

	return &SubmitResult{
		MessageID:   id,
		HasImage:    sub.HasImage(),
		Description: req.Description,
		Timestamp:   now,
	}, nil
}

// AttachResponse records a worker reply for a message ID. The reply may
// carry text, a binary attachment of any type, or both; with neither, a
// generic acknowledgment is stored.
func (s *Service) AttachResponse(ctx context.Context, id, text string, attachment *message.ImagePayload) error {
	if text == "" && attachment == nil {
		text = DefaultResponseText
	}

	resp := &message.Response{
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	if attachment != nil {
		resp.Image = message.DataURI(attachment.MimeType, attachment.Data)
	}

	if err := s.store.AttachResponse(id, resp); err != nil {
		if errors.Is(err, message.ErrNotFound) {
			s.logger.Warn("Webhook for unknown message", zap.String("message_id", id))
			return apperrors.NotFound("message", id)
		}
		return apperrors.InternalError("failed to store response", err)
	}

	s.logger.Info("Response stored",
		zap.String("message_id", id),
		zap.Bool("has_attachment", attachment != nil),
	)
	return nil
}

// Resolution reports whether a response has arrived for a message.
type Resolution struct {
	MessageID   string
	HasResponse bool
	Response    *message.Response
	ResponseAt  *time.Time
}

// Resolve looks up the response state for a message ID. Read-only and
// idempotent; safe to poll arbitrarily often.
func (s *Service) Resolve(ctx context.Context, id string) (*Resolution, error) {
	entry, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, message.ErrNotFound) {
			return nil, apperrors.NotFound("message", id)
		}
		return nil, apperrors.InternalError("failed to look up message", err)
	}

	return &Resolution{
		MessageID:   id,
		HasResponse: entry.HasResponse(),
		Response:    entry.Response,
		ResponseAt:  entry.ResponseAt,
	}, nil
}

// EntrySummary is the debug listing row for a stored entry.
type EntrySummary struct {
	MessageID   string
	HasResponse bool
	Timestamp   time.Time
	ResponseAt  *time.Time
}

// ListEntries returns a summary of every stored entry.
func (s *Service) ListEntries(ctx context.Context) []*EntrySummary {
	entries := s.store.List()
	result := make([]*EntrySummary, 0, len(entries))
	for _, entry := range entries {
		result = append(result, &EntrySummary{
			MessageID:   entry.Submission.ID,
			HasResponse: entry.HasResponse(),
			Timestamp:   entry.StoredAt,
			ResponseAt:  entry.ResponseAt,
		})
	}
	return result
}

// HealthStatus reports service liveness and broker connectivity.
type HealthStatus struct {
	Status          string
	BrokerConnected bool
	Timestamp       time.Time
}

// Health returns the current health snapshot.
func (s *Service) Health(ctx context.Context) *HealthStatus {
	return &HealthStatus{
		Status:          "ok",
		BrokerConnected: s.publisher.IsConnected(),
		Timestamp:       time.Now().UTC(),
	}
}
