package api

import (
	"time"

	"github.com/chatrelay/chatrelay/internal/message"
)

// SubmitData echoes what was accepted for a submission.
type SubmitData struct {
	MessageID   string    `json:"messageId"`
	HasImage    bool      `json:"hasImage"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// SubmitResponse is the upload endpoint's success body.
type SubmitResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    SubmitData `json:"data"`
}

// WebhookAck is the webhook endpoint's success body.
type WebhookAck struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// ResolutionData reports response availability for one message.
type ResolutionData struct {
	MessageID         string            `json:"messageId"`
	HasResponse       bool              `json:"hasResponse"`
	Response          *message.Response `json:"response"`
	ResponseTimestamp *time.Time        `json:"responseTimestamp,omitempty"`
}

// ResolutionResponse is the resolution endpoint's success body.
type ResolutionResponse struct {
	Success bool           `json:"success"`
	Data    ResolutionData `json:"data"`
}

// DebugMessage is one row in the debug listing.
type DebugMessage struct {
	MessageID         string     `json:"messageId"`
	HasResponse       bool       `json:"hasResponse"`
	Timestamp         time.Time  `json:"timestamp"`
	ResponseTimestamp *time.Time `json:"responseTimestamp,omitempty"`
}

// DebugMessagesResponse is the debug endpoint's body.
type DebugMessagesResponse struct {
	Success       bool            `json:"success"`
	TotalMessages int             `json:"totalMessages"`
	Messages      []*DebugMessage `json:"messages"`
}

// HealthResponse reports service liveness and broker connectivity.
type HealthResponse struct {
	Status          string    `json:"status"`
	BrokerConnected bool      `json:"brokerConnected"`
	Timestamp       time.Time `json:"timestamp"`
}
