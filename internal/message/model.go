// Package message defines the data model for submissions, worker responses,
// and the queue envelope handed to the external worker.
package message

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
)

// EnvelopeType tags every queue envelope. The external worker matches on it.
const EnvelopeType = "chat_message"

// ImagePayload holds a client-supplied binary attachment.
type ImagePayload struct {
	Filename string
	MimeType string
	Size     int64
	Data     []byte
}

// Submission is a client message accepted by the upload endpoint.
// Immutable once created.
type Submission struct {
	ID         string
	Text       string
	Image      *ImagePayload
	CreatedAt  time.Time
	WebhookURL string
}

// HasImage reports whether the submission carries a binary payload.
func (s *Submission) HasImage() bool {
	return s.Image != nil
}

// Response is the worker-provided reply delivered via the webhook endpoint.
// Image, when present, is a base64 data URI ready for transport.
type Response struct {
	Text      string    `json:"text"`
	Image     string    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StoredEntry correlates one submission with its eventual response.
type StoredEntry struct {
	Submission *Submission
	Response   *Response
	ResponseAt *time.Time
	StoredAt   time.Time
}

// HasResponse reports whether the worker has replied for this entry.
func (e *StoredEntry) HasResponse() bool {
	return e.Response != nil
}

// EnvelopeContent carries the message body inside a queue envelope.
// Image is a data URI, or null when the submission is text-only.
type EnvelopeContent struct {
	Text  string  `json:"text"`
	Image *string `json:"image"`
}

// EnvelopeMetadata describes the attached image. Text-only messages carry an
// empty object, so every field is omitempty.
type EnvelopeMetadata struct {
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
}

// HasImage reports whether the metadata describes an attachment.
func (m EnvelopeMetadata) HasImage() bool {
	return m.MimeType != ""
}

// Envelope is the wire contract published to the broker. The external worker
// consumes this exact JSON shape, so field names must not change.
type Envelope struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	Type       string           `json:"type"`
	Content    EnvelopeContent  `json:"content"`
	Metadata   EnvelopeMetadata `json:"metadata"`
	WebhookURL string           `json:"webhookUrl"`
}

// NewEnvelope builds the queue envelope for a submission.
func NewEnvelope(sub *Submission) *Envelope {
	env := &Envelope{
		ID:        sub.ID,
		Timestamp: sub.CreatedAt,
		Type:      EnvelopeType,
		Content: EnvelopeContent{
			Text: sub.Text,
		},
		WebhookURL: sub.WebhookURL,
	}

	if sub.Image != nil {
		uri := DataURI(sub.Image.MimeType, sub.Image.Data)
		env.Content.Image = &uri
		env.Metadata = EnvelopeMetadata{
			Filename: sub.Image.Filename,
			Size:     sub.Image.Size,
			MimeType: sub.Image.MimeType,
		}
	}

	return env
}

// DataURI encodes binary data as a base64 data URI for transport.
func DataURI(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

const suffixLen = 9

// maxSuffix is 36^suffixLen, the number of distinct random suffixes.
var maxSuffix = func() uint64 {
	n := uint64(1)
	for i := 0; i < suffixLen; i++ {
		n *= 36
	}
	return n
}()

// NewMessageID generates a message identifier unique for the life of the
// process: a unix-millisecond prefix plus a random base36 suffix. The time
// component keeps IDs roughly sortable; the suffix makes same-millisecond
// collisions vanishingly unlikely.
func NewMessageID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// the clock so ID generation cannot take the request down.
		return fmt.Sprintf("%d-%09d", time.Now().UnixMilli(), time.Now().UnixNano()%int64(maxSuffix))
	}

	suffix := strconv.FormatUint(binary.BigEndian.Uint64(buf[:])%maxSuffix, 36)
	for len(suffix) < suffixLen {
		suffix = "0" + suffix
	}

	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}
