package message

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewMessageIDFormat(t *testing.T) {
	id := NewMessageID()

	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		t.Fatalf("expected '<millis>-<suffix>' format, got %q", id)
	}
	if len(parts[1]) != 9 {
		t.Errorf("expected 9-char suffix, got %q (%d chars)", parts[1], len(parts[1]))
	}
	for _, r := range parts[1] {
		if !strings.ContainsRune("0123456789abcdefghijklmnopqrstuvwxyz", r) {
			t.Errorf("suffix contains non-base36 character %q in %q", r, id)
		}
	}
}

func TestNewMessageIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id := NewMessageID()
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewMessageIDUniqueConcurrent(t *testing.T) {
	const workers = 16
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]string, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				ids = append(ids, NewMessageID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				if seen[id] {
					t.Errorf("duplicate id generated: %s", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()
}

func TestDataURI(t *testing.T) {
	uri := DataURI("image/png", []byte("hello"))
	if uri != "data:image/png;base64,aGVsbG8=" {
		t.Errorf("unexpected data URI: %s", uri)
	}
}

// The envelope JSON is consumed by the external worker; these field names
// are a wire contract and must not drift.
func TestEnvelopeWireFormat(t *testing.T) {
	sub := &Submission{
		ID:        "123-abc",
		Text:      "hola",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Image: &ImagePayload{
			Filename: "photo.png",
			MimeType: "image/png",
			Size:     5,
			Data:     []byte("hello"),
		},
		WebhookURL: "http://localhost:3000/webhook/response/123-abc",
	}

	data, err := json.Marshal(NewEnvelope(sub))
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}

	for _, key := range []string{"id", "timestamp", "type", "content", "metadata", "webhookUrl"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("envelope missing field %q", key)
		}
	}

	if decoded["type"] != "chat_message" {
		t.Errorf("expected type 'chat_message', got %v", decoded["type"])
	}

	content, ok := decoded["content"].(map[string]interface{})
	if !ok {
		t.Fatal("content is not an object")
	}
	if content["text"] != "hola" {
		t.Errorf("expected content.text 'hola', got %v", content["text"])
	}
	image, ok := content["image"].(string)
	if !ok || !strings.HasPrefix(image, "data:image/png;base64,") {
		t.Errorf("expected data URI in content.image, got %v", content["image"])
	}

	metadata, ok := decoded["metadata"].(map[string]interface{})
	if !ok {
		t.Fatal("metadata is not an object")
	}
	if metadata["filename"] != "photo.png" {
		t.Errorf("expected metadata.filename 'photo.png', got %v", metadata["filename"])
	}
	if metadata["mimetype"] != "image/png" {
		t.Errorf("expected metadata.mimetype 'image/png', got %v", metadata["mimetype"])
	}
	if metadata["size"] != float64(5) {
		t.Errorf("expected metadata.size 5, got %v", metadata["size"])
	}
}

func TestEnvelopeTextOnly(t *testing.T) {
	sub := &Submission{
		ID:         "456-def",
		Text:       "just text",
		CreatedAt:  time.Now().UTC(),
		WebhookURL: "http://localhost:3000/webhook/response/456-def",
	}

	data, err := json.Marshal(NewEnvelope(sub))
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal envelope: %v", err)
	}

	metadata, ok := decoded["metadata"].(map[string]interface{})
	if !ok {
		t.Fatal("metadata is not an object")
	}
	if len(metadata) != 0 {
		t.Errorf("expected empty metadata object for text-only submissions, got %v", metadata)
	}

	content := decoded["content"].(map[string]interface{})
	if content["image"] != nil {
		t.Errorf("expected content.image null, got %v", content["image"])
	}
}
