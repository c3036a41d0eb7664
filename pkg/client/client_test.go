package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type stubServer struct {
	t           *testing.T
	mux         *http.ServeMux
	server      *httptest.Server
	polls       atomic.Int64
	hasResponse atomic.Bool
}

func newStubServer(t *testing.T) *stubServer {
	t.Helper()
	s := &stubServer{t: t, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("server failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		description := r.FormValue("description")
		hasImage := false
		if file, header, err := r.FormFile("image"); err == nil {
			defer file.Close()
			hasImage = true
			if header.Header.Get("Content-Type") != "image/png" {
				t.Errorf("expected typed image part, got %s", header.Header.Get("Content-Type"))
			}
			if _, err := io.ReadAll(file); err != nil {
				t.Errorf("server failed to read image: %v", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Mensaje enviado a la cola correctamente",
			"data": map[string]interface{}{
				"messageId":   "123-abcdefghi",
				"hasImage":    hasImage,
				"description": description,
				"timestamp":   time.Now().UTC(),
			},
		})
	})

	s.mux.HandleFunc("GET /api/response/", func(w http.ResponseWriter, r *http.Request) {
		s.polls.Add(1)
		data := map[string]interface{}{
			"messageId":   "123-abcdefghi",
			"hasResponse": false,
			"response":    nil,
		}
		if s.hasResponse.Load() {
			now := time.Now().UTC()
			data["hasResponse"] = true
			data["response"] = map[string]interface{}{"text": "listo", "timestamp": now}
			data["responseTimestamp"] = now
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": data})
	})

	s.server = httptest.NewServer(s.mux)
	t.Cleanup(s.server.Close)
	return s
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func fastPolling() Option {
	return WithPolling(0, 5*time.Millisecond, 5)
}

func TestClientSubmit(t *testing.T) {
	s := newStubServer(t)
	c := New(s.server.URL, fastPolling())

	result, err := c.Submit(context.Background(), "hola", &Upload{
		Filename: "photo.png",
		MimeType: "image/png",
		Data:     []byte("fake png bytes"),
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.MessageID != "123-abcdefghi" {
		t.Errorf("unexpected message id %s", result.MessageID)
	}
	if !result.HasImage {
		t.Error("expected hasImage true")
	}
	if result.Description != "hola" {
		t.Errorf("expected description echoed, got %s", result.Description)
	}
}

func TestClientSubmitRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"code":    "BAD_REQUEST",
			"message": "Debe enviar una imagen o una descripcion",
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.URL)
	_, err := c.Submit(context.Background(), "", nil)
	if err == nil {
		t.Fatal("expected error for rejected submission")
	}
}

func TestClientGetResponse(t *testing.T) {
	s := newStubServer(t)
	s.hasResponse.Store(true)
	c := New(s.server.URL)

	resolution, err := c.GetResponse(context.Background(), "123-abcdefghi")
	if err != nil {
		t.Fatalf("GetResponse failed: %v", err)
	}
	if !resolution.HasResponse {
		t.Fatal("expected hasResponse true")
	}
	if resolution.Response == nil || resolution.Response.Text != "listo" {
		t.Errorf("unexpected response: %+v", resolution.Response)
	}
}

func TestClientGetResponseNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/response/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"code":    "NOT_FOUND",
			"message": "message not found",
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := New(server.URL)
	_, err := c.GetResponse(context.Background(), "never-issued")
	if err == nil {
		t.Fatal("expected error for unknown message id")
	}
}

func TestAwaitResponseImmediate(t *testing.T) {
	s := newStubServer(t)
	s.hasResponse.Store(true)
	c := New(s.server.URL, fastPolling())

	resp, err := c.AwaitResponse(context.Background(), "123-abcdefghi")
	if err != nil {
		t.Fatalf("AwaitResponse failed: %v", err)
	}
	if resp == nil || resp.Text != "listo" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if got := s.polls.Load(); got != 1 {
		t.Errorf("expected exactly 1 poll, got %d", got)
	}
}

func TestAwaitResponseArrivesLater(t *testing.T) {
	s := newStubServer(t)
	c := New(s.server.URL, WithPolling(0, 5*time.Millisecond, 50))

	// Flip the stub after a couple of polls have gone through.
	go func() {
		for s.polls.Load() < 2 {
			time.Sleep(time.Millisecond)
		}
		s.hasResponse.Store(true)
	}()

	resp, err := c.AwaitResponse(context.Background(), "123-abcdefghi")
	if err != nil {
		t.Fatalf("AwaitResponse failed: %v", err)
	}
	if resp == nil || resp.Text != "listo" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestAwaitResponseBudgetExhausted(t *testing.T) {
	s := newStubServer(t)
	c := New(s.server.URL, WithPolling(0, time.Millisecond, 3))

	resp, err := c.AwaitResponse(context.Background(), "123-abcdefghi")
	if err != nil {
		t.Fatalf("exhausted budget must not be an error, got %v", err)
	}
	if resp != nil {
		t.Errorf("expected nil response on exhausted budget, got %+v", resp)
	}
	if got := s.polls.Load(); got != 3 {
		t.Errorf("expected 3 polls, got %d", got)
	}
}

func TestAwaitResponseContextCancelled(t *testing.T) {
	s := newStubServer(t)
	c := New(s.server.URL, WithPolling(time.Hour, time.Hour, 10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.AwaitResponse(ctx, "123-abcdefghi")
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestClientTrimsTrailingSlash(t *testing.T) {
	s := newStubServer(t)
	c := New(s.server.URL + "/")

	if _, err := c.GetResponse(context.Background(), "123-abcdefghi"); err != nil {
		t.Fatalf("GetResponse failed with trailing-slash base URL: %v", err)
	}
}
