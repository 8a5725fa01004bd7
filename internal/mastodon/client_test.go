package mastodon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestClientPostSuccess(t *testing.T) {
	t.Parallel()
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 100, 10)
	defer c.Close()

	resp := c.Post(context.Background(), srv.URL+"/api/v1/statuses/1/favourite", "tok123")
	if !resp.OK {
		t.Fatalf("Post: OK = false, message %q", resp.Message)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization header = %q", gotAuth)
	}
}

func TestClientPostServerErrorIsRetryable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 100, 10)
	defer c.Close()

	resp := c.Post(context.Background(), srv.URL, "tok")
	if resp.OK {
		t.Fatal("expected OK = false")
	}
	if !resp.Retryable {
		t.Error("expected a 503 to be retryable")
	}
}

func TestClientPostClientErrorIsFatal(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 100, 10)
	defer c.Close()

	resp := c.Post(context.Background(), srv.URL, "tok")
	if resp.OK {
		t.Fatal("expected OK = false")
	}
	if resp.Retryable {
		t.Error("expected a 401 to be fatal, not retryable")
	}
}

func TestClientNewStatusReturnsServerID(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body newStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		if body.Status != "hello" {
			t.Errorf("Status = %q, want %q", body.Status, "hello")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusResponse{ID: "999"})
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 100, 10)
	defer c.Close()

	resp := c.NewStatus(context.Background(), srv.URL, "tok", StatusParams{Body: "hello"})
	if !resp.OK {
		t.Fatalf("NewStatus: OK = false, message %q", resp.Message)
	}
	if resp.Message != "999" {
		t.Errorf("Message = %q, want server id %q", resp.Message, "999")
	}
}

func TestClientUploadReturnsMediaID(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parsing multipart form: %v", err)
		}
		if got := r.FormValue("description"); got != "a cat" {
			t.Errorf("description = %q, want %q", got, "a cat")
		}
		_, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("reading uploaded file: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mediaResponse{ID: "media-1"})
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 100, 10)
	defer c.Close()

	tmpFile := t.TempDir() + "/photo.png"
	if err := os.WriteFile(tmpFile, []byte("not really a png"), 0644); err != nil {
		t.Fatalf("writing %s: %v", tmpFile, err)
	}

	resp := c.Upload(context.Background(), srv.URL, "tok", tmpFile, "a cat")
	if !resp.OK {
		t.Fatalf("Upload: OK = false, message %q", resp.Message)
	}
	if resp.Message != "media-1" {
		t.Errorf("Message = %q, want %q", resp.Message, "media-1")
	}
}
