package xapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testCredentials = Credentials{
	ConsumerKey:    "ck",
	ConsumerSecret: "cs",
	AccessToken:    "at",
	AccessSecret:   "as",
}

func TestUploadMediaReturnsMediaID(t *testing.T) {
	var (
		gotPath  string
		gotAuth  string
		gotBytes []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		file, _, err := r.FormFile("media")
		if err == nil {
			gotBytes, _ = io.ReadAll(file)
			file.Close()
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"media_id":        710511363345354753,
			"media_id_string": "710511363345354753",
		})
	}))
	defer server.Close()

	client := NewClient(Config{UploadBaseURL: server.URL, Credentials: testCredentials})
	id, err := client.UploadMedia(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id != "710511363345354753" {
		t.Fatalf("unexpected media id: %q", id)
	}
	if gotPath != "/1.1/media/upload.json" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if !strings.Contains(gotAuth, `oauth_consumer_key="ck"`) || !strings.Contains(gotAuth, "oauth_signature=") {
		t.Fatalf("request not signed: %q", gotAuth)
	}
	if string(gotBytes) != "jpeg-bytes" {
		t.Fatalf("unexpected uploaded payload: %q", gotBytes)
	}
}

func TestUploadMediaEmptyPayload(t *testing.T) {
	client := NewClient(Config{Credentials: testCredentials})
	if _, err := client.UploadMedia(context.Background(), nil, "image/png"); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestPostContentSendsMediaIDs(t *testing.T) {
	var gotBody struct {
		Text  string `json:"text"`
		Media struct {
			MediaIDs []string `json:"media_ids"`
		} `json:"media"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "1445880548472328192", "text": gotBody.Text},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Credentials: testCredentials})
	ref, err := client.PostContent(context.Background(), "BYD August deliveries up 30% YoY", []string{"710511363345354753"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ref.ID != "1445880548472328192" {
		t.Fatalf("unexpected post id: %q", ref.ID)
	}
	if ref.URL != "https://x.com/i/web/status/1445880548472328192" {
		t.Fatalf("unexpected post url: %q", ref.URL)
	}
	if gotBody.Text == "" || len(gotBody.Media.MediaIDs) != 1 {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestPostContentSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title":  "Forbidden",
			"detail": "You are not allowed to create a Tweet with duplicate content.",
			"status": 403,
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Credentials: testCredentials})
	_, err := client.PostContent(context.Background(), "dup", nil)
	if err == nil {
		t.Fatal("expected error from API")
	}
	if !strings.Contains(err.Error(), "Forbidden") || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestPostContentRequiresCredentials(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.PostContent(context.Background(), "text", nil); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
