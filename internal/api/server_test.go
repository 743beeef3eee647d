package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/avolkhov/relaynode/internal/uploads"
)

type fixedCounter int

func (c fixedCounter) Count() int { return int(c) }

func newTestAPI(t *testing.T, opts *Options) *httptest.Server {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	if opts.Uploads == nil {
		store, err := uploads.NewStore(filepath.Join(t.TempDir(), "uploads"), 1<<20, nil, slog.New(slog.DiscardHandler))
		if err != nil {
			t.Fatalf("Failed to create uploads store: %v", err)
		}
		opts.Uploads = store
	}
	srv := NewServer(opts)
	ts := httptest.NewServer(srv.GetMux())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s response: %v", url, err)
		}
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestAPI(t, nil)

	var body HealthData
	resp := getJSON(t, ts.URL+"/api/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body.Status != "ok" {
		t.Errorf("Expected status ok, got %q", body.Status)
	}
}

func TestVersionEndpoint(t *testing.T) {
	ts := newTestAPI(t, nil)

	var body VersionData
	resp := getJSON(t, ts.URL+"/api/version", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body.Version == "" || body.GoVersion == "" {
		t.Errorf("Incomplete version payload: %+v", body)
	}
}

func TestStatusReportsSessionCount(t *testing.T) {
	ts := newTestAPI(t, &Options{Sessions: fixedCounter(3)})

	var body StatusData
	resp := getJSON(t, ts.URL+"/api/status", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body.Sessions != 3 {
		t.Errorf("Expected 3 sessions, got %d", body.Sessions)
	}
}

func TestBasicAuthProtectsStatusButNotHealth(t *testing.T) {
	ts := newTestAPI(t, &Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		Sessions:     fixedCounter(0),
	})

	if resp := getJSON(t, ts.URL+"/api/health", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("Health should not require auth, got %d", resp.StatusCode)
	}
	if resp := getJSON(t, ts.URL+"/api/status", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Status without credentials should be 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/status", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Authenticated request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Valid credentials should pass, got %d", resp.StatusCode)
	}

	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Wrong password should be 401, got %d", resp.StatusCode)
	}
}

var pngHeader = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestUploadLifecycle(t *testing.T) {
	ts := newTestAPI(t, nil)

	body, contentType := multipartBody(t, "file", "poster.png", pngHeader)
	resp, err := http.Post(ts.URL+"/api/uploads", contentType, body)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var uploaded UploadData
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		t.Fatalf("Failed to decode upload response: %v", err)
	}
	if uploaded.File.Name == "" || uploaded.URL == "" {
		t.Fatalf("Incomplete upload response: %+v", uploaded)
	}

	// The stored file is served statically.
	if r := getJSON(t, ts.URL+uploaded.URL, nil); r.StatusCode != http.StatusOK {
		t.Errorf("Static serving returned %d", r.StatusCode)
	}

	var listing UploadListData
	if r := getJSON(t, ts.URL+"/api/uploads", &listing); r.StatusCode != http.StatusOK {
		t.Fatalf("List returned %d", r.StatusCode)
	}
	if listing.Count != 1 || listing.Files[0].Name != uploaded.File.Name {
		t.Errorf("Unexpected listing: %+v", listing)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/uploads/"+uploaded.File.Name, nil)
	dresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	dresp.Body.Close()
	if dresp.StatusCode != http.StatusNoContent && dresp.StatusCode != http.StatusOK {
		t.Errorf("Delete returned %d", dresp.StatusCode)
	}

	if r := getJSON(t, ts.URL+"/api/uploads", &listing); r.StatusCode != http.StatusOK {
		t.Fatalf("List returned %d", r.StatusCode)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	ts := newTestAPI(t, nil)

	body, contentType := multipartBody(t, "file", "evil.png", []byte("#!/bin/sh\necho\n"))
	resp, err := http.Post(ts.URL+"/api/uploads", contentType, body)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("Expected 415, got %d", resp.StatusCode)
	}
}

func TestDeleteUnknownUpload(t *testing.T) {
	ts := newTestAPI(t, nil)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/uploads/missing.png", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestAPI(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/health", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS headers on preflight")
	}
}
