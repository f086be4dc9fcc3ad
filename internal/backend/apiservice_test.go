package backend

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jo-hoe/imagestore/internal/common"
	"github.com/jo-hoe/imagestore/internal/core"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const testBaseURL = "http://localhost:8000"

func newTestServer(t *testing.T, maxUploadSize string) *echo.Echo {
	t.Helper()

	config := &core.ServiceConfig{
		Port:          8000,
		MaxUploadSize: maxUploadSize,
		Database:      core.Database{Type: "sqlite", ConnectionString: ":memory:"},
		BlobStore:     core.BlobStore{Type: "memory", BaseURL: testBaseURL},
		Cleanup:       core.Cleanup{QueueType: "memory"},
	}

	coreService := core.NewCoreService(config)
	t.Cleanup(func() { _ = coreService.Close() })

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Validator = &common.GenericEchoValidator{}

	NewAPIService(config, coreService).SetRoutes(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeImage(t *testing.T, rec *httptest.ResponseRecorder) ImageResponse {
	t.Helper()

	var response ImageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode image response: %v (body: %s)", err, rec.Body.String())
	}
	return response
}

func TestAPI_UploadGetUpdateListFlow(t *testing.T) {
	e := newTestServer(t, "8M")
	payload := []byte{0x44, 0x49, 0x43, 0x4D, 0x00, 0x01}
	filename := "image-test-upload-1700000000000.dcm"

	// Upload
	rec := doJSON(t, e, http.MethodPost, "/v1/upload", UploadRequest{
		Filename:  filename,
		ImageData: base64.StdEncoding.EncodeToString(payload),
		Tags:      []string{"foo", "bar"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	if contentType := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
		t.Errorf("upload content type = %q; expected JSON", contentType)
	}

	uploaded := decodeImage(t, rec)
	if uploaded.ID == "" {
		t.Fatalf("upload response misses id")
	}
	if uploaded.Filename != filename {
		t.Errorf("upload filename = %q; expected %q", uploaded.Filename, filename)
	}
	if len(uploaded.Tags) != 2 || uploaded.Tags[0].Name != "foo" || uploaded.Tags[1].Name != "bar" {
		t.Errorf("upload tags = %v; expected [foo bar]", uploaded.Tags)
	}
	if uploaded.URL == nil || !strings.Contains(*uploaded.URL, filename) {
		t.Fatalf("upload URL = %v; expected absolute URL containing the filename", uploaded.URL)
	}

	// Get by id, immediately after upload
	rec = doJSON(t, e, http.MethodGet, "/v1/images/"+uploaded.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	fetched := decodeImage(t, rec)
	if fetched.Filename != filename {
		t.Errorf("get filename = %q; expected %q", fetched.Filename, filename)
	}
	if fetched.URL == nil {
		t.Fatalf("get response misses URL")
	}

	// The returned URL must be directly downloadable and yield the payload
	// byte-for-byte.
	blobPath := strings.TrimPrefix(*fetched.URL, testBaseURL)
	rec = doJSON(t, e, http.MethodGet, blobPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("blob download status = %d (path %s)", rec.Code, blobPath)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Errorf("downloaded blob differs from uploaded payload")
	}

	// Update replaces the tag set and keeps the filename
	newTags := []string{"foo-x", "bar-x"}
	rec = doJSON(t, e, http.MethodPut, "/v1/images/"+uploaded.ID, UpdateRequest{Tags: &newTags})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	updated := decodeImage(t, rec)
	if updated.Filename != filename {
		t.Errorf("update filename = %q; expected unchanged %q", updated.Filename, filename)
	}
	if len(updated.Tags) != 2 || updated.Tags[0].Name != "foo-x" || updated.Tags[1].Name != "bar-x" {
		t.Errorf("update tags = %v; expected exactly [foo-x bar-x]", updated.Tags)
	}

	// List, with and without trailing slash
	for _, path := range []string{"/v1/images", "/v1/images/"} {
		rec = doJSON(t, e, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("list status for %s = %d", path, rec.Code)
		}
		var list ListImagesResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
			t.Fatalf("failed to decode list response: %v", err)
		}
		if len(list.Results) != 1 || list.Results[0].ID != uploaded.ID {
			t.Errorf("list results for %s = %+v; expected the uploaded image", path, list.Results)
		}
	}
}

func TestAPI_UploadValidation(t *testing.T) {
	e := newTestServer(t, "8M")

	tests := []struct {
		name string
		body UploadRequest
	}{
		{
			name: "missing filename",
			body: UploadRequest{ImageData: base64.StdEncoding.EncodeToString([]byte{0x01})},
		},
		{
			name: "missing image data",
			body: UploadRequest{Filename: "scan.dcm"},
		},
		{
			name: "invalid base64",
			body: UploadRequest{Filename: "scan.dcm", ImageData: "not-base64!!"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/upload", test.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d; expected 400 (body: %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAPI_UploadBodyLimit(t *testing.T) {
	e := newTestServer(t, "1K")

	rec := doJSON(t, e, http.MethodPost, "/v1/upload", UploadRequest{
		Filename:  "large.dcm",
		ImageData: base64.StdEncoding.EncodeToString(make([]byte, 4096)),
	})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d; expected 413", rec.Code)
	}
}

func TestAPI_UnknownImageID(t *testing.T) {
	e := newTestServer(t, "8M")

	rec := doJSON(t, e, http.MethodGet, "/v1/images/nonexistent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get status = %d; expected 404", rec.Code)
	}

	tags := []string{"foo"}
	rec = doJSON(t, e, http.MethodPut, "/v1/images/nonexistent", UpdateRequest{Tags: &tags})
	if rec.Code != http.StatusNotFound {
		t.Errorf("update status = %d; expected 404", rec.Code)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/blobs/nonexistent/scan.dcm", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("blob download status = %d; expected 404", rec.Code)
	}
}

func TestAPI_Probe(t *testing.T) {
	e := newTestServer(t, "8M")

	rec := doJSON(t, e, http.MethodGet, "/probe", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("probe status = %d; expected 200", rec.Code)
	}
}

func TestAPI_ListEmpty(t *testing.T) {
	e := newTestServer(t, "8M")

	rec := doJSON(t, e, http.MethodGet, "/v1/images", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	var list ListImagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if list.Results == nil {
		t.Errorf("results is null; expected empty array (body: %s)", rec.Body.String())
	}
	if len(list.Results) != 0 {
		t.Errorf("expected no results, got %d", len(list.Results))
	}
}
