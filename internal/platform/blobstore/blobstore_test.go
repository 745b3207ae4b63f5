package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func seedBlob(t *testing.T, store BlobStore, fileName, content string) *BlobMetadata {
	t.Helper()
	meta := BlobMetadata{
		FileName:    fileName,
		ContentType: "application/pdf",
		CreatedBy:   "operator",
	}
	result, err := store.Upload(context.Background(), meta, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seedBlob: %v", err)
	}
	return result
}

// ---------------------------------------------------------------------------
// Store tests
// ---------------------------------------------------------------------------

func TestInMemoryBlobStore_Upload(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := "%PDF-1.4 scanned"

	result := seedBlob(t, store, "orden.pdf", content)

	if result.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if result.Size != int64(len(content)) {
		t.Errorf("expected Size=%d, got %d", len(content), result.Size)
	}
	want := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
	if result.Hash != want {
		t.Errorf("expected hash %s, got %s", want, result.Hash)
	}
	if result.CreatedAt.IsZero() {
		t.Error("expected non-zero CreatedAt")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 staged blob, got %d", store.Len())
	}
}

func TestInMemoryBlobStore_MissingFileName(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Upload(context.Background(), BlobMetadata{}, strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
}

func TestInMemoryBlobStore_TooLarge(t *testing.T) {
	store := NewInMemoryBlobStore(WithMaxSize(4))
	_, err := store.Upload(context.Background(), BlobMetadata{FileName: "a.pdf"}, strings.NewReader("12345"))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
	if store.Len() != 0 {
		t.Error("expected nothing staged")
	}
}

func TestInMemoryBlobStore_DownloadDelete(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta := seedBlob(t, store, "a.pdf", "content-a")

	rc, got, err := store.Download(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "content-a" {
		t.Errorf("unexpected content %q", data)
	}
	if got.FileName != "a.pdf" {
		t.Errorf("unexpected file name %s", got.FileName)
	}

	if err := store.Delete(context.Background(), meta.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := store.Download(context.Background(), meta.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), meta.ID); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on second delete, got %v", err)
	}
}

func TestInMemoryBlobStore_ConcurrentUploads(t *testing.T) {
	store := NewInMemoryBlobStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Upload(context.Background(), BlobMetadata{FileName: fmt.Sprintf("%d.pdf", i)}, strings.NewReader("x"))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if store.Len() != 20 {
		t.Errorf("expected 20 blobs, got %d", store.Len())
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestBlobHandler_Download(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta := seedBlob(t, store, "consentimiento.pdf", "%PDF-1.7")
	h := NewBlobHandler(store)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(meta.ID)

	if err := h.handleDownload(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "%PDF-1.7" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", ct)
	}
}

func TestBlobHandler_MetadataNotFound(t *testing.T) {
	h := NewBlobHandler(NewInMemoryBlobStore())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	if err := h.handleGetMetadata(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] == "" {
		t.Error("expected error message")
	}
}
