package hisclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_URLEscapesSegments(t *testing.T) {
	c := New("http://his.local/Medihelp-api/")
	got := c.URL("capbas", "get", "CC", "10 20/30")
	want := "http://his.local/Medihelp-api/capbas/get/CC/10%2020%2F30"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestClient_GetReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/imahc/get/12" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rutima": "//files/ordenes"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Get(context.Background(), "imahc", "get", "12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("expected 2xx, got %d", resp.Status)
	}
	if resp.Err() != nil {
		t.Errorf("expected nil error for 2xx, got %v", resp.Err())
	}
	if v, _ := resp.Value().Field("rutima"); v != "//files/ordenes" {
		t.Errorf("unexpected rutima %q", v)
	}
}

func TestClient_NonSuccessIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("ORA-00001 unique constraint"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Do(context.Background(), http.MethodPost, c.URL("imapronq", "create"), []string{"x"})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var se *StatusError
	if !errors.As(resp.Err(), &se) {
		t.Fatalf("expected *StatusError, got %T", resp.Err())
	}
	if se.Status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", se.Status)
	}
	if !strings.Contains(se.Error(), "ORA-00001") {
		t.Errorf("expected body in error message, got %s", se.Error())
	}
}

func TestClient_DoSendsJSON(t *testing.T) {
	var got []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Do(context.Background(), http.MethodPost, srv.URL, []map[string]string{{"imaobs": "ok"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK() {
		t.Errorf("expected 201 to be OK")
	}
	if len(got) != 1 || got[0]["imaobs"] != "ok" {
		t.Errorf("unexpected body received: %v", got)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, WithTimeout(20*time.Millisecond))
	if _, err := c.Get(context.Background(), "slow"); err == nil {
		t.Fatal("expected timeout error")
	}
}
